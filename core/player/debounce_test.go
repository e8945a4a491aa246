package player

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/course-progress/core/video"
)

type debounceEnv struct {
	clock  *fakeClock
	mu     sync.Mutex
	writes []video.Checkpoint
	fail   bool
	d      *Debouncer
}

func newDebounceEnv() *debounceEnv {
	env := debounceEnv{clock: newFakeClock()}
	env.d = NewDebouncer(env.clock, &env.mu, 5*time.Second, 3, func(cp video.Checkpoint) error {
		if env.fail {
			return errors.New("unavailable")
		}
		env.writes = append(env.writes, cp)
		return nil
	})
	return &env
}

// do runs f like a session operation, holding the lock.
func (env *debounceEnv) do(f func()) {
	env.mu.Lock()
	defer env.mu.Unlock()
	f()
}

func TestDebounceTimeWindow(t *testing.T) {
	env := newDebounceEnv()

	// Twenty ticks 100ms apart, each far enough ahead to pass the position
	// gate on its own.
	for i := 0; i < 20; i++ {
		pos := 10 + float64(i)*5
		env.do(func() { env.d.Schedule(video.NewCheckpoint(pos, 600)) })
		env.clock.Advance(100 * time.Millisecond)
	}

	if len(env.writes) != 1 {
		t.Fatalf("expected 1 write within the window, but got %d", len(env.writes))
	}

	env.clock.Advance(3 * time.Second)
	if len(env.writes) != 2 {
		t.Fatalf("expected the trailing write after the window, but got %d writes", len(env.writes))
	}
	if got := env.writes[1].Position; got != 105 {
		t.Fatalf("expected the latest sample to be written, but got %v", got)
	}
}

func TestDebouncePositionGate(t *testing.T) {
	env := newDebounceEnv()

	env.do(func() { env.d.Schedule(video.NewCheckpoint(10, 600)) })

	// Plenty of time between ticks, but each moves less than 3 seconds past
	// the persisted position.
	for _, pos := range []float64{11, 12, 13} {
		env.clock.Advance(10 * time.Second)
		env.do(func() { env.d.Schedule(video.NewCheckpoint(pos, 600)) })
	}
	if len(env.writes) != 1 {
		t.Fatalf("expected only the first write, but got %d", len(env.writes))
	}

	env.clock.Advance(10 * time.Second)
	env.do(func() { env.d.Schedule(video.NewCheckpoint(13.5, 600)) })
	if len(env.writes) != 2 {
		t.Fatalf("expected a write once the position moved past 3 seconds, but got %d", len(env.writes))
	}
}

func TestDebounceFlushIsImmediateAndIdempotent(t *testing.T) {
	env := newDebounceEnv()

	env.do(func() { env.d.Schedule(video.NewCheckpoint(10, 600)) })
	env.clock.Advance(time.Second)
	env.do(func() { env.d.Schedule(video.NewCheckpoint(20, 600)) })

	var wrote, again bool
	env.do(func() {
		wrote = env.d.Flush(video.NewCheckpoint(21, 600))
		again = env.d.Flush(video.NewCheckpoint(21, 600))
	})
	if !wrote || again {
		t.Fatalf("expected one immediate write, but got %v then %v", wrote, again)
	}

	// The pending sample was dropped by the flush.
	env.clock.Advance(time.Minute)

	want := []video.Checkpoint{video.NewCheckpoint(10, 600), video.NewCheckpoint(21, 600)}
	if diff := cmp.Diff(want, env.writes); diff != "" {
		t.Fatalf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestDebounceCancelStopsTrailingWrite(t *testing.T) {
	env := newDebounceEnv()

	env.do(func() { env.d.Schedule(video.NewCheckpoint(10, 600)) })
	env.clock.Advance(time.Second)
	env.do(func() {
		env.d.Schedule(video.NewCheckpoint(20, 600))
		env.d.Cancel()
	})
	env.clock.Advance(time.Minute)

	if len(env.writes) != 1 {
		t.Fatalf("expected the cancelled write to never fire, but got %d writes", len(env.writes))
	}
}

func TestDebounceZeroPosition(t *testing.T) {
	tests := []struct {
		name  string
		seed  *video.Checkpoint
		write bool
	}{
		{"no prior checkpoint", nil, true},
		{"prior zero checkpoint", &video.Checkpoint{Duration: 600}, true},
		{"prior non-zero checkpoint", &video.Checkpoint{Position: 42, Duration: 600}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newDebounceEnv()
			var wrote bool
			env.do(func() {
				env.d.Seed(tt.seed)
				wrote = env.d.Flush(video.NewCheckpoint(0, 300))
			})
			if wrote != tt.write {
				t.Fatalf("expected write %v, but got %v", tt.write, wrote)
			}
		})
	}
}

func TestDebounceScrubToZero(t *testing.T) {
	env := newDebounceEnv()

	var wrote bool
	env.do(func() {
		env.d.Seed(&video.Checkpoint{Position: 42, Duration: 600})
		wrote = env.d.Scrub(video.NewCheckpoint(0, 600))
	})
	if !wrote {
		t.Fatal("expected a seek back to zero to be written")
	}
	if cp, _ := env.d.Persisted(); cp.Position != 0 {
		t.Fatalf("expected position 0 persisted, but got %v", cp.Position)
	}

	env.do(func() { wrote = env.d.Scrub(video.NewCheckpoint(0, 600)) })
	if wrote {
		t.Fatal("expected an unchanged checkpoint not to be written again")
	}
}

func TestDebounceFailedWriteNotPersisted(t *testing.T) {
	env := newDebounceEnv()
	env.fail = true

	env.do(func() { env.d.Flush(video.NewCheckpoint(30, 600)) })
	if _, ok := env.d.Persisted(); ok {
		t.Fatal("expected a failed write to leave nothing persisted")
	}

	env.fail = false
	var wrote bool
	env.do(func() { wrote = env.d.Flush(video.NewCheckpoint(30, 600)) })
	if !wrote || len(env.writes) != 1 {
		t.Fatalf("expected the next flush to write, but got %v with %d writes", wrote, len(env.writes))
	}
}
