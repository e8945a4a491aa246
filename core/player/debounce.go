package player

import (
	"sync"
	"time"

	"github.com/irsalhamdi/course-progress/core/video"
	"github.com/irsalhamdi/course-progress/metrics"
)

// Debouncer turns a stream of playback samples into a bounded number of
// checkpoint writes. Scheduled samples are written at most once per window
// and only when they moved more than minAdvance seconds past the last
// persisted position. Flush writes at once and restarts the window.
//
// All methods must be called with mu held. The trailing timer acquires mu
// itself before writing.
type Debouncer struct {
	clock      Clock
	mu         sync.Locker
	window     time.Duration
	minAdvance float64
	write      func(video.Checkpoint) error

	persisted   *video.Checkpoint
	lastWriteAt time.Time
	pending     *video.Checkpoint
	timer       Timer
	gen         int
}

func NewDebouncer(clock Clock, mu sync.Locker, window time.Duration, minAdvance float64, write func(video.Checkpoint) error) *Debouncer {
	return &Debouncer{
		clock:      clock,
		mu:         mu,
		window:     window,
		minAdvance: minAdvance,
		write:      write,
	}
}

// Seed starts a new lesson from its stored checkpoint, nil when none exists.
func (d *Debouncer) Seed(cp *video.Checkpoint) {
	d.Cancel()
	d.persisted = nil
	if cp != nil {
		c := *cp
		d.persisted = &c
	}
	d.lastWriteAt = time.Time{}
}

// Persisted is the last checkpoint known to be stored.
func (d *Debouncer) Persisted() (video.Checkpoint, bool) {
	if d.persisted == nil {
		return video.Checkpoint{}, false
	}
	return *d.persisted, true
}

func (d *Debouncer) Pending() bool { return d.pending != nil }

// Schedule offers a sample from regular playback.
func (d *Debouncer) Schedule(cp video.Checkpoint) {
	if d.suppressZero(cp) {
		return
	}

	var last float64
	if d.persisted != nil {
		last = d.persisted.Position
	}
	if cp.Position-last <= d.minAdvance {
		metrics.CheckpointSuppressed(metrics.SuppressedSmallAdvance)
		return
	}

	now := d.clock.Now()
	next := d.lastWriteAt.Add(d.window)
	if d.lastWriteAt.IsZero() || !now.Before(next) {
		d.Cancel()
		d.store(cp, metrics.TriggerDebounced)
		return
	}

	d.pending = &cp
	if d.timer == nil {
		gen := d.gen
		d.timer = d.clock.AfterFunc(next.Sub(now), func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.fire(gen)
		})
	}
}

// Flush writes cp immediately, dropping any pending sample. It reports
// whether a write was issued; an unchanged checkpoint is not written again.
func (d *Debouncer) Flush(cp video.Checkpoint) bool {
	d.Cancel()

	if d.suppressZero(cp) {
		return false
	}
	return d.flush(cp)
}

// Scrub is Flush for a position the learner sought to. It may move the
// checkpoint back to zero.
func (d *Debouncer) Scrub(cp video.Checkpoint) bool {
	d.Cancel()
	return d.flush(cp)
}

func (d *Debouncer) flush(cp video.Checkpoint) bool {
	if d.persisted != nil && *d.persisted == cp {
		metrics.CheckpointSuppressed(metrics.SuppressedUnchanged)
		return false
	}

	return d.store(cp, metrics.TriggerImmediate)
}

// Cancel stops the trailing timer and forgets the pending sample.
func (d *Debouncer) Cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.gen++
}

func (d *Debouncer) fire(gen int) {
	if gen != d.gen || d.pending == nil {
		return
	}
	cp := *d.pending
	d.pending = nil
	d.timer = nil

	var last float64
	if d.persisted != nil {
		last = d.persisted.Position
	}
	if cp.Position-last <= d.minAdvance {
		return
	}
	d.store(cp, metrics.TriggerDebounced)
}

// store marks cp persisted only when the write succeeds. The window restarts
// either way so a failing store is not hammered.
func (d *Debouncer) store(cp video.Checkpoint, trigger string) bool {
	d.lastWriteAt = d.clock.Now()
	metrics.CheckpointWritten(trigger)

	if err := d.write(cp); err != nil {
		return true
	}
	d.persisted = &cp
	return true
}

// A zero position never replaces a non-zero checkpoint.
func (d *Debouncer) suppressZero(cp video.Checkpoint) bool {
	if cp.Position > 0 || d.persisted == nil || d.persisted.Position <= 0 {
		return false
	}
	metrics.CheckpointSuppressed(metrics.SuppressedZero)
	return true
}
