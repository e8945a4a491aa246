package rate

import (
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	burst := 1

	interval := 10 * time.Millisecond
	lim := Every(interval)
	r := NewLimiter(burst, time.Hour, lim)
	defer r.Stop()

	tooshort := 1 * time.Millisecond

	client := "learner:a"
	expected := []bool{true, false, true, true, false, false}
	waits := []time.Duration{tooshort, interval, interval, tooshort, tooshort, tooshort}
	for i, exp := range expected {
		if got := r.Check(client); got != exp {
			t.Fatalf("iteration %d: expected %v, but got %v", i, exp, got)
		}
		time.Sleep(waits[i])
	}
}

func TestLimiterWithBurst(t *testing.T) {
	client := "learner:a"
	burst := 10

	interval := 100 * time.Millisecond
	lim := Every(interval)

	tooshort := 10 * time.Millisecond

	shortest := 1 * time.Millisecond

	expected := []bool{true, true, true, true, true, true, true, true, true, true}
	waits := []time.Duration{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

	expected = append(expected, false, true, true, false, false, false)
	waits = append(waits, interval, interval, tooshort, tooshort, shortest, shortest)

	rr := NewLimiter(burst, time.Hour, lim)
	defer rr.Stop()
	for i, exp := range expected {
		if got := rr.Check(client); got != exp {
			t.Fatalf("iteration %d: expected %v, but got %v", i, exp, got)
		}
		time.Sleep(waits[i])
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	r := NewLimiter(1, time.Hour, Every(time.Hour))
	defer r.Stop()

	if !r.Check("a") || r.Check("a") {
		t.Fatal("expected a single token for a")
	}
	if !r.Check("b") {
		t.Fatal("expected b to have its own bucket")
	}
}

func TestLimiterExpiresQuietClients(t *testing.T) {
	r := NewLimiter(1, time.Minute, Every(time.Hour))
	defer r.Stop()

	r.Check("a")
	r.Check("b")
	if got := r.Clients(); got != 2 {
		t.Fatalf("expected 2 clients, but got %d", got)
	}

	r.expire(time.Now().Add(2 * time.Minute))
	if got := r.Clients(); got != 0 {
		t.Fatalf("expected expired clients to be dropped, but got %d", got)
	}

	r.Stop()
	r.Stop()
}
