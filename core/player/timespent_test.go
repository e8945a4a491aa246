package player

import (
	"testing"
	"time"
)

func TestTimeSpentNoDoubleCounting(t *testing.T) {
	clock := newFakeClock()
	ts := NewTimeSpent(clock)
	ts.Enter(0)

	clock.Advance(10 * time.Second)
	if total, added, ok := ts.Flush(); !ok || total != 10 || added != 10 {
		t.Fatalf("expected 10 after the first flush, but got %d (+%d, %v)", total, added, ok)
	}

	clock.Advance(10 * time.Second)
	if total, added, ok := ts.Flush(); !ok || total != 20 || added != 10 {
		t.Fatalf("expected 20 after the second flush, but got %d (+%d, %v)", total, added, ok)
	}
}

func TestTimeSpentStartsFromStoredTotal(t *testing.T) {
	clock := newFakeClock()
	ts := NewTimeSpent(clock)
	ts.Enter(300)

	clock.Advance(45 * time.Second)
	if total, _, _ := ts.Flush(); total != 345 {
		t.Fatalf("expected 345, but got %d", total)
	}
}

func TestTimeSpentRebase(t *testing.T) {
	clock := newFakeClock()
	ts := NewTimeSpent(clock)
	ts.Enter(0)

	clock.Advance(4 * time.Second)
	ts.Flush()
	ts.Rebase(300)

	clock.Advance(6 * time.Second)
	if total, added, _ := ts.Flush(); total != 310 || added != 6 {
		t.Fatalf("expected 310 (+6), but got %d (+%d)", total, added)
	}
}

func TestTimeSpentCarriesFractions(t *testing.T) {
	clock := newFakeClock()
	ts := NewTimeSpent(clock)
	ts.Enter(0)

	clock.Advance(700 * time.Millisecond)
	if _, _, ok := ts.Flush(); ok {
		t.Fatal("expected no write before a whole second elapsed")
	}

	clock.Advance(700 * time.Millisecond)
	if total, _, ok := ts.Flush(); !ok || total != 1 {
		t.Fatalf("expected 1 second, but got %d (%v)", total, ok)
	}

	clock.Advance(600 * time.Millisecond)
	if total, _, ok := ts.Flush(); !ok || total != 2 {
		t.Fatalf("expected the carried 400ms to complete a second, but got %d (%v)", total, ok)
	}
}

func TestTimeSpentInactive(t *testing.T) {
	clock := newFakeClock()
	ts := NewTimeSpent(clock)

	clock.Advance(time.Minute)
	if _, _, ok := ts.Flush(); ok {
		t.Fatal("expected no write before entering a lesson")
	}

	ts.Enter(5)
	ts.Leave()
	clock.Advance(time.Minute)
	if total, _, ok := ts.Flush(); ok || total != 5 {
		t.Fatalf("expected no write after leaving, but got %d (%v)", total, ok)
	}
}
