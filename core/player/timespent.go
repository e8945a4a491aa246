package player

import "time"

// TimeSpent measures dwell time on the current lesson in whole seconds.
// Each flush counts only the seconds since the previous flush; the
// sub-second remainder carries over to the next one.
type TimeSpent struct {
	clock  Clock
	start  time.Time
	total  int64
	active bool
}

func NewTimeSpent(clock Clock) *TimeSpent {
	return &TimeSpent{clock: clock}
}

// Enter starts measuring a lesson that already accumulated t0 seconds.
func (t *TimeSpent) Enter(t0 int64) {
	t.start = t.clock.Now()
	t.total = t0
	t.active = true
}

// Flush returns the new accumulated total and the seconds added since the
// last flush. ok is false when no whole second elapsed, in which case
// nothing should be written.
func (t *TimeSpent) Flush() (total, added int64, ok bool) {
	if !t.active {
		return t.total, 0, false
	}

	elapsed := t.clock.Now().Sub(t.start)
	secs := int64(elapsed / time.Second)
	if secs <= 0 {
		return t.total, 0, false
	}

	t.start = t.start.Add(time.Duration(secs) * time.Second)
	t.total += secs
	return t.total, secs, true
}

// Rebase adds a stored total that could not be read when the lesson was
// entered.
func (t *TimeSpent) Rebase(t0 int64) {
	t.total += t0
}

// Leave stops measuring; the caller flushes first.
func (t *TimeSpent) Leave() {
	t.active = false
}

func (t *TimeSpent) Total() int64 { return t.total }
