package player

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/irsalhamdi/course-progress/core/course"
	"github.com/irsalhamdi/course-progress/core/enrollment"
	"github.com/irsalhamdi/course-progress/core/progress"
	"github.com/irsalhamdi/course-progress/core/video"
	"github.com/irsalhamdi/course-progress/notify"
	"github.com/sirupsen/logrus"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	f     func()
	done  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	active := !t.done
	t.done = true
	return active
}

// Advance moves time forward, running due timers in order on the calling
// goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)

	for {
		sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at.Before(c.timers[j].at) })

		var due *fakeTimer
		for _, t := range c.timers {
			if !t.done && !t.at.After(target) {
				due = t
				break
			}
		}
		if due == nil {
			break
		}

		due.done = true
		c.now = due.at
		c.mu.Unlock()
		due.f()
		c.mu.Lock()
	}

	c.now = target
	c.mu.Unlock()
}

var errUnavailable = fmt.Errorf("store unavailable")

type memProgress struct {
	mu          sync.Mutex
	rows        map[progress.Key]progress.LessonProgress
	checkpoints []video.Checkpoint
	fail        map[string]bool
}

func newMemProgress() *memProgress {
	return &memProgress{rows: make(map[progress.Key]progress.LessonProgress), fail: make(map[string]bool)}
}

func (m *memProgress) failing(op string, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = on
}

func (m *memProgress) Upsert(_ context.Context, key progress.Key, up progress.LessonUp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail["upsert"] {
		return errUnavailable
	}

	p, ok := m.rows[key]
	if !ok {
		p = progress.LessonProgress{LearnerID: key.LearnerID, CourseID: key.CourseID, LessonID: key.LessonID, Status: progress.NotStarted}
	}
	if up.Status != nil {
		p.Status = *up.Status
	}
	if up.TimeSpentSeconds != nil {
		p.TimeSpentSeconds = *up.TimeSpentSeconds
	}
	if up.Checkpoint != nil {
		p.Checkpoint = *up.Checkpoint
		m.checkpoints = append(m.checkpoints, *up.Checkpoint)
	}
	if up.LastAccessed != nil {
		p.LastAccessed = *up.LastAccessed
	}
	if up.CompletedAt != nil {
		at := *up.CompletedAt
		p.CompletedAt = &at
	}
	m.rows[key] = p
	return nil
}

func (m *memProgress) Read(_ context.Context, key progress.Key) (progress.LessonProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail["read"] {
		return progress.LessonProgress{}, errUnavailable
	}
	p, ok := m.rows[key]
	if !ok {
		return progress.LessonProgress{}, progress.ErrNotFound
	}
	return p, nil
}

func (m *memProgress) Count(_ context.Context, f progress.Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail["count"] {
		return 0, errUnavailable
	}
	var n int
	for _, p := range m.rows {
		if p.LearnerID == f.LearnerID && p.CourseID == f.CourseID && (f.Status == "" || p.Status == f.Status) {
			n++
		}
	}
	return n, nil
}

func (m *memProgress) row(lessonID string) progress.LessonProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[progress.Key{LearnerID: learner, CourseID: testCourse().ID, LessonID: lessonID}]
}

func (m *memProgress) writes() []video.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]video.Checkpoint(nil), m.checkpoints...)
}

type memEnrollments struct {
	mu   sync.Mutex
	rows map[[2]string]enrollment.Enrollment
	fail map[string]bool
}

func newMemEnrollments() *memEnrollments {
	return &memEnrollments{rows: make(map[[2]string]enrollment.Enrollment), fail: make(map[string]bool)}
}

func (m *memEnrollments) failing(op string, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = on
}

func (m *memEnrollments) Read(_ context.Context, learnerID, courseID string) (enrollment.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail["read"] {
		return enrollment.Enrollment{}, errUnavailable
	}
	e, ok := m.rows[[2]string{learnerID, courseID}]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	e.CompletedLessons = e.CompletedLessons.Clone()
	return e, nil
}

func (m *memEnrollments) Upsert(_ context.Context, learnerID, courseID string, up enrollment.EnrollmentUp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail["upsert"] {
		return errUnavailable
	}

	k := [2]string{learnerID, courseID}
	e, ok := m.rows[k]
	if !ok {
		e = enrollment.Enrollment{LearnerID: learnerID, CourseID: courseID, Status: enrollment.Active, CompletedLessons: enrollment.LessonSet{}}
	}
	if up.CompletedLessons != nil {
		e.CompletedLessons = up.CompletedLessons.Clone()
	}
	if up.Cursor != nil {
		e.LastModuleIndex = up.Cursor.ModuleIndex
		e.LastLessonIndex = up.Cursor.LessonIndex
		e.LastLessonID = up.Cursor.LessonID
		e.LastVideoPosition = up.Cursor.VideoPosition
	} else if up.VideoPosition != nil {
		e.LastVideoPosition = *up.VideoPosition
	}
	if up.Progress != nil {
		e.Progress = *up.Progress
	}
	if up.Status != nil {
		e.Status = *up.Status
	}
	if up.TotalLessons != nil {
		e.TotalLessons = *up.TotalLessons
	}
	if up.TotalTimeSpentSeconds != nil {
		e.TotalTimeSpentSeconds = *up.TotalTimeSpentSeconds
	}
	if up.LastAccessed != nil {
		e.LastAccessed = *up.LastAccessed
	}
	m.rows[k] = e
	return nil
}

func (m *memEnrollments) get() enrollment.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[[2]string{learner, testCourse().ID}]
}

const learner = "learner-1"

// testCourse has two modules of three 600 second lessons each, l<m><l>.
func testCourse() course.Course {
	c := course.Course{ID: "course-1", Name: "Go"}
	for m := 0; m < 2; m++ {
		mod := course.Module{ID: fmt.Sprintf("m%d", m), CourseID: c.ID, Index: m}
		for l := 0; l < 3; l++ {
			mod.Lessons = append(mod.Lessons, course.Lesson{
				ID:       fmt.Sprintf("l%d%d", m, l),
				ModuleID: mod.ID,
				CourseID: c.ID,
				Duration: 600,
				Index:    l,
			})
		}
		c.Modules = append(c.Modules, mod)
	}
	return c
}

type harness struct {
	clock       *fakeClock
	progress    *memProgress
	enrollments *memEnrollments
	channel     *notify.Memory
	deps        Deps
	cfg         Config
}

func newHarness() *harness {
	h := harness{
		clock:       newFakeClock(),
		progress:    newMemProgress(),
		enrollments: newMemEnrollments(),
		channel:     notify.NewMemory(),
		cfg: Config{
			DebounceWindow:   5 * time.Second,
			MinAdvance:       3,
			Rewind:           video.DefaultRewind,
			AutoRestoreRatio: 0.6,
		},
	}
	h.deps = Deps{
		Progress:    h.progress,
		Enrollments: h.enrollments,
		Channel:     h.channel,
		Clock:       h.clock,
		Log:         quietLog(),
	}
	return &h
}

func (h *harness) open(t *testing.T) *Session {
	t.Helper()
	s := Open(context.Background(), "session-1", learner, testCourse(), h.deps, h.cfg)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// must fails the test on error: must(t)(s.FlushTime(ctx)).
func must(t *testing.T) func(Snapshot, error) Snapshot {
	t.Helper()
	return func(snap Snapshot, err error) Snapshot {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return snap
	}
}
