package player

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/irsalhamdi/course-progress/core/course"
	"github.com/irsalhamdi/course-progress/core/enrollment"
	"github.com/irsalhamdi/course-progress/core/progress"
	"github.com/irsalhamdi/course-progress/core/video"
	"github.com/irsalhamdi/course-progress/metrics"
	"github.com/irsalhamdi/course-progress/notify"
	"github.com/sirupsen/logrus"
)

var (
	ErrAwaitingDecision  = errors.New("learner must choose to resume or start fresh")
	ErrNoPendingDecision = errors.New("no restore decision is pending")
	ErrSessionClosed     = errors.New("player session closed")
)

// Config tunes the engine.
type Config struct {
	DebounceWindow   time.Duration
	MinAdvance       float64
	Rewind           float64
	AutoRestoreRatio float64
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Progress    ProgressStore
	Enrollments EnrollmentStore
	Channel     notify.Channel
	Clock       Clock
	Log         logrus.FieldLogger
}

// Session is one learner working through one course. Every operation is
// serialized by the session lock, including store writes, so a session never
// has two writes in flight and a later write cannot be overtaken by an
// earlier one. Store failures are logged and otherwise ignored: the
// in-memory state stays authoritative for the rest of the session.
type Session struct {
	ID        string
	LearnerID string
	Course    course.Course

	mu   sync.Mutex
	deps Deps
	cfg  Config
	log  logrus.FieldLogger

	cursor    *Cursor
	tracker   *Tracker
	debouncer *Debouncer
	timeSpent *TimeSpent

	decision  Decision
	awaiting  bool
	completed enrollment.LessonSet
	progress  int
	status    enrollment.Status
	spentSecs int64
	subState  json.RawMessage
	lastSeen  time.Time
	closed    bool

	// Set once the stored lesson record and enrollment have been read.
	// Until then totals are kept as deltas and not written, so a read
	// failure never overwrites stored history with smaller values.
	lessonKnown     bool
	enrollmentKnown bool
}

// Open starts a session, deciding how it resumes. The enrollment is created
// on first access.
func Open(ctx context.Context, id, learnerID string, crs course.Course, deps Deps, cfg Config) *Session {
	s := Session{
		ID:        id,
		LearnerID: learnerID,
		Course:    crs,
		deps:      deps,
		cfg:       cfg,
		log: deps.Log.WithFields(logrus.Fields{
			"session_id": id,
			"learner_id": learnerID,
			"course_id":  crs.ID,
		}),
		cursor:    NewCursor(crs),
		tracker:   NewTracker(),
		timeSpent: NewTimeSpent(deps.Clock),
		completed: enrollment.LessonSet{},
		status:    enrollment.Active,
	}
	s.debouncer = NewDebouncer(deps.Clock, &s.mu, cfg.DebounceWindow, cfg.MinAdvance, s.writeCheckpoint)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen = s.now()
	coord := Coordinator{
		Enrollments: deps.Enrollments,
		Progress:    deps.Progress,
		Threshold:   cfg.AutoRestoreRatio,
		Rewind:      cfg.Rewind,
		Log:         deps.Log,
	}
	s.decision = coord.Decide(ctx, learnerID, crs)
	if e := s.decision.enrollment; e != nil {
		s.completed = e.CompletedLessons.Clone()
		s.progress = e.Progress
		s.status = e.Status
		s.spentSecs = e.TotalTimeSpentSeconds
	}
	s.enrollmentKnown = s.decision.enrollment != nil || s.decision.Outcome != Fresh

	total := crs.TotalLessons()
	now := s.now()
	s.enrollmentUpsert(ctx, "enroll", enrollment.EnrollmentUp{TotalLessons: &total, LastAccessed: &now})

	switch s.decision.Outcome {
	case AutoResume:
		s.applyRestore(ctx)
	case NeedsConfirmation:
		s.awaiting = true
	case FirstVisit:
		s.arrive(ctx)
	default:
		// The stored restore point could not be read and is left alone.
		s.enterLesson(ctx, nil)
	}

	metrics.SessionOpened()
	return &s
}

// Resume applies the pending restore point. subState is opaque learner input
// to hand back to the client, such as selected answers.
func (s *Session) Resume(ctx context.Context, subState json.RawMessage) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.alive(); err != nil {
		return Snapshot{}, err
	}
	if !s.awaiting {
		return Snapshot{}, ErrNoPendingDecision
	}

	s.awaiting = false
	s.subState = subState
	s.applyRestore(ctx)
	metrics.RestoreDecided("resumed")

	return s.snapshot(), nil
}

// StartFresh discards the restore point and starts at the first lesson.
// Stored lesson records are kept.
func (s *Session) StartFresh(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.alive(); err != nil {
		return Snapshot{}, err
	}
	if !s.awaiting {
		return Snapshot{}, ErrNoPendingDecision
	}

	s.awaiting = false
	s.cursor.Reset()
	s.enrollmentUpsert(ctx, "restart", enrollment.EnrollmentUp{Cursor: &enrollment.Cursor{}})

	zero := 0.0
	s.enterLesson(ctx, &zero)
	s.publish(ctx, notify.RestartedFresh)
	metrics.RestoreDecided("started_fresh")

	return s.snapshot(), nil
}

// Advance moves to the next lesson. complete marks the lesson being left as
// completed, also when it is the last one. moved is false at the end of the
// course.
func (s *Session) Advance(ctx context.Context, complete bool) (moved bool, snap Snapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return false, Snapshot{}, err
	}

	if s.cursor.IsLast() {
		if complete {
			if l, ok := s.cursor.Current(); ok {
				s.markCompleted(ctx, l)
			}
		}
		return false, s.snapshot(), nil
	}

	s.leaveLesson(ctx, complete)
	s.cursor.Advance()
	s.arrive(ctx)

	return true, s.snapshot(), nil
}

// Retreat moves to the previous lesson, moved is false at the first one.
func (s *Session) Retreat(ctx context.Context) (moved bool, snap Snapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return false, Snapshot{}, err
	}
	if s.cursor.IsFirst() {
		return false, s.snapshot(), nil
	}

	s.leaveLesson(ctx, false)
	s.cursor.Retreat()
	s.arrive(ctx)

	return true, s.snapshot(), nil
}

// JumpTo moves to any existing lesson. ErrOutOfRange leaves the session
// untouched.
func (s *Session) JumpTo(ctx context.Context, p Position) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return Snapshot{}, err
	}
	if _, ok := s.Course.LessonAt(p.Module, p.Lesson); !ok {
		return Snapshot{}, ErrOutOfRange
	}

	s.leaveLesson(ctx, false)
	if err := s.cursor.JumpTo(p.Module, p.Lesson); err != nil {
		return Snapshot{}, err
	}
	s.arrive(ctx)

	return s.snapshot(), nil
}

// Handle feeds a media event to the tracker and carries out its effects.
func (s *Session) Handle(ctx context.Context, e Event) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return Snapshot{}, err
	}
	lesson, ok := s.cursor.Current()
	if !ok {
		return Snapshot{}, ErrOutOfRange
	}

	effects, err := s.tracker.Handle(e)
	if err != nil {
		return Snapshot{}, err
	}

	for _, ef := range effects {
		switch ef.Kind {
		case ScheduleWrite:
			s.debouncer.Schedule(ef.Checkpoint)
		case WriteNow:
			if ef.Scrub {
				s.debouncer.Scrub(ef.Checkpoint)
			} else {
				s.debouncer.Flush(ef.Checkpoint)
			}
		case MarkCompleted:
			s.markCompleted(ctx, lesson)
		}
	}
	if e.Kind == Unload {
		s.flushTime(ctx)
	}

	return s.snapshot(), nil
}

// FlushTime writes the dwell time of the current lesson.
func (s *Session) FlushTime(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return Snapshot{}, err
	}
	s.flushTime(ctx)

	return s.snapshot(), nil
}

// flushPeriodic is FlushTime for the scheduler, which must not refresh the
// idle clock.
func (s *Session) flushPeriodic(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.flushTime(ctx)
}

// Close flushes time and the current checkpoint and stops all timers. It is
// safe to call more than once.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if !s.awaiting {
		s.leaveLesson(ctx, false)
	}
	s.debouncer.Cancel()
	s.closed = true
	metrics.SessionClosed()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastSeen
}

// alive refuses closed sessions and records activity.
func (s *Session) alive() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.lastSeen = s.now()
	return nil
}

// usable is alive for operations that need a started lesson.
func (s *Session) usable() error {
	if err := s.alive(); err != nil {
		return err
	}
	if s.awaiting {
		return ErrAwaitingDecision
	}
	return nil
}

func (s *Session) applyRestore(ctx context.Context) {
	p := s.decision.Point.Position
	if err := s.cursor.JumpTo(p.Module, p.Lesson); err != nil {
		s.cursor.Reset()
	}
	offset := s.decision.ResumeOffset
	s.enterLesson(ctx, &offset)
	s.writeCursor(ctx)
}

// leaveLesson settles the current lesson before the cursor moves: time is
// flushed, the checkpoint is written at once instead of waiting for the
// debounce timer, and the tracker is reset.
func (s *Session) leaveLesson(ctx context.Context, complete bool) {
	s.flushTime(ctx)
	s.timeSpent.Leave()

	if s.tracker.HasMedia() {
		s.debouncer.Flush(s.tracker.Checkpoint())
	}
	s.debouncer.Cancel()

	if complete {
		if l, ok := s.cursor.Current(); ok {
			s.markCompleted(ctx, l)
		}
	}

	s.tracker.Reset(0, false)
}

// arrive enters the lesson under the cursor after navigation. The lesson
// resumes from its own stored checkpoint.
func (s *Session) arrive(ctx context.Context) {
	s.enterLesson(ctx, nil)
	s.writeCursor(ctx)
}

// enterLesson loads the stored record of the current lesson and starts
// measuring it. offset overrides the resume offset computed from the stored
// checkpoint.
func (s *Session) enterLesson(ctx context.Context, offset *float64) {
	lesson, ok := s.cursor.Current()
	if !ok {
		s.tracker.Reset(0, false)
		s.debouncer.Seed(nil)
		return
	}

	var (
		cp     *video.Checkpoint
		t0     int64
		status = progress.NotStarted
	)
	s.lessonKnown = true
	rec, err := s.deps.Progress.Read(ctx, s.key(lesson))
	switch {
	case err == nil:
		cp = &rec.Checkpoint
		t0 = rec.TimeSpentSeconds
		status = rec.Status
	case errors.Is(err, progress.ErrNotFound):
	default:
		s.storeFailed(err, "read_lesson", lesson.ID)
		s.lessonKnown = false
	}

	if status == progress.Completed {
		s.completed[lesson.ID] = struct{}{}
	}
	done := s.completed.Has(lesson.ID)

	resume := 0.0
	switch {
	case offset != nil:
		resume = *offset
	case cp != nil:
		resume = video.ResumeOffset(cp.Position, cp.Completed, s.cfg.Rewind)
	}

	s.debouncer.Seed(cp)
	s.tracker.Reset(resume, done)
	s.timeSpent.Enter(t0)

	now := s.now()
	up := progress.LessonUp{LastAccessed: &now}
	if !done && s.lessonKnown {
		st := progress.InProgress
		up.Status = &st
	}
	s.progressUpsert(ctx, "enter_lesson", lesson, up)
	s.publish(ctx, notify.LessonEntered)
}

// writeCursor records the restore point of the current lesson.
func (s *Session) writeCursor(ctx context.Context) {
	p, ok := s.cursor.Position()
	if !ok {
		return
	}
	l, _ := s.cursor.Current()

	var pos float64
	if cp, ok := s.debouncer.Persisted(); ok {
		pos = cp.Position
	}

	s.enrollmentUpsert(ctx, "cursor", enrollment.EnrollmentUp{
		Cursor: &enrollment.Cursor{
			ModuleIndex:   p.Module,
			LessonIndex:   p.Lesson,
			LessonID:      l.ID,
			VideoPosition: pos,
		},
	})
}

// writeCheckpoint is the debouncer's write path.
func (s *Session) writeCheckpoint(cp video.Checkpoint) error {
	lesson, ok := s.cursor.Current()
	if !ok {
		return ErrOutOfRange
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := s.now()
	if err := s.deps.Progress.Upsert(ctx, s.key(lesson), progress.LessonUp{Checkpoint: &cp, LastAccessed: &now}); err != nil {
		s.storeFailed(err, "checkpoint", lesson.ID)
		return err
	}
	pos := cp.Position
	s.enrollmentUpsert(ctx, "checkpoint", enrollment.EnrollmentUp{VideoPosition: &pos})

	s.publishChange(ctx, notify.Change{Kind: notify.CheckpointSaved, Position: cp.Position})
	return nil
}

// markCompleted records the lesson as completed once and promotes the
// enrollment when every lesson of the course is done.
func (s *Session) markCompleted(ctx context.Context, lesson course.Lesson) {
	s.tracker.MarkCompleted()
	if s.completed.Has(lesson.ID) {
		return
	}

	now := s.now()
	st := progress.Completed
	s.progressUpsert(ctx, "complete_lesson", lesson, progress.LessonUp{Status: &st, CompletedAt: &now, LastAccessed: &now})

	s.completed[lesson.ID] = struct{}{}
	total := s.Course.TotalLessons()
	s.progress = enrollment.Percent(countInCourse(s.completed, s.Course), total)

	if !s.syncEnrollment(ctx) {
		metrics.LessonCompleted()
		s.publish(ctx, notify.LessonCompleted)
		return
	}

	done, err := s.deps.Progress.Count(ctx, progress.Filter{LearnerID: s.LearnerID, CourseID: s.Course.ID, Status: progress.Completed})
	if err != nil {
		s.storeFailed(err, "count_completed", lesson.ID)
		done = len(s.completed)
	}

	up := enrollment.EnrollmentUp{CompletedLessons: s.completed.Clone(), Progress: &s.progress}
	promoted := done >= total && s.status != enrollment.Completed
	if promoted {
		s.status = enrollment.Completed
		up.Status = &s.status
	}
	s.enrollmentUpsert(ctx, "complete_lesson", up)

	metrics.LessonCompleted()
	s.publish(ctx, notify.LessonCompleted)
	if promoted {
		s.publish(ctx, notify.CourseCompleted)
	}
}

func (s *Session) flushTime(ctx context.Context) {
	lesson, ok := s.cursor.Current()
	if !ok {
		return
	}
	_, added, ok := s.timeSpent.Flush()
	if !ok {
		return
	}
	s.spentSecs += added

	now := s.now()
	known := s.syncLesson(ctx, lesson)
	total := s.timeSpent.Total()
	if known {
		s.progressUpsert(ctx, "time_spent", lesson, progress.LessonUp{TimeSpentSeconds: &total, LastAccessed: &now})
	}
	if s.syncEnrollment(ctx) {
		s.enrollmentUpsert(ctx, "time_spent", enrollment.EnrollmentUp{TotalTimeSpentSeconds: &s.spentSecs, LastAccessed: &now})
	}

	s.publishChange(ctx, notify.Change{Kind: notify.TimeSpentFlushed, TimeSpentSeconds: total})
}

// syncLesson reads the lesson record that could not be read on entry and
// rebases the dwell time on it. It reports whether absolute lesson values may
// be written.
func (s *Session) syncLesson(ctx context.Context, lesson course.Lesson) bool {
	if s.lessonKnown {
		return true
	}

	rec, err := s.deps.Progress.Read(ctx, s.key(lesson))
	switch {
	case err == nil:
		s.timeSpent.Rebase(rec.TimeSpentSeconds)
		if rec.Status == progress.Completed {
			s.completed[lesson.ID] = struct{}{}
			s.tracker.MarkCompleted()
		}
	case errors.Is(err, progress.ErrNotFound):
	default:
		s.storeFailed(err, "read_lesson", lesson.ID)
		return false
	}
	s.lessonKnown = true

	if !s.completed.Has(lesson.ID) {
		st := progress.InProgress
		s.progressUpsert(ctx, "enter_lesson", lesson, progress.LessonUp{Status: &st})
	}
	return true
}

// syncEnrollment reads the enrollment that could not be read on open and
// merges what the session recorded since. It reports whether course totals
// may be written.
func (s *Session) syncEnrollment(ctx context.Context) bool {
	if s.enrollmentKnown {
		return true
	}

	e, err := s.deps.Enrollments.Read(ctx, s.LearnerID, s.Course.ID)
	switch {
	case err == nil:
		for id := range e.CompletedLessons {
			s.completed[id] = struct{}{}
		}
		s.spentSecs += e.TotalTimeSpentSeconds
		if e.Status == enrollment.Completed {
			s.status = enrollment.Completed
		}
	case errors.Is(err, enrollment.ErrNotFound):
	default:
		s.storeFailed(err, "read_enrollment", "")
		return false
	}
	s.enrollmentKnown = true

	s.progress = enrollment.Percent(countInCourse(s.completed, s.Course), s.Course.TotalLessons())
	s.enrollmentUpsert(ctx, "resync", enrollment.EnrollmentUp{CompletedLessons: s.completed.Clone(), Progress: &s.progress})
	return true
}

func (s *Session) progressUpsert(ctx context.Context, op string, lesson course.Lesson, up progress.LessonUp) {
	if err := s.deps.Progress.Upsert(ctx, s.key(lesson), up); err != nil {
		s.storeFailed(err, op, lesson.ID)
	}
}

func (s *Session) enrollmentUpsert(ctx context.Context, op string, up enrollment.EnrollmentUp) {
	if err := s.deps.Enrollments.Upsert(ctx, s.LearnerID, s.Course.ID, up); err != nil {
		s.storeFailed(err, op, "")
	}
}

func (s *Session) storeFailed(err error, op, lessonID string) {
	s.log.WithError(err).WithFields(logrus.Fields{"op": op, "lesson_id": lessonID}).Warn("progress store unavailable")
	metrics.StoreFailed(op)
}

func (s *Session) publish(ctx context.Context, kind notify.Kind) {
	s.publishChange(ctx, notify.Change{Kind: kind})
}

// publishChange fills in the session's identity and current position.
func (s *Session) publishChange(ctx context.Context, c notify.Change) {
	if s.deps.Channel == nil {
		return
	}

	c.LearnerID = s.LearnerID
	c.CourseID = s.Course.ID
	if p, ok := s.cursor.Position(); ok {
		c.ModuleIndex, c.LessonIndex = p.Module, p.Lesson
	}
	if l, ok := s.cursor.Current(); ok {
		c.LessonID = l.ID
	}
	c.Progress = s.progress
	c.At = s.now()

	if err := s.deps.Channel.Publish(ctx, c); err != nil {
		s.log.WithError(err).WithField("kind", c.Kind).Warn("publishing change failed")
	}
}

func (s *Session) key(l course.Lesson) progress.Key {
	return progress.Key{LearnerID: s.LearnerID, CourseID: s.Course.ID, LessonID: l.ID}
}

func (s *Session) now() time.Time { return s.deps.Clock.Now() }
