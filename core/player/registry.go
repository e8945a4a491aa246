package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/irsalhamdi/course-progress/core/course"
	"github.com/irsalhamdi/course-progress/validate"
	"github.com/sirupsen/logrus"
)

var ErrSessionNotFound = errors.New("player session not found")

// Registry holds the open sessions of this process. A scheduler flushes
// dwell time of every session periodically and closes sessions that went
// idle.
type Registry struct {
	deps Deps
	cfg  Config
	log  logrus.FieldLogger

	mu       sync.Mutex
	sessions map[string]*Session
	opening  map[string]*keyLock

	idleTimeout time.Duration
	sched       *gocron.Scheduler
}

// NewRegistry starts the periodic jobs. Shutdown stops them.
func NewRegistry(deps Deps, cfg Config, flushEvery, idleTimeout time.Duration) (*Registry, error) {
	r := Registry{
		deps:        deps,
		cfg:         cfg,
		log:         deps.Log,
		sessions:    make(map[string]*Session),
		opening:     make(map[string]*keyLock),
		idleTimeout: idleTimeout,
		sched:       gocron.NewScheduler(time.UTC),
	}
	r.sched.SingletonModeAll()
	r.sched.WaitForScheduleAll()

	if _, err := r.sched.Every(flushEvery).Do(r.flushAll); err != nil {
		return nil, fmt.Errorf("scheduling time flush: %w", err)
	}
	if idleTimeout > 0 {
		if _, err := r.sched.Every(reapInterval(idleTimeout)).Do(r.reapIdle); err != nil {
			return nil, fmt.Errorf("scheduling idle reaping: %w", err)
		}
	}
	r.sched.StartAsync()

	return &r, nil
}

// Open starts a session for learner on crs. A session the learner still has
// open on the same course is closed first so the course has one writer.
func (r *Registry) Open(ctx context.Context, learnerID string, crs course.Course) *Session {
	unlock := r.lockCourse(learnerID, crs.ID)
	defer unlock()

	for _, old := range r.byLearnerCourse(learnerID, crs.ID) {
		r.remove(old.ID)
		old.Close(ctx)
	}

	s := Open(ctx, validate.GenerateID(), learnerID, crs, r.deps, r.cfg)

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"learner_id": learnerID,
		"course_id":  crs.ID,
		"outcome":    s.decision.Outcome,
	}).Info("player session opened")

	return s
}

// Get returns the session with id if it belongs to learnerID.
func (r *Registry) Get(id, learnerID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.LearnerID != learnerID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close persists and discards a session.
func (r *Registry) Close(ctx context.Context, id, learnerID string) error {
	s, err := r.Get(id, learnerID)
	if err != nil {
		return err
	}
	r.remove(id)
	s.Close(ctx)

	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops the scheduler and closes every session, flushing their
// state.
func (r *Registry) Shutdown(ctx context.Context) {
	r.sched.Stop()

	for _, s := range r.all() {
		r.remove(s.ID)
		s.Close(ctx)
	}
}

func (r *Registry) flushAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, s := range r.all() {
		s.flushPeriodic(ctx)
	}
}

func (r *Registry) reapIdle() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := r.deps.Clock.Now()
	for _, s := range r.all() {
		if now.Sub(s.idleSince()) < r.idleTimeout {
			continue
		}
		r.remove(s.ID)
		s.Close(ctx)
		r.log.WithField("session_id", s.ID).Info("idle player session closed")
	}
}

func (r *Registry) all() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	ss := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		ss = append(ss, s)
	}
	return ss
}

func (r *Registry) byLearnerCourse(learnerID, courseID string) []*Session {
	var ss []*Session
	for _, s := range r.all() {
		if s.LearnerID == learnerID && s.Course.ID == courseID {
			ss = append(ss, s)
		}
	}
	return ss
}

// keyLock serializes opens of one learner on one course. refs counts the
// callers holding or waiting on it.
type keyLock struct {
	sync.Mutex
	refs int
}

// lockCourse blocks until no other Open for learnerID on courseID is
// running. The returned func releases the lock.
func (r *Registry) lockCourse(learnerID, courseID string) func() {
	key := learnerID + "/" + courseID

	r.mu.Lock()
	l, ok := r.opening[key]
	if !ok {
		l = &keyLock{}
		r.opening[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.opening, key)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func reapInterval(idle time.Duration) time.Duration {
	if d := idle / 4; d > time.Second {
		return d
	}
	return time.Second
}
