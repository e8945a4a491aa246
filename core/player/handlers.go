package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/course-progress/api/web"
	"github.com/irsalhamdi/course-progress/api/weberr"
	"github.com/irsalhamdi/course-progress/core/claims"
	"github.com/irsalhamdi/course-progress/core/course"
	"github.com/irsalhamdi/course-progress/notify"
	"github.com/irsalhamdi/course-progress/validate"
	"github.com/jmoiron/sqlx"
)

type ResumeRequest struct {
	SubState json.RawMessage `json:"subState"`
}

type AdvanceRequest struct {
	Complete bool `json:"complete"`
}

type JumpRequest struct {
	ModuleIndex *int `json:"moduleIndex" validate:"required,gte=0"`
	LessonIndex *int `json:"lessonIndex" validate:"required,gte=0"`
}

// Moved reports a navigation and the state it led to.
type Moved struct {
	Moved    bool     `json:"moved"`
	Snapshot Snapshot `json:"session"`
}

func HandleOpen(db *sqlx.DB, reg *Registry) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("learner not authenticated"))
		}

		courseID := web.Param(r, "course_id")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		crs, err := course.Fetch(ctx, db, courseID)
		if err != nil {
			if errors.Is(err, course.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching course[%s]: %w", courseID, err)
		}

		s := reg.Open(ctx, clm.LearnerID, crs)

		return web.Respond(ctx, w, s.Snapshot(), http.StatusCreated)
	}
}

func HandleShow(reg *Registry) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		s, err := lookup(ctx, r, reg)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, s.Snapshot(), http.StatusOK)
	}
}

func HandleResume(reg *Registry) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		s, err := lookup(ctx, r, reg)
		if err != nil {
			return err
		}

		var req ResumeRequest
		if err := web.DecodeOptional(w, r, &req); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		snap, err := s.Resume(ctx, req.SubState)
		if err != nil {
			return sessionError(err)
		}

		return web.Respond(ctx, w, snap, http.StatusOK)
	}
}

func HandleStartFresh(reg *Registry) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		s, err := lookup(ctx, r, reg)
		if err != nil {
			return err
		}

		snap, err := s.StartFresh(ctx)
		if err != nil {
			return sessionError(err)
		}

		return web.Respond(ctx, w, snap, http.StatusOK)
	}
}

func HandleAdvance(reg *Registry) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		s, err := lookup(ctx, r, reg)
		if err != nil {
			return err
		}

		var req AdvanceRequest
		if err := web.DecodeOptional(w, r, &req); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		moved, snap, err := s.Advance(ctx, req.Complete)
		if err != nil {
			return sessionError(err)
		}

		return web.Respond(ctx, w, Moved{Moved: moved, Snapshot: snap}, http.StatusOK)
	}
}

func HandleRetreat(reg *Registry) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		s, err := lookup(ctx, r, reg)
		if err != nil {
			return err
		}

		moved, snap, err := s.Retreat(ctx)
		if err != nil {
			return sessionError(err)
		}

		return web.Respond(ctx, w, Moved{Moved: moved, Snapshot: snap}, http.StatusOK)
	}
}

func HandleJump(reg *Registry) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		s, err := lookup(ctx, r, reg)
		if err != nil {
			return err
		}

		var req JumpRequest
		if err := web.Decode(w, r, &req); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(req); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		snap, err := s.JumpTo(ctx, Position{Module: *req.ModuleIndex, Lesson: *req.LessonIndex})
		if err != nil {
			return sessionError(err)
		}

		return web.Respond(ctx, w, snap, http.StatusOK)
	}
}

func HandleEvent(reg *Registry) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		s, err := lookup(ctx, r, reg)
		if err != nil {
			return err
		}

		var e Event
		if err := web.Decode(w, r, &e); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(e); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		snap, err := s.Handle(ctx, e)
		if err != nil {
			return sessionError(err)
		}

		return web.Respond(ctx, w, snap, http.StatusOK)
	}
}

func HandleFlush(reg *Registry) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		s, err := lookup(ctx, r, reg)
		if err != nil {
			return err
		}

		snap, err := s.FlushTime(ctx)
		if err != nil {
			return sessionError(err)
		}

		return web.Respond(ctx, w, snap, http.StatusOK)
	}
}

func HandleClose(reg *Registry) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("learner not authenticated"))
		}

		if err := reg.Close(ctx, web.Param(r, "session_id"), clm.LearnerID); err != nil {
			return sessionError(err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// HandleChanges streams the learner's progress changes on a course as
// server-sent events. A stream ends after maxStream so it stays within the
// server's write timeout; clients reconnect.
func HandleChanges(ch notify.Channel, maxStream time.Duration) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("learner not authenticated"))
		}

		courseID := web.Param(r, "course_id")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		if _, ok := w.(http.Flusher); !ok {
			return web.ErrStreamingUnsupported
		}

		changes := make(chan notify.Change, 16)
		unsubscribe, err := ch.Subscribe(ctx, clm.LearnerID, courseID, func(c notify.Change) {
			select {
			case changes <- c:
			default:
			}
		})
		if err != nil {
			return fmt.Errorf("subscribing to changes: %w", err)
		}
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		if err := web.Event(w, "ready", struct{}{}); err != nil {
			return err
		}

		deadline := time.NewTimer(maxStream)
		defer deadline.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-deadline.C:
				return nil
			case c := <-changes:
				if err := web.Event(w, string(c.Kind), c); err != nil {
					return err
				}
			}
		}
	}
}

func lookup(ctx context.Context, r *http.Request, reg *Registry) (*Session, error) {
	clm, err := claims.Get(ctx)
	if err != nil {
		return nil, weberr.NotAuthorized(errors.New("learner not authenticated"))
	}

	s, err := reg.Get(web.Param(r, "session_id"), clm.LearnerID)
	if err != nil {
		return nil, sessionError(err)
	}
	return s, nil
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionClosed):
		return weberr.NotFound(err)
	case errors.Is(err, ErrOutOfRange):
		return weberr.Unprocessable(err)
	case errors.Is(err, ErrAwaitingDecision),
		errors.Is(err, ErrNoPendingDecision),
		errors.Is(err, ErrUnexpectedEvent):
		return weberr.Conflict(err)
	}
	return err
}
