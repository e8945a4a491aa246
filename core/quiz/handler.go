package quiz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/course-progress/api/web"
	"github.com/irsalhamdi/course-progress/api/weberr"
	"github.com/irsalhamdi/course-progress/core/claims"
	"github.com/irsalhamdi/course-progress/core/course"
	"github.com/irsalhamdi/course-progress/database"
	"github.com/irsalhamdi/course-progress/validate"
	"github.com/jmoiron/sqlx"
)

func HandleStart(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("learner not authenticated"))
		}

		courseID := web.Param(r, "course_id")
		lessonID := web.Param(r, "lesson_id")
		quizID := web.Param(r, "quiz_id")
		if err := validate.CheckIDs(courseID, lessonID, quizID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		var an AttemptNew
		if err := web.Decode(w, r, &an); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(an); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		crs, err := course.Fetch(ctx, db, courseID)
		if err != nil {
			if errors.Is(err, course.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching course[%s]: %w", courseID, err)
		}
		if !crs.HasLesson(lessonID) {
			return weberr.NotFound(fmt.Errorf("lesson[%s] is not part of course[%s]", lessonID, courseID))
		}

		var st Started
		err = database.Transaction(db, func(tx sqlx.ExtContext) error {
			st, err = Start(ctx, tx, clm.LearnerID, courseID, lessonID, quizID, an, time.Now())
			return err
		})
		if err != nil {
			return fmt.Errorf("starting quiz[%s]: %w", quizID, err)
		}

		status := http.StatusCreated
		if st.Resumed {
			status = http.StatusOK
		}
		return web.Respond(ctx, w, st, status)
	}
}

func HandleCurrent(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("learner not authenticated"))
		}

		quizID := web.Param(r, "quiz_id")
		if err := validate.CheckID(quizID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		a, err := Current(ctx, db, clm.LearnerID, quizID)
		if err != nil {
			return attemptError(err, quizID)
		}

		return web.Respond(ctx, w, a, http.StatusOK)
	}
}

func HandleAnswer(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, quizID, number, err := attemptParams(ctx, r)
		if err != nil {
			return err
		}

		var an AnswerNew
		if err := web.Decode(w, r, &an); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(an); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		var a Attempt
		err = database.Transaction(db, func(tx sqlx.ExtContext) error {
			a, err = SaveAnswer(ctx, tx, clm.LearnerID, quizID, number, an, time.Now())
			return err
		})
		if err != nil {
			return attemptError(err, quizID)
		}

		return web.Respond(ctx, w, a, http.StatusOK)
	}
}

func HandleSubmit(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, quizID, number, err := attemptParams(ctx, r)
		if err != nil {
			return err
		}

		var s Submission
		if err := web.Decode(w, r, &s); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(s); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		var a Attempt
		err = database.Transaction(db, func(tx sqlx.ExtContext) error {
			a, err = Submit(ctx, tx, clm.LearnerID, quizID, number, s, time.Now())
			return err
		})
		if err != nil {
			return attemptError(err, quizID)
		}

		return web.Respond(ctx, w, a, http.StatusOK)
	}
}

func attemptParams(ctx context.Context, r *http.Request) (claims.Claims, string, int, error) {
	clm, err := claims.Get(ctx)
	if err != nil {
		return claims.Claims{}, "", 0, weberr.NotAuthorized(errors.New("learner not authenticated"))
	}

	quizID := web.Param(r, "quiz_id")
	if err := validate.CheckID(quizID); err != nil {
		return claims.Claims{}, "", 0, weberr.NewError(err, err.Error(), http.StatusBadRequest)
	}

	number, err := web.IntParam(r, "attempt")
	if err != nil || number < 1 {
		return claims.Claims{}, "", 0, weberr.BadRequest(errors.New("attempt must be a positive number"))
	}

	return clm, quizID, number, nil
}

func attemptError(err error, quizID string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return weberr.NotFound(err)
	case errors.Is(err, ErrNotInProgress):
		return weberr.Conflict(err)
	case errors.Is(err, ErrTooManyCorrect):
		return weberr.Unprocessable(err)
	}
	return fmt.Errorf("quiz[%s]: %w", quizID, err)
}
