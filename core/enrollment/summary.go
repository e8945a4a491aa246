package enrollment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/course-progress/api/web"
	"github.com/irsalhamdi/course-progress/api/weberr"
	"github.com/irsalhamdi/course-progress/core/claims"
	"github.com/irsalhamdi/course-progress/core/progress"
	"github.com/irsalhamdi/course-progress/validate"
	"github.com/jmoiron/sqlx"
)

// NotStarted is reported for courses the learner never entered.
const NotStarted = "not_started"

type RestorePoint struct {
	ModuleIndex   int     `json:"moduleIndex"`
	LessonIndex   int     `json:"lessonIndex"`
	LessonID      string  `json:"lessonId"`
	VideoPosition float64 `json:"videoPosition"`
}

type Summary struct {
	CourseID              string                    `json:"courseId"`
	OverallProgress       int                       `json:"overallProgress"`
	CompletedLessons      int                       `json:"completedLessons"`
	TotalLessons          int                       `json:"totalLessons"`
	TotalTimeSpentSeconds int64                     `json:"totalTimeSpentSeconds"`
	LastAccessed          *time.Time                `json:"lastAccessed,omitempty"`
	Status                string                    `json:"status"`
	RestorePoint          *RestorePoint             `json:"restorePoint,omitempty"`
	Lessons               []progress.LessonProgress `json:"lessons"`
}

// Summarize joins the enrollment with every lesson record of the course.
func Summarize(ctx context.Context, db sqlx.ExtContext, learnerID, courseID string) (Summary, error) {
	s := Summary{CourseID: courseID, Status: NotStarted}

	e, err := Fetch(ctx, db, learnerID, courseID)
	switch {
	case err == nil:
		at := e.LastAccessed
		s.OverallProgress = e.Progress
		s.TotalLessons = e.TotalLessons
		s.LastAccessed = &at
		s.Status = string(e.Status)
		s.RestorePoint = &RestorePoint{
			ModuleIndex:   e.LastModuleIndex,
			LessonIndex:   e.LastLessonIndex,
			LessonID:      e.LastLessonID,
			VideoPosition: e.LastVideoPosition,
		}
	case errors.Is(err, ErrNotFound):
	default:
		return Summary{}, err
	}

	lessons, err := progress.ListByCourse(ctx, db, learnerID, courseID)
	if err != nil {
		return Summary{}, err
	}
	s.Lessons = lessons

	for _, l := range lessons {
		if l.Status == progress.Completed {
			s.CompletedLessons++
		}
		s.TotalTimeSpentSeconds += l.TimeSpentSeconds
	}

	return s, nil
}

func HandleSummary(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("learner not authenticated"))
		}

		courseID := web.Param(r, "course_id")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		s, err := Summarize(ctx, db, clm.LearnerID, courseID)
		if err != nil {
			return fmt.Errorf("summarizing course[%s] for learner[%s]: %w", courseID, clm.LearnerID, err)
		}

		return web.Respond(ctx, w, s, http.StatusOK)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("learner not authenticated"))
		}

		es, err := ListByLearner(ctx, db, clm.LearnerID)
		if err != nil {
			return fmt.Errorf("listing enrollments: %w", err)
		}

		return web.Respond(ctx, w, es, http.StatusOK)
	}
}
