package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/course-progress/database"
	"github.com/jmoiron/sqlx"
)

const columns = `learner_id, course_id, completed_lessons, last_module_index, last_lesson_index,
	last_lesson_id, last_video_position, progress, status, total_lessons, total_time_spent_seconds,
	enrolled_at, last_accessed`

// Upsert creates the enrollment on first access or overwrites the supplied
// fields. A new enrollment starts active.
func Upsert(ctx context.Context, db sqlx.ExtContext, learnerID, courseID string, up EnrollmentUp) error {
	now := time.Now().UTC()
	if up.LastAccessed != nil {
		now = up.LastAccessed.UTC()
	}

	u := database.NewUpsert("enrollments", "learner_id", "course_id").
		Set("learner_id", learnerID).
		Set("course_id", courseID).
		SetOnInsert("enrolled_at", now)

	if up.Status != nil {
		u.Set("status", string(*up.Status))
	} else {
		u.SetOnInsert("status", string(Active))
	}
	if up.CompletedLessons != nil {
		u.Set("completed_lessons", up.CompletedLessons)
	}
	if up.Cursor != nil {
		u.Set("last_module_index", up.Cursor.ModuleIndex).
			Set("last_lesson_index", up.Cursor.LessonIndex).
			Set("last_lesson_id", up.Cursor.LessonID).
			Set("last_video_position", up.Cursor.VideoPosition)
	} else if up.VideoPosition != nil {
		u.Set("last_video_position", *up.VideoPosition)
	}
	if up.Progress != nil {
		u.Set("progress", *up.Progress)
	}
	if up.TotalLessons != nil {
		u.Set("total_lessons", *up.TotalLessons)
	}
	if up.TotalTimeSpentSeconds != nil {
		u.Set("total_time_spent_seconds", *up.TotalTimeSpentSeconds)
	}
	u.Set("last_accessed", now)

	if _, err := u.Exec(ctx, db); err != nil {
		return fmt.Errorf("upserting enrollment[%s/%s]: %w", learnerID, courseID, err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, learnerID, courseID string) (Enrollment, error) {
	q := db.Rebind(`SELECT ` + columns + ` FROM enrollments WHERE learner_id = ? AND course_id = ?`)

	var e Enrollment
	if err := sqlx.GetContext(ctx, db, &e, q, learnerID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Enrollment{}, ErrNotFound
		}
		return Enrollment{}, fmt.Errorf("selecting enrollment: %w", err)
	}
	return e, nil
}

// ListByLearner returns the learner's enrollments, most recently accessed
// first.
func ListByLearner(ctx context.Context, db sqlx.ExtContext, learnerID string) ([]Enrollment, error) {
	q := db.Rebind(`SELECT ` + columns + ` FROM enrollments WHERE learner_id = ? ORDER BY last_accessed DESC`)

	es := []Enrollment{}
	if err := sqlx.SelectContext(ctx, db, &es, q, learnerID); err != nil {
		return nil, fmt.Errorf("selecting enrollments of learner[%s]: %w", learnerID, err)
	}
	return es, nil
}

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Read(ctx context.Context, learnerID, courseID string) (Enrollment, error) {
	return Fetch(ctx, s.db, learnerID, courseID)
}

func (s *Store) Upsert(ctx context.Context, learnerID, courseID string, up EnrollmentUp) error {
	return Upsert(ctx, s.db, learnerID, courseID, up)
}
