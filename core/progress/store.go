package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/irsalhamdi/course-progress/database"
	"github.com/jmoiron/sqlx"
)

const columns = `learner_id, course_id, lesson_id, status, time_spent_seconds,
	video_position_seconds, video_duration_seconds, video_completed, last_accessed, completed_at`

// Upsert inserts the record for key or overwrites the supplied columns of the
// existing one. Last write wins.
func Upsert(ctx context.Context, db sqlx.ExtContext, key Key, up LessonUp) error {
	u := database.NewUpsert("lesson_progress", "learner_id", "course_id", "lesson_id").
		Set("learner_id", key.LearnerID).
		Set("course_id", key.CourseID).
		Set("lesson_id", key.LessonID)

	if up.Status != nil {
		u.Set("status", string(*up.Status))
	}
	if up.TimeSpentSeconds != nil {
		u.Set("time_spent_seconds", *up.TimeSpentSeconds)
	}
	if up.Checkpoint != nil {
		u.Set("video_position_seconds", up.Checkpoint.Position).
			Set("video_duration_seconds", up.Checkpoint.Duration).
			Set("video_completed", up.Checkpoint.Completed)
	}
	if up.CompletedAt != nil {
		u.Set("completed_at", up.CompletedAt.UTC())
	}
	accessed := time.Now().UTC()
	if up.LastAccessed != nil {
		accessed = up.LastAccessed.UTC()
	}
	u.Set("last_accessed", accessed)

	if _, err := u.Exec(ctx, db); err != nil {
		return fmt.Errorf("upserting lesson progress[%s/%s/%s]: %w", key.LearnerID, key.CourseID, key.LessonID, err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, key Key) (LessonProgress, error) {
	q := db.Rebind(`SELECT ` + columns + ` FROM lesson_progress WHERE learner_id = ? AND course_id = ? AND lesson_id = ?`)

	var p LessonProgress
	if err := sqlx.GetContext(ctx, db, &p, q, key.LearnerID, key.CourseID, key.LessonID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LessonProgress{}, ErrNotFound
		}
		return LessonProgress{}, fmt.Errorf("selecting lesson progress: %w", err)
	}
	return p, nil
}

func Count(ctx context.Context, db sqlx.ExtContext, f Filter) (int, error) {
	var (
		where []string
		args  []any
	)
	if f.LearnerID != "" {
		where = append(where, "learner_id = ?")
		args = append(args, f.LearnerID)
	}
	if f.CourseID != "" {
		where = append(where, "course_id = ?")
		args = append(args, f.CourseID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	q := `SELECT COUNT(*) FROM lesson_progress`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	var n int
	if err := sqlx.GetContext(ctx, db, &n, db.Rebind(q), args...); err != nil {
		return 0, fmt.Errorf("counting lesson progress: %w", err)
	}
	return n, nil
}

func ListByCourse(ctx context.Context, db sqlx.ExtContext, learnerID, courseID string) ([]LessonProgress, error) {
	q := db.Rebind(`SELECT ` + columns + ` FROM lesson_progress WHERE learner_id = ? AND course_id = ? ORDER BY last_accessed`)

	ps := []LessonProgress{}
	if err := sqlx.SelectContext(ctx, db, &ps, q, learnerID, courseID); err != nil {
		return nil, fmt.Errorf("selecting lesson progress of course[%s]: %w", courseID, err)
	}
	return ps, nil
}

// Store binds the package functions to a database handle.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Upsert(ctx context.Context, key Key, up LessonUp) error {
	return Upsert(ctx, s.db, key, up)
}

func (s *Store) Read(ctx context.Context, key Key) (LessonProgress, error) {
	return Fetch(ctx, s.db, key)
}

func (s *Store) Count(ctx context.Context, f Filter) (int, error) {
	return Count(ctx, s.db, f)
}

func (s *Store) ListByCourse(ctx context.Context, learnerID, courseID string) ([]LessonProgress, error) {
	return ListByCourse(ctx, s.db, learnerID, courseID)
}
