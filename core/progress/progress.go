// Package progress stores one record per (learner, course, lesson): status,
// accumulated time and the colocated video checkpoint.
package progress

import (
	"errors"
	"time"

	"github.com/irsalhamdi/course-progress/core/video"
)

var ErrNotFound = errors.New("lesson progress not found")

type Status string

const (
	NotStarted Status = "not_started"
	InProgress Status = "in_progress"
	Completed  Status = "completed"
)

// Key is the composite identity every write is upserted by.
type Key struct {
	LearnerID string
	CourseID  string
	LessonID  string
}

type LessonProgress struct {
	LearnerID        string     `json:"learnerId" db:"learner_id"`
	CourseID         string     `json:"courseId" db:"course_id"`
	LessonID         string     `json:"lessonId" db:"lesson_id"`
	Status           Status     `json:"status" db:"status"`
	TimeSpentSeconds int64      `json:"timeSpentSeconds" db:"time_spent_seconds"`
	LastAccessed     time.Time  `json:"lastAccessed" db:"last_accessed"`
	CompletedAt      *time.Time `json:"completedAt,omitempty" db:"completed_at"`
	video.Checkpoint `json:"video"`
}

func (p LessonProgress) Key() Key {
	return Key{LearnerID: p.LearnerID, CourseID: p.CourseID, LessonID: p.LessonID}
}

// LessonUp is a partial record: nil fields are left untouched by an upsert
// of an existing row and take column defaults on insert.
type LessonUp struct {
	Status           *Status
	TimeSpentSeconds *int64
	Checkpoint       *video.Checkpoint
	LastAccessed     *time.Time
	CompletedAt      *time.Time
}

// Filter selects rows for Count. Empty fields match everything.
type Filter struct {
	LearnerID string
	CourseID  string
	Status    Status
}
