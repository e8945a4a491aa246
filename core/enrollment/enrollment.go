// Package enrollment keeps the course-level record of a learner: completed
// lessons, the restore cursor and the derived completion percentage.
package enrollment

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var ErrNotFound = errors.New("enrollment not found")

type Status string

const (
	Active    Status = "active"
	Completed Status = "completed"
)

type Enrollment struct {
	LearnerID             string    `json:"learnerId" db:"learner_id"`
	CourseID              string    `json:"courseId" db:"course_id"`
	CompletedLessons      LessonSet `json:"completedLessons" db:"completed_lessons"`
	LastModuleIndex       int       `json:"lastModuleIndex" db:"last_module_index"`
	LastLessonIndex       int       `json:"lastLessonIndex" db:"last_lesson_index"`
	LastLessonID          string    `json:"lastLessonId" db:"last_lesson_id"`
	LastVideoPosition     float64   `json:"lastVideoPosition" db:"last_video_position"`
	Progress              int       `json:"progress" db:"progress"`
	Status                Status    `json:"status" db:"status"`
	TotalLessons          int       `json:"totalLessons" db:"total_lessons"`
	TotalTimeSpentSeconds int64     `json:"totalTimeSpentSeconds" db:"total_time_spent_seconds"`
	EnrolledAt            time.Time `json:"enrolledAt" db:"enrolled_at"`
	LastAccessed          time.Time `json:"lastAccessed" db:"last_accessed"`
}

// HasCursor reports whether a restore cursor was ever recorded.
func (e Enrollment) HasCursor() bool {
	return e.LastLessonID != "" || e.LastModuleIndex != 0 || e.LastLessonIndex != 0 || e.LastVideoPosition > 0
}

// Cursor is the restore point stored on the enrollment.
type Cursor struct {
	ModuleIndex   int
	LessonIndex   int
	LessonID      string
	VideoPosition float64
}

// EnrollmentUp is a partial record, nil fields are left untouched.
type EnrollmentUp struct {
	CompletedLessons      LessonSet
	Cursor                *Cursor
	VideoPosition         *float64
	Progress              *int
	Status                *Status
	TotalLessons          *int
	TotalTimeSpentSeconds *int64
	LastAccessed          *time.Time
}

// Percent is round(completed/total*100), 0 for empty courses.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(completed) / float64(total) * 100))
	if p > 100 {
		return 100
	}
	return p
}

// LessonSet is a membership-only set of lesson ids, stored as a sorted JSON
// array.
type LessonSet map[string]struct{}

func NewLessonSet(ids ...string) LessonSet {
	s := make(LessonSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s LessonSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s LessonSet) Clone() LessonSet {
	c := make(LessonSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

func (s LessonSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s LessonSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

func (s *LessonSet) UnmarshalJSON(b []byte) error {
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*s = NewLessonSet(ids...)
	return nil
}

func (s LessonSet) Value() (driver.Value, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *LessonSet) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = LessonSet{}
		return nil
	case string:
		return s.UnmarshalJSON([]byte(v))
	case []byte:
		return s.UnmarshalJSON(v)
	default:
		return fmt.Errorf("cannot scan %T into LessonSet", src)
	}
}
