// Package notify fans progress changes out to whoever watches a learner's
// course, within one process or across processes through Redis.
package notify

import (
	"context"
	"time"
)

type Kind string

const (
	CheckpointSaved  Kind = "checkpoint"
	LessonEntered    Kind = "lesson_entered"
	LessonCompleted  Kind = "lesson_completed"
	CourseCompleted  Kind = "course_completed"
	TimeSpentFlushed Kind = "time_spent"
	RestartedFresh   Kind = "restarted"
)

// Change describes one persisted update to a learner's course progress.
type Change struct {
	Kind             Kind      `json:"kind"`
	LearnerID        string    `json:"learnerId"`
	CourseID         string    `json:"courseId"`
	LessonID         string    `json:"lessonId,omitempty"`
	ModuleIndex      int       `json:"moduleIndex"`
	LessonIndex      int       `json:"lessonIndex"`
	Position         float64   `json:"position,omitempty"`
	Progress         int       `json:"progress"`
	TimeSpentSeconds int64     `json:"timeSpentSeconds,omitempty"`
	At               time.Time `json:"at"`
}

// Channel delivers changes to subscribers of the same learner and course.
// Delivery is best effort; a subscriber that is not listening misses the
// change.
type Channel interface {
	Publish(ctx context.Context, c Change) error
	Subscribe(ctx context.Context, learnerID, courseID string, fn func(Change)) (unsubscribe func(), err error)
	Close() error
}

func topic(prefix, learnerID, courseID string) string {
	return prefix + ":changes:" + learnerID + ":" + courseID
}
