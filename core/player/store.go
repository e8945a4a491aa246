package player

import (
	"context"

	"github.com/irsalhamdi/course-progress/core/enrollment"
	"github.com/irsalhamdi/course-progress/core/progress"
)

// ProgressStore holds one record per learner, course and lesson.
// progress.Store satisfies it.
type ProgressStore interface {
	Upsert(ctx context.Context, key progress.Key, up progress.LessonUp) error
	Read(ctx context.Context, key progress.Key) (progress.LessonProgress, error)
	Count(ctx context.Context, f progress.Filter) (int, error)
}

// EnrollmentStore holds the course level record of a learner.
// enrollment.Store satisfies it.
type EnrollmentStore interface {
	Read(ctx context.Context, learnerID, courseID string) (enrollment.Enrollment, error)
	Upsert(ctx context.Context, learnerID, courseID string, up enrollment.EnrollmentUp) error
}
