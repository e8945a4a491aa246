package player

import (
	"context"
	"errors"

	"github.com/irsalhamdi/course-progress/core/course"
	"github.com/irsalhamdi/course-progress/core/enrollment"
	"github.com/irsalhamdi/course-progress/core/progress"
	"github.com/irsalhamdi/course-progress/core/video"
	"github.com/irsalhamdi/course-progress/metrics"
	"github.com/sirupsen/logrus"
)

type Outcome string

const (
	// FirstVisit starts at the first lesson, nothing to restore.
	FirstVisit Outcome = "first_visit"
	// AutoResume restores without asking the learner.
	AutoResume Outcome = "auto_resume"
	// NeedsConfirmation waits for the learner to pick Resume or Start Fresh.
	NeedsConfirmation Outcome = "needs_confirmation"
	// Fresh starts over because the stored state could not be read.
	Fresh Outcome = "fresh"
)

// RestorePoint is where a previous visit left off.
type RestorePoint struct {
	Position
	LessonID      string  `json:"lessonId"`
	VideoPosition float64 `json:"videoPosition"`
	VideoComplete bool    `json:"videoCompleted"`
}

type Decision struct {
	Outcome      Outcome      `json:"outcome"`
	Ratio        float64      `json:"progressRatio"`
	Point        RestorePoint `json:"restorePoint"`
	ResumeOffset float64      `json:"resumeOffset"`

	enrollment *enrollment.Enrollment
}

// Coordinator decides once per course entry how a session starts.
type Coordinator struct {
	Enrollments EnrollmentStore
	Progress    ProgressStore
	// Threshold is the completed lesson ratio from which the restore point is
	// applied without asking.
	Threshold float64
	Rewind    float64
	Log       logrus.FieldLogger
}

// Decide never fails: a store error yields a Fresh decision.
func (c Coordinator) Decide(ctx context.Context, learnerID string, crs course.Course) Decision {
	log := c.Log.WithFields(logrus.Fields{"learner_id": learnerID, "course_id": crs.ID})

	e, err := c.Enrollments.Read(ctx, learnerID, crs.ID)
	switch {
	case errors.Is(err, enrollment.ErrNotFound):
		return c.decided(Decision{Outcome: FirstVisit})
	case err != nil:
		log.WithError(err).WithField("op", "restore_read").Warn("enrollment unavailable, starting fresh")
		metrics.StoreFailed("restore_read")
		return c.decided(Decision{Outcome: Fresh})
	}

	d := Decision{Ratio: completedRatio(e.CompletedLessons, crs), enrollment: &e}
	if !e.HasCursor() || crs.TotalLessons() == 0 {
		d.Outcome = FirstVisit
		return c.decided(d)
	}

	d.Point = resolve(e, crs)
	if d.Point.LessonID != "" {
		rec, err := c.Progress.Read(ctx, progress.Key{LearnerID: learnerID, CourseID: crs.ID, LessonID: d.Point.LessonID})
		switch {
		case err == nil:
			d.Point.VideoPosition = rec.Position
			d.Point.VideoComplete = rec.Completed
		case errors.Is(err, progress.ErrNotFound):
		default:
			log.WithError(err).WithField("op", "restore_read").Warn("checkpoint unavailable, starting fresh")
			metrics.StoreFailed("restore_read")
			return c.decided(Decision{Outcome: Fresh, Ratio: d.Ratio, enrollment: &e})
		}
	}
	d.ResumeOffset = video.ResumeOffset(d.Point.VideoPosition, d.Point.VideoComplete, c.Rewind)

	d.Outcome = NeedsConfirmation
	if d.Ratio >= c.Threshold {
		d.Outcome = AutoResume
	}
	return c.decided(d)
}

func (c Coordinator) decided(d Decision) Decision {
	metrics.RestoreDecided(string(d.Outcome))
	return d
}

// completedRatio counts only completed lessons that still belong to crs.
func completedRatio(done enrollment.LessonSet, crs course.Course) float64 {
	total := crs.TotalLessons()
	if total == 0 {
		return 0
	}
	return float64(countInCourse(done, crs)) / float64(total)
}

func countInCourse(done enrollment.LessonSet, crs course.Course) int {
	var n int
	for id := range done {
		if crs.HasLesson(id) {
			n++
		}
	}
	return n
}

// resolve maps the stored cursor onto the current course structure. The
// indices win when they still point at the stored lesson, then the lesson id
// is looked up, and the first lesson is the last resort.
func resolve(e enrollment.Enrollment, crs course.Course) RestorePoint {
	rp := RestorePoint{VideoPosition: e.LastVideoPosition}

	if l, ok := crs.LessonAt(e.LastModuleIndex, e.LastLessonIndex); ok && (e.LastLessonID == "" || e.LastLessonID == l.ID) {
		rp.Position = Position{Module: e.LastModuleIndex, Lesson: e.LastLessonIndex}
		rp.LessonID = l.ID
		return rp
	}

	if m, l, ok := crs.Locate(e.LastLessonID); ok {
		rp.Position = Position{Module: m, Lesson: l}
		rp.LessonID = e.LastLessonID
		return rp
	}

	first := NewCursor(crs)
	p, _ := first.Position()
	l, _ := first.Current()
	return RestorePoint{Position: p, LessonID: l.ID}
}
