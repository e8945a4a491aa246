package player

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/irsalhamdi/course-progress/core/enrollment"
	"github.com/irsalhamdi/course-progress/core/progress"
	"github.com/irsalhamdi/course-progress/core/video"
)

func coordinator(h *harness) Coordinator {
	return Coordinator{
		Enrollments: h.enrollments,
		Progress:    h.progress,
		Threshold:   0.6,
		Rewind:      video.DefaultRewind,
		Log:         quietLog(),
	}
}

// seed stores an enrollment with the given completed lessons and cursor.
func seed(t *testing.T, h *harness, done []string, cur enrollment.Cursor) {
	t.Helper()
	err := h.enrollments.Upsert(context.Background(), learner, testCourse().ID, enrollment.EnrollmentUp{
		CompletedLessons: enrollment.NewLessonSet(done...),
		Cursor:           &cur,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func seedCheckpoint(t *testing.T, h *harness, lessonID string, pos float64) {
	t.Helper()
	cp := video.NewCheckpoint(pos, 600)
	err := h.progress.Upsert(context.Background(), progress.Key{LearnerID: learner, CourseID: testCourse().ID, LessonID: lessonID}, progress.LessonUp{Checkpoint: &cp})
	if err != nil {
		t.Fatal(err)
	}
}

var ignoreEnrollment = cmpopts.IgnoreUnexported(Decision{})

func TestDecideFirstVisit(t *testing.T) {
	h := newHarness()

	got := coordinator(h).Decide(context.Background(), learner, testCourse())
	if diff := cmp.Diff(Decision{Outcome: FirstVisit}, got, ignoreEnrollment); diff != "" {
		t.Fatalf("decision mismatch (-want +got):\n%s", diff)
	}
}

func TestDecideThreshold(t *testing.T) {
	tests := []struct {
		name string
		done []string
		want Outcome
	}{
		// 1 of 6 lessons.
		{"little progress", []string{"l00"}, NeedsConfirmation},
		// 4 of 6 lessons.
		{"substantial progress", []string{"l00", "l01", "l02", "l10"}, AutoResume},
		// Lessons no longer in the course do not count.
		{"stale lessons", []string{"l00", "gone-1", "gone-2", "gone-3"}, NeedsConfirmation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			seed(t, h, tt.done, enrollment.Cursor{ModuleIndex: 1, LessonIndex: 1, LessonID: "l11", VideoPosition: 60})

			got := coordinator(h).Decide(context.Background(), learner, testCourse())
			if got.Outcome != tt.want {
				t.Fatalf("expected %s, but got %s (ratio %v)", tt.want, got.Outcome, got.Ratio)
			}
		})
	}
}

func TestDecideRatioBounds(t *testing.T) {
	h := newHarness()
	c := coordinator(h)
	c.Threshold = 0.9

	// 0.95 cannot be hit exactly with six lessons, so use a 20 lesson course.
	crs := testCourse()
	crs.Modules[0].Lessons = nil
	for i := 0; i < 20; i++ {
		crs.Modules[0].Lessons = append(crs.Modules[0].Lessons, testCourse().Modules[0].Lessons[0])
		crs.Modules[0].Lessons[i].ID = string(rune('a' + i))
	}
	crs.Modules = crs.Modules[:1]

	done := make([]string, 0, 19)
	for i := 0; i < 19; i++ {
		done = append(done, string(rune('a'+i)))
	}
	seed(t, h, done, enrollment.Cursor{LessonIndex: 19, LessonID: "t"})

	got := c.Decide(context.Background(), learner, crs)
	if got.Ratio != 0.95 || got.Outcome != AutoResume {
		t.Fatalf("expected auto resume at 0.95, but got %s at %v", got.Outcome, got.Ratio)
	}

	seed(t, h, done[:2], enrollment.Cursor{LessonIndex: 19, LessonID: "t"})
	got = c.Decide(context.Background(), learner, crs)
	if got.Ratio != 0.10 || got.Outcome != NeedsConfirmation {
		t.Fatalf("expected confirmation at 0.10, but got %s at %v", got.Outcome, got.Ratio)
	}
}

func TestDecideResumeOffset(t *testing.T) {
	h := newHarness()
	seed(t, h, nil, enrollment.Cursor{ModuleIndex: 0, LessonIndex: 2, LessonID: "l02", VideoPosition: 90})
	seedCheckpoint(t, h, "l02", 120)

	got := coordinator(h).Decide(context.Background(), learner, testCourse())
	want := Decision{
		Outcome:      NeedsConfirmation,
		Point:        RestorePoint{Position: Position{Module: 0, Lesson: 2}, LessonID: "l02", VideoPosition: 120},
		ResumeOffset: 118,
	}
	if diff := cmp.Diff(want, got, ignoreEnrollment); diff != "" {
		t.Fatalf("decision mismatch (-want +got):\n%s", diff)
	}
}

func TestDecideCompletedVideoRestartsAtZero(t *testing.T) {
	h := newHarness()
	seed(t, h, nil, enrollment.Cursor{LessonID: "l00", VideoPosition: 580})
	seedCheckpoint(t, h, "l00", 580)

	got := coordinator(h).Decide(context.Background(), learner, testCourse())
	if got.ResumeOffset != 0 || !got.Point.VideoComplete {
		t.Fatalf("expected a completed video to restart at 0, but got %+v", got)
	}
}

func TestDecideResolvesMovedLesson(t *testing.T) {
	h := newHarness()
	// The stored indices now point at another lesson.
	seed(t, h, nil, enrollment.Cursor{ModuleIndex: 0, LessonIndex: 0, LessonID: "l11", VideoPosition: 30})

	got := coordinator(h).Decide(context.Background(), learner, testCourse())
	want := RestorePoint{Position: Position{Module: 1, Lesson: 1}, LessonID: "l11", VideoPosition: 30}
	if diff := cmp.Diff(want, got.Point); diff != "" {
		t.Fatalf("restore point mismatch (-want +got):\n%s", diff)
	}
	if got.ResumeOffset != 28 {
		t.Fatalf("expected offset 28 from the enrollment position, but got %v", got.ResumeOffset)
	}

	seed(t, h, nil, enrollment.Cursor{ModuleIndex: 7, LessonIndex: 7, LessonID: "deleted", VideoPosition: 30})
	got = coordinator(h).Decide(context.Background(), learner, testCourse())
	want = RestorePoint{LessonID: "l00"}
	if diff := cmp.Diff(want, got.Point); diff != "" {
		t.Fatalf("restore point mismatch (-want +got):\n%s", diff)
	}
}

func TestDecideStoreUnavailable(t *testing.T) {
	h := newHarness()
	seed(t, h, []string{"l00", "l01", "l02", "l10"}, enrollment.Cursor{LessonID: "l10", ModuleIndex: 1})

	h.enrollments.failing("read", true)
	if got := coordinator(h).Decide(context.Background(), learner, testCourse()); got.Outcome != Fresh {
		t.Fatalf("expected fresh when the enrollment cannot be read, but got %s", got.Outcome)
	}

	h.enrollments.failing("read", false)
	h.progress.failing("read", true)
	if got := coordinator(h).Decide(context.Background(), learner, testCourse()); got.Outcome != Fresh {
		t.Fatalf("expected fresh when the checkpoint cannot be read, but got %s", got.Outcome)
	}
}
