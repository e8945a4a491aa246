package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/course-progress/core/enrollment"
	"github.com/irsalhamdi/course-progress/core/progress"
	"github.com/irsalhamdi/course-progress/core/quiz"
	"github.com/irsalhamdi/course-progress/core/video"
	"github.com/irsalhamdi/course-progress/database"
	"github.com/irsalhamdi/course-progress/database/dbtest"
	"github.com/jmoiron/sqlx"
)

func TestPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres in short mode")
	}
	db := dbtest.NewPostgres(t)
	ctx := context.Background()

	t.Run("progress upsert", func(t *testing.T) {
		key := progress.Key{LearnerID: "l1", CourseID: "c1", LessonID: "x1"}
		done := progress.Completed
		now := time.Now().UTC()
		if err := progress.Upsert(ctx, db, key, progress.LessonUp{Status: &done, CompletedAt: &now}); err != nil {
			t.Fatal(err)
		}
		cp := video.NewCheckpoint(42, 600)
		if err := progress.Upsert(ctx, db, key, progress.LessonUp{Checkpoint: &cp}); err != nil {
			t.Fatal(err)
		}

		got, err := progress.Fetch(ctx, db, key)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != progress.Completed || got.Checkpoint != cp {
			t.Fatalf("expected completed at %+v, but got %q at %+v", cp, got.Status, got.Checkpoint)
		}
	})

	t.Run("enrollment lesson set", func(t *testing.T) {
		set := enrollment.NewLessonSet("b", "a")
		err := database.Transaction(db, func(tx sqlx.ExtContext) error {
			return enrollment.Upsert(ctx, tx, "l1", "c1", enrollment.EnrollmentUp{CompletedLessons: set})
		})
		if err != nil {
			t.Fatal(err)
		}

		e, err := enrollment.Fetch(ctx, db, "l1", "c1")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"a", "b"}, e.CompletedLessons.IDs()); diff != "" {
			t.Fatalf("completed lessons mismatch (-want +got):\n%s", diff)
		}
		if e.Status != enrollment.Active {
			t.Fatalf("expected status %q, but got %q", enrollment.Active, e.Status)
		}
	})

	t.Run("quiz attempts", func(t *testing.T) {
		an := quiz.AttemptNew{TotalQuestions: 2}
		if _, err := quiz.Start(ctx, db, "l1", "c1", "x1", "q1", an, time.Now()); err != nil {
			t.Fatal(err)
		}
		if _, err := quiz.Submit(ctx, db, "l1", "q1", 1, quiz.Submission{CorrectAnswers: 2}, time.Now()); err != nil {
			t.Fatal(err)
		}

		st, err := quiz.Start(ctx, db, "l1", "c1", "x1", "q1", an, time.Now())
		if err != nil {
			t.Fatal(err)
		}
		if st.Attempt.AttemptNumber != 2 {
			t.Fatalf("expected attempt 2, but got %d", st.Attempt.AttemptNumber)
		}
	})
}
