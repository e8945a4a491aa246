package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const columns = `learner_id, quiz_id, attempt_number, course_id, lesson_id, total_questions,
	current_question_index, answers, status, correct_answers, score_percentage, passed,
	started_at, updated_at, completed_at`

// Start returns the learner's in-progress attempt of quizID or creates the
// next numbered attempt. Run it inside a transaction.
func Start(ctx context.Context, db sqlx.ExtContext, learnerID, courseID, lessonID, quizID string, an AttemptNew, now time.Time) (Started, error) {
	a, err := Current(ctx, db, learnerID, quizID)
	switch {
	case err == nil:
		return Started{Attempt: a, Resumed: true}, nil
	case !errors.Is(err, ErrNotFound):
		return Started{}, err
	}

	var last int
	q := db.Rebind(`SELECT COALESCE(MAX(attempt_number), 0) FROM quiz_attempts WHERE learner_id = ? AND quiz_id = ?`)
	if err := sqlx.GetContext(ctx, db, &last, q, learnerID, quizID); err != nil {
		return Started{}, fmt.Errorf("selecting last attempt of quiz[%s]: %w", quizID, err)
	}

	now = now.UTC()
	a = Attempt{
		LearnerID:      learnerID,
		QuizID:         quizID,
		AttemptNumber:  last + 1,
		CourseID:       courseID,
		LessonID:       lessonID,
		TotalQuestions: an.TotalQuestions,
		Answers:        Answers{},
		Status:         InProgress,
		StartedAt:      now,
		UpdatedAt:      now,
	}

	const insert = `INSERT INTO quiz_attempts (learner_id, quiz_id, attempt_number, course_id, lesson_id,
		total_questions, current_question_index, answers, status, correct_answers, score_percentage,
		passed, started_at, updated_at)
		VALUES (:learner_id, :quiz_id, :attempt_number, :course_id, :lesson_id, :total_questions,
		:current_question_index, :answers, :status, :correct_answers, :score_percentage, :passed,
		:started_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, insert, a); err != nil {
		return Started{}, fmt.Errorf("inserting attempt %d of quiz[%s]: %w", a.AttemptNumber, quizID, err)
	}
	return Started{Attempt: a}, nil
}

// Current returns the most recent in-progress attempt of quizID.
func Current(ctx context.Context, db sqlx.ExtContext, learnerID, quizID string) (Attempt, error) {
	q := db.Rebind(`SELECT ` + columns + ` FROM quiz_attempts
		WHERE learner_id = ? AND quiz_id = ? AND status = ?
		ORDER BY attempt_number DESC LIMIT 1`)

	var a Attempt
	if err := sqlx.GetContext(ctx, db, &a, q, learnerID, quizID, string(InProgress)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrNotFound
		}
		return Attempt{}, fmt.Errorf("selecting current attempt of quiz[%s]: %w", quizID, err)
	}
	return a, nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, learnerID, quizID string, number int) (Attempt, error) {
	q := db.Rebind(`SELECT ` + columns + ` FROM quiz_attempts WHERE learner_id = ? AND quiz_id = ? AND attempt_number = ?`)

	var a Attempt
	if err := sqlx.GetContext(ctx, db, &a, q, learnerID, quizID, number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrNotFound
		}
		return Attempt{}, fmt.Errorf("selecting attempt %d of quiz[%s]: %w", number, quizID, err)
	}
	return a, nil
}

// SaveAnswer records the answer to one question and moves the attempt to the
// next question. Answering the same question again replaces the answer. Run
// it inside a transaction.
func SaveAnswer(ctx context.Context, db sqlx.ExtContext, learnerID, quizID string, number int, an AnswerNew, now time.Time) (Attempt, error) {
	a, err := Fetch(ctx, db, learnerID, quizID, number)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != InProgress {
		return Attempt{}, ErrNotInProgress
	}

	if a.Answers == nil {
		a.Answers = Answers{}
	}
	a.Answers[an.QuestionID] = an.Answer
	a.CurrentQuestionIndex++
	a.UpdatedAt = now.UTC()

	q := db.Rebind(`UPDATE quiz_attempts SET answers = ?, current_question_index = ?, updated_at = ?
		WHERE learner_id = ? AND quiz_id = ? AND attempt_number = ?`)
	if _, err := db.ExecContext(ctx, q, a.Answers, a.CurrentQuestionIndex, a.UpdatedAt, learnerID, quizID, number); err != nil {
		return Attempt{}, fmt.Errorf("saving answer to attempt %d of quiz[%s]: %w", number, quizID, err)
	}
	return a, nil
}

// Submit scores and closes the attempt.
func Submit(ctx context.Context, db sqlx.ExtContext, learnerID, quizID string, number int, s Submission, now time.Time) (Attempt, error) {
	a, err := Fetch(ctx, db, learnerID, quizID, number)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != InProgress {
		return Attempt{}, ErrNotInProgress
	}
	if s.CorrectAnswers > a.TotalQuestions {
		return Attempt{}, ErrTooManyCorrect
	}

	now = now.UTC()
	a.Status = Completed
	a.CorrectAnswers = s.CorrectAnswers
	a.ScorePercentage, a.Passed = Score(s.CorrectAnswers, a.TotalQuestions)
	a.UpdatedAt = now
	a.CompletedAt = &now

	q := db.Rebind(`UPDATE quiz_attempts SET status = ?, correct_answers = ?, score_percentage = ?, passed = ?,
		completed_at = ?, updated_at = ?
		WHERE learner_id = ? AND quiz_id = ? AND attempt_number = ?`)
	_, err = db.ExecContext(ctx, q, string(a.Status), a.CorrectAnswers, a.ScorePercentage, a.Passed,
		now, now, learnerID, quizID, number)
	if err != nil {
		return Attempt{}, fmt.Errorf("submitting attempt %d of quiz[%s]: %w", number, quizID, err)
	}
	return a, nil
}
