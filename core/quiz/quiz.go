// Package quiz stores resumable quiz attempts. An attempt stays in progress
// until it is submitted; starting a quiz again while one is in progress
// resumes it instead of opening a new attempt.
package quiz

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound       = errors.New("quiz attempt not found")
	ErrNotInProgress  = errors.New("quiz attempt is not in progress")
	ErrTooManyCorrect = errors.New("correct answers exceed total questions")
)

// PassMark is the minimum score percentage of a passed attempt.
const PassMark = 70

type Status string

const (
	InProgress Status = "in_progress"
	Completed  Status = "completed"
)

type Attempt struct {
	LearnerID            string     `json:"learnerId" db:"learner_id"`
	QuizID               string     `json:"quizId" db:"quiz_id"`
	AttemptNumber        int        `json:"attemptNumber" db:"attempt_number"`
	CourseID             string     `json:"courseId" db:"course_id"`
	LessonID             string     `json:"lessonId" db:"lesson_id"`
	TotalQuestions       int        `json:"totalQuestions" db:"total_questions"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex" db:"current_question_index"`
	Answers              Answers    `json:"answers" db:"answers"`
	Status               Status     `json:"status" db:"status"`
	CorrectAnswers       int        `json:"correctAnswers" db:"correct_answers"`
	ScorePercentage      float64    `json:"scorePercentage" db:"score_percentage"`
	Passed               bool       `json:"passed" db:"passed"`
	StartedAt            time.Time  `json:"startedAt" db:"started_at"`
	UpdatedAt            time.Time  `json:"updatedAt" db:"updated_at"`
	CompletedAt          *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}

// Started is the result of Start. Resumed is set when an in-progress attempt
// was returned instead of a new one.
type Started struct {
	Attempt Attempt `json:"attempt"`
	Resumed bool    `json:"resumed"`
}

type AttemptNew struct {
	TotalQuestions int `json:"totalQuestions" validate:"required,min=1"`
}

type AnswerNew struct {
	QuestionID string          `json:"questionId" validate:"required"`
	Answer     json.RawMessage `json:"answer" validate:"required"`
}

type Submission struct {
	CorrectAnswers int `json:"correctAnswers" validate:"min=0"`
}

// Score is correct/total as a percentage, 0 for a quiz without questions.
func Score(correct, total int) (float64, bool) {
	if total <= 0 {
		return 0, false
	}
	s := float64(correct) / float64(total) * 100
	return s, s >= PassMark
}

// Answers maps question ids to the raw answer given. It is stored as a JSON
// object.
type Answers map[string]json.RawMessage

func (a Answers) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]json.RawMessage(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *Answers) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*a = Answers{}
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("cannot scan %T into Answers", src)
	}

	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*a = m
	return nil
}
