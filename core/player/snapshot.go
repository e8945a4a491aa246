package player

import (
	"encoding/json"

	"github.com/irsalhamdi/course-progress/core/course"
	"github.com/irsalhamdi/course-progress/core/enrollment"
	"github.com/irsalhamdi/course-progress/core/video"
)

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	SessionID        string            `json:"sessionId"`
	CourseID         string            `json:"courseId"`
	Decision         Decision          `json:"decision"`
	AwaitingDecision bool              `json:"awaitingDecision"`
	Position         *Position         `json:"position,omitempty"`
	Lesson           *course.Lesson    `json:"lesson,omitempty"`
	IsFirst          bool              `json:"isFirst"`
	IsLast           bool              `json:"isLast"`
	State            State             `json:"state"`
	Playback         State             `json:"playback"`
	ResumeOffset     float64           `json:"resumeOffset"`
	Checkpoint       video.Checkpoint  `json:"checkpoint"`
	WritePending     bool              `json:"writePending"`
	LessonCompleted  bool              `json:"lessonCompleted"`
	Progress         int               `json:"progress"`
	Status           enrollment.Status `json:"status"`
	CompletedLessons []string          `json:"completedLessons"`
	TimeSpentSeconds int64             `json:"timeSpentSeconds"`
	SubState         json.RawMessage   `json:"subState,omitempty"`
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:        s.ID,
		CourseID:         s.Course.ID,
		Decision:         s.decision,
		AwaitingDecision: s.awaiting,
		IsFirst:          s.cursor.IsFirst(),
		IsLast:           s.cursor.IsLast(),
		State:            s.tracker.State(),
		Playback:         s.tracker.Phase(),
		ResumeOffset:     s.tracker.ResumeOffset(),
		Checkpoint:       s.tracker.Checkpoint(),
		WritePending:     s.debouncer.Pending(),
		LessonCompleted:  s.tracker.LessonCompleted(),
		Progress:         s.progress,
		Status:           s.status,
		CompletedLessons: s.completed.IDs(),
		TimeSpentSeconds: s.timeSpent.Total(),
		SubState:         s.subState,
	}

	if !s.awaiting {
		if p, ok := s.cursor.Position(); ok {
			snap.Position = &p
		}
		if l, ok := s.cursor.Current(); ok {
			snap.Lesson = &l
		}
	}

	return snap
}
