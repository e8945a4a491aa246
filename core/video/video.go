// Package video holds the playback checkpoint of a lesson video and the rules
// deciding when a video counts as watched and where playback resumes.
package video

import "math"

const (
	// CompletionRatio is the watched fraction at which a video is complete.
	CompletionRatio = 0.90

	// DefaultRewind is subtracted from a saved position on resume.
	DefaultRewind = 2.0
)

// Checkpoint is the last known playback location of a lesson video. Writes
// overwrite the previous checkpoint, no history is kept.
type Checkpoint struct {
	Position  float64 `json:"position" db:"video_position_seconds"`
	Duration  float64 `json:"duration" db:"video_duration_seconds"`
	Completed bool    `json:"completed" db:"video_completed"`
}

// NewCheckpoint builds a checkpoint with the completed flag derived from the
// position, clamping the position into [0, duration] when duration is known.
func NewCheckpoint(position, duration float64) Checkpoint {
	position = math.Max(0, position)
	if duration > 0 && position > duration {
		position = duration
	}
	return Checkpoint{
		Position:  position,
		Duration:  duration,
		Completed: IsComplete(position, duration),
	}
}

// IsComplete reports whether position/duration reached CompletionRatio.
// Unknown durations never complete.
func IsComplete(position, duration float64) bool {
	if duration <= 0 {
		return false
	}
	return position/duration >= CompletionRatio
}

// ResumeOffset is where playback restarts for a saved position. Completed or
// never-started videos restart from the beginning.
func ResumeOffset(saved float64, completed bool, rewind float64) float64 {
	if saved <= 0 || completed {
		return 0
	}
	return math.Max(0, saved-rewind)
}

// Ratio is the watched fraction, 0 when the duration is unknown.
func (c Checkpoint) Ratio() float64 {
	if c.Duration <= 0 {
		return 0
	}
	return math.Min(1, c.Position/c.Duration)
}
