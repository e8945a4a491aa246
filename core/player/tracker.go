package player

import (
	"errors"
	"fmt"

	"github.com/irsalhamdi/course-progress/core/video"
)

var ErrUnexpectedEvent = errors.New("event not valid in the current playback state")

type State int

const (
	Idle State = iota
	Loading
	Ready
	Playing
	Paused
	Seeking
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Seeking:
		return "seeking"
	case Completed:
		return "completed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for st := Idle; st <= Completed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown playback state %q", b)
}

type EventKind string

const (
	Load       EventKind = "load"
	Loaded     EventKind = "loaded"
	Play       EventKind = "play"
	TimeUpdate EventKind = "timeupdate"
	Pause      EventKind = "pause"
	SeekStart  EventKind = "seeking"
	Seeked     EventKind = "seeked"
	Ended      EventKind = "ended"
	Unload     EventKind = "unload"
)

// Event is a signal from the media element. Position and Duration are in
// seconds; events that do not carry them leave the tracked values alone.
type Event struct {
	Kind     EventKind `json:"kind" validate:"required,oneof=load loaded play timeupdate pause seeking seeked ended unload"`
	Position float64   `json:"position" validate:"gte=0"`
	Duration float64   `json:"duration" validate:"gte=0"`
}

type EffectKind int

const (
	// ScheduleWrite hands the checkpoint to the debouncer.
	ScheduleWrite EffectKind = iota
	// WriteNow persists the checkpoint bypassing the debounce window.
	WriteNow
	// MarkCompleted records the lesson as completed.
	MarkCompleted
	// SeekTo asks the media element to start at Offset.
	SeekTo
)

type Effect struct {
	Kind       EffectKind
	Checkpoint video.Checkpoint
	Offset     float64
	// Scrub marks a WriteNow the learner caused by seeking.
	Scrub bool
}

// Tracker is the playback state machine of the active lesson video. It only
// computes effects; persisting them is up to the caller.
type Tracker struct {
	state        State
	afterSeek    State
	position     float64
	duration     float64
	resumeOffset float64
	completed    bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Reset prepares the tracker for a new lesson. completed is whether the
// lesson was already marked completed, which suppresses a second mark.
func (t *Tracker) Reset(resumeOffset float64, completed bool) {
	*t = Tracker{resumeOffset: resumeOffset, completed: completed}
}

// State reports Completed once the lesson crossed the completion threshold
// while media is loaded, even though playback may continue.
func (t *Tracker) State() State {
	if t.completed && t.HasMedia() {
		return Completed
	}
	return t.state
}

// Phase is the playback state ignoring completion.
func (t *Tracker) Phase() State { return t.state }

func (t *Tracker) HasMedia() bool { return t.state != Idle && t.state != Loading }

func (t *Tracker) ResumeOffset() float64 { return t.resumeOffset }

func (t *Tracker) LessonCompleted() bool { return t.completed }

// MarkCompleted records a completion made outside of playback.
func (t *Tracker) MarkCompleted() { t.completed = true }

func (t *Tracker) Checkpoint() video.Checkpoint {
	return video.NewCheckpoint(t.position, t.duration)
}

func (t *Tracker) Handle(e Event) ([]Effect, error) {
	switch e.Kind {
	case Load:
		t.state = Loading
		t.position = 0
		return nil, nil

	case Loaded:
		if t.HasMedia() {
			return nil, t.unexpected(e)
		}
		t.duration = e.Duration
		t.position = t.resumeOffset
		if t.duration > 0 && t.position > t.duration {
			t.position = 0
		}
		t.state = Ready
		if t.position > 0 {
			return []Effect{{Kind: SeekTo, Offset: t.position}}, nil
		}
		return nil, nil

	case Play:
		if !t.HasMedia() {
			return nil, t.unexpected(e)
		}
		if t.state == Seeking {
			t.afterSeek = Playing
			return nil, nil
		}
		t.state = Playing
		return nil, nil

	case TimeUpdate:
		if !t.HasMedia() {
			return nil, t.unexpected(e)
		}
		t.observe(e)
		var effects []Effect
		if t.state == Playing {
			effects = append(effects, Effect{Kind: ScheduleWrite, Checkpoint: t.Checkpoint()})
		}
		return t.checkCompletion(effects), nil

	case Pause:
		if !t.HasMedia() {
			return nil, t.unexpected(e)
		}
		t.observe(e)
		if t.state == Seeking {
			t.afterSeek = Paused
		} else {
			t.state = Paused
		}
		return t.checkCompletion([]Effect{{Kind: WriteNow, Checkpoint: t.Checkpoint()}}), nil

	case SeekStart:
		if !t.HasMedia() {
			return nil, t.unexpected(e)
		}
		if t.state != Seeking {
			t.afterSeek = t.state
			if t.afterSeek == Ready {
				t.afterSeek = Paused
			}
		}
		t.state = Seeking
		return nil, nil

	case Seeked:
		if !t.HasMedia() {
			return nil, t.unexpected(e)
		}
		t.observe(e)
		if t.state == Seeking {
			t.state = t.afterSeek
		}
		return t.checkCompletion([]Effect{{Kind: WriteNow, Checkpoint: t.Checkpoint(), Scrub: true}}), nil

	case Ended:
		if !t.HasMedia() {
			return nil, t.unexpected(e)
		}
		t.observe(e)
		if t.duration > 0 {
			t.position = t.duration
		}
		t.state = Paused

		var effects []Effect
		if !t.completed {
			t.completed = true
			effects = append(effects, Effect{Kind: MarkCompleted})
		}
		return append(effects, Effect{Kind: WriteNow, Checkpoint: t.Checkpoint()}), nil

	case Unload:
		if !t.HasMedia() {
			t.state = Idle
			return nil, nil
		}
		t.observe(e)
		cp := t.Checkpoint()
		t.state = Idle
		return []Effect{{Kind: WriteNow, Checkpoint: cp}}, nil
	}

	return nil, fmt.Errorf("unknown event kind %q", e.Kind)
}

// observe takes the position and duration carried by e. A zero position on
// an event without duration is treated as absent, except on Seeked and Pause
// which always report where the media stands.
func (t *Tracker) observe(e Event) {
	if e.Duration > 0 {
		t.duration = e.Duration
	}
	if e.Position > 0 || e.Duration > 0 || e.Kind == Seeked || e.Kind == Pause {
		t.position = e.Position
	}
}

func (t *Tracker) checkCompletion(effects []Effect) []Effect {
	if t.completed || !video.IsComplete(t.position, t.duration) {
		return effects
	}
	t.completed = true
	return append(effects, Effect{Kind: MarkCompleted})
}

func (t *Tracker) unexpected(e Event) error {
	return fmt.Errorf("%w: %s while %s", ErrUnexpectedEvent, e.Kind, t.state)
}
