package turn

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/intervox/internal/session"
)

// Mode is the controller's single state variable.
type Mode int

const (
	Idle Mode = iota
	Listening
	Processing
	Speaking
	Muted
	Error
	Completed
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	case Speaking:
		return "speaking"
	case Muted:
		return "muted"
	case Error:
		return "error"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	for c := Idle; c <= Completed; c++ {
		if c.String() == string(b) {
			*m = c
			return nil
		}
	}
	return fmt.Errorf("turn: unknown mode %q", b)
}

var (
	// ErrBusy is returned by SubmitText while a dialogue request is in flight.
	ErrBusy = errors.New("turn: a reply is already being prepared")

	// ErrEmptyText is returned by SubmitText for blank input.
	ErrEmptyText = errors.New("turn: empty text")

	// ErrNotActive is returned by commands that need a running interview.
	ErrNotActive = errors.New("turn: session not active")

	// ErrAlreadyStarted is returned by Start once the session has begun.
	ErrAlreadyStarted = errors.New("turn: session already started")

	// ErrStopped is returned when the controller's event loop has exited.
	ErrStopped = errors.New("turn: controller stopped")
)

// StartReason classifies a failed Start.
type StartReason string

const (
	ReasonPermissionDenied  StartReason = "permission_denied"
	ReasonDeviceUnavailable StartReason = "device_unavailable"
)

// StartError is returned by Start when the microphone cannot be acquired.
// The session stays NotStarted.
type StartError struct {
	Reason StartReason
	Err    error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("turn: cannot start session (%s): %v", e.Reason, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// EventKind identifies an observer event.
type EventKind string

const (
	EventMode      EventKind = "mode"
	EventUtterance EventKind = "utterance"
	EventTick      EventKind = "tick"
	EventCompleted EventKind = "completed"
)

// Event is delivered to subscribers. Fields not relevant to Kind are zero.
type Event struct {
	Kind      EventKind          `json:"kind"`
	SessionID string             `json:"sessionId"`
	At        time.Time          `json:"at"`
	Mode      Mode               `json:"mode"`
	From      Mode               `json:"from"`
	Muted     bool               `json:"muted"`
	Reason    string             `json:"reason,omitempty"`
	Utterance *session.Utterance `json:"utterance,omitempty"`
	Remaining string             `json:"remaining,omitempty"`
	EndReason session.EndReason  `json:"endReason,omitempty"`
}

// Snapshot is a consistent view of the controller.
type Snapshot struct {
	SessionID     string                `json:"sessionId"`
	InterviewType session.InterviewType `json:"interviewType"`
	Mode          Mode                  `json:"mode"`
	Muted         bool                  `json:"muted"`
	Phase         session.Phase         `json:"phase"`
	Remaining     time.Duration         `json:"-"`
	Countdown     string                `json:"countdown"`
	Turns         []session.Utterance   `json:"turns"`
	InFlight      bool                  `json:"inFlight"`
}
