// Package session models one interview: its identity, fixed length, phase,
// append-only transcript and countdown.
//
// A [Session] is mutated only by the turn controller's event loop; readers
// (the control API, summaries) may call its accessors concurrently.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotActive is returned when mutating a session that is not Active.
	ErrNotActive = errors.New("session: not active")

	// ErrNotCompleted is returned by Summary before the session ends.
	ErrNotCompleted = errors.New("session: not completed")

	// ErrEmptyUtterance is returned when appending blank text.
	ErrEmptyUtterance = errors.New("session: empty utterance")

	// ErrInvalidDuration is returned for a non-positive interview length.
	ErrInvalidDuration = errors.New("session: duration must be positive")

	// ErrUnknownType is returned by ParseInterviewType.
	ErrUnknownType = errors.New("session: unknown interview type")
)

// InterviewType selects the interviewer persona.
type InterviewType string

const (
	Technical  InterviewType = "technical"
	Behavioral InterviewType = "behavioral"
)

// ParseInterviewType parses s case-insensitively. An empty string yields
// Technical.
func ParseInterviewType(s string) (InterviewType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(Technical):
		return Technical, nil
	case string(Behavioral):
		return Behavioral, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// DurationChoices are the interview lengths offered by the UI. Any positive
// duration is accepted.
var DurationChoices = []time.Duration{2 * time.Minute, 10 * time.Minute, 15 * time.Minute, 30 * time.Minute}

// Phase is the lifecycle stage of a session.
type Phase int

const (
	NotStarted Phase = iota
	Active
	Completed
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not_started"
	case Active:
		return "active"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(b []byte) error {
	for _, c := range []Phase{NotStarted, Active, Completed} {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("session: unknown phase %q", b)
}

// Role identifies who spoke an utterance.
type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// Utterance is one immutable line of the transcript.
type Utterance struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// EndReason records why a session completed.
type EndReason string

const (
	EndExpired EndReason = "expired"
	EndManual  EndReason = "ended"
)

// Session is one interview.
type Session struct {
	id       string
	typ      InterviewType
	duration time.Duration

	mu        sync.RWMutex
	phase     Phase
	remaining time.Duration
	turns     []Utterance
	startedAt time.Time
	endedAt   time.Time
	reason    EndReason
}

// NewID returns a session identifier of the form session-<unix-ms>-<8 hex>.
func NewID(now time.Time) string {
	return fmt.Sprintf("session-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// New returns a NotStarted session with the given id.
func New(id string, typ InterviewType, duration time.Duration) (*Session, error) {
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if typ != Technical && typ != Behavioral {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return &Session{id: id, typ: typ, duration: duration, remaining: duration}, nil
}

func (s *Session) ID() string              { return s.id }
func (s *Session) Type() InterviewType     { return s.typ }
func (s *Session) Duration() time.Duration { return s.duration }

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Remaining returns the countdown value.
func (s *Session) Remaining() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remaining
}

// Turns returns a copy of the transcript.
func (s *Session) Turns() []Utterance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Utterance(nil), s.turns...)
}

// Activate moves NotStarted to Active.
func (s *Session) Activate(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != NotStarted {
		return fmt.Errorf("session: activate in phase %s", s.phase)
	}
	s.phase = Active
	s.startedAt = now
	return nil
}

// Append adds an utterance. Only Active sessions accept utterances.
func (s *Session) Append(u Utterance) error {
	if strings.TrimSpace(u.Text) == "" {
		return ErrEmptyUtterance
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Active {
		return ErrNotActive
	}
	s.turns = append(s.turns, u)
	return nil
}

// SetRemaining updates the countdown while Active.
func (s *Session) SetRemaining(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Active {
		return
	}
	s.remaining = max(d, 0)
}

// Complete freezes the session. It reports false if it was already
// Completed. A session completed by expiry has zero time remaining.
func (s *Session) Complete(now time.Time, reason EndReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == Completed {
		return false
	}
	s.phase = Completed
	s.endedAt = now
	s.reason = reason
	if reason == EndExpired {
		s.remaining = 0
	}
	return true
}

// Summary is the rendered record of a completed interview.
type Summary struct {
	ID          string        `json:"id"`
	Type        InterviewType `json:"interviewType"`
	Duration    time.Duration `json:"-"`
	StartedAt   time.Time     `json:"startedAt"`
	EndedAt     time.Time     `json:"endedAt"`
	Elapsed     time.Duration `json:"-"`
	Reason      EndReason     `json:"reason"`
	Turns       []Utterance   `json:"turns"`
	UserTurns   int           `json:"userTurns"`
	SystemTurns int           `json:"systemTurns"`
}

// Summary renders a completed session.
func (s *Session) Summary() (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.phase != Completed {
		return Summary{}, ErrNotCompleted
	}
	sum := Summary{
		ID:        s.id,
		Type:      s.typ,
		Duration:  s.duration,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
		Reason:    s.reason,
		Turns:     append([]Utterance(nil), s.turns...),
	}
	if !s.startedAt.IsZero() {
		sum.Elapsed = s.endedAt.Sub(s.startedAt)
	}
	for _, u := range s.turns {
		if u.Role == RoleUser {
			sum.UserTurns++
		} else {
			sum.SystemTurns++
		}
	}
	return sum, nil
}

// Transcript renders the turns as "Interviewer:" / "Candidate:" lines.
func (sum Summary) Transcript() string {
	var b strings.Builder
	for _, u := range sum.Turns {
		if u.Role == RoleUser {
			b.WriteString("Candidate: ")
		} else {
			b.WriteString("Interviewer: ")
		}
		b.WriteString(u.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
