// Package mock provides scripted vad engines for tests.
//
//	sess := &mock.Session{Speech: []bool{false, true, true, false}}
//	eng := &mock.Engine{Session: sess}
//
// Each ProcessFrame call consumes one Speech entry and reports the matching
// start / continue / end / silence event; once the script runs out every
// window is silence.
package mock

import (
	"sync"

	"github.com/MrWong99/intervox/pkg/provider/vad"
)

// Engine hands out Session, or a fresh silent one when Session is nil.
type Engine struct {
	Session       *Session
	NewSessionErr error

	mu      sync.Mutex
	configs []vad.Config
}

var _ vad.Engine = (*Engine)(nil)

func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session == nil {
		return &Session{}, nil
	}
	return e.Session, nil
}

// Configs returns the configs NewSession was called with.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vad.Config(nil), e.configs...)
}

// Session classifies windows from a script.
type Session struct {
	// Speech scripts one classification per window.
	Speech []bool

	// ProcessFrameErr fails every window when set.
	ProcessFrameErr error
	CloseErr        error

	mu             sync.Mutex
	inSpeech       bool
	frames         int
	ResetCallCount int
	CloseCallCount int
}

var _ vad.SessionHandle = (*Session)(nil)

func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	if s.ProcessFrameErr != nil {
		return vad.VADEvent{}, s.ProcessFrameErr
	}
	speech := false
	if len(s.Speech) > 0 {
		speech, s.Speech = s.Speech[0], s.Speech[1:]
	}

	ev := vad.VADEvent{Type: vad.VADSilence}
	switch {
	case speech && !s.inSpeech:
		ev = vad.VADEvent{Type: vad.VADSpeechStart, Probability: 1}
	case speech:
		ev = vad.VADEvent{Type: vad.VADSpeechContinue, Probability: 1}
	case s.inSpeech:
		ev.Type = vad.VADSpeechEnd
	}
	s.inSpeech = speech
	return ev, nil
}

// Frames returns how many windows were classified.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
	s.ResetCallCount++
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}
