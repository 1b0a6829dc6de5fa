// Package energy implements [vad.Engine] by thresholding the RMS level of each
// window. It needs no model, works at any sample rate and accepts windows of
// any length, which makes it the default classifier for endpointing.
package energy

import (
	"fmt"
	"sync"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/vad"
)

// Engine is the energy-threshold VAD engine. The zero value is ready to use.
type Engine struct{}

var _ vad.Engine = Engine{}

// New returns an Engine.
func New() Engine { return Engine{} }

// NewSession implements [vad.Engine].
func (Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("energy: %w", err)
	}
	silence := cfg.SilenceThreshold
	if silence == 0 {
		silence = cfg.SpeechThreshold
	}
	return &session{
		speech:     cfg.SpeechThreshold,
		silence:    silence,
		frameBytes: cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2,
	}, nil
}

type session struct {
	mu         sync.Mutex
	speech     float64
	silence    float64
	frameBytes int // 0 accepts any length
	inSpeech   bool
	closed     bool
}

// ProcessFrame classifies the window by its normalised RMS level. A speech
// run starts above the speech threshold and ends at or below the silence
// threshold.
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, vad.ErrClosed
	}
	if s.frameBytes > 0 && len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	level := audio.Level(frame)
	ev := vad.VADEvent{Probability: level}
	switch {
	case s.inSpeech && level <= s.silence:
		s.inSpeech = false
		ev.Type = vad.VADSpeechEnd
	case s.inSpeech:
		ev.Type = vad.VADSpeechContinue
	case level > s.speech:
		s.inSpeech = true
		ev.Type = vad.VADSpeechStart
	default:
		ev.Type = vad.VADSilence
	}
	return ev, nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
