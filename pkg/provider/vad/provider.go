// Package vad defines the interface for voice-activity classifiers.
//
// An [Engine] produces per-stream [SessionHandle] values. The endpointing
// monitor owns one session per interview and feeds it one measurement window
// at a time (nominally 100 ms of 16 kHz mono PCM); the session classifies the
// window as speech or silence and tracks speech start/end edges across calls.
//
// The bundled implementation is the RMS energy engine in vad/energy. Model
// based detectors (Silero, WebRTC VAD) fit the same interface.
//
// Engines must be safe for concurrent use. A SessionHandle is used from one
// goroutine at a time.
package vad

import "errors"

// ErrClosed is returned by ProcessFrame on a closed session.
var ErrClosed = errors.New("vad: session closed")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate of the PCM passed to ProcessFrame, in Hz.
	SampleRate int

	// FrameSizeMs is the expected window length. Zero accepts windows of any
	// length, which is what the energy monitor needs since its windows follow
	// the arrival of device frames.
	FrameSizeMs int

	// SpeechThreshold is the score above which a window counts as speech,
	// in [0, 1]. For the energy engine the score is the normalised RMS level.
	SpeechThreshold float64

	// SilenceThreshold is the score at or below which an ongoing speech run
	// ends.
	// Zero means "same as SpeechThreshold" (no hysteresis).
	SilenceThreshold float64
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, errors.New("vad: sample rate must be positive"))
	}
	if c.FrameSizeMs < 0 {
		errs = append(errs, errors.New("vad: frame size must not be negative"))
	}
	if c.SpeechThreshold < 0 || c.SpeechThreshold > 1 {
		errs = append(errs, errors.New("vad: speech threshold must be in [0, 1]"))
	}
	if c.SilenceThreshold < 0 || c.SilenceThreshold > c.SpeechThreshold {
		errs = append(errs, errors.New("vad: silence threshold must be in [0, speech threshold]"))
	}
	return errors.Join(errs...)
}

// SessionHandle is the per-stream classification state.
type SessionHandle interface {
	// ProcessFrame classifies one window of 16-bit little-endian PCM.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset forgets any speech run in progress. The monitor calls it at the
	// start of every user turn.
	Reset()

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}

// Engine creates VAD sessions.
type Engine interface {
	NewSession(cfg Config) (SessionHandle, error)
}
