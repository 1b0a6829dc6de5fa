// Package mock provides in-memory implementations of [audio.Microphone],
// [audio.Speaker] and [audio.Platform] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts, and they expose exported fields that the
// test can set to control return values.
//
// Typical usage:
//
//	mic := mock.NewMicrophone(audio.SpeechFormat)
//	spk := &mock.Speaker{}
//	platform := &mock.Platform{Mic: mic, Spk: spk}
//	...
//	mic.Push(loudPCM) // deliver a frame to whoever opened the mic
package mock

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock [audio.Microphone]. Frames are injected with Push.
type Microphone struct {
	mu sync.Mutex

	// Fmt is the format stamped on pushed frames.
	Fmt audio.Format

	// OpenError is returned by Open when non-nil.
	OpenError error

	// CloseError is returned by Close.
	CloseError error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	ch      chan audio.AudioFrame
	elapsed time.Duration
}

// NewMicrophone returns a Microphone that stamps pushed frames with f.
func NewMicrophone(f audio.Format) *Microphone {
	return &Microphone{Fmt: f}
}

// Open implements [audio.Microphone].
func (m *Microphone) Open(ctx context.Context) (<-chan audio.AudioFrame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountOpen++
	if m.OpenError != nil {
		return nil, m.OpenError
	}
	if m.ch != nil {
		return nil, fmt.Errorf("mock microphone: already open")
	}
	ch := make(chan audio.AudioFrame, 64)
	m.ch = ch
	go func() {
		<-ctx.Done()
		m.closeStream(ch)
	}()
	return ch, nil
}

// Close implements [audio.Microphone].
func (m *Microphone) Close() error {
	m.mu.Lock()
	m.CallCountClose++
	ch := m.ch
	err := m.CloseError
	m.mu.Unlock()
	m.closeStream(ch)
	return err
}

func (m *Microphone) closeStream(ch chan audio.AudioFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch != nil && m.ch == ch {
		close(ch)
		m.ch = nil
	}
}

// Push delivers pcm as one frame to the open stream. It reports false when
// the microphone is not open.
func (m *Microphone) Push(pcm []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch == nil {
		return false
	}
	frame := audio.AudioFrame{
		Data:       pcm,
		SampleRate: m.Fmt.SampleRate,
		Channels:   m.Fmt.Channels,
		Timestamp:  m.elapsed,
	}
	m.elapsed += m.Fmt.Duration(len(pcm))
	m.ch <- frame
	return true
}

// IsOpen reports whether the microphone is currently open.
func (m *Microphone) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch != nil
}

// ─── Speaker ──────────────────────────────────────────────────────────────────

// Speaker is a mock [audio.Speaker]. By default Play consumes the reader and
// returns immediately. Set Hold to make Play block until Release is called or
// the context is cancelled, which lets tests observe a stream mid-playback.
type Speaker struct {
	mu sync.Mutex

	// Fmt is returned by Format. Zero means [audio.SpeechFormat].
	Fmt audio.Format

	// PlayError is returned by Play after the reader is consumed.
	PlayError error

	// Hold makes Play block until Release or cancellation.
	Hold bool

	// Played records the PCM of every completed or cancelled Play call.
	Played [][]byte

	// CallCountPlay records how many times Play was called.
	CallCountPlay int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	playing int
	release chan struct{}
	started chan struct{}
}

// Format implements [audio.Speaker].
func (s *Speaker) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fmt == (audio.Format{}) {
		return audio.SpeechFormat
	}
	return s.Fmt
}

// Play implements [audio.Speaker].
func (s *Speaker) Play(ctx context.Context, pcm io.Reader) error {
	data, readErr := io.ReadAll(pcm)

	s.mu.Lock()
	s.CallCountPlay++
	s.playing++
	hold := s.Hold
	if s.release == nil {
		s.release = make(chan struct{})
	}
	release := s.release
	if s.started != nil {
		close(s.started)
		s.started = nil
	}
	s.mu.Unlock()

	var err error
	if hold {
		select {
		case <-release:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing--
	s.Played = append(s.Played, data)
	if readErr != nil {
		return readErr
	}
	if err != nil {
		return err
	}
	return s.PlayError
}

// Release unblocks every Play call waiting because of Hold.
func (s *Speaker) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.release == nil {
		s.release = make(chan struct{})
	}
	close(s.release)
	s.release = nil
}

// Playing reports whether a Play call is in progress.
func (s *Speaker) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing > 0
}

// Started returns a channel closed when the next Play call begins.
func (s *Speaker) Started() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started == nil {
		s.started = make(chan struct{})
	}
	return s.started
}

// Close implements [audio.Speaker].
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return nil
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// Mic is returned by Microphone.
	Mic audio.Microphone

	// MicError is returned by Microphone when non-nil.
	MicError error

	// Spk is returned by Speaker.
	Spk audio.Speaker

	// SpkError is returned by Speaker when non-nil.
	SpkError error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Microphone implements [audio.Platform].
func (p *Platform) Microphone() (audio.Microphone, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.MicError != nil {
		return nil, p.MicError
	}
	return p.Mic, nil
}

// Speaker implements [audio.Platform].
func (p *Platform) Speaker() (audio.Speaker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SpkError != nil {
		return nil, p.SpkError
	}
	return p.Spk, nil
}

// Close implements [audio.Platform].
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	return nil
}
