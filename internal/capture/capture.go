// Package capture owns the microphone for the lifetime of an interview
// session and records one user turn at a time.
//
// The microphone is opened once per session. Frames arriving while no turn is
// armed are discarded. While a turn is armed, frames are normalised to
// [audio.SpeechFormat], buffered, and written to the energy monitor; a
// sampling timer feeds the monitor's samples to the endpointing policy. When
// the policy decides, the turn is stopped and the finalised segment is handed
// to the result callback.
//
// A turn also stops itself one sample after the maximum turn duration even if
// the policy never signals, so a misbehaving classifier cannot hold the
// microphone open forever.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/intervox/internal/clock"
	"github.com/MrWong99/intervox/internal/endpoint"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/vad"
)

// ErrNotOpen is returned by StartTurn before Open or after Close.
var ErrNotOpen = errors.New("capture: microphone not open")

// Result is delivered when the endpointing policy ends a turn.
type Result struct {
	TurnID   uint64
	Decision endpoint.Decision
	Segment  audio.Segment
}

// Config configures a Pipeline.
type Config struct {
	Params endpoint.Params

	// VAD classifies sampling windows. Defaults must be supplied by the
	// caller; app wires the energy engine.
	VAD vad.Engine

	Clock clock.Clock
}

// Pipeline is the capture pipeline of one session. It is safe for concurrent
// use.
type Pipeline struct {
	mic      audio.Microphone
	params   endpoint.Params
	clk      clock.Clock
	monitor  *endpoint.Monitor
	onResult func(Result)

	mu       sync.Mutex
	open     bool
	cancel   context.CancelFunc
	readDone chan struct{}
	frames   int

	// Turn state, guarded by mu.
	active   bool
	turnID   uint64
	policy   *endpoint.Policy
	seg      audio.Segment
	sampler  clock.Timer
	capTimer clock.Timer
}

// New returns a Pipeline reading from mic. onResult is called from the
// sampling timer's goroutine, without any lock held.
func New(mic audio.Microphone, cfg Config, onResult func(Result)) (*Pipeline, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.VAD == nil {
		return nil, errors.New("capture: vad engine is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	h, err := cfg.VAD.NewSession(vad.Config{
		SampleRate:      audio.SpeechFormat.SampleRate,
		SpeechThreshold: cfg.Params.SoundThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: create vad session: %w", err)
	}
	return &Pipeline{
		mic:      mic,
		params:   cfg.Params,
		clk:      cfg.Clock,
		monitor:  endpoint.NewMonitor(h),
		onResult: onResult,
		policy:   endpoint.NewPolicy(cfg.Params),
	}, nil
}

// Open acquires the microphone. Errors wrap [audio.ErrPermissionDenied] or
// [audio.ErrDeviceUnavailable]; anything else the device reports is treated
// as the device being unavailable.
func (p *Pipeline) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		return nil
	}
	rctx, cancel := context.WithCancel(ctx)
	frames, err := p.mic.Open(rctx)
	if err != nil {
		cancel()
		if !errors.Is(err, audio.ErrPermissionDenied) && !errors.Is(err, audio.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", audio.ErrDeviceUnavailable, err)
		}
		return fmt.Errorf("capture: open microphone: %w", err)
	}
	p.open = true
	p.cancel = cancel
	p.readDone = make(chan struct{})
	go p.read(audio.ConvertStream(frames, audio.SpeechFormat), p.readDone)
	return nil
}

// read consumes device frames for the session lifetime.
func (p *Pipeline) read(frames <-chan audio.AudioFrame, done chan struct{}) {
	defer close(done)
	for frame := range frames {
		p.mu.Lock()
		p.frames++
		if p.active {
			p.seg.PCM = append(p.seg.PCM, frame.Data...)
			p.monitor.Write(frame.Data)
		}
		p.mu.Unlock()
	}
}

// StartTurn arms a new turn identified by id. Any turn in progress is
// discarded.
func (p *Pipeline) StartTurn(id uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return ErrNotOpen
	}
	p.stopLocked()

	now := p.clk.Now()
	p.active = true
	p.turnID = id
	p.seg = audio.Segment{Format: audio.SpeechFormat, StartedAt: now}
	p.monitor.Reset()
	p.policy.Begin(now)
	p.sampler = p.clk.AfterFunc(p.params.SampleInterval, func() { p.sample(id) })
	p.capTimer = p.clk.AfterFunc(p.params.MaxTurnDuration+p.params.SampleInterval, func() { p.expire(id) })
	slog.Debug("capture: turn armed", "turn", id)
	return nil
}

// StopTurn disarms the current turn and returns what was recorded. It is
// idempotent: without an active turn it returns an empty segment.
func (p *Pipeline) StopTurn() audio.Segment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

// Active reports whether a turn is being recorded.
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Close stops any turn and releases the microphone. It is safe to call more
// than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.stopLocked()
	if !p.open {
		p.mu.Unlock()
		return nil
	}
	p.open = false
	cancel, done := p.cancel, p.readDone
	p.mu.Unlock()

	cancel()
	err := p.mic.Close()
	<-done
	p.mu.Lock()
	slog.Debug("capture: microphone released", "frames", p.frames)
	p.mu.Unlock()
	return errors.Join(err, p.monitor.Close())
}

func (p *Pipeline) stopLocked() audio.Segment {
	if !p.active {
		return audio.Segment{}
	}
	p.active = false
	if p.sampler != nil {
		p.sampler.Stop()
	}
	if p.capTimer != nil {
		p.capTimer.Stop()
	}
	seg := p.seg
	seg.HadSpeech = p.policy.HasSpoken()
	p.seg = audio.Segment{}
	slog.Debug("capture: turn stopped", "turn", p.turnID, "duration", seg.Duration())
	return seg
}

// sample runs once per interval while turn id is armed.
func (p *Pipeline) sample(id uint64) {
	p.mu.Lock()
	if !p.active || p.turnID != id {
		p.mu.Unlock()
		return
	}
	s := p.monitor.Sample(p.clk.Now())
	d := p.policy.Observe(s)
	if d == endpoint.NoDecision {
		p.sampler = p.clk.AfterFunc(p.params.SampleInterval, func() { p.sample(id) })
		p.mu.Unlock()
		return
	}
	seg := p.stopLocked()
	p.mu.Unlock()
	p.deliver(Result{TurnID: id, Decision: d, Segment: seg})
}

// expire is the safety cap.
func (p *Pipeline) expire(id uint64) {
	p.mu.Lock()
	if !p.active || p.turnID != id {
		p.mu.Unlock()
		return
	}
	d := p.policy.Expire()
	seg := p.stopLocked()
	p.mu.Unlock()
	if d == endpoint.NoDecision {
		return
	}
	slog.Warn("capture: turn hit safety cap", "turn", id, "decision", d)
	p.deliver(Result{TurnID: id, Decision: d, Segment: seg})
}

func (p *Pipeline) deliver(r Result) {
	if p.onResult != nil {
		p.onResult(r)
	}
}
