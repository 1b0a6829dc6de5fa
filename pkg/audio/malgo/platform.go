// Package malgo implements [audio.Platform] on the local sound system: the
// microphone is captured with miniaudio (github.com/gen2brain/malgo) and the
// speaker is driven by github.com/ebitengine/oto/v3.
//
// Both libraries need cgo on Linux (ALSA/PulseAudio headers) and are the only
// parts of the module that touch real hardware.
package malgo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/MrWong99/intervox/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Platform   = (*Platform)(nil)
	_ audio.Microphone = (*Microphone)(nil)
	_ audio.Speaker    = (*Speaker)(nil)
)

// Option configures a [Platform].
type Option func(*Platform)

// WithCaptureFormat sets the format the microphone is opened with. Defaults to
// 16 kHz mono, which most devices resample to natively.
func WithCaptureFormat(f audio.Format) Option {
	return func(p *Platform) { p.captureFmt = f }
}

// WithPlaybackFormat sets the speaker format. Defaults to 24 kHz mono, the
// native rate of most TTS voices.
func WithPlaybackFormat(f audio.Format) Option {
	return func(p *Platform) { p.playbackFmt = f }
}

// WithPeriod sets the capture callback period. Defaults to 20 ms.
func WithPeriod(d time.Duration) Option {
	return func(p *Platform) { p.period = d }
}

// Platform owns the miniaudio context and the (process-wide) oto context.
type Platform struct {
	captureFmt  audio.Format
	playbackFmt audio.Format
	period      time.Duration

	mctx *malgo.AllocatedContext

	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
}

// New initialises the capture back-end. The speaker is initialised lazily on
// the first call to [Platform.Speaker].
func New(opts ...Option) (*Platform, error) {
	p := &Platform{
		captureFmt:  audio.SpeechFormat,
		playbackFmt: audio.Format{SampleRate: 24000, Channels: 1},
		period:      20 * time.Millisecond,
	}
	for _, o := range opts {
		o(p)
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("malgo", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w: %w", audio.ErrDeviceUnavailable, err)
	}
	p.mctx = mctx
	return p, nil
}

// Microphone implements [audio.Platform].
func (p *Platform) Microphone() (audio.Microphone, error) {
	return &Microphone{ctx: p.mctx.Context, format: p.captureFmt, period: p.period}, nil
}

// Speaker implements [audio.Platform]. oto allows one context per process, so
// every Speaker shares it.
func (p *Platform) Speaker() (audio.Speaker, error) {
	p.otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   p.playbackFmt.SampleRate,
			ChannelCount: p.playbackFmt.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if err != nil {
			p.otoErr = fmt.Errorf("malgo: init speaker: %w: %w", audio.ErrDeviceUnavailable, err)
			return
		}
		<-ready
		p.otoCtx = ctx
	})
	if p.otoErr != nil {
		return nil, p.otoErr
	}
	return &Speaker{ctx: p.otoCtx, format: p.playbackFmt}, nil
}

// Close implements [audio.Platform].
func (p *Platform) Close() error {
	if p.mctx == nil {
		return nil
	}
	err := p.mctx.Uninit()
	p.mctx.Free()
	p.mctx = nil
	return err
}

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone captures signed 16-bit PCM from the default input device.
type Microphone struct {
	ctx    malgo.Context
	format audio.Format
	period time.Duration

	mu     sync.Mutex
	device *malgo.Device
	out    chan audio.AudioFrame
	start  time.Time
	cancel context.CancelFunc
}

// Open implements [audio.Microphone].
func (m *Microphone) Open(ctx context.Context) (<-chan audio.AudioFrame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return nil, errors.New("malgo: microphone already open")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(m.format.Channels)
	cfg.SampleRate = uint32(m.format.SampleRate)
	cfg.PeriodSizeInMilliseconds = uint32(m.period / time.Millisecond)

	out := make(chan audio.AudioFrame, 64)
	start := time.Now()
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			if len(in) == 0 {
				return
			}
			frame := audio.AudioFrame{
				Data:       append([]byte(nil), in...),
				SampleRate: m.format.SampleRate,
				Channels:   m.format.Channels,
				Timestamp:  time.Since(start),
			}
			// The audio thread must never block; drop when the reader lags.
			select {
			case out <- frame:
			default:
			}
		},
	}

	device, err := malgo.InitDevice(m.ctx, cfg, callbacks)
	if err != nil {
		return nil, classify("init capture device", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, classify("start capture device", err)
	}

	m.device = device
	m.out = out
	m.start = start
	cctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go func() {
		<-cctx.Done()
		m.release()
	}()

	slog.Info("microphone opened", "format", m.format.String())
	return out, nil
}

// Close implements [audio.Microphone].
func (m *Microphone) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.release()
	return nil
}

func (m *Microphone) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return
	}
	_ = m.device.Stop()
	m.device.Uninit()
	m.device = nil
	close(m.out)
	m.out = nil
	slog.Info("microphone released")
}

// classify maps a miniaudio failure onto the audio sentinel errors. miniaudio
// reports results as text, so matching is done on the message.
func classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied"), strings.Contains(msg, "permission"):
		return fmt.Errorf("malgo: %s: %w: %w", op, audio.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("malgo: %s: %w: %w", op, audio.ErrDeviceUnavailable, err)
	}
}

// ─── Speaker ──────────────────────────────────────────────────────────────────

// Speaker plays PCM through oto.
type Speaker struct {
	ctx    *oto.Context
	format audio.Format
	mu     sync.Mutex // serialises Play
}

// Format implements [audio.Speaker].
func (s *Speaker) Format() audio.Format { return s.format }

// Play implements [audio.Speaker]. It polls the player until the stream and
// the device buffer are exhausted.
func (s *Speaker) Play(ctx context.Context, pcm io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	player := s.ctx.NewPlayer(pcm)
	defer player.Close()
	player.Play()

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-tick.C:
		}
	}
	return player.Err()
}

// Close implements [audio.Speaker]. The shared oto context lives until the
// process exits.
func (s *Speaker) Close() error { return nil }
