// Package playback speaks the interviewer's replies through the speaker.
//
// A [Pipeline] plays one [Item] at a time. When the item carries an audio
// URL the file is fetched and decoded (MP3, WAV or raw PCM); otherwise the
// text is synthesised by a [tts.Provider]. Every Play reports exactly one
// [Started] followed by exactly one [Finished] or [Failed], unless [Pipeline.Stop]
// intervenes, after which nothing more is reported for that item.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/remote"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// ErrNoSource is reported when an item has neither an audio URL nor text a
// configured synthesiser could speak.
var ErrNoSource = errors.New("playback: nothing to play")

// EventKind identifies a playback event.
type EventKind int

const (
	Started EventKind = iota + 1
	Finished
	Failed
)

func (k EventKind) String() string {
	switch k {
	case Started:
		return "started"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is reported to the callback passed to Play. Err is set for Failed.
type Event struct {
	Kind EventKind
	Err  error
}

// Item is one reply to speak.
type Item struct {
	Text     string
	AudioURL string
}

// Config configures a Pipeline.
type Config struct {
	Speaker audio.Speaker

	// TTS synthesises items without an audio URL. May be nil when every
	// reply carries a URL.
	TTS   tts.Provider
	Voice tts.Voice

	// HTTPClient fetches audio URLs. Nil uses a client with a 30 s timeout.
	HTTPClient *http.Client

	// RawFormat is assumed for fetched audio that is neither WAV nor MP3.
	// Zero means [audio.SpeechFormat].
	RawFormat audio.Format

	Metrics      *observe.Metrics
	ProviderName string
}

// Pipeline is the playback pipeline of one session. It is safe for
// concurrent use.
type Pipeline struct {
	cfg Config

	// gen identifies the current item; emits for older generations are
	// dropped. emitMu serialises callbacks against Stop.
	gen    atomic.Uint64
	emitMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	active bool
}

// New returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Speaker == nil {
		return nil, errors.New("playback: speaker is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.RawFormat == (audio.Format{}) {
		cfg.RawFormat = audio.SpeechFormat
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "tts"
	}
	return &Pipeline{cfg: cfg}, nil
}

// Play stops whatever is playing and starts item. Started is reported before
// Play returns; the terminal event arrives later from another goroutine.
// onEvent must not block for long.
func (p *Pipeline) Play(ctx context.Context, item Item, onEvent func(Event)) {
	p.Stop()
	if onEvent == nil {
		onEvent = func(Event) {}
	}

	gen := p.gen.Add(1)
	pctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.active = true
	p.mu.Unlock()

	p.emit(gen, onEvent, Event{Kind: Started})
	go func() {
		defer close(done)
		defer cancel()
		err := p.run(pctx, item)
		if pctx.Err() != nil && p.gen.Load() != gen {
			return
		}
		p.finish(gen)
		if err != nil {
			slog.Warn("playback failed", "err", err)
			p.emit(gen, onEvent, Event{Kind: Failed, Err: err})
			return
		}
		p.emit(gen, onEvent, Event{Kind: Finished})
	}()
}

// Stop cancels the current item and waits until its goroutine has exited.
// No event for that item is reported after Stop returns. Stop is idempotent.
func (p *Pipeline) Stop() {
	p.gen.Add(1)
	// Barrier: an emit that passed the generation check completes first.
	p.emitMu.Lock()
	p.emitMu.Unlock()

	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.active = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Active reports whether an item is playing.
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Pipeline) finish(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen.Load() == gen {
		p.active = false
	}
}

func (p *Pipeline) emit(gen uint64, onEvent func(Event), ev Event) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	if p.gen.Load() != gen {
		return
	}
	onEvent(ev)
}

func (p *Pipeline) run(ctx context.Context, item Item) error {
	var (
		pcm io.Reader
		err error
	)
	switch {
	case item.AudioURL != "":
		pcm, err = p.fetch(ctx, item.AudioURL)
	case strings.TrimSpace(item.Text) != "" && p.cfg.TTS != nil:
		var cr *chunkReader
		cr, err = p.synthesize(ctx, item.Text)
		if err == nil {
			// The speaker may stop reading early; the provider must not block.
			defer func() { go audio.Drain(cr.ch) }()
			pcm = cr
		}
	default:
		err = ErrNoSource
	}
	if err != nil {
		return err
	}
	if err := p.cfg.Speaker.Play(ctx, pcm); err != nil {
		return fmt.Errorf("playback: speaker: %w", err)
	}
	return nil
}

// fetch downloads and decodes an audio URL into speaker-format PCM.
func (p *Pipeline) fetch(ctx context.Context, url string) (io.Reader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("playback: audio url: %w", err)
	}
	body, err := remote.Do(p.cfg.HTTPClient, "playback", req)
	if err != nil {
		return nil, err
	}

	var (
		pcm []byte
		f   audio.Format
	)
	switch audio.Sniff(body) {
	case "wav":
		pcm, f, err = audio.DecodeWAV(body)
		if err != nil {
			return nil, fmt.Errorf("playback: %w", err)
		}
	case "mp3":
		r, mf, err := audio.DecodeMP3(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("playback: %w", err)
		}
		if pcm, err = io.ReadAll(r); err != nil {
			return nil, fmt.Errorf("playback: decode mp3: %w", err)
		}
		f = mf
	default:
		pcm, f = body, p.cfg.RawFormat
	}
	return bytes.NewReader(audio.ConvertPCM(pcm, f, p.cfg.Speaker.Format())), nil
}

// synthesize starts the TTS stream and adapts it to an io.Reader in the
// speaker format.
func (p *Pipeline) synthesize(ctx context.Context, text string) (*chunkReader, error) {
	start := time.Now()
	ch, err := p.cfg.TTS.Synthesize(ctx, text, p.cfg.Voice)
	if m := p.cfg.Metrics; m != nil {
		status := "ok"
		if err != nil {
			status = "error"
			m.RecordProviderError(ctx, p.cfg.ProviderName, "tts")
		}
		m.RecordProviderRequest(ctx, p.cfg.ProviderName, "tts", status)
	}
	if err != nil {
		return nil, fmt.Errorf("playback: synthesize: %w", err)
	}
	r := &chunkReader{
		ch:   ch,
		from: p.cfg.TTS.Format(),
		to:   p.cfg.Speaker.Format(),
	}
	r.onFirst = func() {
		if m := p.cfg.Metrics; m != nil {
			observe.Observe(ctx, m.TTSDuration, time.Since(start), attribute.String("provider", p.cfg.ProviderName))
		}
	}
	return r, nil
}

// chunkReader reads PCM chunks from a channel, converting whole frames from
// one format to another. A partial trailing frame is carried to the next
// chunk.
type chunkReader struct {
	ch      <-chan []byte
	from    audio.Format
	to      audio.Format
	onFirst func()

	buf   []byte
	carry []byte
	seen  bool
}

func (r *chunkReader) Read(b []byte) (int, error) {
	for len(r.buf) == 0 {
		chunk, ok := <-r.ch
		if !ok {
			return 0, io.EOF
		}
		if !r.seen {
			r.seen = true
			if r.onFirst != nil {
				r.onFirst()
			}
		}
		data := append(r.carry, chunk...)
		frame := 2 * max(r.from.Channels, 1)
		whole := len(data) - len(data)%frame
		r.carry = append([]byte(nil), data[whole:]...)
		r.buf = audio.ConvertPCM(data[:whole], r.from, r.to)
	}
	n := copy(b, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
