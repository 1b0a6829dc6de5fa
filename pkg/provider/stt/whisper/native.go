package whisper

// Building this file needs libwhisper.a and whisper.h on LIBRARY_PATH and
// C_INCLUDE_PATH.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// NativeProvider runs whisper.cpp in process. One model is shared; every
// call gets a fresh decoding context, and calls run one at a time because
// inference already saturates the CPU.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	threads  uint
	prompt   string

	mu sync.Mutex
}

var _ stt.Provider = (*NativeProvider)(nil)

type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language used when a request has none.
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithThreads sets the decoder thread count. Zero keeps the library default.
func WithThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// WithInitialPrompt primes the decoder with domain vocabulary, e.g. the
// technologies an interview covers.
func WithInitialPrompt(prompt string) NativeOption {
	return func(p *NativeProvider) { p.prompt = prompt }
}

// NewNative loads the ggml model at modelPath. Close releases it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path is required")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load %s: %w", modelPath, err)
	}
	p := &NativeProvider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	if !model.IsMultilingual() && p.language != "en" {
		slog.Warn("whisper: model is english-only", "model", modelPath, "language", p.language)
	}
	return p, nil
}

func (p *NativeProvider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if req.Audio.Empty() {
		return stt.Transcript{}, stt.ErrNoAudio
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	samples := segmentSamples(req.Audio)

	p.mu.Lock()
	defer p.mu.Unlock()
	// Waiting for the lock can outlast the caller.
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}

	start := time.Now()
	text, err := p.decode(samples, lang)
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{Text: text, Language: lang, Elapsed: time.Since(start)}, nil
}

func (p *NativeProvider) decode(samples []float32, lang string) (string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: language rejected, keeping model default", "language", lang, "err", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}
	if p.prompt != "" {
		wctx.SetInitialPrompt(p.prompt)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process: %w", err)
	}

	var b strings.Builder
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("whisper: next segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
}
