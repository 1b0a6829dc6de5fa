// Package mock is a canned [tts.Provider] for tests.
//
//	p := &mock.Provider{Chunks: [][]byte{make([]byte, 3200)}}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// SynthesizeCall is one recorded request.
type SynthesizeCall struct {
	Text  string
	Voice tts.Voice
}

// Provider streams Chunks for every request.
type Provider struct {
	Chunks        [][]byte
	SynthesizeErr error

	// Gate holds back the first chunk until it is closed, letting tests
	// observe a reply that is synthesising but not yet audible.
	Gate chan struct{}

	// Fmt defaults to audio.SpeechFormat.
	Fmt audio.Format

	Voices        []tts.Voice
	ListVoicesErr error

	mu    sync.Mutex
	calls []SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	p.mu.Lock()
	p.calls = append(p.calls, SynthesizeCall{Text: text, Voice: voice})
	err, chunks, gate := p.SynthesizeErr, slices.Clone(p.Chunks), p.Gate
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, len(chunks))
	go func() {
		defer close(out)
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return
			}
		}
		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *Provider) Format() audio.Format {
	if p.Fmt.SampleRate == 0 {
		return audio.SpeechFormat
	}
	return p.Fmt
}

func (p *Provider) ListVoices(context.Context) ([]tts.Voice, error) {
	return p.Voices, p.ListVoicesErr
}

// Calls returns a snapshot of the recorded requests.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}
