// Package edge provides a tts.Provider backed by the Microsoft Edge read-aloud
// service through edge-tts-go. It needs no API key, which makes it the default
// voice for local development.
//
// The service returns MP3, decoded here to 16-bit stereo PCM at 24 kHz.
package edge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/wujunwei928/edge-tts-go/edge_tts"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// DefaultVoice is used when neither the call nor the provider names one.
const DefaultVoice = "en-US-AriaNeural"

const (
	chunkBytes = 9600 // 100 ms of 24 kHz stereo

	// receiveTimeout is in seconds.
	receiveTimeout = 20
)

// Provider implements tts.Provider using edge-tts-go.
type Provider struct {
	voice string
	synth func(voice, text string) ([]byte, error)
}

var _ tts.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithVoice sets the default voice short name (e.g. "en-GB-RyanNeural").
func WithVoice(v string) Option {
	return func(p *Provider) {
		if v != "" {
			p.voice = v
		}
	}
}

// New returns an Edge TTS provider.
func New(opts ...Option) *Provider {
	p := &Provider{voice: DefaultVoice, synth: synthesize}
	for _, o := range opts {
		o(p)
	}
	return p
}

func synthesize(voice, text string) ([]byte, error) {
	c, err := edge_tts.NewCommunicate(text,
		edge_tts.SetVoice(voice),
		edge_tts.SetReceiveTimeout(receiveTimeout))
	if err != nil {
		return nil, fmt.Errorf("edge: %w", err)
	}
	mp3, err := c.Stream()
	if err != nil {
		return nil, fmt.Errorf("edge: stream: %w", err)
	}
	if len(mp3) == 0 {
		return nil, errors.New("edge: no audio received")
	}
	return mp3, nil
}

// Format returns the decoded PCM format.
func (p *Provider) Format() audio.Format {
	return audio.Format{SampleRate: 24000, Channels: 2}
}

// Synthesize fetches the MP3 for text, decodes it and streams PCM chunks.
// The request itself cannot be cancelled; cancelling ctx stops delivery.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}
	name := voice.ID
	if name == "" {
		name = p.voice
	}

	ch := make(chan []byte, 16)
	go func() {
		defer close(ch)

		mp3, err := p.synth(name, text)
		if err != nil {
			slog.Warn("edge: synthesis failed", "voice", name, "err", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		pcm, f, err := audio.DecodeMP3(bytes.NewReader(mp3))
		if err != nil {
			slog.Warn("edge: decode failed", "voice", name, "err", err)
			return
		}
		for {
			buf := make([]byte, chunkBytes)
			n, err := io.ReadFull(pcm, buf)
			if n > 0 {
				select {
				case ch <- audio.ConvertPCM(buf[:n], f, p.Format()):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF && err != io.ErrUnexpectedEOF {
					slog.Warn("edge: decode failed", "voice", name, "err", err)
				}
				return
			}
		}
	}()
	return ch, nil
}

// voices is a curated set of English neural voices suited to an interviewer.
var voices = []tts.Voice{
	{ID: "en-US-AriaNeural", Name: "Aria", Metadata: map[string]string{"gender": "female", "locale": "en-US"}},
	{ID: "en-US-GuyNeural", Name: "Guy", Metadata: map[string]string{"gender": "male", "locale": "en-US"}},
	{ID: "en-US-JennyNeural", Name: "Jenny", Metadata: map[string]string{"gender": "female", "locale": "en-US"}},
	{ID: "en-GB-RyanNeural", Name: "Ryan", Metadata: map[string]string{"gender": "male", "locale": "en-GB"}},
	{ID: "en-GB-SoniaNeural", Name: "Sonia", Metadata: map[string]string{"gender": "female", "locale": "en-GB"}},
	{ID: "en-IN-NeerjaNeural", Name: "Neerja", Metadata: map[string]string{"gender": "female", "locale": "en-IN"}},
}

// ListVoices returns the curated voice list.
func (p *Provider) ListVoices(context.Context) ([]tts.Voice, error) {
	out := make([]tts.Voice, len(voices))
	for i, v := range voices {
		v.Provider = "edge"
		out[i] = v
	}
	return out, nil
}
