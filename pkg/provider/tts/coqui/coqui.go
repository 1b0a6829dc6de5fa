// Package coqui speaks interviewer replies through a self-hosted Coqui TTS
// server.
//
// [APIModeStandard] targets the stock server image (GET /api/tts, voices from
// GET /details); [APIModeXTTS] targets the XTTS v2 API server (POST
// /tts_to_audio/, voices from GET /studio_speakers). Both return one WAV per
// request, so replies are split into sentences that are fetched a few at a
// time and played back in order.
package coqui

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

const (
	defaultSampleRate = 22050

	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"

	// maxInFlight bounds concurrent sentence requests.
	maxInFlight = 4
	chunkBytes  = 4096
)

// APIMode picks the server flavour.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

type Option func(*Provider)

// WithLanguage sets the language code; "en" by default.
func WithLanguage(lang string) Option { return func(p *Provider) { p.language = lang } }

// WithTimeout bounds each sentence request; 30s by default.
func WithTimeout(d time.Duration) Option { return func(p *Provider) { p.client.Timeout = d } }

func WithAPIMode(mode APIMode) Option { return func(p *Provider) { p.mode = mode } }

// WithSampleRate sets the rate audio is delivered at. Most Coqui models
// produce 22050 Hz and XTTS produces 24000 Hz; other rates are resampled.
func WithSampleRate(rate int) Option { return func(p *Provider) { p.rate = rate } }

// Provider is a [tts.Provider] for one Coqui server.
type Provider struct {
	base     string
	language string
	mode     APIMode
	rate     int
	client   *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New returns a Provider for the server at baseURL, e.g.
// "http://localhost:5002".
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("coqui: server url is required")
	}
	p := &Provider{
		base:     strings.TrimRight(baseURL, "/"),
		language: "en",
		mode:     APIModeStandard,
		rate:     defaultSampleRate,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.mode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.mode)
	}
	return p, nil
}

func (p *Provider) Format() audio.Format { return audio.Format{SampleRate: p.rate, Channels: 1} }

// ttsRequest is the XTTS request body.
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize fetches each sentence of text and streams the PCM in sentence
// order. The first failed sentence cancels the rest and closes the stream.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, tts.ErrEmptyText
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	slots := make([]chan []byte, len(sentences))
	for i := range slots {
		slots[i] = make(chan []byte, 1)
	}
	done := make(chan error, 1)
	go func() {
		for i, s := range sentences {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				pcm, err := p.fetch(gctx, s, voice)
				if err != nil {
					return fmt.Errorf("sentence %d of %d: %w", i+1, len(sentences), err)
				}
				slots[i] <- pcm
				return nil
			})
		}
		done <- g.Wait()
	}()

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for _, slot := range slots {
			var pcm []byte
			select {
			case pcm = <-slot:
			case <-gctx.Done():
				// Also closed after every fetch succeeded.
				if err := <-done; err != nil {
					if ctx.Err() == nil {
						slog.Warn("coqui: synthesis failed", "err", err)
					}
					return
				}
				done <- nil
				pcm = <-slot
			}
			for chunk := range slices.Chunk(pcm, chunkBytes) {
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// fetch synthesises one sentence and converts it to the provider format.
func (p *Provider) fetch(ctx context.Context, sentence string, voice tts.Voice) ([]byte, error) {
	req, err := p.newSynthRequest(ctx, sentence, voice)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read wav: %w", err)
	}
	pcm, f, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	return audio.ConvertPCM(pcm, f, p.Format()), nil
}

func (p *Provider) newSynthRequest(ctx context.Context, sentence string, voice tts.Voice) (*http.Request, error) {
	if p.mode == APIModeXTTS {
		body, err := json.Marshal(ttsRequest{Text: sentence, SpeakerWav: voice.ID, Language: p.language})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+ttsEndpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	q := url.Values{"text": {sentence}}
	if voice.ID != "" {
		q.Set("speaker_id", voice.ID)
	}
	if p.language != "" {
		q.Set("language_id", p.language)
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, p.base+apiTTSEndpoint+"?"+q.Encode(), nil)
}

// ListVoices lists the server's speakers, sorted by id. A standard server
// with a single-speaker model reports one voice named after the model.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	if p.mode == APIModeXTTS {
		var speakers map[string]json.RawMessage
		if err := p.getJSON(ctx, studioSpeakersEndpoint, &speakers); err != nil {
			return nil, err
		}
		return voices(slices.Sorted(maps.Keys(speakers)), map[string]string{"type": "studio"}), nil
	}

	var d struct {
		ModelName string   `json:"model_name"`
		Speakers  []string `json:"speakers"`
	}
	if err := p.getJSON(ctx, detailsEndpoint, &d); err != nil {
		return nil, err
	}
	if len(d.Speakers) == 0 {
		name := cmp.Or(d.ModelName, "default")
		return voices([]string{name}, map[string]string{"type": "single-speaker", "model_name": name}), nil
	}
	return voices(slices.Sorted(slices.Values(d.Speakers)), map[string]string{"type": "speaker", "model_name": d.ModelName}), nil
}

func voices(ids []string, meta map[string]string) []tts.Voice {
	out := make([]tts.Voice, len(ids))
	for i, id := range ids {
		out[i] = tts.Voice{ID: id, Name: id, Provider: "coqui", Metadata: maps.Clone(meta)}
	}
	return out
}

func (p *Provider) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+path, nil)
	if err != nil {
		return fmt.Errorf("coqui: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", path, err)
	}
	return nil
}

// splitSentences cuts text after '.', '!' or '?' when followed by
// whitespace or the end, so "3.14" stays whole.
func splitSentences(text string) []string {
	var out []string
	start := -1
	runes := []rune(text)
	for i, r := range runes {
		if start < 0 {
			if unicode.IsSpace(r) {
				continue
			}
			start = i
		}
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			out = append(out, string(runes[start:i+1]))
			start = -1
		}
	}
	if start >= 0 {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}
