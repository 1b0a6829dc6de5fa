// Package deepgram provides an stt.Provider backed by Deepgram's pre-recorded
// transcription API (POST /v1/listen with a WAV body).
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

const (
	defaultBaseURL  = "https://api.deepgram.com"
	defaultModel    = "nova-3"
	defaultLanguage = "en"
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language code (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithKeyterms boosts recognition of domain vocabulary such as technology
// names the candidate is likely to mention.
func WithKeyterms(terms ...string) Option {
	return func(p *Provider) {
		p.keyterms = append(p.keyterms, terms...)
	}
}

// WithBaseURL overrides the API endpoint. Used by tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// Provider implements stt.Provider against Deepgram.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	keyterms   []string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if req.Audio.Empty() {
		return stt.Transcript{}, stt.ErrNoAudio
	}
	start := time.Now()
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.buildURL(lang), bytes.NewReader(req.Audio.WAV()))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+p.apiKey)
	httpReq.Header.Set("Content-Type", "audio/wav")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return stt.Transcript{}, &stt.HTTPError{Provider: "deepgram", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	text, detected, err := parseResponse(data)
	if err != nil {
		return stt.Transcript{}, err
	}
	if detected == "" {
		detected = lang
	}
	return stt.Transcript{Text: text, Language: detected, Elapsed: time.Since(start)}, nil
}

// buildURL constructs the listen endpoint with query parameters.
func (p *Provider) buildURL(lang string) string {
	q := url.Values{}
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	for _, kt := range p.keyterms {
		q.Add("keyterm", kt)
	}
	return p.baseURL + "/v1/listen?" + q.Encode()
}

// listenResponse is the subset of the pre-recorded response we read.
type listenResponse struct {
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// parseResponse returns the best transcript of the first channel.
func parseResponse(data []byte) (text, language string, err error) {
	var r listenResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return "", "", fmt.Errorf("deepgram: parse response: %w", err)
	}
	if len(r.Results.Channels) == 0 {
		return "", "", nil
	}
	ch := r.Results.Channels[0]
	if len(ch.Alternatives) == 0 {
		return "", ch.DetectedLanguage, nil
	}
	return strings.TrimSpace(ch.Alternatives[0].Transcript), ch.DetectedLanguage, nil
}
