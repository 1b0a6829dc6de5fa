// Package elevenlabs synthesises interviewer replies through the ElevenLabs
// stream-input WebSocket API.
//
// A reply is sent as one complete utterance: the begin-of-input message
// carrying the key and voice settings, the text, and an empty flush
// message. Audio arrives as base64 PCM until the server marks it final.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_flash_v2_5"
	defaultFormat  = "pcm_16000"
)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the model id, e.g. "eleven_multilingual_v2".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat selects a raw PCM output format: pcm_16000, pcm_22050,
// pcm_24000 or pcm_44100.
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// WithBaseURL overrides the REST base URL; the WebSocket URL follows it.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the client for REST calls and the WebSocket dial.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithVoiceSettings overrides stability and similarity boost, both in
// [0, 1]. Defaults: 0.5 and 0.75.
func WithVoiceSettings(stability, similarity float64) Option {
	return func(p *Provider) { p.stability, p.similarity = stability, similarity }
}

// Provider is a [tts.Provider] for one ElevenLabs account.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	baseURL      string
	httpClient   *http.Client
	stability    float64
	similarity   float64
	format       audio.Format
}

var _ tts.Provider = (*Provider)(nil)

// New returns a Provider. apiKey is required.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: api key is required")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultFormat,
		baseURL:      defaultBaseURL,
		httpClient:   http.DefaultClient,
		stability:    0.5,
		similarity:   0.75,
	}
	for _, o := range opts {
		o(p)
	}
	f, err := parseOutputFormat(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.format = f
	return p, nil
}

// Format is mono PCM at the output format's rate.
func (p *Provider) Format() audio.Format { return p.format }

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// inputMessage is every client frame; only the first carries the key and
// settings.
type inputMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	APIKey        string         `json:"xi_api_key,omitempty"`
}

type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// Synthesize streams text in voice. The channel closes when the server
// marks the audio final, the connection drops, or ctx ends.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice id is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, tts.ErrEmptyText
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice.ID), &websocket.DialOptions{HTTPClient: p.httpClient})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	settings := &voiceSettings{Stability: p.stability, SimilarityBoost: p.similarity}
	if voice.SpeedFactor > 0 && voice.SpeedFactor != 1 {
		settings.Speed = voice.SpeedFactor
	}
	// The opening frame must hold non-empty text; a trailing space ends the
	// last chunk.
	for _, m := range []inputMessage{
		{Text: " ", VoiceSettings: settings, APIKey: p.apiKey},
		{Text: text + " "},
		{},
	} {
		if err := wsjson.Write(ctx, conn, m); err != nil {
			conn.Close(websocket.StatusInternalError, "send failed")
			return nil, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	ch := make(chan []byte, 256)
	go p.receive(ctx, conn, ch)
	return ch, nil
}

func (p *Provider) receive(ctx context.Context, conn *websocket.Conn, ch chan<- []byte) {
	defer close(ch)
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var resp audioResponse
		if err := wsjson.Read(ctx, conn, &resp); err != nil {
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				continue
			}
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				slog.Warn("elevenlabs: stream ended early", "err", err)
			}
			return
		}
		if resp.Audio == "" && resp.Message != "" && !resp.IsFinal {
			slog.Warn("elevenlabs: server message", "message", resp.Message)
		}
		if resp.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err == nil {
				select {
				case ch <- pcm:
				case <-ctx.Done():
					return
				}
			}
		}
		if resp.IsFinal {
			return
		}
	}
}

type voicesResponse struct {
	Voices []struct {
		VoiceID  string            `json:"voice_id"`
		Name     string            `json:"name"`
		Category string            `json:"category"`
		Labels   map[string]string `json:"labels"`
	} `json:"voices"`
}

// ListVoices returns the voices the account can use. Labels and the
// category end up in Metadata.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: status %d", resp.StatusCode)
	}
	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	return vr.voices(), nil
}

func parseVoicesResponse(data []byte) ([]tts.Voice, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	return vr.voices(), nil
}

func (vr voicesResponse) voices() []tts.Voice {
	out := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		out = append(out, tts.Voice{ID: v.VoiceID, Name: v.Name, Provider: "elevenlabs", Metadata: meta})
	}
	return out
}

func (p *Provider) streamURL(voiceID string) string {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		u = &url.URL{Scheme: "wss", Host: "api.elevenlabs.io"}
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u = u.JoinPath("v1", "text-to-speech", voiceID, "stream-input")
	u.RawQuery = url.Values{"model_id": {p.model}, "output_format": {p.outputFormat}}.Encode()
	return u.String()
}

// parseOutputFormat maps "pcm_<rate>" to mono 16-bit PCM.
func parseOutputFormat(s string) (audio.Format, error) {
	rate, ok := strings.CutPrefix(s, "pcm_")
	if !ok {
		return audio.Format{}, fmt.Errorf("elevenlabs: output format %q is not pcm_<rate>", s)
	}
	n, err := strconv.Atoi(rate)
	if err != nil || n <= 0 {
		return audio.Format{}, fmt.Errorf("elevenlabs: bad sample rate in output format %q", s)
	}
	return audio.Format{SampleRate: n, Channels: 1}, nil
}
