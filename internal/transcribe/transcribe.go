// Package transcribe turns a recorded candidate turn into text.
//
// [Client] wraps any [stt.Provider] and maps its failures onto the
// [remote] taxonomy the turn controller understands. [HTTPProvider] speaks
// the interview backend's own transcription endpoint.
package transcribe

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/remote"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/stt"
)

const op = "transcribe"

// Client transcribes segments through a provider.
type Client struct {
	provider stt.Provider
	name     string
	language string
	metrics  *observe.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithLanguage sets the language hint passed to the provider.
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// WithProviderName sets the provider label used in metrics and logs.
func WithProviderName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithMetrics records stt latency and provider counters on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New returns a Client using p.
func New(p stt.Provider, opts ...Option) *Client {
	c := &Client{provider: p, name: "stt"}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Transcribe returns the trimmed text spoken in seg. It returns an error
// wrapping [remote.ErrEmptyResult] when the segment holds no audio or the
// provider recognised nothing, and a [*remote.NetworkError] or
// [*remote.ServerError] when the request failed.
func (c *Client) Transcribe(ctx context.Context, sessionID string, seg audio.Segment) (string, error) {
	if seg.Empty() {
		return "", remote.ErrEmptyResult
	}

	ctx, span := observe.StartSpan(observe.WithSessionID(ctx, sessionID), "transcribe")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", c.name),
		attribute.Float64("audio_seconds", seg.Duration().Seconds()),
	)

	start := time.Now()
	tr, err := c.provider.Transcribe(ctx, stt.Request{Audio: seg, SessionID: sessionID, Language: c.language})
	elapsed := time.Since(start)

	if err != nil {
		err = remote.Wrap(op, err)
		kind := remote.Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		if c.metrics != nil && kind != remote.KindCanceled {
			c.metrics.RecordProviderRequest(ctx, c.name, "stt", "error")
			c.metrics.RecordProviderError(ctx, c.name, "stt")
		}
		return "", err
	}
	if c.metrics != nil {
		c.metrics.RecordProviderRequest(ctx, c.name, "stt", "ok")
		observe.Observe(ctx, c.metrics.STTDuration, elapsed, attribute.String("provider", c.name))
	}

	text := strings.TrimSpace(tr.Text)
	observe.Logger(ctx).Debug("transcribed turn",
		"chars", len(text), "elapsed", elapsed)
	if text == "" {
		return "", remote.ErrEmptyResult
	}
	return text, nil
}
