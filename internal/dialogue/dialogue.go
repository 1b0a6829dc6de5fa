// Package dialogue asks the interview service for the interviewer's next
// line.
//
// [Client] wraps a [Service] with tracing, metrics and the [remote] error
// taxonomy. Two services are provided: [HTTP] talks to a remote backend and
// [Local] calls the reference interviewer in process.
package dialogue

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/remote"
	"github.com/MrWong99/intervox/internal/session"
)

const op = "dialogue"

// Request is one dialogue exchange. An empty Message asks for the opening
// line of the interview.
type Request struct {
	SessionID     string
	Message       string
	InterviewType session.InterviewType
	Duration      time.Duration
}

// Reply is the interviewer's answer.
type Reply struct {
	Text string
	// AudioURL, when set, points at pre-rendered speech for Text.
	AudioURL string
}

// Service produces replies.
type Service interface {
	Next(ctx context.Context, req Request) (Reply, error)
}

// Client is the dialogue client used by the turn controller.
type Client struct {
	svc     Service
	name    string
	metrics *observe.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithName sets the service label used in metrics.
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithMetrics records dialogue latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New returns a Client over svc.
func New(svc Service, opts ...Option) *Client {
	c := &Client{svc: svc, name: "dialogue"}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Next returns the reply to req. Failures are a [*remote.NetworkError], a
// [*remote.ServerError] or [remote.ErrEmptyResult] when the reply text is
// blank.
func (c *Client) Next(ctx context.Context, req Request) (Reply, error) {
	ctx, span := observe.StartSpan(observe.WithSessionID(ctx, req.SessionID), "dialogue")
	defer span.End()
	span.SetAttributes(
		attribute.String("interview_type", string(req.InterviewType)),
		attribute.Bool("opening", req.Message == ""),
	)

	start := time.Now()
	reply, err := c.svc.Next(ctx, req)
	elapsed := time.Since(start)
	if err == nil && strings.TrimSpace(reply.Text) == "" {
		err = remote.ErrEmptyResult
	}

	if err != nil {
		err = remote.Wrap(op, err)
		kind := remote.Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		if c.metrics != nil && kind != remote.KindCanceled {
			c.metrics.RecordProviderRequest(ctx, c.name, "dialogue", "error")
			c.metrics.RecordProviderError(ctx, c.name, "dialogue")
		}
		return Reply{}, err
	}

	if c.metrics != nil {
		c.metrics.RecordProviderRequest(ctx, c.name, "dialogue", "ok")
		observe.Observe(ctx, c.metrics.DialogueDuration, elapsed, attribute.String("provider", c.name))
	}
	reply.Text = strings.TrimSpace(reply.Text)
	observe.Logger(ctx).Debug("dialogue reply",
		"chars", len(reply.Text), "audio_url", reply.AudioURL != "", "elapsed", elapsed)
	return reply, nil
}
