// Package observe holds the engine's telemetry: OpenTelemetry instruments
// exported to Prometheus, tracing helpers, context-aware slog loggers and
// the HTTP middleware tying them to every request.
//
// Production code records on [DefaultMetrics], which binds to the global
// meter provider set up by [InitProvider]. Tests build their own with
// [NewMetrics] over an SDK provider and a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/intervox"

// latencyBuckets are in seconds; dialogue and TTS round trips sit between
// a few hundred milliseconds and several seconds.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30}

// Metrics are the engine's instruments. Attribute sets are noted per field.
type Metrics struct {
	TurnDuration     metric.Float64Histogram // end of candidate turn to reply audio
	STTDuration      metric.Float64Histogram // provider
	DialogueDuration metric.Float64Histogram
	LLMDuration      metric.Float64Histogram // provider
	TTSDuration      metric.Float64Histogram // time to first audio

	ModeTransitions    metric.Int64Counter // from, to
	Turns              metric.Int64Counter // outcome
	SessionsCompleted  metric.Int64Counter // reason
	ProviderRequests   metric.Int64Counter // provider, kind, status
	ProviderErrors     metric.Int64Counter // provider, kind
	BreakerTransitions metric.Int64Counter // provider, from, to

	ActiveSessions metric.Int64UpDownCounter

	HTTPRequestDuration metric.Float64Histogram // method, route, status
}

// NewMetrics registers every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}

	latency := func(name, desc string) (metric.Float64Histogram, error) {
		return meter.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...))
	}
	for _, h := range []struct {
		dst        *metric.Float64Histogram
		name, desc string
	}{
		{&m.TurnDuration, "intervox.turn.duration", "Time from the end of a candidate turn to the start of the reply."},
		{&m.STTDuration, "intervox.stt.duration", "Speech-to-text latency."},
		{&m.DialogueDuration, "intervox.dialogue.duration", "Dialogue service round trip."},
		{&m.LLMDuration, "intervox.llm.duration", "Language model completion latency."},
		{&m.TTSDuration, "intervox.tts.duration", "Time to first synthesised audio."},
	} {
		var err error
		if *h.dst, err = latency(h.name, h.desc); err != nil {
			return nil, err
		}
	}

	for _, c := range []struct {
		dst        *metric.Int64Counter
		name, desc string
	}{
		{&m.ModeTransitions, "intervox.mode.transitions", "Turn controller mode changes."},
		{&m.Turns, "intervox.turns", "Finished candidate turns by outcome."},
		{&m.SessionsCompleted, "intervox.sessions.completed", "Completed interviews by end reason."},
		{&m.ProviderRequests, "intervox.provider.requests", "Provider calls by provider, kind and status."},
		{&m.ProviderErrors, "intervox.provider.errors", "Failed provider calls by provider and kind."},
		{&m.BreakerTransitions, "intervox.provider.breaker.transitions", "Provider circuit breaker state changes."},
	} {
		var err error
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	var err error
	if m.ActiveSessions, err = meter.Int64UpDownCounter("intervox.active_sessions",
		metric.WithDescription("Interviews currently running.")); err != nil {
		return nil, err
	}
	if m.HTTPRequestDuration, err = meter.Float64Histogram("intervox.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

var defaultMetrics = sync.OnceValue(func() *Metrics {
	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		panic("observe: default metrics: " + err.Error())
	}
	return m
})

// DefaultMetrics returns the process-wide instruments, created on first use
// against the global meter provider. Call it after [InitProvider].
func DefaultMetrics() *Metrics { return defaultMetrics() }

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue { return attribute.String(key, value) }

func inc(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	inc(ctx, m.ProviderRequests, Attr("provider", provider), Attr("kind", kind), Attr("status", status))
}

func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	inc(ctx, m.ProviderErrors, Attr("provider", provider), Attr("kind", kind))
}

func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, from, to string) {
	inc(ctx, m.BreakerTransitions, Attr("provider", provider), Attr("from", from), Attr("to", to))
}

func (m *Metrics) RecordModeTransition(ctx context.Context, from, to string) {
	inc(ctx, m.ModeTransitions, Attr("from", from), Attr("to", to))
}

// RecordTurn counts a finished turn: answered, abandoned, empty, failed or
// typed.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	inc(ctx, m.Turns, Attr("outcome", outcome))
}

// RecordSessionEnd counts a completed interview and drops it from
// ActiveSessions.
func (m *Metrics) RecordSessionEnd(ctx context.Context, reason string) {
	inc(ctx, m.SessionsCompleted, Attr("reason", reason))
	m.ActiveSessions.Add(ctx, -1)
}

// Observe records d on h in seconds.
func Observe(ctx context.Context, h metric.Float64Histogram, d time.Duration, attrs ...attribute.KeyValue) {
	h.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}
