// Package backend is the reference dialogue and transcription service the
// interview engine talks to.
//
// [Interviewer] produces the interviewer's next line from a per-type system
// prompt, a short window of stored history and the candidate's latest
// answer. [Server] exposes it, together with a speech-to-text provider, over
// the two JSON/multipart endpoints the engine's remote clients expect.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/session"
	"github.com/MrWong99/intervox/pkg/memory"
	"github.com/MrWong99/intervox/pkg/provider/llm"
)

// Defaults applied by [NewInterviewer].
const (
	DefaultHistoryWindow = 10
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 200
)

var (
	// ErrMissingSession is returned when a turn carries no session id.
	ErrMissingSession = errors.New("backend: session_id is required")

	// ErrModelUnavailable wraps failures of the language model.
	ErrModelUnavailable = errors.New("backend: language model unavailable")
)

// Turn is one request for the interviewer's next line.
type Turn struct {
	SessionID string
	// Message is the candidate's answer. Empty requests the opening line.
	Message  string
	Type     session.InterviewType
	Duration time.Duration
}

// Interviewer drives the language model for every session.
type Interviewer struct {
	model        llm.Provider
	history      memory.HistoryStore
	window       int
	temperature  float64
	maxTokens    int
	providerName string
	metrics      *observe.Metrics
}

// InterviewerOption configures an Interviewer.
type InterviewerOption func(*Interviewer)

// WithHistoryWindow sets how many stored messages are replayed to the model.
func WithHistoryWindow(n int) InterviewerOption {
	return func(iv *Interviewer) { iv.window = n }
}

// WithSampling overrides temperature and the completion token cap.
func WithSampling(temperature float64, maxTokens int) InterviewerOption {
	return func(iv *Interviewer) {
		iv.temperature = temperature
		iv.maxTokens = maxTokens
	}
}

// WithModelMetrics records llm latency on m, labelled with name.
func WithModelMetrics(name string, m *observe.Metrics) InterviewerOption {
	return func(iv *Interviewer) {
		iv.providerName = name
		iv.metrics = m
	}
}

// NewInterviewer returns an Interviewer. A nil history keeps the
// conversation in process memory.
func NewInterviewer(model llm.Provider, history memory.HistoryStore, opts ...InterviewerOption) *Interviewer {
	if history == nil {
		history = memory.NewMemStore()
	}
	iv := &Interviewer{
		model:        model,
		history:      history,
		window:       DefaultHistoryWindow,
		temperature:  DefaultTemperature,
		maxTokens:    DefaultMaxTokens,
		providerName: "llm",
	}
	for _, o := range opts {
		o(iv)
	}
	return iv
}

// Reply returns the interviewer's next line for t and records the exchange.
// The candidate's message is stored only when non-empty; the reply is always
// stored.
func (iv *Interviewer) Reply(ctx context.Context, t Turn) (string, error) {
	if strings.TrimSpace(t.SessionID) == "" {
		return "", ErrMissingSession
	}
	msg := strings.TrimSpace(t.Message)

	ctx, span := observe.StartSpan(observe.WithSessionID(ctx, t.SessionID), "backend.reply")
	defer span.End()
	span.SetAttributes(
		attribute.String("interview_type", string(t.Type)),
		attribute.Bool("opening", msg == ""),
	)

	past, err := iv.history.Recent(ctx, t.SessionID, iv.window)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("backend: load history: %w", err)
	}

	messages := make([]llm.Message, 0, len(past)+1)
	for _, m := range past {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	prompt := msg
	if prompt == "" {
		prompt = OpeningPrompt
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	start := time.Now()
	resp, err := iv.model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: SystemPrompt(t.Type, t.Duration),
		Messages:     messages,
		Temperature:  iv.temperature,
		MaxTokens:    iv.maxTokens,
	})
	if iv.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
			iv.metrics.RecordProviderError(ctx, iv.providerName, "llm")
		}
		iv.metrics.RecordProviderRequest(ctx, iv.providerName, "llm", status)
		observe.Observe(ctx, iv.metrics.LLMDuration, time.Since(start), attribute.String("provider", iv.providerName))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm failed")
		return "", fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	span.SetAttributes(attribute.Int("llm.total_tokens", resp.Usage.TotalTokens))
	if resp.Truncated {
		observe.Logger(ctx).Debug("interviewer reply hit the token limit", "max_tokens", iv.maxTokens)
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		reply = FallbackReply
	}

	record := make([]memory.Message, 0, 2)
	if msg != "" {
		record = append(record, memory.Message{Role: memory.RoleUser, Content: msg})
	}
	record = append(record, memory.Message{Role: memory.RoleAssistant, Content: reply})
	if err := iv.history.Append(ctx, t.SessionID, record...); err != nil {
		observe.Logger(ctx).Warn("failed to store interview history", "err", err)
	}
	return reply, nil
}
