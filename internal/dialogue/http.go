package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MrWong99/intervox/internal/remote"
)

// HTTP is a [Service] posting JSON to the interview backend's chat endpoint.
type HTTP struct {
	endpoint string
	client   *http.Client
}

var _ Service = (*HTTP)(nil)

// NewHTTP returns a service posting to endpoint
// (e.g. "http://localhost:8000/api/interview/chat/"). A nil client uses a
// client with a 30 s timeout.
func NewHTTP(endpoint string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTP{endpoint: endpoint, client: client}
}

type chatRequest struct {
	SessionID     string  `json:"sessionId"`
	Message       string  `json:"message"`
	InterviewType string  `json:"interviewType"`
	Duration      float64 `json:"duration"`
}

type chatResponse struct {
	AIResponse *string `json:"ai_response"`
	AudioURL   string  `json:"audio_url"`
}

// Next implements [Service]. Duration is sent in minutes.
func (h *HTTP) Next(ctx context.Context, req Request) (Reply, error) {
	body, err := json.Marshal(chatRequest{
		SessionID:     req.SessionID,
		Message:       req.Message,
		InterviewType: string(req.InterviewType),
		Duration:      req.Duration.Minutes(),
	})
	if err != nil {
		return Reply{}, fmt.Errorf("dialogue: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("dialogue: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	raw, err := remote.Do(h.client, op, httpReq)
	if err != nil {
		return Reply{}, err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Reply{}, &remote.ServerError{Op: op, Body: "invalid JSON: " + err.Error()}
	}
	if resp.AIResponse == nil {
		return Reply{}, &remote.ServerError{Op: op, Body: "response has no ai_response field"}
	}
	return Reply{Text: *resp.AIResponse, AudioURL: resp.AudioURL}, nil
}
