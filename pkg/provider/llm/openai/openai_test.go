package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/intervox/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	for _, role := range []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		t.Run(role, func(t *testing.T) {
			p, err := convertMessage(llm.Message{Role: role, Content: "x"})
			if err != nil {
				t.Fatalf("convertMessage: %v", err)
			}
			switch role {
			case llm.RoleSystem:
				if p.OfSystem == nil {
					t.Error("OfSystem not set")
				}
			case llm.RoleUser:
				if p.OfUser == nil {
					t.Error("OfUser not set")
				}
			case llm.RoleAssistant:
				if p.OfAssistant == nil {
					t.Error("OfAssistant not set")
				}
			}
		})
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("missing key: error = nil")
	}
	if _, err := New("sk", ""); err == nil {
		t.Error("missing model: error = nil")
	}
}

func TestComplete(t *testing.T) {
	var got struct {
		Model               string  `json:"model"`
		Temperature         float64 `json:"temperature"`
		MaxCompletionTokens int     `json:"max_completion_tokens"`
		Messages            []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Tell me about a project you led."}}],
			"usage": {"prompt_tokens": 40, "completion_tokens": 8, "total_tokens": 48}
		}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "You are an interviewer.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
		Temperature:  0.7,
		MaxTokens:    200,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Tell me about a project you led." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Truncated {
		t.Error("Truncated = true for finish_reason stop")
	}
	if resp.Usage.TotalTokens != 48 {
		t.Errorf("TotalTokens = %d, want 48", resp.Usage.TotalTokens)
	}
	if got.Model != "gpt-4o-mini" || got.Temperature != 0.7 || got.MaxCompletionTokens != 200 {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "Hi" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestComplete_NoMessages(t *testing.T) {
	p, _ := New("sk-test", "gpt-4o-mini", WithBaseURL("http://127.0.0.1:1/"))
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Fatal("error = nil, want error for an empty request")
	}
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	p, _ := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/"))
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
	}); err == nil {
		t.Fatal("error = nil, want error")
	}
}
