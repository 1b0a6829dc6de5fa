package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/intervox/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "server:\n  log_level: loud\n", "server.log_level"},
		{"tls half", "server:\n  tls:\n    cert_file: a.pem\n", "server.tls"},
		{"interview type", "session:\n  default_type: sales\n", "session.default_type"},
		{"negative settle", "session:\n  settle_delay: -1s\n", "session.settle_delay"},
		{"threshold", "endpointing:\n  sound_threshold: 1.5\n", "endpointing"},
		{"dialogue mode", "dialogue:\n  mode: carrier-pigeon\n", "dialogue.mode"},
		{"dialogue url", "dialogue:\n  mode: http\n", "dialogue.url"},
		{"fallback name", "providers:\n  stt:\n    name: whisper\n  stt_fallbacks:\n    - model: x\n", "stt_fallbacks[0].name"},
		{"fallback primary", "providers:\n  tts_fallbacks:\n    - name: edge\n", "requires providers.tts"},
		{"temperature", "backend:\n  temperature: 3\n", "backend.temperature"},
		{"history store", "backend:\n  history:\n    store: sqlite\n", "backend.history.store"},
		{"postgres dsn", "backend:\n  history:\n    store: postgres\n", "postgres_dsn"},
		{"redis addr", "backend:\n  history:\n    store: redis\n", "redis_addr"},
		{"sample ratio", "telemetry:\n  trace_sample_ratio: 1.5\n", "trace_sample_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
dialogue:
  mode: http
backend:
  max_tokens: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"server.log_level", "dialogue.url", "backend.max_tokens"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_LocalDialogueIsValid(t *testing.T) {
	t.Parallel()
	yaml := `
dialogue:
  mode: local
providers:
  llm:
    name: mistral
  stt:
    name: whisper
    base_url: http://localhost:8080
backend:
  history:
    store: postgres
    postgres_dsn: postgres://localhost/intervox
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Dialogue.Mode != config.DialogueLocal {
		t.Errorf("dialogue.mode = %q, want local", cfg.Dialogue.Mode)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"llm", "stt", "tts", "vad", "audio"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
}
