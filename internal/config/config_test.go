package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/endpoint"
	"github.com/MrWong99/intervox/pkg/audio"
	audiomock "github.com/MrWong99/intervox/pkg/audio/mock"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	llmmock "github.com/MrWong99/intervox/pkg/provider/llm/mock"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	sttmock "github.com/MrWong99/intervox/pkg/provider/stt/mock"
	"github.com/MrWong99/intervox/pkg/provider/tts"
	ttsmock "github.com/MrWong99/intervox/pkg/provider/tts/mock"
	"github.com/MrWong99/intervox/pkg/provider/vad"
	vadmock "github.com/MrWong99/intervox/pkg/provider/vad/mock"
)

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

session:
  default_type: behavioral
  default_duration: 10m
  settle_delay: 750ms

endpointing:
  sound_threshold: 0.02
  silence_window: 2500ms

playback:
  voice: en-US-AriaNeural

dialogue:
  url: http://localhost:8000/api/interview/chat/

transcription:
  url: http://localhost:8000/api/interview/stt/

providers:
  llm:
    name: mistral
    api_key: ${INTERVOX_TEST_KEY}
    model: mistral-small-latest
  llm_fallbacks:
    - name: openai
      model: gpt-4o-mini
  stt:
    name: groq
    model: whisper-large-v3
  tts:
    name: edge

backend:
  history:
    store: redis
    redis_addr: localhost:6379
    ttl: 2h
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Setenv("INTERVOX_TEST_KEY", "sk-from-env")

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Session.DefaultType != "behavioral" || cfg.Session.DefaultDuration != 10*time.Minute {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Session.SettleDelay != 750*time.Millisecond {
		t.Errorf("session.settle_delay = %v, want 750ms", cfg.Session.SettleDelay)
	}
	if cfg.Dialogue.Mode != config.DialogueHTTP {
		t.Errorf("dialogue.mode = %q, want http (inferred from url)", cfg.Dialogue.Mode)
	}
	if cfg.Providers.LLM.APIKey != "sk-from-env" {
		t.Errorf("providers.llm.api_key = %q, want expanded env value", cfg.Providers.LLM.APIKey)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "openai" {
		t.Errorf("providers.llm_fallbacks = %+v", cfg.Providers.LLMFallbacks)
	}
	if cfg.Backend.History.Store != config.HistoryRedis || cfg.Backend.History.TTL != 2*time.Hour {
		t.Errorf("backend.history = %+v", cfg.Backend.History)
	}

	p := cfg.Endpointing.Params()
	want := endpoint.DefaultParams()
	want.SoundThreshold = 0.02
	want.SilenceWindow = 2500 * time.Millisecond
	if p != want {
		t.Errorf("Params() = %+v, want %+v", p, want)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"server.listen_addr", cfg.Server.ListenAddr, config.DefaultListenAddr},
		{"server.log_level", cfg.Server.LogLevel, config.LogInfo},
		{"session.default_type", cfg.Session.DefaultType, "technical"},
		{"session.default_duration", cfg.Session.DefaultDuration, 15 * time.Minute},
		{"session.settle_delay", cfg.Session.SettleDelay, 500 * time.Millisecond},
		{"dialogue.mode", cfg.Dialogue.Mode, config.DialogueLocal},
		{"dialogue.timeout", cfg.Dialogue.Timeout, 30 * time.Second},
		{"transcription.language", cfg.Transcription.Language, "en"},
		{"providers.vad.name", cfg.Providers.VAD.Name, "energy"},
		{"providers.audio.name", cfg.Providers.Audio.Name, "malgo"},
		{"backend.listen_addr", cfg.Backend.ListenAddr, ":8000"},
		{"backend.history_window", cfg.Backend.HistoryWindow, 10},
		{"backend.temperature", cfg.Backend.Temperature, 0.7},
		{"backend.max_tokens", cfg.Backend.MaxTokens, 200},
		{"backend.history.store", cfg.Backend.History.Store, config.HistoryMemory},
		{"telemetry.metrics_path", cfg.Telemetry.MetricsPath, "/metrics"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if cfg.Endpointing.Params() != endpoint.DefaultParams() {
		t.Errorf("Params() = %+v, want defaults", cfg.Endpointing.Params())
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("npcs: []\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nope"}

	tests := []struct {
		kind string
		err  error
	}{
		{"llm", second(reg.CreateLLM(entry))},
		{"stt", second(reg.CreateSTT(entry))},
		{"tts", second(reg.CreateTTS(entry))},
		{"vad", second(reg.CreateVAD(entry))},
		{"audio", second(reg.CreateAudio(entry))},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, config.ErrProviderNotRegistered) {
			t.Errorf("%s: err = %v, want ErrProviderNotRegistered", tt.kind, tt.err)
		}
		if tt.err != nil && !strings.Contains(tt.err.Error(), tt.kind+"/") {
			t.Errorf("%s: error %q should name the kind", tt.kind, tt.err)
		}
	}
}

func second[T any](_ T, err error) error { return err }

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	wantLLM := &llmmock.Provider{}
	wantSTT := &sttmock.Provider{}
	wantTTS := &ttsmock.Provider{}
	wantVAD := &vadmock.Engine{}
	wantAudio := &audiomock.Platform{}
	var gotEntry config.ProviderEntry

	reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return wantLLM, nil
	})
	reg.RegisterSTT("stub", func(config.ProviderEntry) (stt.Provider, error) { return wantSTT, nil })
	reg.RegisterTTS("stub", func(config.ProviderEntry) (tts.Provider, error) { return wantTTS, nil })
	reg.RegisterVAD("stub", func(config.ProviderEntry) (vad.Engine, error) { return wantVAD, nil })
	reg.RegisterAudio("stub", func(config.ProviderEntry) (audio.Platform, error) { return wantAudio, nil })

	entry := config.ProviderEntry{Name: "stub", Model: "m1"}
	if got, err := reg.CreateLLM(entry); err != nil || got != wantLLM {
		t.Errorf("CreateLLM = %v, %v", got, err)
	}
	if gotEntry.Model != "m1" {
		t.Errorf("factory entry.Model = %q, want m1", gotEntry.Model)
	}
	if got, err := reg.CreateSTT(entry); err != nil || got != wantSTT {
		t.Errorf("CreateSTT = %v, %v", got, err)
	}
	if got, err := reg.CreateTTS(entry); err != nil || got != wantTTS {
		t.Errorf("CreateTTS = %v, %v", got, err)
	}
	if got, err := reg.CreateVAD(entry); err != nil || got != wantVAD {
		t.Errorf("CreateVAD = %v, %v", got, err)
	}
	if got, err := reg.CreateAudio(entry); err != nil || got != wantAudio {
		t.Errorf("CreateAudio = %v, %v", got, err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("no api key")
	reg.RegisterSTT("broken", func(config.ProviderEntry) (stt.Provider, error) { return nil, boom })

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestRegistry_Overwrite(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	first, second := &ttsmock.Provider{}, &ttsmock.Provider{}
	reg.RegisterTTS("edge", func(config.ProviderEntry) (tts.Provider, error) { return first, nil })
	reg.RegisterTTS("edge", func(config.ProviderEntry) (tts.Provider, error) { return second, nil })

	got, err := reg.CreateTTS(config.ProviderEntry{Name: "edge"})
	if err != nil || got != second {
		t.Errorf("CreateTTS = %v, %v, want the second registration", got, err)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterSTT("whisper", func(config.ProviderEntry) (stt.Provider, error) { return nil, nil })
	reg.RegisterSTT("deepgram", func(config.ProviderEntry) (stt.Provider, error) { return nil, nil })

	if got := strings.Join(reg.Names("stt"), ","); got != "deepgram,whisper" {
		t.Errorf("Names(stt) = %q, want deepgram,whisper", got)
	}
	if got := reg.Names("tts"); len(got) != 0 {
		t.Errorf("Names(tts) = %v, want none", got)
	}
	if got := reg.Names("image"); got != nil {
		t.Errorf("Names(image) = %v, want nil", got)
	}

	_, err := reg.CreateSTT(config.ProviderEntry{Name: "google"})
	if err == nil || !strings.Contains(err.Error(), "registered: deepgram, whisper") {
		t.Errorf("err = %v, want the registered names listed", err)
	}
}
