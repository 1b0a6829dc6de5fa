package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/intervox/internal/session"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"openai", "mistral", "anthropic", "ollama", "gemini", "deepseek", "groq", "llamacpp", "llamafile"},
	"stt":   {"whisper", "whisper-native", "openai", "groq", "deepgram"},
	"tts":   {"edge", "elevenlabs", "coqui"},
	"vad":   {"energy"},
	"audio": {"malgo"},
}

// Default values filled in by [LoadFromReader] for omitted fields.
const (
	DefaultListenAddr        = ":8080"
	DefaultBackendListenAddr = ":8000"
	DefaultDuration          = 15 * time.Minute
	DefaultSettleDelay       = 500 * time.Millisecond
	DefaultRequestTimeout    = 30 * time.Second
	DefaultLanguage          = "en"
	DefaultHistoryWindow     = 10
	DefaultTemperature       = 0.7
	DefaultMaxTokens         = 200
	DefaultHistoryTTL        = 24 * time.Hour
	DefaultMetricsPath       = "/metrics"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// from the environment, fills in defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	if len(raw) > 0 {
		dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, DefaultListenAddr)
	setDefault(&cfg.Server.LogLevel, LogInfo)
	setDefault(&cfg.Session.DefaultType, string(session.Technical))
	setDefault(&cfg.Session.DefaultDuration, DefaultDuration)
	setDefault(&cfg.Session.SettleDelay, DefaultSettleDelay)
	setDefault(&cfg.Playback.FetchTimeout, DefaultRequestTimeout)
	if cfg.Dialogue.Mode == "" {
		cfg.Dialogue.Mode = DialogueLocal
		if cfg.Dialogue.URL != "" {
			cfg.Dialogue.Mode = DialogueHTTP
		}
	}
	setDefault(&cfg.Dialogue.Timeout, DefaultRequestTimeout)
	setDefault(&cfg.Transcription.Language, DefaultLanguage)
	setDefault(&cfg.Transcription.Timeout, DefaultRequestTimeout)
	setDefault(&cfg.Providers.VAD.Name, "energy")
	setDefault(&cfg.Providers.Audio.Name, "malgo")
	setDefault(&cfg.Backend.ListenAddr, DefaultBackendListenAddr)
	setDefault(&cfg.Backend.HistoryWindow, DefaultHistoryWindow)
	setDefault(&cfg.Backend.Temperature, DefaultTemperature)
	setDefault(&cfg.Backend.MaxTokens, DefaultMaxTokens)
	setDefault(&cfg.Backend.History.Store, HistoryMemory)
	setDefault(&cfg.Backend.History.TTL, DefaultHistoryTTL)
	setDefault(&cfg.Telemetry.ServiceName, "intervox")
	setDefault(&cfg.Telemetry.MetricsPath, DefaultMetricsPath)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Session
	if cfg.Session.DefaultType != "" {
		if _, err := session.ParseInterviewType(cfg.Session.DefaultType); err != nil {
			errs = append(errs, fmt.Errorf("session.default_type: %w", err))
		}
	}
	if cfg.Session.DefaultDuration < 0 {
		errs = append(errs, fmt.Errorf("session.default_duration %v must be positive", cfg.Session.DefaultDuration))
	}
	if cfg.Session.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("session.settle_delay %v must not be negative", cfg.Session.SettleDelay))
	} else if cfg.Session.SettleDelay > 0 && cfg.Session.SettleDelay < DefaultSettleDelay {
		slog.Warn("session.settle_delay below the minimum; 500ms will be used", "settle_delay", cfg.Session.SettleDelay)
	}

	// Endpointing
	if err := cfg.Endpointing.Params().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("endpointing: %w", err))
	}

	// Dialogue
	if cfg.Dialogue.Mode != "" && !cfg.Dialogue.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("dialogue.mode %q is invalid; valid values: http, local", cfg.Dialogue.Mode))
	}
	if cfg.Dialogue.Mode == DialogueHTTP && cfg.Dialogue.URL == "" {
		errs = append(errs, errors.New("dialogue.url is required when dialogue.mode is http"))
	}
	if cfg.Dialogue.Mode == DialogueLocal && cfg.Providers.LLM.Name == "" {
		slog.Warn("dialogue.mode is local but providers.llm is not configured; the engine cannot start sessions")
	}

	// Transcription
	if cfg.Transcription.URL == "" && cfg.Providers.STT.Name == "" {
		slog.Warn("neither transcription.url nor providers.stt is configured; spoken answers cannot be transcribed")
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)
	for kind, list := range map[string][]ProviderEntry{
		"llm": cfg.Providers.LLMFallbacks,
		"stt": cfg.Providers.STTFallbacks,
		"tts": cfg.Providers.TTSFallbacks,
	} {
		for i, e := range list {
			if e.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s_fallbacks[%d].name is required", kind, i))
				continue
			}
			validateProviderName(kind, e.Name)
		}
		if len(list) > 0 && cfg.Providers.entry(kind).Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s_fallbacks requires providers.%s", kind, kind))
		}
	}

	// Backend
	b := cfg.Backend
	if b.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("backend.history_window %d must not be negative", b.HistoryWindow))
	}
	if b.Temperature < 0 || b.Temperature > 2 {
		errs = append(errs, fmt.Errorf("backend.temperature %.2f is out of range [0, 2]", b.Temperature))
	}
	if b.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("backend.max_tokens %d must not be negative", b.MaxTokens))
	}
	if b.History.Store != "" && !b.History.Store.IsValid() {
		errs = append(errs, fmt.Errorf("backend.history.store %q is invalid; valid values: memory, postgres, redis", b.History.Store))
	}
	if b.History.Store == HistoryPostgres && b.History.PostgresDSN == "" {
		errs = append(errs, errors.New("backend.history.postgres_dsn is required when the store is postgres"))
	}
	if b.History.Store == HistoryRedis && b.History.RedisAddr == "" {
		errs = append(errs, errors.New("backend.history.redis_addr is required when the store is redis"))
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	return errors.Join(errs...)
}

func (p ProvidersConfig) entry(kind string) ProviderEntry {
	switch kind {
	case "llm":
		return p.LLM
	case "stt":
		return p.STT
	case "tts":
		return p.TTS
	case "vad":
		return p.VAD
	case "audio":
		return p.Audio
	}
	return ProviderEntry{}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
