// Package builtin registers the provider implementations that ship with
// Intervox and instantiates the ones a config selects, wrapping each slot in
// a failover group when fallbacks are configured.
//
// Both binaries use it; it lives outside internal/app so that the engine
// core does not link cgo back-ends (whisper.cpp, miniaudio) it never calls
// directly.
package builtin

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/intervox/internal/app"
	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/resilience"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/audio/malgo"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/intervox/pkg/provider/llm/openai"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/intervox/pkg/provider/stt/openai"
	"github.com/MrWong99/intervox/pkg/provider/stt/whisper"
	"github.com/MrWong99/intervox/pkg/provider/tts"
	"github.com/MrWong99/intervox/pkg/provider/tts/coqui"
	"github.com/MrWong99/intervox/pkg/provider/tts/edge"
	"github.com/MrWong99/intervox/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/intervox/pkg/provider/vad"
	"github.com/MrWong99/intervox/pkg/provider/vad/energy"
)

// groqBaseURL is Groq's OpenAI-compatible endpoint.
const groqBaseURL = "https://api.groq.com/openai/v1"

// Register wires all built-in provider factories into reg.
func Register(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// Everything except the plain OpenAI client goes through any-llm, which
	// shares the optional APIKey + BaseURL pattern.
	for _, name := range anyllm.Backends() {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && !anyllm.Local(name) {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n, ok := optNumber(entry.Options, "threads"); ok && n > 0 {
			opts = append(opts, whisper.WithThreads(uint(n)))
		}
		if prompt := optString(entry.Options, "initial_prompt"); prompt != "" {
			opts = append(opts, whisper.WithInitialPrompt(prompt))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	for _, name := range []string{"openai", "groq"} {
		reg.RegisterSTT(name, func(entry config.ProviderEntry) (stt.Provider, error) {
			var opts []oastt.Option
			switch {
			case entry.BaseURL != "":
				opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
			case name == "groq":
				opts = append(opts, oastt.WithBaseURL(groqBaseURL))
			}
			if lang := optString(entry.Options, "language"); lang != "" {
				opts = append(opts, oastt.WithLanguage(lang))
			}
			if d := optDuration(entry.Options, "timeout"); d > 0 {
				opts = append(opts, oastt.WithTimeout(d))
			}
			model := entry.Model
			if model == "" {
				model = "whisper-1"
				if name == "groq" {
					model = "whisper-large-v3"
				}
			}
			return oastt.New(entry.APIKey, model, opts...)
		})
	}

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("edge", func(entry config.ProviderEntry) (tts.Provider, error) {
		return edge.New(edge.WithVoice(optString(entry.Options, "voice"))), nil
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		stability, okS := optNumber(entry.Options, "stability")
		similarity, okB := optNumber(entry.Options, "similarity_boost")
		if okS || okB {
			opts = append(opts, elevenlabs.WithVoiceSettings(cmp.Or(stability, 0.5), cmp.Or(similarity, 0.75)))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate, ok := optNumber(entry.Options, "sample_rate"); ok && rate > 0 {
			opts = append(opts, coqui.WithSampleRate(int(rate)))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── VAD / audio ───────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	reg.RegisterAudio("malgo", func(entry config.ProviderEntry) (audio.Platform, error) {
		var opts []malgo.Option
		if d := optDuration(entry.Options, "period"); d > 0 {
			opts = append(opts, malgo.WithPeriod(d))
		}
		return malgo.New(opts...)
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// Build instantiates every provider named in cfg. Slots with fallbacks are
// wrapped in the matching resilience failover group, whose breaker changes
// and provider failures are recorded on m when it is non-nil.
func Build(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}
	p := cfg.Providers

	llmP, err := build(p.LLM, p.LLMFallbacks, "llm", reg.CreateLLM,
		func(primary llm.Provider, name string, fbs []named[llm.Provider]) llm.Provider {
			g := resilience.NewLLMFallback(primary, name, failover("llm", m))
			for _, fb := range fbs {
				g.AddFallback(fb.name, fb.value)
			}
			return g
		})
	if err != nil {
		return nil, err
	}
	ps.LLM = llmP

	sttP, err := build(p.STT, p.STTFallbacks, "stt", reg.CreateSTT,
		func(primary stt.Provider, name string, fbs []named[stt.Provider]) stt.Provider {
			g := resilience.NewSTTFallback(primary, name, failover("stt", m))
			for _, fb := range fbs {
				g.AddFallback(fb.name, fb.value)
			}
			return g
		})
	if err != nil {
		return nil, err
	}
	ps.STT = sttP

	ttsP, err := build(p.TTS, p.TTSFallbacks, "tts", reg.CreateTTS,
		func(primary tts.Provider, name string, fbs []named[tts.Provider]) tts.Provider {
			g := resilience.NewTTSFallback(primary, name, failover("tts", m))
			for _, fb := range fbs {
				g.AddFallback(fb.name, fb.value)
			}
			return g
		})
	if err != nil {
		return nil, err
	}
	ps.TTS = ttsP

	if ps.VAD, err = build(p.VAD, nil, "vad", reg.CreateVAD, nil); err != nil {
		return nil, err
	}
	if ps.Audio, err = build(p.Audio, nil, "audio", reg.CreateAudio, nil); err != nil {
		return nil, err
	}
	return ps, nil
}

// failover returns the group configuration for one provider kind.
func failover(kind string, m *observe.Metrics) resilience.FallbackConfig {
	if m == nil {
		return resilience.FallbackConfig{}
	}
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
			},
		},
		OnFailure: func(ctx context.Context, provider string, _ error) {
			m.RecordProviderError(ctx, provider, kind)
		},
	}
}

type named[T any] struct {
	name  string
	value T
}

// build creates the primary and fallbacks of one slot. An empty primary
// name leaves the slot nil.
func build[T any](
	primary config.ProviderEntry,
	fallbacks []config.ProviderEntry,
	kind string,
	create func(config.ProviderEntry) (T, error),
	group func(T, string, []named[T]) T,
) (T, error) {
	var zero T
	if primary.Name == "" {
		return zero, nil
	}
	p, err := create(primary)
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, primary.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", primary.Name)
	if len(fallbacks) == 0 || group == nil {
		return p, nil
	}

	var fbs []named[T]
	for _, entry := range fallbacks {
		fb, err := create(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("fallback provider not registered; skipping", "kind", kind, "name", entry.Name)
			continue
		}
		if err != nil {
			return zero, fmt.Errorf("create %s fallback %q: %w", kind, entry.Name, err)
		}
		fbs = append(fbs, named[T]{name: entry.Name, value: fb})
		slog.Info("fallback provider created", "kind", kind, "name", entry.Name)
	}
	return group(p, primary.Name, fbs), nil
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optNumber reads a numeric option; YAML yields int or float64.
func optNumber(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// optDuration reads a duration option written as a Go duration string
// ("20ms") or a number of seconds.
func optDuration(opts map[string]any, key string) time.Duration {
	switch v := opts[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration option", "key", key, "value", v, "err", err)
			return 0
		}
		return d
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return 0
}
