// Package app wires the Intervox subsystems into a running engine.
//
// The App struct owns the full lifecycle: New builds the transcription and
// dialogue clients and the session manager from the config, Run serves the
// control API and follows config changes, and Shutdown tears everything
// down in order.
//
// For testing, inject doubles via functional options (WithClock,
// WithHistory, ...). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intervox/internal/archive"
	"github.com/MrWong99/intervox/internal/backend"
	"github.com/MrWong99/intervox/internal/clock"
	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/dialogue"
	"github.com/MrWong99/intervox/internal/health"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/session"
	"github.com/MrWong99/intervox/internal/transcribe"
	"github.com/MrWong99/intervox/internal/turn"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/provider/tts"
	"github.com/MrWong99/intervox/pkg/provider/vad"
	"github.com/MrWong99/intervox/pkg/provider/vad/energy"
)

// shutdownGrace bounds how long in-flight HTTP requests may take once Run's
// context is cancelled.
const shutdownGrace = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry,
// already wrapped in failover groups where fallbacks are configured.
type Providers struct {
	LLM   llm.Provider
	STT   stt.Provider
	TTS   tts.Provider
	VAD   vad.Engine
	Audio audio.Platform
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	clk      clock.Clock
	metrics  *observe.Metrics
	history  *History
	watcher  *config.Watcher
	logLevel *slog.LevelVar

	transcriber turn.Transcriber
	dialogue    turn.Dialogue
	sessions    *SessionManager

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithClock sets the clock used by session timers and endpointing.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clk = c }
}

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithHistory injects the conversation store used by the in-process
// interviewer instead of opening the one named in the config.
func WithHistory(h *History) Option {
	return func(a *App) { a.history = h }
}

// WithWatcher makes Run follow config changes reported by w.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithLogLevel lets config reloads change the level of the default logger.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		clk:       clock.Real(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if providers.Audio == nil {
		return nil, errors.New("app: an audio platform is required")
	}

	if err := a.initTranscription(); err != nil {
		return nil, fmt.Errorf("app: init transcription: %w", err)
	}
	if err := a.initDialogue(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init dialogue: %w", err)
	}

	vadEngine := providers.VAD
	if vadEngine == nil {
		vadEngine = energy.New()
	}

	typ, _ := session.ParseInterviewType(cfg.Session.DefaultType)
	a.sessions = NewSessionManager(SessionManagerConfig{
		Platform:    providers.Audio,
		VAD:         vadEngine,
		Transcriber: a.transcriber,
		Dialogue:    a.dialogue,
		TTS:         providers.TTS,
		TTSName:     cfg.Providers.TTS.Name,
		Voice:       tts.Voice{ID: cfg.Playback.Voice, Provider: cfg.Providers.TTS.Name},
		AudioClient: &http.Client{Timeout: cfg.Playback.FetchTimeout},
		Settings: Settings{
			DefaultType:     typ,
			DefaultDuration: cfg.Session.DefaultDuration,
			Endpointing:     cfg.Endpointing.Params(),
			SettleDelay:     cfg.Session.SettleDelay,
		},
		Clock:   a.clk,
		Metrics: a.metrics,
		Archive: a.archive(),
	})

	if a.watcher != nil {
		a.watcher.OnChange(a.applyConfig)
	}
	return a, nil
}

// initTranscription uses the remote STT endpoint when one is configured and
// the STT provider otherwise.
func (a *App) initTranscription() error {
	t := a.cfg.Transcription
	opts := []transcribe.Option{
		transcribe.WithLanguage(t.Language),
		transcribe.WithMetrics(a.metrics),
	}
	switch {
	case t.URL != "":
		p := transcribe.NewHTTP(t.URL, &http.Client{Timeout: t.Timeout})
		a.transcriber = transcribe.New(p, append(opts, transcribe.WithProviderName("http"))...)
	case a.providers.STT != nil:
		a.transcriber = transcribe.New(a.providers.STT, append(opts, transcribe.WithProviderName(a.cfg.Providers.STT.Name))...)
	default:
		return errors.New("neither transcription.url nor providers.stt is configured")
	}
	return nil
}

// initDialogue builds the HTTP dialogue client, or the in-process
// interviewer over the configured history store.
func (a *App) initDialogue(ctx context.Context) error {
	d := a.cfg.Dialogue
	if d.Mode == config.DialogueHTTP {
		svc := dialogue.NewHTTP(d.URL, &http.Client{Timeout: d.Timeout})
		a.dialogue = dialogue.New(svc, dialogue.WithName("http"), dialogue.WithMetrics(a.metrics))
		return nil
	}

	if a.providers.LLM == nil {
		return errors.New("local dialogue requires providers.llm")
	}
	if a.history == nil {
		h, err := OpenHistory(ctx, a.cfg.Backend.History)
		if err != nil {
			return err
		}
		a.history = h
		a.closers = append(a.closers, h.Close)
	}
	b := a.cfg.Backend
	iv := backend.NewInterviewer(a.providers.LLM, a.history,
		backend.WithHistoryWindow(b.HistoryWindow),
		backend.WithSampling(b.Temperature, b.MaxTokens),
		backend.WithModelMetrics(a.cfg.Providers.LLM.Name, a.metrics),
	)
	a.dialogue = dialogue.New(dialogue.NewLocal(iv), dialogue.WithName("local"), dialogue.WithMetrics(a.metrics))
	return nil
}

// archive returns the interview archive named in the config, or nil.
func (a *App) archive() Archiver {
	if a.cfg.Session.ArchivePath == "" {
		return nil
	}
	return archive.NewFileStore(a.cfg.Session.ArchivePath)
}

// Sessions returns the session manager driven by the control API.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Metrics returns the instruments shared by all subsystems.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// ReadinessChecks returns the checks served on /readyz.
func (a *App) ReadinessChecks() []health.Checker {
	checks := []health.Checker{
		{Name: "audio", Check: func(context.Context) error {
			if a.providers.Audio == nil {
				return errors.New("no audio platform")
			}
			return nil
		}},
	}
	if a.history != nil && a.history.Ping != nil {
		checks = append(checks, health.Checker{Name: "history", Check: a.history.Ping, Optional: true})
	}
	return checks
}

// ─── Config reload ───────────────────────────────────────────────────────────

// applyConfig is the watcher callback. Changes that need a restart are only
// logged.
func (a *App) applyConfig(_, cur *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.EndpointingChanged || d.SettleDelayChanged || d.SessionDefaultsChanged {
		typ, _ := session.ParseInterviewType(cur.Session.DefaultType)
		a.sessions.UpdateSettings(func(s *Settings) {
			s.Endpointing = cur.Endpointing.Params()
			s.SettleDelay = cur.Session.SettleDelay
			s.DefaultType = typ
			s.DefaultDuration = cur.Session.DefaultDuration
		})
		slog.Info("session settings updated; applies to the next interview",
			"endpointing", d.EndpointingChanged,
			"settle_delay", d.SettleDelayChanged,
			"defaults", d.SessionDefaultsChanged,
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that need a restart", "sections", d.RestartRequired)
	}
}

// SlogLevel maps a config log level to its slog level.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves handler on the configured address and polls the config watcher
// until ctx is cancelled. The current interview is ended on the way out.
func (a *App) Run(ctx context.Context, handler http.Handler) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("control API listening", "addr", srv.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.sessions.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	return g.Wait()
}

// Shutdown ends the current interview and closes everything New opened.
// It is safe to call more than once.
func (a *App) Shutdown(_ context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.sessions.Shutdown()
		err = a.runClosers()
		if a.providers.Audio != nil {
			err = errors.Join(err, a.providers.Audio.Close())
		}
	})
	return err
}

func (a *App) runClosers() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
