// Command intervox-backend serves the reference dialogue and transcription
// endpoints the interview engine talks to in http mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intervox/internal/app"
	"github.com/MrWong99/intervox/internal/backend"
	"github.com/MrWong99/intervox/internal/builtin"
	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/health"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/transcribe"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "intervox-backend: load %s: %v\n", *envFile, err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "intervox-backend: %v\n", err)
		return 1
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: app.SlogLevel(cfg.Server.LogLevel),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "intervox-backend",
		SampleRatio: cfg.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(sctx)
	}()
	metrics := observe.DefaultMetrics()

	// The backend only needs the model and the transcriber; devices stay
	// with the engine.
	cfg.Providers.Audio = config.ProviderEntry{}
	cfg.Providers.VAD = config.ProviderEntry{}
	reg := config.NewRegistry()
	builtin.Register(reg)
	providers, err := builtin.Build(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if providers.LLM == nil {
		slog.Error("providers.llm is required by the backend")
		return 1
	}

	history, err := app.OpenHistory(ctx, cfg.Backend.History)
	if err != nil {
		slog.Error("failed to open history store", "err", err)
		return 1
	}
	defer history.Close()

	b := cfg.Backend
	iv := backend.NewInterviewer(providers.LLM, history,
		backend.WithHistoryWindow(b.HistoryWindow),
		backend.WithSampling(b.Temperature, b.MaxTokens),
		backend.WithModelMetrics(cfg.Providers.LLM.Name, metrics),
	)
	var stt *transcribe.Client
	if providers.STT != nil {
		stt = transcribe.New(providers.STT,
			transcribe.WithLanguage(cfg.Transcription.Language),
			transcribe.WithProviderName(cfg.Providers.STT.Name),
			transcribe.WithMetrics(metrics),
		)
	} else {
		slog.Warn("providers.stt is not configured; /api/interview/stt/ will answer 501")
	}

	var checks []health.Checker
	if history.Ping != nil {
		checks = append(checks, health.Checker{Name: "history", Check: history.Ping})
	}
	mux := http.NewServeMux()
	backend.NewServer(iv, stt).Register(mux)
	probes := health.New(checks...)
	probes.Register(mux)
	if cfg.Telemetry.MetricsPath != "" {
		mux.Handle("GET "+cfg.Telemetry.MetricsPath, promhttp.Handler())
	}

	srv := &http.Server{
		Addr:              b.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("backend listening", "addr", srv.Addr, "history", b.History.Store, "llm", cfg.Providers.LLM.Name)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		probes.Drain()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		slog.Error("backend stopped", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}
