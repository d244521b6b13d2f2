// Command vaani serves the voice relay: a spoken query is translated to
// English, answered by an LLM, translated back and spoken.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vaani/internal/config"
	"github.com/MrWong99/vaani/internal/health"
	"github.com/MrWong99/vaani/internal/observe"
	"github.com/MrWong99/vaani/internal/pipeline"
	"github.com/MrWong99/vaani/internal/web"
	"github.com/MrWong99/vaani/pkg/audio"
)

// version is set at build time with -ldflags "-X main.version=…".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "vaani.yaml", "path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "dotenv file with provider credentials (ignored if missing)")
	oncePath := flag.String("once", "", "run the pipeline once against this capture file and exit")
	outPath := flag.String("out", "", "with -once: write the synthesized reply to this file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "vaani: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vaani: config file %q not found, copy vaani.example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vaani: %v\n", err)
		}
		return 1
	}
	if err := config.ResolveCredentials(cfg, nil); err != nil {
		fmt.Fprintf(os.Stderr, "vaani: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("vaani starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	ps, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer func() {
		if err := ps.Close(); err != nil {
			slog.Warn("provider close error", "err", err)
		}
	}()

	spool, err := audio.NewSpool(cfg.Server.SpoolDir)
	if err != nil {
		slog.Error("failed to prepare spool directory", "err", err)
		return 1
	}

	newOrchestrator := func(pc config.PipelineConfig) (*pipeline.Orchestrator, error) {
		opts := []pipeline.Option{
			pipeline.WithPlayer(ps.Player),
			pipeline.WithSpool(spool),
			pipeline.WithMetrics(metrics),
		}
		if ps.BackLLM != nil {
			opts = append(opts, pipeline.WithBackTranslationLLM(ps.BackLLM))
		}
		return pipeline.New(pc.Build(), ps.STT, ps.LLM, ps.TTS, opts...)
	}
	orch, err := newOrchestrator(cfg.Pipeline)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}

	// ── One-shot mode ─────────────────────────────────────────────────────────
	if *oncePath != "" {
		return runOnce(ctx, orch, *oncePath, *outPath)
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := web.New(orch, web.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RunsPerMinute:  cfg.Server.RunsPerMinute,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        metrics,
		MetricsHandler: tel.MetricsHandler(),
		Health:         health.New(ps.checkers()...),
	})

	// Requests and hijacked WebSocket connections are cancelled when
	// shutdown begins, which aborts their runs.
	connCtx, cancelConns := context.WithCancel(context.Background())
	defer cancelConns()
	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return connCtx },
	}
	httpSrv.RegisterOnShutdown(cancelConns)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready, press Ctrl+C to shut down", "addr", httpSrv.Addr, "tls", cfg.Server.TLS != nil)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	// ── Config hot reload ─────────────────────────────────────────────────────
	if cfg.Server.ReloadInterval > 0 {
		onChange := func(old, new *config.Config) {
			d := config.Diff(old, new)
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("config reload: log level changed", "log_level", d.NewLogLevel)
			}
			if d.PipelineChanged {
				o, err := newOrchestrator(new.Pipeline)
				if err != nil {
					slog.Error("config reload: pipeline rejected", "err", err)
				} else {
					srv.SetOrchestrator(o)
				}
			}
			if len(d.RestartRequired) > 0 {
				slog.Warn("config reload: changes take effect after a restart", "sections", d.RestartRequired)
			}
		}
		w, err := config.NewWatcher(*configPath, onChange,
			config.WithInterval(cfg.Server.ReloadInterval),
			config.WithPrepare(func(c *config.Config) error {
				return config.ResolveCredentials(c, nil)
			}),
		)
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			stop()
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runOnce runs the pipeline against the capture at path and prints every
// stage to stdout. The reply is written to outPath when set.
func runOnce(ctx context.Context, orch *pipeline.Orchestrator, path, outPath string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("failed to read capture", "err", err)
		return 1
	}
	capture := audio.Capture{Data: data, Encoding: audio.SniffEncoding(data, audio.EncodingFromFilename(path))}

	rep, err := orch.Run(ctx, capture, newConsoleSink(os.Stdout))
	if errors.Is(err, pipeline.ErrEmptyCapture) {
		fmt.Fprintf(os.Stderr, "vaani: %s is empty\n", path)
		return 1
	}
	if err != nil {
		return 1
	}
	if outPath != "" {
		if err := os.WriteFile(outPath, rep.Audio, 0o644); err != nil {
			slog.Error("failed to write reply", "err", err)
			return 1
		}
		fmt.Printf("reply written to %s\n", outPath)
	}
	return 0
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
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
