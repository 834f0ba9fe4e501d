// Command atlasbot is the Discord bot that resolves servant and enemy
// lookups against the Atlas Academy dataset.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/atlasbot/internal/app"
	"github.com/MrWong99/atlasbot/internal/config"
	"github.com/MrWong99/atlasbot/internal/health"
	"github.com/MrWong99/atlasbot/internal/observe"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "atlasbot.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "atlasbot: %v\n", err)
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("atlasbot starting",
		"version", version,
		"config", *configPath,
		"region", cfg.Atlas.Region,
		"snapshot_backend", cfg.Snapshot.Backend,
		"listen_addr", cfg.Server.ListenAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	srv := newServer(cfg.Server, application)
	if srv != nil {
		go func() {
			var err error
			if tls := cfg.Server.TLS; tls != nil {
				err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("ops server error", "err", err)
				stop()
			}
		}()
		slog.Info("ops server listening", "addr", cfg.Server.ListenAddr)
	}

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("stopping")

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("ops server shutdown error", "err", err)
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads path, falling back to the defaults when the file does not
// exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "atlasbot: config file %q not found, using defaults\n", path)
		return config.Default(), nil
	}
	return cfg, err
}

// newServer builds the health and metrics listener, or nil when no listen
// address is configured.
func newServer(sc config.ServerConfig, a *app.App) *http.Server {
	if sc.ListenAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	health.New(a.ReadinessCheckers()...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              sc.ListenAddr,
		Handler:           observe.Middleware(a.Metrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
