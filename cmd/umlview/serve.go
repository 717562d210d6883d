package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/nodecanvas/umlview/internal/httpapi"
	"github.com/nodecanvas/umlview/internal/janitor"
	"github.com/nodecanvas/umlview/internal/kroki"
	"github.com/nodecanvas/umlview/internal/logging"
	"github.com/nodecanvas/umlview/internal/policy"
	"github.com/nodecanvas/umlview/internal/prompt"
	"github.com/nodecanvas/umlview/internal/store"
	"github.com/nodecanvas/umlview/internal/streaming"
)

func runServe(ctx context.Context, args []string) error {
	f := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	serverFlags(f)
	if err := f.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ttl, err := time.ParseDuration(cfg.CacheTTL)
	if err != nil {
		return fmt.Errorf("invalid cache_ttl %q: %w", cfg.CacheTTL, err)
	}

	var st store.Store
	if cfg.DBPath != "" {
		ls, err := store.NewLibSQLStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer ls.Close()
		if err := ls.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		st = ls

		jan, err := janitor.New(st, janitor.Options{
			SweepSpec:  cfg.SweepSpec,
			VacuumSpec: cfg.VacuumSpec,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		if err := jan.Start(ctx); err != nil {
			return err
		}
		defer jan.Stop()
	}

	pol, err := policy.New(policy.Options{
		Expression:   cfg.Policy,
		ExtraHosts:   splitHosts(cfg.ProxyHosts),
		AllowPrivate: cfg.AllowPrivate,
	})
	if err != nil {
		return fmt.Errorf("compile url policy: %w", err)
	}

	hub := streaming.NewMemoryHub()
	srv, err := httpapi.NewServer(httpapi.Deps{
		Store:     st,
		Hub:       hub,
		Kroki:     kroki.NewClient(cfg.KrokiURL, logger),
		Policy:    pol,
		Prompts:   prompt.NewEngine(cfg.PromptDir),
		LLM:       prompt.NewClient(prompt.ClientOptions{Logger: logger}),
		Logger:    logger,
		OutputDir: cfg.OutputDir,
		Backend:   cfg.Backend,
		CacheTTL:  ttl,
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("umlview listening",
		slog.String("addr", cfg.Listen),
		slog.String("kroki_url", cfg.KrokiURL),
		slog.String("backend", cfg.Backend),
		slog.String("db_path", cfg.DBPath),
	)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newLogger builds the process logger: text output wrapped in the
// correlation handler so request-scoped IDs flow into every line.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
