package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/nodecanvas/umlview/internal/kroki"
	"github.com/nodecanvas/umlview/internal/prompt"
	"github.com/nodecanvas/umlview/internal/store"
	"github.com/nodecanvas/umlview/internal/streaming"
	"github.com/nodecanvas/umlview/pkg/mcp"
)

func runMCP(ctx context.Context, args []string) error {
	f := pflag.NewFlagSet("mcp", pflag.ContinueOnError)
	serverFlags(f)
	if err := f.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	// Stdout carries the MCP transport, so logs go to stderr only.
	logger := newLogger(cfg.LogLevel)

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
	}

	hub := streaming.NewMemoryHub()
	renderer := kroki.NewService(kroki.NewClient(cfg.KrokiURL, logger), kroki.ServiceOptions{
		Store:    st,
		Hub:      hub,
		Logger:   logger,
		CacheTTL: ttl,
		Backend:  cfg.Backend,
	})

	srv, err := mcp.NewUMLServer(mcp.UMLServerDeps{
		Renderer:  renderer,
		Store:     st,
		Prompts:   prompt.NewEngine(cfg.PromptDir),
		Hub:       hub,
		Logger:    logger,
		OutputDir: cfg.OutputDir,
	})
	if err != nil {
		return err
	}

	logger.Info("mcp server listening on stdio")
	return srv.Serve(ctx)
}
