package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/nodecanvas/umlview/internal/watcher"
)

func runWatch(ctx context.Context, args []string) error {
	f := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	debounce := f.Duration("debounce", watcher.DefaultDebounce, "delay before processing a burst of file events")
	logLevel := f.String("log_level", "info", "log level: debug, info, warn, error")
	if err := f.Parse(args); err != nil {
		return err
	}

	rest := f.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: umlview watch <directory>")
	}

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	w, err := watcher.New(rest[0], watcher.Options{
		Debounce: *debounce,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	// Results are drained for the exit summary; the watcher logs each
	// file as it goes.
	var changed, failed int
	for {
		select {
		case <-ctx.Done():
			stopErr := w.Stop()
			logger.Info("watcher stopped",
				slog.Int("changed", changed),
				slog.Int("failed", failed),
			)
			return stopErr
		case r := <-w.Results():
			if r.Err != nil {
				failed++
			} else if r.Changed {
				changed++
			}
		}
	}
}
