// Package watcher keeps a directory of workflow documents normalized:
// it watches for edits and rewrites changed files in canonical form.
package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nodecanvas/umlview/internal/normalize"
	"github.com/nodecanvas/umlview/internal/streaming"
	"github.com/nodecanvas/umlview/pkg/schema"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 400 * time.Millisecond

// Result reports the outcome of normalizing one changed file.
type Result struct {
	Path    string
	Changed bool // false when the file was already in canonical form
	Repairs int
	Err     error
}

// Watcher watches a directory for *.json edits and auto-normalizes them.
type Watcher struct {
	dir      string
	debounce time.Duration
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	hub      streaming.EventHub

	results chan Result
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// Options configure the Watcher. Zero values select the defaults.
type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger
	Hub      streaming.EventHub
}

// New creates a Watcher over dir. The directory must exist.
func New(dir string, opts Options) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %q is not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		dir:      dir,
		debounce: debounce,
		fsw:      fsw,
		logger:   logger,
		hub:      opts.Hub,
		results:  make(chan Result, 100),
	}, nil
}

// Start begins watching. Results are delivered on Results().
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.done != nil {
		w.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	if err := w.fsw.Add(w.dir); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("watch %q: %w", w.dir, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(watchCtx)
	w.logger.Info("watching workflow directory",
		slog.String("dir", w.dir),
		slog.Duration("debounce", w.debounce),
	)
	return nil
}

// Results returns the channel of normalization outcomes.
func (w *Watcher) Results() <-chan Result {
	return w.results
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return nil
	}

	w.cancel()
	<-w.done
	w.cancel = nil
	w.done = nil

	return w.fsw.Close()
}

// loop debounces raw events into batches: each relevant event resets the
// timer, and the pending set is flushed after a quiet period.
func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			for path := range pending {
				delete(pending, path)
				w.emit(w.processFile(ctx, path))
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}

// relevant filters to JSON writes, skipping editor droppings.
func relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, ".json")
}

// processFile normalizes one file in place. Files already in canonical
// form are left untouched, which also terminates the rewrite loop the
// watcher's own writes would otherwise cause.
func (w *Watcher) processFile(ctx context.Context, path string) Result {
	raw, err := os.ReadFile(path)
	if err != nil {
		// The file may have been deleted between the event and the flush.
		if os.IsNotExist(err) {
			return Result{Path: path}
		}
		return Result{Path: path, Err: err}
	}

	// Unparseable files are reported and left alone; a save mid-edit must
	// never cost the user their document.
	canonical, rep, err := CanonicalBytes(raw)
	if err != nil {
		return Result{Path: path, Err: err}
	}
	if bytes.Equal(canonical, raw) {
		return Result{Path: path, Repairs: len(rep.Repairs)}
	}

	if err := os.WriteFile(path, canonical, 0o644); err != nil {
		return Result{Path: path, Err: err}
	}

	w.logger.InfoContext(ctx, "normalized workflow",
		slog.String("path", path),
		slog.Int("repairs", len(rep.Repairs)),
	)
	streaming.Notify(ctx, w.hub, schema.EventWatchChanged, "workflow normalized", map[string]any{
		"path":    path,
		"repairs": len(rep.Repairs),
	})
	return Result{Path: path, Changed: true, Repairs: len(rep.Repairs)}
}

// emit delivers a result without ever blocking the event loop.
func (w *Watcher) emit(r Result) {
	if r.Err != nil {
		w.logger.Error("normalize failed",
			slog.String("path", r.Path),
			slog.String("error", r.Err.Error()),
		)
	}
	select {
	case w.results <- r:
	default:
	}
}

// CanonicalBytes normalizes raw document JSON and renders the result in
// the on-disk form the watcher writes: two-space indent plus a trailing
// newline. Unparseable input is an error, never a rewrite; on-disk files
// only pass through the strict parse, not the destructive fallback chain.
// Normalization is idempotent, so canonical input maps to itself.
func CanonicalBytes(raw []byte) ([]byte, *schema.RepairReport, error) {
	doc, rep, err := normalize.Normalize(raw)
	if err != nil {
		return nil, nil, err
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode normalized document: %w", err)
	}
	out = append(out, '\n')
	return out, rep, nil
}
