// Package janitor runs background maintenance over the render cache:
// scheduled sweeps of expired rows plus a periodic VACUUM.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nodecanvas/umlview/internal/store"
)

// Default schedules, standard 5-field cron specs.
const (
	DefaultSweepSpec  = "*/10 * * * *"
	DefaultVacuumSpec = "30 3 * * *"
)

// Janitor sweeps expired cache rows and compacts the database on cron schedules.
type Janitor struct {
	store  store.Store
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	sweep  cron.Schedule
	vacuum cron.Schedule

	nextSweep  time.Time
	nextVacuum time.Time

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job names currently executing (dedup)
}

// Options configure the Janitor. Zero values select the defaults.
type Options struct {
	SweepSpec  string
	VacuumSpec string
	Logger     *slog.Logger
}

// New creates a Janitor. Both cron specs are parsed eagerly so a bad
// schedule fails at startup, not at the first tick.
func New(s store.Store, opts Options) (*Janitor, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	sweepSpec := opts.SweepSpec
	if sweepSpec == "" {
		sweepSpec = DefaultSweepSpec
	}
	sweep, err := parser.Parse(sweepSpec)
	if err != nil {
		return nil, fmt.Errorf("parse sweep spec %q: %w", sweepSpec, err)
	}

	vacuumSpec := opts.VacuumSpec
	if vacuumSpec == "" {
		vacuumSpec = DefaultVacuumSpec
	}
	vacuum, err := parser.Parse(vacuumSpec)
	if err != nil {
		return nil, fmt.Errorf("parse vacuum spec %q: %w", vacuumSpec, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Janitor{
		store:    s,
		logger:   logger,
		sweep:    sweep,
		vacuum:   vacuum,
		inflight: make(map[string]struct{}),
	}, nil
}

// Start launches the background loop with a 30s ticker.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.done != nil {
		j.mu.Unlock()
		return fmt.Errorf("janitor already started")
	}

	now := time.Now().UTC()
	j.nextSweep = j.sweep.Next(now)
	j.nextVacuum = j.vacuum.Next(now)

	janCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.mu.Unlock()

	go j.loop(janCtx)
	j.logger.Info("janitor started",
		slog.Time("next_sweep", j.nextSweep),
		slog.Time("next_vacuum", j.nextVacuum),
	)
	return nil
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.done)

	// Sweep once at startup to clear anything that expired while down.
	if j.tryAcquire("sweep") {
		j.runSweep(ctx, time.Now().UTC())
		j.release("sweep")
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.tick(ctx, time.Now().UTC())
		}
	}
}

// tick runs whichever jobs are due and advances their schedules.
func (j *Janitor) tick(ctx context.Context, now time.Time) {
	j.mu.Lock()
	sweepDue := !j.nextSweep.After(now)
	vacuumDue := !j.nextVacuum.After(now)
	if sweepDue {
		j.nextSweep = j.sweep.Next(now)
	}
	if vacuumDue {
		j.nextVacuum = j.vacuum.Next(now)
	}
	j.mu.Unlock()

	if sweepDue && j.tryAcquire("sweep") {
		j.runSweep(ctx, now)
		j.release("sweep")
	}
	if vacuumDue && j.tryAcquire("vacuum") {
		j.runVacuum(ctx)
		j.release("vacuum")
	}
}

func (j *Janitor) runSweep(ctx context.Context, now time.Time) {
	n, err := j.store.PruneExpired(ctx, now)
	if err != nil {
		j.logger.Error("cache sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		j.logger.Info("cache sweep", slog.Int64("pruned", n))
	}
}

func (j *Janitor) runVacuum(ctx context.Context) {
	if err := j.store.Vacuum(ctx); err != nil {
		j.logger.Error("vacuum failed", slog.String("error", err.Error()))
		return
	}
	j.logger.Info("vacuum completed")
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (j *Janitor) tryAcquire(name string) bool {
	j.inflightMu.Lock()
	defer j.inflightMu.Unlock()
	if _, ok := j.inflight[name]; ok {
		return false
	}
	j.inflight[name] = struct{}{}
	return true
}

// release removes the job from the in-flight set.
func (j *Janitor) release(name string) {
	j.inflightMu.Lock()
	defer j.inflightMu.Unlock()
	delete(j.inflight, name)
}

// Stop gracefully shuts down the janitor.
func (j *Janitor) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancel == nil {
		return nil
	}

	j.cancel()
	<-j.done
	j.cancel = nil
	j.done = nil

	j.logger.Info("janitor stopped")
	return nil
}
