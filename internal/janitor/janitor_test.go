package janitor

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodecanvas/umlview/internal/store"
)

// mockJanitorStore satisfies store.Store for janitor tests.
type mockJanitorStore struct {
	store.Store
	mu      sync.Mutex
	prunes  int
	vacuums int
	pruned  int64
	err     error
}

func (m *mockJanitorStore) PruneExpired(_ context.Context, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prunes++
	return m.pruned, m.err
}

func (m *mockJanitorStore) Vacuum(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vacuums++
	return m.err
}

func (m *mockJanitorStore) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prunes, m.vacuums
}

func newTestJanitor(t *testing.T, s store.Store) *Janitor {
	t.Helper()
	j, err := New(s, Options{Logger: slog.Default()})
	require.NoError(t, err)
	return j
}

func TestNew_BadSweepSpec(t *testing.T) {
	_, err := New(&mockJanitorStore{}, Options{SweepSpec: "not a cron spec"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse sweep spec")
}

func TestNew_BadVacuumSpec(t *testing.T) {
	_, err := New(&mockJanitorStore{}, Options{VacuumSpec: "* * *"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse vacuum spec")
}

func TestNew_DefaultSchedules(t *testing.T) {
	j := newTestJanitor(t, &mockJanitorStore{})

	// The default sweep spec fires every ten minutes.
	from := time.Date(2024, 4, 1, 12, 3, 0, 0, time.UTC)
	next := j.sweep.Next(from)
	assert.Equal(t, time.Date(2024, 4, 1, 12, 10, 0, 0, time.UTC), next)

	// The default vacuum spec fires daily at 03:30.
	next = j.vacuum.Next(from)
	assert.Equal(t, time.Date(2024, 4, 2, 3, 30, 0, 0, time.UTC), next)
}

func TestTick_RunsDueSweep(t *testing.T) {
	ms := &mockJanitorStore{pruned: 3}
	j := newTestJanitor(t, ms)

	now := time.Now().UTC()
	j.nextSweep = now.Add(-time.Second)
	j.nextVacuum = now.Add(time.Hour)

	j.tick(context.Background(), now)

	prunes, vacuums := ms.counts()
	assert.Equal(t, 1, prunes)
	assert.Equal(t, 0, vacuums)
	assert.True(t, j.nextSweep.After(now))
}

func TestTick_RunsDueVacuum(t *testing.T) {
	ms := &mockJanitorStore{}
	j := newTestJanitor(t, ms)

	now := time.Now().UTC()
	j.nextSweep = now.Add(time.Hour)
	j.nextVacuum = now.Add(-time.Second)

	j.tick(context.Background(), now)

	prunes, vacuums := ms.counts()
	assert.Equal(t, 0, prunes)
	assert.Equal(t, 1, vacuums)
	assert.True(t, j.nextVacuum.After(now))
}

func TestTick_NothingDue(t *testing.T) {
	ms := &mockJanitorStore{}
	j := newTestJanitor(t, ms)

	now := time.Now().UTC()
	j.nextSweep = now.Add(time.Minute)
	j.nextVacuum = now.Add(time.Minute)

	j.tick(context.Background(), now)

	prunes, vacuums := ms.counts()
	assert.Equal(t, 0, prunes)
	assert.Equal(t, 0, vacuums)
}

func TestTick_InflightDedup(t *testing.T) {
	ms := &mockJanitorStore{}
	j := newTestJanitor(t, ms)

	require.True(t, j.tryAcquire("sweep"))

	now := time.Now().UTC()
	j.nextSweep = now.Add(-time.Second)
	j.nextVacuum = now.Add(time.Hour)
	j.tick(context.Background(), now)

	prunes, _ := ms.counts()
	assert.Equal(t, 0, prunes)

	j.release("sweep")
	j.nextSweep = now.Add(-time.Second)
	j.tick(context.Background(), now)

	prunes, _ = ms.counts()
	assert.Equal(t, 1, prunes)
}

func TestTick_SweepErrorDoesNotAdvanceCounters(t *testing.T) {
	ms := &mockJanitorStore{err: context.DeadlineExceeded}
	j := newTestJanitor(t, ms)

	now := time.Now().UTC()
	j.nextSweep = now.Add(-time.Second)
	j.nextVacuum = now.Add(time.Hour)

	// An error is logged, not fatal; the schedule still advances.
	j.tick(context.Background(), now)
	assert.True(t, j.nextSweep.After(now))
}

func TestStartStop(t *testing.T) {
	ms := &mockJanitorStore{}
	j := newTestJanitor(t, ms)

	require.NoError(t, j.Start(context.Background()))
	require.Error(t, j.Start(context.Background()), "second start must fail")
	require.NoError(t, j.Stop())

	// The startup sweep ran exactly once.
	prunes, _ := ms.counts()
	assert.Equal(t, 1, prunes)

	// Stop is idempotent.
	require.NoError(t, j.Stop())
}

func TestStartRespectsParentContext(t *testing.T) {
	ms := &mockJanitorStore{}
	j := newTestJanitor(t, ms)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, j.Start(ctx))
	cancel()

	select {
	case <-j.done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor loop did not exit after context cancel")
	}
}
