package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ak3tsm7/inference-gateway/internal/health"
	"github.com/ak3tsm7/inference-gateway/internal/logging"
	"github.com/ak3tsm7/inference-gateway/internal/models"
	"github.com/ak3tsm7/inference-gateway/internal/placement"
	"github.com/ak3tsm7/inference-gateway/internal/registry"
	"github.com/ak3tsm7/inference-gateway/internal/workerclient"
)

type residentCaller struct {
	models []string
}

func (r *residentCaller) Health(ctx context.Context, timeout time.Duration) (workerclient.HealthResponse, error) {
	return workerclient.HealthResponse{Status: "ok", Models: r.models}, nil
}
func (r *residentCaller) Load(ctx context.Context, name, version string, batchSize, batchWaitMs int, timeout time.Duration) error {
	return nil
}
func (r *residentCaller) Unload(ctx context.Context, name, version string, timeout time.Duration) error {
	return nil
}

func newReconcilerHarness(t *testing.T, residentByID map[models.WorkerID][]string) (*Reconciler, *registry.FakeStore, *placement.Cache, *health.Monitor) {
	t.Helper()
	factory := func(w models.Worker) workerclient.Caller {
		return &residentCaller{models: residentByID[w.ID]}
	}

	var workers []models.Worker
	for id := range residentByID {
		host, port, err := models.ParseWorkerID(id)
		require.NoError(t, err)
		workers = append(workers, models.Worker{ID: id, Host: host, Port: port})
	}

	monitor := health.New(2*time.Second, 16, factory, logging.Nop())
	monitor.SetWorkers(workers)
	monitor.CheckAll(context.Background())

	store := registry.NewFakeStore()
	cache := placement.New(30 * time.Second)
	rec := New(store, cache, monitor, factory, logging.Nop(), time.Minute, 2*time.Second, 8, "model:", "worker:load:", 300)
	return rec, store, cache, monitor
}

func TestReconcile_RemovesStaleAssignmentWhenOwnerNoLongerResident(t *testing.T) {
	rec, store, cache, _ := newReconcilerHarness(t, map[models.WorkerID][]string{
		"w1:8000": {},
	})
	require.NoError(t, store.Set(context.Background(), "model:iris:v1", "w1:8000"))
	cache.Record("w1:8000", "iris:v1")

	require.NoError(t, rec.Reconcile(context.Background()))

	_, err := store.Get(context.Background(), "model:iris:v1")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.False(t, cache.Contains("w1:8000", "iris:v1"))
}

func TestReconcile_KeepsAssignmentWhenOwnerStillResident(t *testing.T) {
	rec, store, cache, _ := newReconcilerHarness(t, map[models.WorkerID][]string{
		"w1:8000": {"iris:v1"},
	})
	require.NoError(t, store.Set(context.Background(), "model:iris:v1", "w1:8000"))

	require.NoError(t, rec.Reconcile(context.Background()))

	v, err := store.Get(context.Background(), "model:iris:v1")
	require.NoError(t, err)
	assert.Equal(t, "w1:8000", v)
	assert.True(t, cache.Contains("w1:8000", "iris:v1"))
}

func TestReconcile_ClaimsUnclaimedResidentModel(t *testing.T) {
	rec, store, cache, _ := newReconcilerHarness(t, map[models.WorkerID][]string{
		"w1:8000": {"iris:v1"},
	})

	require.NoError(t, rec.Reconcile(context.Background()))

	v, err := store.Get(context.Background(), "model:iris:v1")
	require.NoError(t, err)
	assert.Equal(t, "w1:8000", v)
	assert.True(t, cache.Contains("w1:8000", "iris:v1"))
}

func TestReconcile_RepairsLoadCounterToMatchResidentCount(t *testing.T) {
	rec, store, _, _ := newReconcilerHarness(t, map[models.WorkerID][]string{
		"w1:8000": {"iris:v1", "mnist:v2"},
	})
	require.NoError(t, store.Set(context.Background(), "worker:load:w1:8000", "99"))

	require.NoError(t, rec.Reconcile(context.Background()))

	v, err := store.Get(context.Background(), "worker:load:w1:8000")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestReconcile_ReplacesCacheWholesaleAcrossWorkers(t *testing.T) {
	rec, _, cache, _ := newReconcilerHarness(t, map[models.WorkerID][]string{
		"w1:8000": {"iris:v1"},
		"w2:8000": {},
	})
	cache.Record("w2:8000", "stale:v1")

	require.NoError(t, rec.Reconcile(context.Background()))

	assert.True(t, cache.Contains("w1:8000", "iris:v1"))
	assert.False(t, cache.Contains("w2:8000", "stale:v1"))
}

func TestReconcile_NoHealthyWorkersClearsAssignments(t *testing.T) {
	rec, store, cache, _ := newReconcilerHarness(t, map[models.WorkerID][]string{})
	require.NoError(t, store.Set(context.Background(), "model:iris:v1", "w1:8000"))
	cache.Record("w1:8000", "iris:v1")

	require.NoError(t, rec.Reconcile(context.Background()))

	_, err := store.Get(context.Background(), "model:iris:v1")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}
