package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ak3tsm7/inference-gateway/internal/logging"
	"github.com/ak3tsm7/inference-gateway/internal/models"
	"github.com/ak3tsm7/inference-gateway/internal/workerclient"
)

type fakeCaller struct {
	healthy bool
}

func (f *fakeCaller) Health(ctx context.Context, timeout time.Duration) (workerclient.HealthResponse, error) {
	if f.healthy {
		return workerclient.HealthResponse{Status: "ok"}, nil
	}
	return workerclient.HealthResponse{}, errors.New("probe failed")
}
func (f *fakeCaller) Load(ctx context.Context, name, version string, batchSize, batchWaitMs int, timeout time.Duration) error {
	return nil
}
func (f *fakeCaller) Unload(ctx context.Context, name, version string, timeout time.Duration) error {
	return nil
}

func newFakeFactory(healthyByID map[models.WorkerID]bool) workerclient.Factory {
	return func(w models.Worker) workerclient.Caller {
		return &fakeCaller{healthy: healthyByID[w.ID]}
	}
}

func TestMonitor_NewWorkerStartsUnhealthy(t *testing.T) {
	m := New(time.Second, 4, newFakeFactory(nil), logging.Nop())
	m.SetWorkers([]models.Worker{{ID: "w1:8000", Host: "w1", Port: 8000}})

	require.Empty(t, m.GetHealthyWorkers())
	w, ok := m.Get("w1:8000")
	require.True(t, ok)
	assert.False(t, w.Healthy)
}

func TestMonitor_BecomesHealthyAfterSuccessfulProbe(t *testing.T) {
	m := New(time.Second, 4, newFakeFactory(map[models.WorkerID]bool{"w1:8000": true}), logging.Nop())
	m.SetWorkers([]models.Worker{{ID: "w1:8000", Host: "w1", Port: 8000}})
	m.CheckAll(context.Background())

	healthy := m.GetHealthyWorkers()
	require.Len(t, healthy, 1)
	assert.Equal(t, models.WorkerID("w1:8000"), healthy[0].ID)
}

func TestMonitor_MarksUnhealthyOnlyAfterConsecutiveFailures(t *testing.T) {
	m := New(time.Second, 4, newFakeFactory(map[models.WorkerID]bool{"w1:8000": true}), logging.Nop())
	m.SetWorkers([]models.Worker{{ID: "w1:8000", Host: "w1", Port: 8000}})
	m.CheckAll(context.Background())
	require.Len(t, m.GetHealthyWorkers(), 1)

	m.newClient = newFakeFactory(nil) // now fails every probe
	for i := 0; i < maxConsecutiveFailures-1; i++ {
		m.CheckAll(context.Background())
		assert.Len(t, m.GetHealthyWorkers(), 1, "must stay healthy before the failure threshold")
	}
	m.CheckAll(context.Background())
	assert.Empty(t, m.GetHealthyWorkers(), "must go unhealthy once the threshold is crossed")
}

func TestMonitor_SetWorkersDropsDelisted(t *testing.T) {
	m := New(time.Second, 4, newFakeFactory(map[models.WorkerID]bool{"w1:8000": true}), logging.Nop())
	m.SetWorkers([]models.Worker{{ID: "w1:8000", Host: "w1", Port: 8000}})
	m.CheckAll(context.Background())
	require.Len(t, m.GetHealthyWorkers(), 1)

	m.SetWorkers(nil)
	_, ok := m.Get("w1:8000")
	assert.False(t, ok)
}
