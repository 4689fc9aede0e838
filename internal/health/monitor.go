// Package health periodically probes known workers and publishes a
// healthy/unhealthy flag per worker, the way coordinator.HealthMonitor
// does for cluster nodes in the wider example pack.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ak3tsm7/inference-gateway/internal/logging"
	"github.com/ak3tsm7/inference-gateway/internal/metrics"
	"github.com/ak3tsm7/inference-gateway/internal/models"
	"github.com/ak3tsm7/inference-gateway/internal/workerclient"
)

// maxConsecutiveFailures is the number of consecutive failed probes
// before a worker is marked unhealthy. A failing worker is never
// removed from the registry here; only WorkerSource no longer listing
// it removes it.
const maxConsecutiveFailures = 3

type entry struct {
	worker          models.Worker
	consecutiveFail int
}

// Monitor owns the worker registry's health flags. It is safe for
// concurrent use; GetHealthyWorkers returns a consistent snapshot that
// does not coordinate with in-flight probes.
type Monitor struct {
	mu      sync.RWMutex
	workers map[models.WorkerID]*entry

	probeTimeout time.Duration
	fanout       int
	newClient    workerclient.Factory
	logger       logging.Logger
}

// New builds a Monitor. fanout bounds concurrent /health probes.
func New(probeTimeout time.Duration, fanout int, newClient workerclient.Factory, logger logging.Logger) *Monitor {
	return &Monitor{
		workers:      make(map[models.WorkerID]*entry),
		probeTimeout: probeTimeout,
		fanout:       fanout,
		newClient:    newClient,
		logger:       logger,
	}
}

// SetWorkers reconciles the monitored set with the latest WorkerSource
// snapshot: new workers enter as unhealthy until their first successful
// probe; workers no longer listed are dropped entirely.
func (m *Monitor) SetWorkers(hostPorts []models.Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[models.WorkerID]struct{}, len(hostPorts))
	for _, w := range hostPorts {
		seen[w.ID] = struct{}{}
		if _, ok := m.workers[w.ID]; !ok {
			m.workers[w.ID] = &entry{worker: models.Worker{ID: w.ID, Host: w.Host, Port: w.Port, Healthy: false}}
		}
	}
	for id := range m.workers {
		if _, ok := seen[id]; !ok {
			delete(m.workers, id)
		}
	}
	metrics.KnownWorkers.Set(float64(len(m.workers)))
}

// CheckAll probes every known worker concurrently (bounded by fanout)
// and updates each worker's healthy flag and consecutive-failure count.
// Routine ticks from this call never remove a worker, only mark it
// unhealthy on repeated failure.
func (m *Monitor) CheckAll(ctx context.Context) {
	m.mu.RLock()
	targets := make([]models.Worker, 0, len(m.workers))
	for _, e := range m.workers {
		targets = append(targets, e.worker)
	}
	m.mu.RUnlock()

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(m.fanout)
	for _, w := range targets {
		w := w
		g.Go(func() error {
			_ = ctx // bounded fanout only; a slow probe must not cancel its siblings
			client := m.newClient(w)
			start := time.Now()
			_, err := client.Health(context.Background(), m.probeTimeout)
			metrics.WorkerProbeDurationSeconds.Observe(time.Since(start).Seconds())
			m.recordProbe(w.ID, err == nil)
			if err != nil {
				m.logger.Debug("worker health probe failed", "worker_id", w.ID, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	metrics.HealthyWorkers.Set(float64(len(m.GetHealthyWorkers())))
}

func (m *Monitor) recordProbe(id models.WorkerID, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, found := m.workers[id]
	if !found {
		return
	}
	if ok {
		e.consecutiveFail = 0
		if !e.worker.Healthy {
			m.logger.Info("worker became healthy", "worker_id", id)
		}
		e.worker.Healthy = true
		return
	}
	e.consecutiveFail++
	if e.consecutiveFail >= maxConsecutiveFailures && e.worker.Healthy {
		e.worker.Healthy = false
		m.logger.Warn("worker marked unhealthy", "worker_id", id, "consecutive_failures", e.consecutiveFail)
	}
}

// GetHealthyWorkers returns a snapshot of currently healthy workers,
// sorted by WorkerID for deterministic lexicographic tie-breaking
// downstream in the Placer.
func (m *Monitor) GetHealthyWorkers() []models.Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Worker, 0, len(m.workers))
	for _, e := range m.workers {
		if e.worker.Healthy {
			out = append(out, e.worker)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the current snapshot for a single worker, and whether it
// is known at all.
func (m *Monitor) Get(id models.WorkerID) (models.Worker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.workers[id]
	if !ok {
		return models.Worker{}, false
	}
	return e.worker, true
}
