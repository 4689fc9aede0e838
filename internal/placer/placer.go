// Package placer is the gateway's core decision engine: the algorithms
// for choosing which worker serves a model, assigning and unassigning
// models to workers, and the global-unload transaction.
package placer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ak3tsm7/inference-gateway/internal/health"
	"github.com/ak3tsm7/inference-gateway/internal/logging"
	"github.com/ak3tsm7/inference-gateway/internal/metrics"
	"github.com/ak3tsm7/inference-gateway/internal/models"
	"github.com/ak3tsm7/inference-gateway/internal/placement"
	"github.com/ak3tsm7/inference-gateway/internal/registry"
	"github.com/ak3tsm7/inference-gateway/internal/workerclient"
)

// maxAssignAttempts bounds the setIfAbsent retry loop in assign, per
// spec.md §4.6.3 and the Open Question in §9 about bounding the
// source's unbounded reassign-on-failure path.
const maxAssignAttempts = 3

// Timeouts groups the per-suboperation deadlines from spec.md §5/§6.
type Timeouts struct {
	Probe    time.Duration
	Load     time.Duration
	Unload   time.Duration
	Registry time.Duration
}

// Placer is the core engine. Construct one per gateway process; it owns
// no goroutines of its own (unlike the Reconciler/HealthMonitor).
type Placer struct {
	registry   registry.Store
	cache      *placement.Cache
	health     *health.Monitor
	newClient  workerclient.Factory
	logger     logging.Logger
	timeouts   Timeouts
	loadFanout int

	// loadSem bounds concurrent /models/load calls across every
	// independent GetWorkerForModel/assign invocation gateway-wide, per
	// spec.md §5 backpressure — distinct from the per-call fanout limits
	// already applied inside FindWorkersWithModel/UnloadGlobally.
	loadSem chan struct{}

	modelKeyPrefix string
	loadKeyPrefix  string
	assignTTL      int64 // seconds
}

// New builds a Placer.
func New(
	store registry.Store,
	cache *placement.Cache,
	monitor *health.Monitor,
	newClient workerclient.Factory,
	logger logging.Logger,
	timeouts Timeouts,
	loadFanout int,
	modelKeyPrefix, loadKeyPrefix string,
	assignTTLSeconds int64,
) *Placer {
	return &Placer{
		registry:       store,
		cache:          cache,
		health:         monitor,
		newClient:      newClient,
		logger:         logger,
		timeouts:       timeouts,
		loadFanout:     loadFanout,
		loadSem:        make(chan struct{}, loadFanout),
		modelKeyPrefix: modelKeyPrefix,
		loadKeyPrefix:  loadKeyPrefix,
		assignTTL:      assignTTLSeconds,
	}
}

func (p *Placer) modelKey(name, version string) string {
	return p.modelKeyPrefix + name + ":" + version
}

func (p *Placer) loadKey(id models.WorkerID) string {
	return p.loadKeyPrefix + string(id)
}

// detach decouples ctx from the inbound caller's cancellation. Per
// spec.md §5, a client disconnect must abandon only the response to
// that client, never an in-flight registry write or worker load.
// Sub-operations still bound themselves with their own timeout via
// registryCtx, or the worker client's own per-call timeout.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// registryCtx bounds a single registry operation with the configured
// Registry timeout, independent of however long the overall decision
// that contains it takes.
func (p *Placer) registryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeouts.Registry)
}

// acquireLoadSlot blocks until a gateway-wide load slot is free.
func (p *Placer) acquireLoadSlot(ctx context.Context) error {
	select {
	case p.loadSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Placer) releaseLoadSlot() { <-p.loadSem }

// GetWorkerForModel is the primary routing decision: spec.md §4.6.1.
func (p *Placer) GetWorkerForModel(ctx context.Context, name, version string) (models.Worker, error) {
	ctx = detach(ctx)
	key := p.modelKey(name, version)
	mk := name + ":" + version

	rctx, cancel := p.registryCtx(ctx)
	workerIDStr, err := p.registry.Get(rctx, key)
	cancel()
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return p.reassign(ctx, name, version)
	case err != nil:
		// Registry read failure: treat as "no assignment" and proceed to assign.
		p.logger.Warn("registry read failed, treating as unassigned", "model", mk, "err", err)
		return p.reassign(ctx, name, version)
	}

	w, ok := p.health.Get(models.WorkerID(workerIDStr))
	if !ok || !w.Healthy {
		dctx, dcancel := p.registryCtx(ctx)
		if delErr := p.registry.Delete(dctx, key); delErr != nil {
			p.logger.Warn("failed to delete stale assignment", "model", mk, "worker_id", workerIDStr, "err", delErr)
		}
		dcancel()
		return p.reassign(ctx, name, version)
	}

	if p.cache.Contains(w.ID, mk) {
		metrics.PlacementDecisionsTotal.WithLabelValues("cache_hit").Inc()
		return w, nil
	}

	// Cache miss or stale: (re)load. The worker client tolerates
	// "already loaded" 200s as success.
	if err := p.acquireLoadSlot(ctx); err != nil {
		return models.Worker{}, fmt.Errorf("%w: %v", ErrWorkerLoadFailed, err)
	}
	client := p.newClient(w)
	loadErr := client.Load(ctx, name, version, workerclient.DefaultBatchSize, workerclient.DefaultBatchWaitMs, p.timeouts.Load)
	p.releaseLoadSlot()
	if loadErr != nil {
		p.logger.Warn("load failed for existing assignment, reassigning", "model", mk, "worker_id", w.ID, "err", loadErr)
		dctx, dcancel := p.registryCtx(ctx)
		if delErr := p.registry.Delete(dctx, key); delErr != nil {
			p.logger.Warn("failed to delete assignment after load failure", "model", mk, "err", delErr)
		}
		dcancel()
		metrics.ModelLoadsTotal.WithLabelValues("false").Inc()
		return p.reassign(ctx, name, version)
	}
	metrics.ModelLoadsTotal.WithLabelValues("true").Inc()
	p.cache.Record(w.ID, mk)
	metrics.PlacementDecisionsTotal.WithLabelValues("reassign").Inc()
	return w, nil
}

func (p *Placer) reassign(ctx context.Context, name, version string) (models.Worker, error) {
	w, err := p.assign(ctx, name, version)
	if err != nil {
		metrics.PlacementDecisionsTotal.WithLabelValues("error").Inc()
		return models.Worker{}, err
	}
	metrics.PlacementDecisionsTotal.WithLabelValues("assign").Inc()
	return w, nil
}

// selectLeastLoaded implements spec.md §4.6.2: read LoadCounter for
// every healthy worker in parallel, pick the smallest, tie-break
// lexicographically by WorkerID.
func (p *Placer) selectLeastLoaded(ctx context.Context) (models.Worker, error) {
	healthy := p.health.GetHealthyWorkers()
	if len(healthy) == 0 {
		return models.Worker{}, fmt.Errorf("%w", ErrNoHealthyWorkers)
	}

	loads := make([]int64, len(healthy))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range healthy {
		i, w := i, w
		g.Go(func() error {
			rctx, cancel := p.registryCtx(gctx)
			v, err := p.registry.Get(rctx, p.loadKey(w.ID))
			cancel()
			if errors.Is(err, registry.ErrNotFound) {
				loads[i] = 0
				return nil
			}
			if err != nil {
				// Transient registry failure reading load: treat as 0 so a
				// healthy worker is never starved of placement consideration.
				loads[i] = 0
				return nil
			}
			var n int64
			if _, scanErr := fmt.Sscanf(v, "%d", &n); scanErr != nil {
				loads[i] = 0
				return nil
			}
			if n < 0 {
				n = 0
			}
			loads[i] = n
			return nil
		})
	}
	_ = g.Wait()

	best := 0
	for i := 1; i < len(healthy); i++ {
		if loads[i] < loads[best] || (loads[i] == loads[best] && healthy[i].ID < healthy[best].ID) {
			best = i
		}
	}
	return healthy[best], nil
}

// assign implements spec.md §4.6.3.
func (p *Placer) assign(ctx context.Context, name, version string) (models.Worker, error) {
	key := p.modelKey(name, version)

	for attempt := 0; attempt < maxAssignAttempts; attempt++ {
		w, err := p.selectLeastLoaded(ctx)
		if err != nil {
			return models.Worker{}, err
		}

		sctx, scancel := p.registryCtx(ctx)
		placed, err := p.registry.SetIfAbsent(sctx, key, string(w.ID), p.assignTTL)
		scancel()
		if err != nil {
			return models.Worker{}, fmt.Errorf("%w: %v", ErrRegistryError, err)
		}

		if !placed {
			// Someone else assigned first: adopt the winner if healthy.
			metrics.AssignmentRacesTotal.Inc()
			gctx, gcancel := p.registryCtx(ctx)
			existing, getErr := p.registry.Get(gctx, key)
			gcancel()
			if getErr == nil {
				if ew, ok := p.health.Get(models.WorkerID(existing)); ok && ew.Healthy {
					return ew, nil
				}
			}
			continue
		}

		ictx, icancel := p.registryCtx(ctx)
		if _, err := p.registry.IncrBy(ictx, p.loadKey(w.ID), 1); err != nil {
			p.logger.Warn("failed to increment load counter after assign", "worker_id", w.ID, "err", err)
		}
		icancel()

		if err := p.acquireLoadSlot(ctx); err != nil {
			return models.Worker{}, fmt.Errorf("%w: %v", ErrWorkerLoadFailed, err)
		}
		client := p.newClient(w)
		loadErr := client.Load(ctx, name, version, workerclient.DefaultBatchSize, workerclient.DefaultBatchWaitMs, p.timeouts.Load)
		p.releaseLoadSlot()
		if loadErr != nil {
			dctx, dcancel := p.registryCtx(ctx)
			if delErr := p.registry.Delete(dctx, key); delErr != nil {
				p.logger.Warn("failed to roll back assignment", "model", name+":"+version, "err", delErr)
			}
			dcancel()
			rctx, rcancel := p.registryCtx(ctx)
			if _, err := p.registry.IncrBy(rctx, p.loadKey(w.ID), -1); err != nil {
				p.logger.Warn("failed to roll back load counter", "worker_id", w.ID, "err", err)
			}
			rcancel()
			metrics.ModelLoadsTotal.WithLabelValues("false").Inc()
			return models.Worker{}, fmt.Errorf("%w: %v", ErrWorkerLoadFailed, loadErr)
		}
		metrics.ModelLoadsTotal.WithLabelValues("true").Inc()

		p.cache.Record(w.ID, name+":"+version)
		return w, nil
	}

	return models.Worker{}, ErrAssignmentRace
}

// FindWorkersWithModel implements spec.md §4.6.4: queries every healthy
// worker's truth directly, never the registry (which may be stale after
// a crash).
func (p *Placer) FindWorkersWithModel(ctx context.Context, name, version string) ([]models.Worker, error) {
	target := name + ":" + version
	healthy := p.health.GetHealthyWorkers()

	var mu sync.Mutex
	var residents []models.Worker

	g, gctx := errgroup.WithContext(context.Background())
	g.SetLimit(p.loadFanout)
	for _, w := range healthy {
		w := w
		g.Go(func() error {
			client := p.newClient(w)
			h, err := client.Health(gctx, p.timeouts.Probe)
			if err != nil {
				return nil // individual failures count as "not resident"
			}
			for _, m := range h.Models {
				if m == target {
					mu.Lock()
					residents = append(residents, w)
					mu.Unlock()
					break
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(residents, func(i, j int) bool { return residents[i].ID < residents[j].ID })
	return residents, nil
}

// UnloadGlobally implements spec.md §4.6.5.
func (p *Placer) UnloadGlobally(ctx context.Context, name, version string) ([]models.WorkerID, error) {
	ctx = detach(ctx)
	residents, err := p.FindWorkersWithModel(ctx, name, version)
	if err != nil {
		return nil, err
	}
	if len(residents) == 0 {
		metrics.UnloadsTotal.WithLabelValues("not_found").Inc()
		return nil, ErrModelNotFound
	}

	var mu sync.Mutex
	var succeeded []models.Worker

	g, gctx := errgroup.WithContext(context.Background())
	g.SetLimit(p.loadFanout)
	for _, w := range residents {
		w := w
		g.Go(func() error {
			client := p.newClient(w)
			if err := client.Unload(gctx, name, version, p.timeouts.Unload); err != nil {
				p.logger.Warn("worker unload failed, reconciler will repair", "worker_id", w.ID, "model", name+":"+version, "err", err)
				return nil
			}
			mu.Lock()
			succeeded = append(succeeded, w)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	key := p.modelKey(name, version)
	dctx, dcancel := p.registryCtx(ctx)
	if err := p.registry.Delete(dctx, key); err != nil {
		p.logger.Warn("failed to delete assignment during global unload", "model", name+":"+version, "err", err)
	}
	dcancel()

	mk := name + ":" + version
	ids := make([]models.WorkerID, 0, len(succeeded))
	for _, w := range succeeded {
		ictx, icancel := p.registryCtx(ctx)
		if _, err := p.registry.IncrBy(ictx, p.loadKey(w.ID), -1); err != nil {
			p.logger.Warn("failed to decrement load counter during unload", "worker_id", w.ID, "err", err)
		}
		icancel()
		p.cache.Remove(w.ID, mk)
		ids = append(ids, w.ID)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	metrics.UnloadsTotal.WithLabelValues("ok").Inc()
	return ids, nil
}

// Unassign implements spec.md §4.6.6: idempotent removal of a single
// worker's assignment without touching any other resident worker.
func (p *Placer) Unassign(ctx context.Context, name, version string, workerID models.WorkerID) error {
	ctx = detach(ctx)
	key := p.modelKey(name, version)
	gctx, gcancel := p.registryCtx(ctx)
	_, err := p.registry.Get(gctx, key)
	gcancel()
	if errors.Is(err, registry.ErrNotFound) {
		// Already unassigned: a repeated call leaves the load counter alone.
		p.cache.Remove(workerID, name+":"+version)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegistryError, err)
	}
	dctx, dcancel := p.registryCtx(ctx)
	err = p.registry.Delete(dctx, key)
	dcancel()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegistryError, err)
	}
	ictx, icancel := p.registryCtx(ctx)
	_, err = p.registry.IncrBy(ictx, p.loadKey(workerID), -1)
	icancel()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegistryError, err)
	}
	p.cache.Remove(workerID, name+":"+version)
	return nil
}
