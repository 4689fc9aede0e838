// Package reconciler periodically sweeps truth from each healthy worker
// and repairs the registry, load counters, and PlacementCache — the
// gateway's analogue of the teacher's recoverStuckJobs scan, generalized
// from "requeue orphaned jobs" to "repair model placement drift".
package reconciler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
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

// Reconciler runs the periodic repair sweep described in spec.md §4.7.
type Reconciler struct {
	registry  registry.Store
	cache     *placement.Cache
	health    *health.Monitor
	newClient workerclient.Factory
	logger    logging.Logger

	interval      time.Duration
	probeTimeout  time.Duration
	fanout        int
	modelKeyPrefix string
	loadKeyPrefix  string
	assignTTL      int64 // seconds
}

// New builds a Reconciler.
func New(
	store registry.Store,
	cache *placement.Cache,
	monitor *health.Monitor,
	newClient workerclient.Factory,
	logger logging.Logger,
	interval, probeTimeout time.Duration,
	fanout int,
	modelKeyPrefix, loadKeyPrefix string,
	assignTTLSeconds int64,
) *Reconciler {
	return &Reconciler{
		registry:       store,
		cache:          cache,
		health:         monitor,
		newClient:      newClient,
		logger:         logger,
		interval:       interval,
		probeTimeout:   probeTimeout,
		fanout:         fanout,
		modelKeyPrefix: modelKeyPrefix,
		loadKeyPrefix:  loadKeyPrefix,
		assignTTL:      assignTTLSeconds,
	}
}

// Run ticks every interval until ctx is cancelled. A reconcile error
// anywhere is logged and skipped; the next tick retries. Run never
// blocks routing — it only touches the registry and the PlacementCache,
// both of which are safe for concurrent use.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	if err := r.Reconcile(ctx); err != nil {
		r.logger.Error("reconcile tick failed", "err", err)
		metrics.ReconcileRunsTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.ReconcileRunsTotal.WithLabelValues("ok").Inc()
}

// Reconcile runs one full sweep: spec.md §4.7 steps 1-5.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	healthy := r.health.GetHealthyWorkers()
	healthySet := make(map[models.WorkerID]struct{}, len(healthy))
	for _, w := range healthy {
		healthySet[w.ID] = struct{}{}
	}

	residentSets := r.fetchResidentSets(ctx, healthy)
	r.cache.ReplaceAll(residentSets)

	if err := r.repairAssignments(ctx, healthySet, residentSets); err != nil {
		return fmt.Errorf("repair assignments: %w", err)
	}

	for id, resident := range residentSets {
		if err := r.registry.Set(ctx, r.loadKeyPrefix+string(id), strconv.Itoa(len(resident))); err != nil {
			r.logger.Warn("failed to repair load counter", "worker_id", id, "err", err)
		}
	}

	return nil
}

// fetchResidentSets asks every healthy worker what it actually has
// resident, in parallel, bounded by fanout. The Placer does not call it:
// Placer.FindWorkersWithModel is a sibling implementation of the same
// probe.
func (r *Reconciler) fetchResidentSets(ctx context.Context, healthy []models.Worker) map[models.WorkerID][]string {
	var mu sync.Mutex
	out := make(map[models.WorkerID][]string, len(healthy))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fanout)
	for _, w := range healthy {
		w := w
		g.Go(func() error {
			client := r.newClient(w)
			h, err := client.Health(gctx, r.probeTimeout)
			mu.Lock()
			if err != nil {
				out[w.ID] = nil
			} else {
				out[w.ID] = h.Models
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Reconciler) repairAssignments(ctx context.Context, healthySet map[models.WorkerID]struct{}, residentSets map[models.WorkerID][]string) error {
	keys, err := r.registry.Scan(ctx, r.modelKeyPrefix)
	if err != nil {
		return fmt.Errorf("scan assignments: %w", err)
	}

	residentLookup := make(map[models.WorkerID]map[string]struct{}, len(residentSets))
	for id, modelList := range residentSets {
		set := make(map[string]struct{}, len(modelList))
		for _, k := range modelList {
			set[k] = struct{}{}
		}
		residentLookup[id] = set
	}

	claimed := make(map[string]struct{})

	for _, key := range keys {
		workerIDStr, err := r.registry.Get(ctx, key)
		if err != nil {
			continue // key vanished between scan and get; benign
		}
		workerID := models.WorkerID(workerIDStr)
		modelKey := strings.TrimPrefix(key, r.modelKeyPrefix)

		_, healthyW := healthySet[workerID]
		_, resident := residentLookup[workerID][modelKey]
		if !healthyW || !resident {
			if err := r.registry.Delete(ctx, key); err != nil {
				r.logger.Warn("failed to delete stale assignment", "key", key, "err", err)
				continue
			}
			metrics.ReconcileStaleAssignmentsRemoved.Inc()
			continue
		}
		claimed[modelKey] = struct{}{}
	}

	for workerID, set := range residentLookup {
		for modelKey := range set {
			if _, ok := claimed[modelKey]; ok {
				continue
			}
			key := r.modelKeyPrefix + modelKey
			if _, err := r.registry.SetIfAbsent(ctx, key, string(workerID), r.assignTTL); err != nil {
				r.logger.Warn("failed to ensure assignment", "key", key, "worker_id", workerID, "err", err)
				continue
			}
			claimed[modelKey] = struct{}{}
		}
	}

	return nil
}
