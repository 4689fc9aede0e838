// Command gateway runs the model-placement and request-routing core
// described in this repository: worker discovery, health monitoring,
// the Redis-backed placement registry, the Placer, the Reconciler, and
// the HTTP RoutingFrontend, wired together the way cmd/coordinator wires
// its collaborators in the wider example pack — one root value owning
// everything, constructed once at startup.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/ak3tsm7/inference-gateway/internal/config"
	"github.com/ak3tsm7/inference-gateway/internal/discovery"
	"github.com/ak3tsm7/inference-gateway/internal/frontend"
	"github.com/ak3tsm7/inference-gateway/internal/health"
	"github.com/ak3tsm7/inference-gateway/internal/logging"
	"github.com/ak3tsm7/inference-gateway/internal/placement"
	"github.com/ak3tsm7/inference-gateway/internal/placer"
	"github.com/ak3tsm7/inference-gateway/internal/reconciler"
	"github.com/ak3tsm7/inference-gateway/internal/registry"
	"github.com/ak3tsm7/inference-gateway/internal/workerclient"
)

// version is overwritten at build time via -ldflags, the way the
// original GatewayApplication stamped a build-info banner on boot.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err) // startup-time config errors are fatal before logging exists
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("gateway starting", "version", version, "listen_addr", cfg.ListenAddr, "redis_addr", cfg.Registry.URL)

	store := registry.NewRedisStore(cfg.Registry.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(ctx); err != nil {
		logger.Fatal("failed to connect to registry", "err", err)
	}
	cancel()

	source, err := buildSource(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build worker source", "err", err)
	}

	monitor := health.New(cfg.Timeouts.Probe(), cfg.Concurrency.HealthFanout, workerclient.DefaultFactory, logger)
	cache := placement.New(cfg.Timings.VerifyTTL())

	timeouts := placer.Timeouts{
		Probe:    cfg.Timeouts.Probe(),
		Load:     cfg.Timeouts.Load(),
		Unload:   cfg.Timeouts.Unload(),
		Registry: cfg.Timeouts.Registry(),
	}
	pl := placer.New(store, cache, monitor, workerclient.DefaultFactory, logger, timeouts,
		cfg.Concurrency.LoadFanout, cfg.Registry.ModelKeyPrefix, cfg.Registry.WorkerLoadKeyPrefix, int64(cfg.Registry.TTLSeconds))

	rec := reconciler.New(store, cache, monitor, workerclient.DefaultFactory, logger,
		cfg.Timings.Reconcile(), cfg.Timeouts.Probe(), cfg.Concurrency.HealthFanout,
		cfg.Registry.ModelKeyPrefix, cfg.Registry.WorkerLoadKeyPrefix, int64(cfg.Registry.TTLSeconds))

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	go runDiscoveryLoop(runCtx, source, monitor, cfg.Timings.Discover(), logger)
	go runHealthLoop(runCtx, monitor, cfg.Timings.Health())
	go rec.Run(runCtx)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	fe := frontend.New(pl, logger)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           fe.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway server failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	runCancel()
}

func buildSource(cfg config.Config, logger logging.Logger) (discovery.Source, error) {
	switch cfg.Workers.Discovery.Mode {
	case config.DiscoveryCluster:
		restCfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, err
		}
		clientset, err := kubernetes.NewForConfig(restCfg)
		if err != nil {
			return nil, err
		}
		return discovery.NewClusterSource(clientset, cfg.Workers.Cluster.Namespace, cfg.Workers.Cluster.Service, cfg.Workers.Cluster.TargetPort, logger), nil
	default:
		return discovery.NewStaticSource(cfg.Workers.Static)
	}
}

func runDiscoveryLoop(ctx context.Context, source discovery.Source, monitor *health.Monitor, interval time.Duration, logger logging.Logger) {
	tick := func() {
		workers, err := source.List(ctx)
		if err != nil {
			logger.Warn("worker discovery failed", "err", err)
			return
		}
		monitor.SetWorkers(workers)
	}

	tick()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

func runHealthLoop(ctx context.Context, monitor *health.Monitor, interval time.Duration) {
	monitor.CheckAll(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			monitor.CheckAll(ctx)
		}
	}
}
