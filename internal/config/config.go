// Package config loads gateway configuration from a YAML file and applies
// environment-variable overrides, in the envOr/envInt helper style used
// by the cmd/ binaries in this repository, but for the gateway's own
// option set.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type DiscoveryMode string

const (
	DiscoveryCluster DiscoveryMode = "cluster"
	DiscoveryStatic  DiscoveryMode = "static"
)

type WorkersConfig struct {
	Discovery struct {
		Mode DiscoveryMode `yaml:"mode"`
	} `yaml:"discovery"`
	Static  []string `yaml:"static"`
	Cluster struct {
		Namespace  string `yaml:"namespace"`
		Service    string `yaml:"service"`
		Port       int    `yaml:"port"`
		TargetPort int    `yaml:"targetPort"`
	} `yaml:"cluster"`
}

type RegistryConfig struct {
	URL                 string `yaml:"url"`
	ModelKeyPrefix      string `yaml:"modelKeyPrefix"`
	WorkerLoadKeyPrefix string `yaml:"workerLoadKeyPrefix"`
	TTLSeconds          int    `yaml:"ttlSeconds"`
}

type TimingsConfig struct {
	DiscoverMs  int `yaml:"discoverMs"`
	HealthMs    int `yaml:"healthMs"`
	ReconcileMs int `yaml:"reconcileMs"`
	VerifyTTLMs int `yaml:"verifyTtlMs"`
}

type TimeoutsConfig struct {
	ProbeMs    int `yaml:"probeMs"`
	LoadMs     int `yaml:"loadMs"`
	UnloadMs   int `yaml:"unloadMs"`
	RegistryMs int `yaml:"registryMs"`
}

type ConcurrencyConfig struct {
	HealthFanout int `yaml:"healthFanout"`
	LoadFanout   int `yaml:"loadFanout"`
}

type Config struct {
	ListenAddr  string            `yaml:"listenAddr"`
	MetricsAddr string            `yaml:"metricsAddr"`
	LogLevel    string            `yaml:"logLevel"`
	Workers     WorkersConfig     `yaml:"workers"`
	Registry    RegistryConfig    `yaml:"registry"`
	Timings     TimingsConfig     `yaml:"timings"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// Default returns the configuration with every default named in the
// gateway's external-interface contract.
func Default() Config {
	var c Config
	c.ListenAddr = ":8080"
	c.MetricsAddr = ":2113"
	c.LogLevel = "info"
	c.Workers.Discovery.Mode = DiscoveryStatic
	c.Workers.Static = []string{"localhost:8000"}
	c.Workers.Cluster.Port = 80
	c.Registry.ModelKeyPrefix = "model:"
	c.Registry.WorkerLoadKeyPrefix = "worker:load:"
	c.Registry.TTLSeconds = 300
	c.Timings.DiscoverMs = 30000
	c.Timings.HealthMs = 10000
	c.Timings.ReconcileMs = 60000
	c.Timings.VerifyTTLMs = 30000
	c.Timeouts.ProbeMs = 2000
	c.Timeouts.LoadMs = 60000
	c.Timeouts.UnloadMs = 10000
	c.Timeouts.RegistryMs = 2000
	c.Concurrency.HealthFanout = 16
	c.Concurrency.LoadFanout = 4
	return c
}

// Load reads a YAML config file, falling back to Default for a missing
// file, then applies environment-variable overrides.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.applyEnvOverrides()
	return c, nil
}

func (c *Config) applyEnvOverrides() {
	c.ListenAddr = envOr("GATEWAY_LISTEN_ADDR", c.ListenAddr)
	c.MetricsAddr = envOr("GATEWAY_METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = envOr("GATEWAY_LOG_LEVEL", c.LogLevel)
	c.Registry.URL = envOr("REDIS_ADDR", c.Registry.URL)
	c.Registry.ModelKeyPrefix = envOr("GATEWAY_MODEL_KEY_PREFIX", c.Registry.ModelKeyPrefix)
	c.Registry.WorkerLoadKeyPrefix = envOr("GATEWAY_WORKER_LOAD_KEY_PREFIX", c.Registry.WorkerLoadKeyPrefix)
	c.Registry.TTLSeconds = envInt("GATEWAY_REGISTRY_TTL_SECONDS", c.Registry.TTLSeconds)

	if mode := os.Getenv("GATEWAY_WORKERS_DISCOVERY_MODE"); mode != "" {
		c.Workers.Discovery.Mode = DiscoveryMode(mode)
	}
	if static := os.Getenv("GATEWAY_WORKERS_STATIC"); static != "" {
		c.Workers.Static = strings.Split(static, ",")
	}
	c.Workers.Cluster.Namespace = envOr("GATEWAY_CLUSTER_NAMESPACE", c.Workers.Cluster.Namespace)
	c.Workers.Cluster.Service = envOr("GATEWAY_CLUSTER_SERVICE", c.Workers.Cluster.Service)
	c.Workers.Cluster.Port = envInt("GATEWAY_CLUSTER_PORT", c.Workers.Cluster.Port)
	c.Workers.Cluster.TargetPort = envInt("GATEWAY_CLUSTER_TARGET_PORT", c.Workers.Cluster.TargetPort)

	c.Timings.DiscoverMs = envInt("GATEWAY_TIMINGS_DISCOVER_MS", c.Timings.DiscoverMs)
	c.Timings.HealthMs = envInt("GATEWAY_TIMINGS_HEALTH_MS", c.Timings.HealthMs)
	c.Timings.ReconcileMs = envInt("GATEWAY_TIMINGS_RECONCILE_MS", c.Timings.ReconcileMs)
	c.Timings.VerifyTTLMs = envInt("GATEWAY_TIMINGS_VERIFY_TTL_MS", c.Timings.VerifyTTLMs)

	c.Timeouts.ProbeMs = envInt("GATEWAY_TIMEOUTS_PROBE_MS", c.Timeouts.ProbeMs)
	c.Timeouts.LoadMs = envInt("GATEWAY_TIMEOUTS_LOAD_MS", c.Timeouts.LoadMs)
	c.Timeouts.UnloadMs = envInt("GATEWAY_TIMEOUTS_UNLOAD_MS", c.Timeouts.UnloadMs)
	c.Timeouts.RegistryMs = envInt("GATEWAY_TIMEOUTS_REGISTRY_MS", c.Timeouts.RegistryMs)

	c.Concurrency.HealthFanout = envInt("GATEWAY_CONCURRENCY_HEALTH_FANOUT", c.Concurrency.HealthFanout)
	c.Concurrency.LoadFanout = envInt("GATEWAY_CONCURRENCY_LOAD_FANOUT", c.Concurrency.LoadFanout)
}

func (t TimingsConfig) Discover() time.Duration  { return time.Duration(t.DiscoverMs) * time.Millisecond }
func (t TimingsConfig) Health() time.Duration    { return time.Duration(t.HealthMs) * time.Millisecond }
func (t TimingsConfig) Reconcile() time.Duration { return time.Duration(t.ReconcileMs) * time.Millisecond }
func (t TimingsConfig) VerifyTTL() time.Duration { return time.Duration(t.VerifyTTLMs) * time.Millisecond }

func (t TimeoutsConfig) Probe() time.Duration    { return time.Duration(t.ProbeMs) * time.Millisecond }
func (t TimeoutsConfig) Load() time.Duration     { return time.Duration(t.LoadMs) * time.Millisecond }
func (t TimeoutsConfig) Unload() time.Duration   { return time.Duration(t.UnloadMs) * time.Millisecond }
func (t TimeoutsConfig) Registry() time.Duration { return time.Duration(t.RegistryMs) * time.Millisecond }

func (r RegistryConfig) TTL() time.Duration { return time.Duration(r.TTLSeconds) * time.Second }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		var b bool
		if err := json.Unmarshal([]byte(strings.ToLower(v)), &b); err == nil {
			return b
		}
	}
	return def
}
