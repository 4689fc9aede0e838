// Command loadgen fires concurrent predict requests at a running
// gateway and reports completion, adapted from the teacher's cmd/bench
// (same flag/env-driven concurrency fan-out),
// but driving the gateway's HTTP surface instead of enqueueing directly
// into Redis.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type benchConfig struct {
	gatewayAddr string
	modelName   string
	modelVer    string
	requests    int
	concurrency int
	timeoutMs   int
}

func main() {
	cfg := parseFlags()

	log.Printf("Starting load generation: requests=%d model=%s:%s concurrency=%d timeout_ms=%d",
		cfg.requests, cfg.modelName, cfg.modelVer, cfg.concurrency, cfg.timeoutMs)

	start := time.Now()
	successes, failures := runLoad(cfg)
	duration := time.Since(start)

	log.Printf("Load generation complete in %v: successes=%d failures=%d", duration, successes, failures)
}

func parseFlags() benchConfig {
	cfg := benchConfig{}
	flag.StringVar(&cfg.gatewayAddr, "gateway", envOr("LOADGEN_GATEWAY_ADDR", "http://localhost:8080"), "gateway base URL")
	flag.StringVar(&cfg.modelName, "model", envOr("LOADGEN_MODEL_NAME", "iris"), "model name")
	flag.StringVar(&cfg.modelVer, "version", envOr("LOADGEN_MODEL_VERSION", "v1"), "model version")
	flag.IntVar(&cfg.requests, "requests", envInt("LOADGEN_REQUESTS", 100), "number of predict requests")
	flag.IntVar(&cfg.concurrency, "concurrency", envInt("LOADGEN_CONCURRENCY", 10), "concurrent senders")
	flag.IntVar(&cfg.timeoutMs, "timeout", envInt("LOADGEN_TIMEOUT_MS", 5000), "per-request timeout ms")
	flag.Parse()
	return cfg
}

func runLoad(cfg benchConfig) (successes, failures int64) {
	client := &http.Client{Timeout: time.Duration(cfg.timeoutMs) * time.Millisecond}
	url := fmt.Sprintf("%s/models/%s/versions/%s/predict", cfg.gatewayAddr, cfg.modelName, cfg.modelVer)
	body := []byte(`{"features":[1,2,3,4]}`)

	workCh := make(chan struct{})
	wg := sync.WaitGroup{}
	wg.Add(cfg.concurrency)

	for i := 0; i < cfg.concurrency; i++ {
		go func() {
			defer wg.Done()
			for range workCh {
				ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.timeoutMs)*time.Millisecond)
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
				if err != nil {
					atomic.AddInt64(&failures, 1)
					cancel()
					continue
				}
				req.Header.Set("Content-Type", "application/json")
				resp, err := client.Do(req)
				cancel()
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				resp.Body.Close()
				if resp.StatusCode < 300 {
					atomic.AddInt64(&successes, 1)
				} else {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	for i := 0; i < cfg.requests; i++ {
		workCh <- struct{}{}
	}
	close(workCh)
	wg.Wait()
	return successes, failures
}

// util helpers, same shape as the teacher's cmd/bench
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
