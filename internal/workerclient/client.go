// Package workerclient is a typed HTTP client against a single worker's
// health/load/unload surface.
package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ak3tsm7/inference-gateway/internal/models"
)

// HealthResponse is the subset of a worker's /health body this gateway
// consumes. Unknown fields are tolerated for forward compatibility.
type HealthResponse struct {
	Status string   `json:"status"`
	Models []string `json:"models"`
}

// LoadRequest is the body sent to a worker's /models/load.
type LoadRequest struct {
	ModelName   string `json:"model_name"`
	Version     string `json:"version"`
	BatchSize   int    `json:"batch_size,omitempty"`
	BatchWaitMs int    `json:"batch_wait_ms,omitempty"`
}

// UnloadRequest is the body sent to a worker's /models/unload.
type UnloadRequest struct {
	ModelName string `json:"model_name"`
	Version   string `json:"version"`
}

// DefaultBatchSize and DefaultBatchWaitMs match the original
// Java ModelLoadRequest defaults.
const (
	DefaultBatchSize   = 32
	DefaultBatchWaitMs = 50
)

// Client talks to one worker. Timeouts are per-call, not on the
// underlying http.Client, so a single Client can serve health (2s),
// load (60s), and unload (10s) calls with their own deadlines.
type Client struct {
	httpClient *http.Client
	worker     models.Worker
}

// New builds a Client for a single worker snapshot.
func New(w models.Worker) *Client {
	return &Client{httpClient: &http.Client{}, worker: w}
}

// Health probes GET {worker}/health with the given timeout.
func (c *Client) Health(ctx context.Context, timeout time.Duration) (HealthResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.worker.BaseURL()+"/health", nil)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("health probe %s: %w", c.worker.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return HealthResponse{}, fmt.Errorf("health probe %s: status %d", c.worker.ID, resp.StatusCode)
	}

	var h HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return HealthResponse{}, fmt.Errorf("decode health response from %s: %w", c.worker.ID, err)
	}
	return h, nil
}

// Load requests the worker load name:version, with the given batch
// tuning. A 200 response with "already loaded" semantics is success:
// the worker is the one that decides idempotence, this client only
// needs a non-error status.
func (c *Client) Load(ctx context.Context, name, version string, batchSize, batchWaitMs int, timeout time.Duration) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchWaitMs <= 0 {
		batchWaitMs = DefaultBatchWaitMs
	}
	body := LoadRequest{ModelName: name, Version: version, BatchSize: batchSize, BatchWaitMs: batchWaitMs}
	return c.post(ctx, "/models/load", body, timeout)
}

// Unload requests the worker unload name:version.
func (c *Client) Unload(ctx context.Context, name, version string, timeout time.Duration) error {
	body := UnloadRequest{ModelName: name, Version: version}
	return c.post(ctx, "/models/unload", body, timeout)
}

func (c *Client) post(ctx context.Context, path string, body any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request for %s%s: %w", c.worker.ID, path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.worker.BaseURL()+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request for %s%s: %w", c.worker.ID, path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s%s: %w", c.worker.ID, path, err)
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s%s: status %d", c.worker.ID, path, resp.StatusCode)
	}
	return nil
}

// Factory builds a Client for a given worker snapshot. The Placer and
// Reconciler depend on this instead of *Client directly so tests can
// substitute a fake.
type Factory func(w models.Worker) Caller

// Caller is the subset of *Client the Placer and Reconciler call
// through, so tests can fake it without standing up real HTTP servers.
type Caller interface {
	Health(ctx context.Context, timeout time.Duration) (HealthResponse, error)
	Load(ctx context.Context, name, version string, batchSize, batchWaitMs int, timeout time.Duration) error
	Unload(ctx context.Context, name, version string, timeout time.Duration) error
}

// DefaultFactory builds real HTTP Clients.
func DefaultFactory(w models.Worker) Caller { return New(w) }
