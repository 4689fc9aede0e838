package frontend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ak3tsm7/inference-gateway/internal/health"
	"github.com/ak3tsm7/inference-gateway/internal/logging"
	"github.com/ak3tsm7/inference-gateway/internal/models"
	"github.com/ak3tsm7/inference-gateway/internal/placement"
	"github.com/ak3tsm7/inference-gateway/internal/placer"
	"github.com/ak3tsm7/inference-gateway/internal/registry"
	"github.com/ak3tsm7/inference-gateway/internal/workerclient"
)

func TestParseModelPath(t *testing.T) {
	cases := []struct {
		path                   string
		ok                     bool
		name, version, action string
	}{
		{"/models/iris/versions/v1/predict", true, "iris", "v1", "predict"},
		{"/models/iris/versions/v1/load", true, "iris", "v1", "load"},
		{"/models/iris/versions/v1/explain", true, "iris", "v1", "explain"},
		{"/models/iris/versions//predict", false, "", "", ""},
		{"/models/iris/versions/v1", false, "", "", ""},
		{"/models/iris/v1/predict", false, "", "", ""},
		{"/models//versions/v1/predict", false, "", "", ""},
		{"/unload", false, "", "", ""},
	}
	for _, c := range cases {
		name, version, action, ok := parseModelPath(c.path)
		assert.Equal(t, c.ok, ok, "path %q", c.path)
		if c.ok {
			assert.Equal(t, c.name, name, "path %q", c.path)
			assert.Equal(t, c.version, version, "path %q", c.path)
			assert.Equal(t, c.action, action, "path %q", c.path)
		}
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(placer.ErrBadRequest))
	assert.Equal(t, http.StatusNotFound, statusFor(placer.ErrModelNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(placer.ErrNoHealthyWorkers))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(placer.ErrAssignmentRace))
	assert.Equal(t, http.StatusBadGateway, statusFor(placer.ErrWorkerLoadFailed))
	assert.Equal(t, http.StatusBadGateway, statusFor(placer.ErrRegistryError))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(placer.ErrWorkerUnavailable))
	assert.Equal(t, http.StatusBadGateway, statusFor(errors.New("unknown")))
}

type stubCaller struct {
	resident []string
}

func (s *stubCaller) Health(ctx context.Context, timeout time.Duration) (workerclient.HealthResponse, error) {
	return workerclient.HealthResponse{Status: "ok", Models: s.resident}, nil
}
func (s *stubCaller) Load(ctx context.Context, name, version string, batchSize, batchWaitMs int, timeout time.Duration) error {
	s.resident = append(s.resident, name+":"+version)
	return nil
}
func (s *stubCaller) Unload(ctx context.Context, name, version string, timeout time.Duration) error {
	return nil
}

func newTestFrontend(t *testing.T) *Frontend {
	t.Helper()
	callers := map[models.WorkerID]*stubCaller{
		"w1:8000": {},
	}
	factory := func(w models.Worker) workerclient.Caller { return callers[w.ID] }

	store := registry.NewFakeStore()
	cache := placement.New(30 * time.Second)
	monitor := health.New(2*time.Second, 4, factory, logging.Nop())
	monitor.SetWorkers([]models.Worker{{ID: "w1:8000", Host: "w1", Port: 8000}})
	monitor.CheckAll(context.Background())

	timeouts := placer.Timeouts{Probe: 2 * time.Second, Load: 10 * time.Second, Unload: 10 * time.Second, Registry: time.Second}
	p := placer.New(store, cache, monitor, factory, logging.Nop(), timeouts, 4, "model:", "worker:load:", 300)
	return New(p, logging.Nop())
}

func TestHandleUnload_MissingFieldsIsBadRequest(t *testing.T) {
	f := newTestFrontend(t)
	req := httptest.NewRequest(http.MethodPost, "/models/unload", bytes.NewReader([]byte(`{"model_name":"iris"}`)))
	rec := httptest.NewRecorder()
	f.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUnload_InvalidJSONIsBadRequest(t *testing.T) {
	f := newTestFrontend(t)
	req := httptest.NewRequest(http.MethodPost, "/models/unload", bytes.NewReader([]byte(`not json`)))
	rec := httptest.NewRecorder()
	f.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUnload_NoResidentIsNotFound(t *testing.T) {
	f := newTestFrontend(t)
	body, err := json.Marshal(map[string]string{"model_name": "ghost", "version": "v1"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/models/unload", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleModelPath_MalformedIsBadRequest(t *testing.T) {
	f := newTestFrontend(t)
	req := httptest.NewRequest(http.MethodGet, "/models/iris/v1", nil)
	rec := httptest.NewRecorder()
	f.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleModelPath_PropagatesRequestID(t *testing.T) {
	f := newTestFrontend(t)
	req := httptest.NewRequest(http.MethodGet, "/models/iris/v1", nil)
	rec := httptest.NewRecorder()
	f.Handler().ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}
