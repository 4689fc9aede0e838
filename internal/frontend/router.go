// Package frontend is the RoutingFrontend: it parses inbound request
// paths, consults the Placer, and hands off to a reverse proxy. Path
// parsing follows the teacher pack's manual-prefix style (torua's
// cmd/coordinator/main.go) rather than a path-template router.
package frontend

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/ak3tsm7/inference-gateway/internal/logging"
	"github.com/ak3tsm7/inference-gateway/internal/metrics"
	"github.com/ak3tsm7/inference-gateway/internal/placer"
)

// Frontend owns the HTTP surface described in spec.md §6.
type Frontend struct {
	placer *placer.Placer
	logger logging.Logger
}

// New builds a Frontend. It takes no fallback handler: a request path
// outside /models/ is not forwarded anywhere and gets a 404.
func New(p *placer.Placer, logger logging.Logger) *Frontend {
	return &Frontend{placer: p, logger: logger}
}

func (f *Frontend) proxyErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	f.logger.Warn("proxy error forwarding to worker", "err", err, "path", r.URL.Path)
	w.WriteHeader(http.StatusBadGateway)
}

// Handler returns the http.Handler for the gateway's entire inbound
// surface, wrapped in request-ID propagation.
func (f *Frontend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/models/unload", f.handleUnload)
	mux.HandleFunc("/models/", f.handleModelPath)
	return withRequestID(mux)
}

// handleModelPath parses /models/{name}/versions/{version}/{action} and
// dispatches per spec.md §4.8. Any other shape under /models/ is a 400.
func (f *Frontend) handleModelPath(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name, version, action, ok := parseModelPath(r.URL.Path)
	if !ok {
		writeError(w, placer.ErrBadRequest, "malformed model path")
		return
	}

	switch action {
	case "predict":
		f.forwardPredict(w, r, name, version)
	case "load":
		f.forwardLoad(w, r, name, version)
	default:
		f.forwardOther(w, r, name, version, action)
	}
	metrics.RequestDurationSeconds.WithLabelValues(labelFor(action)).Observe(time.Since(start).Seconds())
}

func labelFor(action string) string {
	switch action {
	case "predict", "load":
		return action
	default:
		return "other"
	}
}

func (f *Frontend) forwardPredict(w http.ResponseWriter, r *http.Request, name, version string) {
	worker, err := f.placer.GetWorkerForModel(r.Context(), name, version)
	if err != nil {
		writeError(w, err, "placement failed")
		return
	}
	f.proxyTo(w, r, worker.BaseURL()+"/models/"+name+"/versions/"+version+"/predict")
}

func (f *Frontend) forwardLoad(w http.ResponseWriter, r *http.Request, name, version string) {
	worker, err := f.placer.GetWorkerForModel(r.Context(), name, version)
	if err != nil {
		writeError(w, err, "placement failed")
		return
	}
	f.proxyTo(w, r, worker.BaseURL()+"/models/load")
}

func (f *Frontend) forwardOther(w http.ResponseWriter, r *http.Request, name, version, action string) {
	worker, err := f.placer.GetWorkerForModel(r.Context(), name, version)
	if err != nil {
		writeError(w, err, "placement failed")
		return
	}
	f.proxyTo(w, r, worker.BaseURL()+r.URL.Path)
}

// proxyTo builds a fresh ReverseProxy for this single request rather
// than sharing one across calls: Handler serves many requests
// concurrently, and a shared proxy's Director field would race between
// two in-flight requests targeting different workers.
func (f *Frontend) proxyTo(w http.ResponseWriter, r *http.Request, rawTarget string) {
	target, err := url.Parse(rawTarget)
	if err != nil {
		f.logger.Error("failed to parse proxy target", "target", rawTarget, "err", err)
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	r.Header.Set(requestIDHeader, requestIDFromContext(r.Context()))

	proxy := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.URL.Path = target.Path
			req.Host = target.Host
		},
		ErrorHandler: f.proxyErrorHandler,
	}
	proxy.ServeHTTP(w, r)
}

type unloadRequest struct {
	ModelName string `json:"model_name"`
	Version   string `json:"version"`
}

type unloadResponse struct {
	Status    string   `json:"status"`
	ModelName string   `json:"model_name"`
	Version   string   `json:"version"`
	Workers   []string `json:"workers"`
}

func (f *Frontend) handleUnload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body unloadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		f.logger.Info("invalid unload request body", "err", err)
		writeError(w, placer.ErrBadRequest, "invalid JSON body")
		return
	}
	if body.ModelName == "" || body.Version == "" {
		f.logger.Info("unload request missing required fields")
		writeError(w, placer.ErrBadRequest, "model_name and version are required")
		return
	}

	workerIDs, err := f.placer.UnloadGlobally(r.Context(), body.ModelName, body.Version)
	if err != nil {
		writeError(w, err, "unload failed")
		return
	}

	workers := make([]string, 0, len(workerIDs))
	for _, id := range workerIDs {
		workers = append(workers, string(id))
	}

	resp := unloadResponse{Status: "unloaded", ModelName: body.ModelName, Version: body.Version, Workers: workers}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, err error, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "detail": err.Error()})
}

// parseModelPath splits "/models/{name}/versions/{version}/{action}".
func parseModelPath(path string) (name, version, action string, ok bool) {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) != 5 || parts[0] != "models" || parts[2] != "versions" {
		return "", "", "", false
	}
	if parts[1] == "" || parts[3] == "" || parts[4] == "" {
		return "", "", "", false
	}
	return parts[1], parts[3], parts[4], true
}
