package placer

import "errors"

// Error kinds surfaced by the Placer to the RoutingFrontend. Each maps to
// a specific HTTP status there; see internal/frontend.
var (
	// ErrRegistryError wraps a RegistryStore operation failure or timeout.
	ErrRegistryError = errors.New("registry error")
	// ErrNoHealthyWorkers is returned when the healthy worker set is empty.
	ErrNoHealthyWorkers = errors.New("no healthy workers")
	// ErrAssignmentRace is returned when setIfAbsent loses three times in a row.
	ErrAssignmentRace = errors.New("assignment race exceeded retry budget")
	// ErrWorkerLoadFailed wraps a non-2xx or timed-out load call.
	ErrWorkerLoadFailed = errors.New("worker load failed")
	// ErrWorkerUnavailable marks a worker unhealthy after repeated probe failures.
	ErrWorkerUnavailable = errors.New("worker unavailable")
	// ErrModelNotFound is returned when unloadGlobally finds no resident worker.
	ErrModelNotFound = errors.New("model not found on any worker")
	// ErrBadRequest marks a malformed request body or missing fields.
	ErrBadRequest = errors.New("bad request")
)
