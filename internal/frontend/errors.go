package frontend

import (
	"errors"
	"net/http"

	"github.com/ak3tsm7/inference-gateway/internal/placer"
)

// statusFor maps a Placer error kind to the HTTP status the frontend
// replies with, per spec.md §7.
func statusFor(err error) int {
	switch {
	case errors.Is(err, placer.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, placer.ErrModelNotFound):
		return http.StatusNotFound
	case errors.Is(err, placer.ErrNoHealthyWorkers):
		return http.StatusServiceUnavailable
	case errors.Is(err, placer.ErrAssignmentRace):
		return http.StatusServiceUnavailable
	case errors.Is(err, placer.ErrWorkerLoadFailed):
		return http.StatusBadGateway
	case errors.Is(err, placer.ErrRegistryError):
		return http.StatusBadGateway
	case errors.Is(err, placer.ErrWorkerUnavailable):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
