// Package discovery produces the current membership of the worker fleet,
// per spec's WorkerSource component: a cluster-endpoint variant and a
// static variant.
package discovery

import (
	"context"

	"github.com/ak3tsm7/inference-gateway/internal/models"
)

// Source produces a snapshot list of (host, port) worker addresses on
// demand. On failure, implementations must return the previous snapshot
// rather than a partial or empty one, so a transient discovery error
// never drops healthy workers from routing.
type Source interface {
	List(ctx context.Context) ([]models.Worker, error)
}
