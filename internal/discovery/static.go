package discovery

import (
	"context"
	"fmt"

	"github.com/ak3tsm7/inference-gateway/internal/models"
)

// StaticSource returns a fixed list of workers read from configuration.
type StaticSource struct {
	workers []models.Worker
}

// NewStaticSource parses a list of "host:port" addresses.
func NewStaticSource(addrs []string) (*StaticSource, error) {
	workers := make([]models.Worker, 0, len(addrs))
	for _, addr := range addrs {
		id := models.WorkerID(addr)
		host, port, err := models.ParseWorkerID(id)
		if err != nil {
			return nil, fmt.Errorf("static worker source: %w", err)
		}
		workers = append(workers, models.Worker{ID: id, Host: host, Port: port})
	}
	return &StaticSource{workers: workers}, nil
}

func (s *StaticSource) List(ctx context.Context) ([]models.Worker, error) {
	return s.workers, nil
}
