package discovery

import (
	"context"
	"sync"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/ak3tsm7/inference-gateway/internal/logging"
	"github.com/ak3tsm7/inference-gateway/internal/models"
)

// EndpointsGetter is the single client-go call this source needs,
// narrowed to an interface so tests can fake the Kubernetes API without
// an envtest cluster.
type EndpointsGetter interface {
	Get(ctx context.Context, name string, opts metav1.GetOptions) (*corev1.Endpoints, error)
}

// ClusterSource discovers workers from the Ready addresses behind a
// Kubernetes Service's Endpoints object, the way the original gateway's
// WorkerHealthService queried the Kubernetes CoreV1 API for worker pods.
type ClusterSource struct {
	endpoints  EndpointsGetter
	service    string
	targetPort int

	logger logging.Logger

	mu       sync.Mutex
	lastGood []models.Worker
}

// NewClusterSource builds a ClusterSource from an in-cluster or
// kubeconfig-derived clientset, scoped to one namespace/service.
func NewClusterSource(clientset kubernetes.Interface, namespace, service string, targetPort int, logger logging.Logger) *ClusterSource {
	return &ClusterSource{
		endpoints:  clientset.CoreV1().Endpoints(namespace),
		service:    service,
		targetPort: targetPort,
		logger:     logger,
	}
}

// List queries the orchestrator for Ready addresses behind the worker
// service. On query failure it returns the previous snapshot and logs,
// never a partial list that would drop healthy workers on a transient
// API error.
func (c *ClusterSource) List(ctx context.Context) ([]models.Worker, error) {
	ep, err := c.endpoints.Get(ctx, c.service, metav1.GetOptions{})
	if err != nil {
		c.mu.Lock()
		prev := c.lastGood
		c.mu.Unlock()
		c.logger.Warn("cluster worker discovery failed, reusing previous snapshot",
			"service", c.service, "err", err, "previous_count", len(prev))
		return prev, nil
	}

	var workers []models.Worker
	for _, subset := range ep.Subsets {
		port := c.targetPort
		if port == 0 && len(subset.Ports) > 0 {
			port = int(subset.Ports[0].Port)
		}
		for _, addr := range subset.Addresses {
			workers = append(workers, models.Worker{
				ID:   models.NewWorkerID(addr.IP, port),
				Host: addr.IP,
				Port: port,
			})
		}
	}

	c.mu.Lock()
	c.lastGood = workers
	c.mu.Unlock()
	return workers, nil
}
