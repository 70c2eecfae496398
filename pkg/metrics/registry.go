package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry manages Prometheus metric registration
type Registry struct {
	registry     *prometheus.Registry
	keyerMetrics *KeyerMetrics
}

// NewRegistry creates a new metrics registry with the default namespace "remotecw"
func NewRegistry() *Registry {
	return NewRegistryWithConfig("remotecw", "")
}

// NewRegistryWithConfig creates a new metrics registry with custom namespace and subsystem
func NewRegistryWithConfig(namespace, subsystem string) *Registry {
	return &Registry{
		registry:     prometheus.NewRegistry(),
		keyerMetrics: NewKeyerMetricsWithConfig(namespace, subsystem),
	}
}

// Register registers the client metrics and the Go runtime collectors
func (r *Registry) Register() error {
	if err := r.registry.Register(r.keyerMetrics); err != nil {
		return err
	}

	r.registry.MustRegister(collectors.NewGoCollector())
	r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return nil
}

// GetRegistry returns the underlying Prometheus registry
func (r *Registry) GetRegistry() *prometheus.Registry {
	return r.registry
}

// GetMetrics returns the client metrics instance
func (r *Registry) GetMetrics() *KeyerMetrics {
	return r.keyerMetrics
}

// MustRegister registers all metrics and panics on error
func (r *Registry) MustRegister() {
	if err := r.Register(); err != nil {
		panic(err)
	}
}
