// Package observability aggregates the application's Prometheus
// metrics behind a single registry.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mverde/growmon-go/internal/observability/metrics"
)

// Metrics holds all metric collectors and their shared registry.
type Metrics struct {
	Monitoring *metrics.MonitoringMetrics
	registry   *prometheus.Registry
}

// NewMetrics creates a new instance of Metrics, initializing all
// metric collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	monitoringMetrics, err := metrics.NewMonitoringMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitoring metrics: %w", err)
	}

	return &Metrics{
		Monitoring: monitoringMetrics,
		registry:   registry,
	}, nil
}

// Registry exposes the underlying registry for serving /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
