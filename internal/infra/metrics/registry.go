// Package metrics provides the OpenTelemetry-backed implementations of the
// Metrics interfaces declared by internal/application/{auth,provisioning,
// orchestration}, gathered under a single MeterProvider.
package metrics

import "go.opentelemetry.io/otel/metric"

const namespace = "cassandra_core"

// Registry centralizes construction of every metrics implementation over
// one meter provider, so a composition root builds it once and hands each
// sub-metrics struct to the service that owns it.
type Registry struct {
	Auth          *AuthMetrics
	Provisioning  *ProvisioningMetrics
	Orchestration *OrchestrationMetrics
}

// NewRegistry builds every metrics implementation from mp.
func NewRegistry(mp metric.MeterProvider) (*Registry, error) {
	authMetrics, err := newAuthMetrics(mp)
	if err != nil {
		return nil, err
	}
	provisioningMetrics, err := newProvisioningMetrics(mp)
	if err != nil {
		return nil, err
	}
	orchestrationMetrics, err := newOrchestrationMetrics(mp)
	if err != nil {
		return nil, err
	}
	return &Registry{
		Auth:          authMetrics,
		Provisioning:  provisioningMetrics,
		Orchestration: orchestrationMetrics,
	}, nil
}
