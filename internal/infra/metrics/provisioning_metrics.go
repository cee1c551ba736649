package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/watchdogstudios/cassandra-core/internal/application/provisioning"
)

var _ provisioning.Metrics = (*ProvisioningMetrics)(nil)

// ProvisioningMetrics records tenant/project/agent identity-graph counts
// for internal/application/provisioning.Service.
type ProvisioningMetrics struct {
	tenantsCreated   metric.Int64Counter
	projectsCreated  metric.Int64Counter
	agentsRegistered metric.Int64Counter
	agentsSuspended  metric.Int64Counter
}

func newProvisioningMetrics(mp metric.MeterProvider) (*ProvisioningMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(ProvisioningMetrics)
	var err error

	if m.tenantsCreated, err = meter.Int64Counter(
		"provisioning_tenants_created_total",
		metric.WithDescription("Total number of tenants created"),
	); err != nil {
		return nil, err
	}
	if m.projectsCreated, err = meter.Int64Counter(
		"provisioning_projects_created_total",
		metric.WithDescription("Total number of projects created"),
	); err != nil {
		return nil, err
	}
	if m.agentsRegistered, err = meter.Int64Counter(
		"provisioning_agents_registered_total",
		metric.WithDescription("Total number of agents registered"),
	); err != nil {
		return nil, err
	}
	if m.agentsSuspended, err = meter.Int64Counter(
		"provisioning_agents_suspended_total",
		metric.WithDescription("Total number of agents suspended by the heartbeat sweep"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *ProvisioningMetrics) IncTenantCreated(ctx context.Context) {
	m.tenantsCreated.Add(ctx, 1)
}

func (m *ProvisioningMetrics) IncProjectCreated(ctx context.Context, tenantID string) {
	m.projectsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant_id", tenantID)))
}

func (m *ProvisioningMetrics) IncAgentRegistered(ctx context.Context, tenantID string) {
	m.agentsRegistered.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant_id", tenantID)))
}

func (m *ProvisioningMetrics) IncAgentsSuspended(ctx context.Context, count int) {
	m.agentsSuspended.Add(ctx, int64(count))
}
