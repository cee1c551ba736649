package provisioning

import "context"

// Metrics receives counts for the identity-graph operations Service
// performs, so an embedding process can export them without Service
// depending on any particular metrics backend.
type Metrics interface {
	IncTenantCreated(ctx context.Context)
	IncProjectCreated(ctx context.Context, tenantID string)
	IncAgentRegistered(ctx context.Context, tenantID string)
	IncAgentsSuspended(ctx context.Context, count int)
}

type noopMetrics struct{}

func (noopMetrics) IncTenantCreated(context.Context)           {}
func (noopMetrics) IncProjectCreated(context.Context, string)  {}
func (noopMetrics) IncAgentRegistered(context.Context, string) {}
func (noopMetrics) IncAgentsSuspended(context.Context, int)    {}
