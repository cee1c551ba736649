package auth

import "context"

// Metrics receives counts for the operations Service performs, so an
// embedding process can export them without Service depending on any
// particular metrics backend.
type Metrics interface {
	IncAPIKeyIssued(ctx context.Context, tenantID string)
	IncAPIKeyRotated(ctx context.Context, tenantID string)
	IncAPIKeyRevoked(ctx context.Context, tenantID string)
	IncTokenIssued(ctx context.Context, principalType string)
	IncAuthFailure(ctx context.Context, reason string)
}

type noopMetrics struct{}

func (noopMetrics) IncAPIKeyIssued(context.Context, string)  {}
func (noopMetrics) IncAPIKeyRotated(context.Context, string) {}
func (noopMetrics) IncAPIKeyRevoked(context.Context, string) {}
func (noopMetrics) IncTokenIssued(context.Context, string)   {}
func (noopMetrics) IncAuthFailure(context.Context, string)   {}
