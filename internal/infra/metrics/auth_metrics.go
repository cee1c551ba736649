package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/watchdogstudios/cassandra-core/internal/application/auth"
)

var _ auth.Metrics = (*AuthMetrics)(nil)

// AuthMetrics records key issuance/rotation/revocation and token
// issuance/failure counts for internal/application/auth.Service.
type AuthMetrics struct {
	apiKeysIssued  metric.Int64Counter
	apiKeysRotated metric.Int64Counter
	apiKeysRevoked metric.Int64Counter
	tokensIssued   metric.Int64Counter
	authFailures   metric.Int64Counter
}

func newAuthMetrics(mp metric.MeterProvider) (*AuthMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(AuthMetrics)
	var err error

	if m.apiKeysIssued, err = meter.Int64Counter(
		"auth_api_keys_issued_total",
		metric.WithDescription("Total number of API keys issued"),
	); err != nil {
		return nil, err
	}
	if m.apiKeysRotated, err = meter.Int64Counter(
		"auth_api_keys_rotated_total",
		metric.WithDescription("Total number of API keys rotated"),
	); err != nil {
		return nil, err
	}
	if m.apiKeysRevoked, err = meter.Int64Counter(
		"auth_api_keys_revoked_total",
		metric.WithDescription("Total number of API keys revoked"),
	); err != nil {
		return nil, err
	}
	if m.tokensIssued, err = meter.Int64Counter(
		"auth_tokens_issued_total",
		metric.WithDescription("Total number of bearer tokens issued"),
	); err != nil {
		return nil, err
	}
	if m.authFailures, err = meter.Int64Counter(
		"auth_failures_total",
		metric.WithDescription("Total number of authentication/validation failures"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *AuthMetrics) IncAPIKeyIssued(ctx context.Context, tenantID string) {
	m.apiKeysIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant_id", tenantID)))
}

func (m *AuthMetrics) IncAPIKeyRotated(ctx context.Context, tenantID string) {
	m.apiKeysRotated.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant_id", tenantID)))
}

func (m *AuthMetrics) IncAPIKeyRevoked(ctx context.Context, tenantID string) {
	m.apiKeysRevoked.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant_id", tenantID)))
}

func (m *AuthMetrics) IncTokenIssued(ctx context.Context, principalType string) {
	m.tokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("principal_type", principalType)))
}

func (m *AuthMetrics) IncAuthFailure(ctx context.Context, reason string) {
	m.authFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
