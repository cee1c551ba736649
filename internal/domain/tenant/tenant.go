// Package tenant models the top-level isolation boundary: a tenant owns
// projects, agents, and API keys, and carries the TTL/origin settings
// resolved by the auth and provisioning services.
package tenant

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

// Settings carries the per-tenant overrides the auth service resolves
// before falling back to its own defaults.
type Settings struct {
	// TokenTTLSeconds overrides the service default access-token TTL when
	// non-nil. A nil value means "use the service default".
	TokenTTLSeconds *int64
	// RefreshTokenTTLSeconds overrides the service default refresh-token
	// TTL. An explicit zero disables refresh tokens for this tenant.
	RefreshTokenTTLSeconds *int64
	// AllowedOrigins is informational metadata for external collaborators
	// (e.g. the HTTP gateway's CORS policy); the core does not interpret it.
	AllowedOrigins []string
}

// Tenant is the root of the identity graph.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Settings  Settings
	CreatedAt time.Time
}

// New validates fields and constructs a Tenant with a fresh id and
// CreatedAt stamped at now.
func New(name string, settings Settings, now time.Time) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, platform.InvalidInput("tenant name must not be empty")
	}
	return &Tenant{
		ID:        uuid.New(),
		Name:      name,
		Settings:  settings,
		CreatedAt: now.UTC(),
	}, nil
}

// ResolveTokenTTL applies the override → tenant → service-default chain.
func (t *Tenant) ResolveTokenTTL(override *int64, serviceDefault time.Duration) time.Duration {
	switch {
	case override != nil:
		return time.Duration(*override) * time.Second
	case t != nil && t.Settings.TokenTTLSeconds != nil:
		return time.Duration(*t.Settings.TokenTTLSeconds) * time.Second
	default:
		return serviceDefault
	}
}

// ResolveRefreshTTL applies the tenant → service-default chain. An explicit
// tenant override of zero disables refresh tokens (returns 0, ok=false).
func (t *Tenant) ResolveRefreshTTL(serviceDefault time.Duration) (ttl time.Duration, enabled bool) {
	if t != nil && t.Settings.RefreshTokenTTLSeconds != nil {
		seconds := *t.Settings.RefreshTokenTTLSeconds
		if seconds == 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	return serviceDefault, true
}
