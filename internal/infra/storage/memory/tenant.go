package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/domain/tenant"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

// TenantStore is the in-memory tenant.Store adapter.
type TenantStore struct{ s *State }

var _ tenant.Store = (*TenantStore)(nil)

func (t *TenantStore) Insert(ctx context.Context, tn *tenant.Tenant) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, exists := t.s.tenants[tn.ID]; exists {
		return platform.Conflict("tenant")
	}
	cp := *tn
	t.s.tenants[tn.ID] = &cp
	return nil
}

func (t *TenantStore) Get(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tn, ok := t.s.tenants[id]
	if !ok {
		return nil, platform.NotFound("tenant")
	}
	cp := *tn
	return &cp, nil
}

func (t *TenantStore) List(ctx context.Context) ([]*tenant.Tenant, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := make([]*tenant.Tenant, 0, len(t.s.tenants))
	for _, tn := range t.s.tenants {
		cp := *tn
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
