package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/domain/apikey"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

// APIKeyStore is the in-memory apikey.Store adapter.
type APIKeyStore struct{ s *State }

var _ apikey.Store = (*APIKeyStore)(nil)

func (k *APIKeyStore) Insert(ctx context.Context, r *apikey.Record) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	if _, exists := k.s.apiKeysByPrefix[r.TokenPrefix]; exists {
		return platform.Conflict("api_key")
	}
	cp := *r
	k.s.apiKeysByPrefix[r.TokenPrefix] = r.ID
	k.s.apiKeys[r.ID] = &cp
	return nil
}

func (k *APIKeyStore) Get(ctx context.Context, id uuid.UUID) (*apikey.Record, error) {
	k.s.mu.RLock()
	defer k.s.mu.RUnlock()
	r, ok := k.s.apiKeys[id]
	if !ok {
		return nil, platform.NotFound("api_key")
	}
	cp := *r
	return &cp, nil
}

func (k *APIKeyStore) GetByPrefix(ctx context.Context, prefix string) (*apikey.Record, error) {
	k.s.mu.RLock()
	defer k.s.mu.RUnlock()
	id, ok := k.s.apiKeysByPrefix[prefix]
	if !ok {
		return nil, platform.NotFound("api_key")
	}
	r, ok := k.s.apiKeys[id]
	if !ok {
		return nil, platform.NotFound("api_key")
	}
	cp := *r
	return &cp, nil
}

func (k *APIKeyStore) List(ctx context.Context, tenantID uuid.UUID) ([]*apikey.Record, error) {
	k.s.mu.RLock()
	defer k.s.mu.RUnlock()
	var out []*apikey.Record
	for _, r := range k.s.apiKeys {
		if r.TenantID != tenantID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (k *APIKeyStore) Update(ctx context.Context, r *apikey.Record) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	if _, exists := k.s.apiKeys[r.ID]; !exists {
		return platform.NotFound("api_key")
	}
	cp := *r
	k.s.apiKeysByPrefix[r.TokenPrefix] = r.ID
	k.s.apiKeys[r.ID] = &cp
	return nil
}
