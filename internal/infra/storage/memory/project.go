package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/domain/project"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

// ProjectStore is the in-memory project.Store adapter.
type ProjectStore struct{ s *State }

var _ project.Store = (*ProjectStore)(nil)

func (p *ProjectStore) Insert(ctx context.Context, pr *project.Project) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, exists := p.s.tenants[pr.TenantID]; !exists {
		return platform.NotFound("tenant")
	}
	if _, exists := p.s.projects[pr.ID]; exists {
		return platform.Conflict("project")
	}
	cp := *pr
	p.s.projects[pr.ID] = &cp
	return nil
}

func (p *ProjectStore) Get(ctx context.Context, id uuid.UUID) (*project.Project, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	pr, ok := p.s.projects[id]
	if !ok {
		return nil, platform.NotFound("project")
	}
	cp := *pr
	return &cp, nil
}

func (p *ProjectStore) List(ctx context.Context, tenantID uuid.UUID) ([]*project.Project, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	var out []*project.Project
	for _, pr := range p.s.projects {
		if pr.TenantID != tenantID {
			continue
		}
		cp := *pr
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
