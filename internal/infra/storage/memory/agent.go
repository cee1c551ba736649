package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/domain/agent"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

// AgentStore is the in-memory agent.Store adapter.
type AgentStore struct{ s *State }

var _ agent.Store = (*AgentStore)(nil)

func (a *AgentStore) Insert(ctx context.Context, ag *agent.Agent) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, exists := a.s.tenants[ag.TenantID]; !exists {
		return platform.NotFound("tenant")
	}
	if _, exists := a.s.projects[ag.ProjectID]; !exists {
		return platform.NotFound("project")
	}
	if _, exists := a.s.agents[ag.ID]; exists {
		return platform.Conflict("agent")
	}
	cp := *ag
	a.s.agents[ag.ID] = &cp
	return nil
}

func (a *AgentStore) Update(ctx context.Context, ag *agent.Agent) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, exists := a.s.agents[ag.ID]; !exists {
		return platform.NotFound("agent")
	}
	cp := *ag
	a.s.agents[ag.ID] = &cp
	return nil
}

func (a *AgentStore) Get(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	ag, ok := a.s.agents[id]
	if !ok {
		return nil, platform.NotFound("agent")
	}
	cp := *ag
	return &cp, nil
}

func (a *AgentStore) List(ctx context.Context, tenantID uuid.UUID) ([]*agent.Agent, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	var out []*agent.Agent
	for _, ag := range a.s.agents {
		if ag.TenantID != tenantID {
			continue
		}
		cp := *ag
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out, nil
}
