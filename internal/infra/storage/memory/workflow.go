package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/domain/workflow"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

// WorkflowStore is the in-memory workflow.Store adapter. It persists only
// the immutable Workflow template; WorkflowRun state lives in the
// orchestration engine's in-process bookkeeping.
type WorkflowStore struct{ s *State }

var _ workflow.Store = (*WorkflowStore)(nil)

func (w *WorkflowStore) Insert(ctx context.Context, wf *workflow.Workflow) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if _, exists := w.s.workflows[wf.ID]; exists {
		return platform.Conflict("workflow")
	}
	cp := *wf
	w.s.workflows[wf.ID] = &cp
	return nil
}

func (w *WorkflowStore) Get(ctx context.Context, id uuid.UUID) (*workflow.Workflow, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()
	wf, ok := w.s.workflows[id]
	if !ok {
		return nil, platform.NotFound("workflow")
	}
	cp := *wf
	return &cp, nil
}

func (w *WorkflowStore) List(ctx context.Context, tenantID uuid.UUID) ([]*workflow.Workflow, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()
	var out []*workflow.Workflow
	for _, wf := range w.s.workflows {
		if wf.TenantID != tenantID {
			continue
		}
		cp := *wf
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
