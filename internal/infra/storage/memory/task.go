package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/domain/task"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

// TaskStore is the in-memory task.Store adapter.
type TaskStore struct{ s *State }

var _ task.Store = (*TaskStore)(nil)

func (t *TaskStore) Enqueue(ctx context.Context, tk *task.Task) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, exists := t.s.tasks[tk.ID]; exists {
		return platform.Conflict("task")
	}
	cp := *tk
	t.s.tasks[tk.ID] = &cp
	t.s.taskQueue = append(t.s.taskQueue, tk.ID)
	return nil
}

func (t *TaskStore) Get(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tk, ok := t.s.tasks[id]
	if !ok {
		return nil, platform.NotFound("task")
	}
	cp := *tk
	return &cp, nil
}

// Update persists tk and fixes up the pending-queue index in the same
// critical section: any existing queue entry for tk.ID is dropped, and a
// fresh one is pushed only if tk.Status is still Pending. No ListPending
// caller can ever observe a task whose status is no longer Pending.
func (t *TaskStore) Update(ctx context.Context, tk *task.Task) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, exists := t.s.tasks[tk.ID]; !exists {
		return platform.NotFound("task")
	}
	filtered := t.s.taskQueue[:0:0]
	for _, id := range t.s.taskQueue {
		if id != tk.ID {
			filtered = append(filtered, id)
		}
	}
	if tk.Status == task.StatusPending {
		filtered = append(filtered, tk.ID)
	}
	t.s.taskQueue = filtered

	cp := *tk
	t.s.tasks[tk.ID] = &cp
	return nil
}

func (t *TaskStore) ListPending(ctx context.Context, tenantID uuid.UUID) ([]*task.Task, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	var out []*task.Task
	for _, id := range t.s.taskQueue {
		tk, ok := t.s.tasks[id]
		if !ok || tk.TenantID != tenantID || tk.Status != task.StatusPending {
			continue
		}
		cp := *tk
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}
