package task

import (
	"context"

	"github.com/google/uuid"
)

// Store abstracts task persistence. Enqueue places a task in the pending
// queue; Conflict on a duplicate id. ListPending returns tasks with
// status Pending in non-decreasing ScheduledAt order. Update that sets a
// non-Pending status must remove the task from the pending index in the
// same critical section, so no ListPending caller ever observes a task
// whose status is no longer Pending.
type Store interface {
	Enqueue(ctx context.Context, t *Task) error
	Get(ctx context.Context, id uuid.UUID) (*Task, error)
	Update(ctx context.Context, t *Task) error
	ListPending(ctx context.Context, tenantID uuid.UUID) ([]*Task, error)
}
