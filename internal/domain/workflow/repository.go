package workflow

import (
	"context"

	"github.com/google/uuid"
)

// Store abstracts workflow *template* persistence. WorkflowRun state is
// engine-internal bookkeeping (see internal/application/orchestration),
// not exposed through this interface, matching the original platform's
// separation of durable templates from in-process run state.
type Store interface {
	Insert(ctx context.Context, w *Workflow) error
	Get(ctx context.Context, id uuid.UUID) (*Workflow, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*Workflow, error)
}
