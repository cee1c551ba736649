package project

import (
	"context"

	"github.com/google/uuid"
)

// Store abstracts project persistence. Insert reports NotFound if the
// owning tenant does not exist, Conflict on a duplicate id.
type Store interface {
	Insert(ctx context.Context, p *Project) error
	Get(ctx context.Context, id uuid.UUID) (*Project, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*Project, error)
}
