package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Store abstracts tenant persistence. Implementations must be safe for
// concurrent use; Insert reports Conflict on a duplicate id, Get reports
// NotFound for a missing id.
type Store interface {
	Insert(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id uuid.UUID) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
}
