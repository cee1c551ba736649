package agent

import (
	"context"

	"github.com/google/uuid"
)

// Store abstracts agent persistence. Insert reports NotFound if the tenant
// or project does not exist, Conflict on a duplicate id; Update reports
// NotFound if the agent does not already exist.
type Store interface {
	Insert(ctx context.Context, a *Agent) error
	Update(ctx context.Context, a *Agent) error
	Get(ctx context.Context, id uuid.UUID) (*Agent, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*Agent, error)
}
