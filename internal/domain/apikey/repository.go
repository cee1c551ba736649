package apikey

import (
	"context"

	"github.com/google/uuid"
)

// Store abstracts API key persistence. Insert reports Conflict on a
// duplicate prefix; GetByPrefix must be O(1) average (a prefix→id index).
type Store interface {
	Insert(ctx context.Context, r *Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	GetByPrefix(ctx context.Context, prefix string) (*Record, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*Record, error)
	Update(ctx context.Context, r *Record) error
}
