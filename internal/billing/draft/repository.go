package draft

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows List results.
type ListFilter struct {
	Status      Status
	ClientEmail string
	Limit       int
}

// Repository defines draft invoice persistence.
type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id uuid.UUID) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, filter ListFilter) ([]Invoice, error)
}
