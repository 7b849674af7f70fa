package draft

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

// MemoryRepository is an in-memory Repository used by tests and local
// development without Postgres.
type MemoryRepository struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]Invoice
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{invoices: make(map[uuid.UUID]Invoice)}
}

// Create stores a new draft invoice.
func (r *MemoryRepository) Create(ctx context.Context, inv *Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[inv.ID]; ok {
		return fmt.Errorf("draft %s: %w", inv.ID, shared.ErrDuplicate)
	}
	r.invoices[inv.ID] = *inv
	return nil
}

// Get returns a copy of the stored draft.
func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, fmt.Errorf("draft %s: %w", id, shared.ErrNotFound)
	}
	return &inv, nil
}

// Update overwrites a stored draft.
func (r *MemoryRepository) Update(ctx context.Context, inv *Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[inv.ID]; !ok {
		return fmt.Errorf("draft %s: %w", inv.ID, shared.ErrNotFound)
	}
	r.invoices[inv.ID] = *inv
	return nil
}

// List returns drafts matching the filter ordered by creation time.
func (r *MemoryRepository) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for _, inv := range r.invoices {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.ClientEmail != "" && inv.ClientEmail != filter.ClientEmail {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
