// Package invoicing defines the external invoice directory capability the
// billing workflow consumes. Persistence of invoices lives entirely in the
// external service; this package owns no storage.
package invoicing

import "context"

// LineItem is one billable row sent to the external directory.
type LineItem struct {
	Name         string
	Quantity     float64
	UnitAmount   float64
	CurrencyCode string
}

// CreateDraftInput describes a draft creation call.
type CreateDraftInput struct {
	CustomerID    string
	Lines         []LineItem
	CurrencyCode  string
	DueOffsetDays int
	PONumber      string
	Notes         string
}

// Snapshot is a read-only view of an external invoice.
type Snapshot struct {
	ID         string
	Status     string
	Amount     float64
	CustomerID string
}

// Directory is the external invoicing capability.
// CreateInvoiceDraft and SendInvoice are not idempotent and must never be
// retried blindly; Get and List are safe to retry.
type Directory interface {
	CreateInvoiceDraft(ctx context.Context, in CreateDraftInput) (string, error)
	SendInvoice(ctx context.Context, externalID string, humanApproved bool) error
	DeleteInvoice(ctx context.Context, externalID string) error
	GetInvoice(ctx context.Context, externalID string) (Snapshot, error)
	ListInvoices(ctx context.Context, statuses []string) ([]Snapshot, error)
}
