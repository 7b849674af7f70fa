// Package billing orchestrates the invoice workflow: policy rewriting,
// customer resolution, external draft creation, and the approval gate.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ledgerpilot/ledgerpilot/internal/billing/approval"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/customer"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/draft"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/invoicing"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/policy"
	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

// CreateInvoicesInput is one end-user invoicing request before policy is
// applied.
type CreateInvoicesInput struct {
	ClientIdentifier string
	LineItems        []draft.LineItem
	Currency         string
	Notes            string
	PurchaseOrder    string
	FiscalYear       int
	Attachments      []string
}

// DraftResult reports the outcome for one produced draft. A failed external
// creation leaves the draft stored locally in DRAFT for an explicit retry;
// it is never retried automatically.
type DraftResult struct {
	Draft draft.Invoice
	Err   error
}

// Service handles the billing workflow.
type Service struct {
	engine    *policy.Engine
	resolver  *customer.Resolver
	drafts    draft.Repository
	gate      *approval.Gate
	directory invoicing.Directory
	logger    *slog.Logger
}

// NewService builds a Service instance.
func NewService(engine *policy.Engine, resolver *customer.Resolver, drafts draft.Repository, gate *approval.Gate, directory invoicing.Directory, logger *slog.Logger) *Service {
	return &Service{
		engine:    engine,
		resolver:  resolver,
		drafts:    drafts,
		gate:      gate,
		directory: directory,
		logger:    logger,
	}
}

// CreateInvoices runs one request through the policy engine, resolves the
// customer, stores the resulting drafts, and creates each eligible draft in
// the external directory. Drafts awaiting a purchase order stay local until
// the PO is supplied.
func (s *Service) CreateInvoices(ctx context.Context, input CreateInvoicesInput) ([]DraftResult, error) {
	drafts, err := s.engine.BuildDrafts(policy.Request{
		ClientIdentifier: input.ClientIdentifier,
		LineItems:        input.LineItems,
		Currency:         input.Currency,
		Notes:            input.Notes,
		Attachments:      input.Attachments,
		PurchaseOrder:    input.PurchaseOrder,
		FiscalYear:       input.FiscalYear,
	})
	if err != nil {
		return nil, err
	}

	record, err := s.resolver.Resolve(ctx, input.ClientIdentifier)
	if err != nil {
		return nil, err
	}

	results := make([]DraftResult, 0, len(drafts))
	for i := range drafts {
		inv := drafts[i]
		inv.CustomerID = record.ID
		inv.Organization = record.Organization
		if err := s.drafts.Create(ctx, &inv); err != nil {
			return nil, err
		}
		result := DraftResult{Draft: inv}
		if inv.Status == draft.StatusDraft {
			if err := s.submit(ctx, &inv); err != nil {
				s.logger.Error("create external draft", slog.String("draft_id", inv.ID.String()), slog.Any("error", err))
				result.Err = err
			} else {
				result.Draft = inv
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// submit creates the draft in the external directory and registers it with
// the approval gate. inv is refreshed with the registered state on success.
func (s *Service) submit(ctx context.Context, inv *draft.Invoice) error {
	lines := make([]invoicing.LineItem, 0, len(inv.LineItems))
	for _, l := range inv.LineItems {
		lines = append(lines, invoicing.LineItem{
			Name:         l.Description,
			Quantity:     l.Quantity,
			UnitAmount:   l.UnitAmount,
			CurrencyCode: inv.Currency,
		})
	}
	externalID, err := s.directory.CreateInvoiceDraft(ctx, invoicing.CreateDraftInput{
		CustomerID:    inv.CustomerID,
		Lines:         lines,
		CurrencyCode:  inv.Currency,
		DueOffsetDays: inv.PaymentTermDays,
		PONumber:      inv.PurchaseOrder,
		Notes:         inv.Notes,
	})
	if err != nil {
		return err
	}
	if err := s.gate.Register(ctx, inv.ID, externalID); err != nil {
		return err
	}
	refreshed, err := s.drafts.Get(ctx, inv.ID)
	if err != nil {
		return err
	}
	*inv = *refreshed
	return nil
}

// SubmitDraft progresses a stored draft into the external directory. A
// draft still awaiting its purchase order cannot progress.
func (s *Service) SubmitDraft(ctx context.Context, id uuid.UUID) (*draft.Invoice, error) {
	inv, err := s.drafts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch inv.Status {
	case draft.StatusAwaitingPO:
		return nil, fmt.Errorf("%w: draft %s needs a purchase order for %s before it can progress",
			shared.ErrMissingRequiredField, id, inv.PolicyName)
	case draft.StatusDraft:
		if err := s.submit(ctx, inv); err != nil {
			return nil, err
		}
		return inv, nil
	default:
		return nil, fmt.Errorf("%w: draft %s is %s", shared.ErrInvalidTransition, id, inv.Status)
	}
}

// SupplyPurchaseOrder attaches the PO and immediately submits the draft.
func (s *Service) SupplyPurchaseOrder(ctx context.Context, id uuid.UUID, po string) (*draft.Invoice, error) {
	if err := s.gate.SupplyPurchaseOrder(ctx, id, po); err != nil {
		return nil, err
	}
	return s.SubmitDraft(ctx, id)
}

// Present renders the canonical summary for one draft.
func (s *Service) Present(ctx context.Context, id uuid.UUID) (approval.Presentation, error) {
	return s.gate.Present(ctx, id)
}

// RecordResponse records a human decision utterance for one draft.
func (s *Service) RecordResponse(ctx context.Context, id uuid.UUID, utterance string) (approval.Record, error) {
	return s.gate.RecordResponse(ctx, id, utterance)
}

// Send transmits exactly one approved draft. Batch transmission is
// deliberately unsupported; every invoice requires its own call.
func (s *Service) Send(ctx context.Context, id uuid.UUID) (approval.TransmitResult, error) {
	return s.gate.Transmit(ctx, id)
}

// Void cancels a draft locally and best-effort deletes the external copy.
func (s *Service) Void(ctx context.Context, id uuid.UUID, reason string) error {
	inv, err := s.drafts.Get(ctx, id)
	if err != nil {
		return err
	}
	alreadyVoid := inv.Status == draft.StatusVoid
	if err := s.gate.Void(ctx, id, reason); err != nil {
		return err
	}
	if !alreadyVoid && inv.ExternalID != "" {
		if err := s.directory.DeleteInvoice(ctx, inv.ExternalID); err != nil {
			// The local void stands; the external copy is reconciled by the
			// status sync job.
			s.logger.Warn("void external invoice", slog.String("draft_id", id.String()), slog.Any("error", err))
		}
	}
	return nil
}

// Get returns one stored draft.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*draft.Invoice, error) {
	return s.drafts.Get(ctx, id)
}

// List returns stored drafts matching the filter.
func (s *Service) List(ctx context.Context, filter draft.ListFilter) ([]draft.Invoice, error) {
	return s.drafts.List(ctx, filter)
}

// History returns the approval trail for one draft.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]approval.Record, error) {
	return s.gate.History(ctx, id)
}

// ResolveCustomer resolves an identifier against the external directory.
func (s *Service) ResolveCustomer(ctx context.Context, identifier string) (customer.Record, error) {
	return s.resolver.Resolve(ctx, identifier)
}

// CreateCustomer registers a customer after a NotFound resolution.
func (s *Service) CreateCustomer(ctx context.Context, in customer.CreateInput) (customer.Record, error) {
	existing, err := s.resolver.Resolve(ctx, in.Email)
	if err == nil {
		return existing, fmt.Errorf("customer %s: %w", in.Email, shared.ErrDuplicate)
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return customer.Record{}, err
	}
	return s.resolver.Create(ctx, in)
}
