// Package approval implements the state machine that gates invoice
// transmission behind explicit human consent. The gate is the only
// authority allowed to invoke the external send capability, and it accepts
// exactly one draft id per call: batch sends are rejected at the API
// boundary so every invoice is confirmed individually.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerpilot/ledgerpilot/internal/billing/draft"
	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

// Sender is the narrow external capability the gate may invoke. The
// humanApproved flag is forwarded for the collaborator's own check, but the
// gate never relies on it; approval is enforced here.
type Sender interface {
	SendInvoice(ctx context.Context, externalID string, humanApproved bool) error
}

// TransmitResult reports a successful transmission.
type TransmitResult struct {
	DraftID    uuid.UUID `json:"draft_id"`
	ExternalID string    `json:"external_id"`
	SentAt     time.Time `json:"sent_at"`
}

// Gate tracks draft invoices through presentation, decision, and
// transmission. All operations are serialized per draft id.
type Gate struct {
	drafts  draft.Repository
	records RecordRepository
	sender  Sender
	logger  *slog.Logger
	keyed   keyedLocks
	lease   *RedisLease
	now     func() time.Time
}

// NewGate constructs a Gate. lease may be nil when running a single
// instance.
func NewGate(drafts draft.Repository, records RecordRepository, sender Sender, logger *slog.Logger, lease *RedisLease) *Gate {
	return &Gate{
		drafts:  drafts,
		records: records,
		sender:  sender,
		logger:  logger,
		lease:   lease,
		now:     time.Now,
	}
}

// WithNow overrides the gate clock for testing.
func (g *Gate) WithNow(fn func() time.Time) {
	if fn != nil {
		g.now = fn
	}
}

func (g *Gate) withDraft(ctx context.Context, id uuid.UUID, fn func(inv *draft.Invoice) error) error {
	unlock := g.keyed.lock(id)
	defer unlock()
	if g.lease != nil {
		release, err := g.lease.Acquire(ctx, DraftLockKey(id))
		if err != nil {
			return err
		}
		defer release()
	}
	inv, err := g.drafts.Get(ctx, id)
	if err != nil {
		return err
	}
	return fn(inv)
}

// Register records that the external draft creation succeeded and moves the
// draft to PENDING_APPROVAL.
func (g *Gate) Register(ctx context.Context, id uuid.UUID, externalID string) error {
	if externalID == "" {
		return fmt.Errorf("external invoice id: %w", shared.ErrMissingRequiredField)
	}
	return g.withDraft(ctx, id, func(inv *draft.Invoice) error {
		if !draft.CanTransition(inv.Status, draft.StatusPendingApproval) {
			return fmt.Errorf("%w: cannot register draft %s in status %s", shared.ErrInvalidTransition, id, inv.Status)
		}
		inv.ExternalID = externalID
		inv.Status = draft.StatusPendingApproval
		inv.UpdatedAt = g.now()
		return g.drafts.Update(ctx, inv)
	})
}

// Present renders the canonical summary of a draft and bumps the
// presentation version. Every recorded decision is scoped to the version it
// answered; re-presenting invalidates prior responses.
func (g *Gate) Present(ctx context.Context, id uuid.UUID) (Presentation, error) {
	var pres Presentation
	err := g.withDraft(ctx, id, func(inv *draft.Invoice) error {
		if inv.Status != draft.StatusPendingApproval {
			return fmt.Errorf("%w: draft %s is %s, presentation requires %s",
				shared.ErrInvalidTransition, id, inv.Status, draft.StatusPendingApproval)
		}
		inv.PresentationVersion++
		inv.UpdatedAt = g.now()
		if err := g.drafts.Update(ctx, inv); err != nil {
			return err
		}
		pres = Render(inv, inv.PresentationVersion, g.now())
		return nil
	})
	return pres, err
}

// RecordResponse classifies a human utterance against the approval grammar
// and appends an immutable approval record for the current presentation
// version. Only an unambiguous send approval advances the draft to
// APPROVED; everything else leaves it pending.
func (g *Gate) RecordResponse(ctx context.Context, id uuid.UUID, utterance string) (Record, error) {
	var rec Record
	err := g.withDraft(ctx, id, func(inv *draft.Invoice) error {
		if inv.Status != draft.StatusPendingApproval {
			return fmt.Errorf("%w: draft %s is %s, decisions require %s",
				shared.ErrInvalidTransition, id, inv.Status, draft.StatusPendingApproval)
		}
		if inv.PresentationVersion == 0 {
			return fmt.Errorf("%w: no presentation has been issued for draft %s", shared.ErrInvalidTransition, id)
		}
		rec = Record{
			DraftID:             id,
			PresentationVersion: inv.PresentationVersion,
			Decision:            Classify(utterance),
			RawUtterance:        utterance,
			DecidedAt:           g.now(),
		}
		if err := g.records.Append(ctx, rec); err != nil {
			return err
		}
		if rec.Decision == DecisionApproved {
			inv.Status = draft.StatusApproved
			inv.UpdatedAt = g.now()
			return g.drafts.Update(ctx, inv)
		}
		return nil
	})
	return rec, err
}

// Transmit sends one approved draft through the external send capability.
// It fails with ApprovalRequired unless the latest approval record is
// APPROVED at the current presentation version; the collaborator's own
// guard is not trusted. External failure leaves the draft in APPROVED so
// the caller can retry explicitly after confirming no duplicate send.
func (g *Gate) Transmit(ctx context.Context, id uuid.UUID) (TransmitResult, error) {
	var result TransmitResult
	err := g.withDraft(ctx, id, func(inv *draft.Invoice) error {
		if inv.Status == draft.StatusSent {
			return fmt.Errorf("%w: draft %s already sent", shared.ErrInvalidTransition, id)
		}
		if inv.Status != draft.StatusApproved {
			return fmt.Errorf("%w: draft %s is %s, not %s",
				shared.ErrApprovalRequired, id, inv.Status, draft.StatusApproved)
		}
		latest, err := g.records.Latest(ctx, id)
		if err != nil {
			return fmt.Errorf("%w: no approval record for draft %s", shared.ErrApprovalRequired, id)
		}
		if latest.Decision != DecisionApproved || latest.PresentationVersion != inv.PresentationVersion {
			return fmt.Errorf("%w: latest decision for draft %s is %s at presentation %d (current %d)",
				shared.ErrApprovalRequired, id, latest.Decision, latest.PresentationVersion, inv.PresentationVersion)
		}
		if err := g.sender.SendInvoice(ctx, inv.ExternalID, true); err != nil {
			g.logger.Error("transmit invoice", slog.String("draft_id", id.String()), slog.Any("error", err))
			return err
		}
		inv.Status = draft.StatusSent
		inv.UpdatedAt = g.now()
		if err := g.drafts.Update(ctx, inv); err != nil {
			return err
		}
		result = TransmitResult{DraftID: id, ExternalID: inv.ExternalID, SentAt: g.now()}
		return nil
	})
	return result, err
}

// Void cancels a draft. Calling Void on an already voided draft is a
// no-op; voiding a sent invoice is not allowed.
func (g *Gate) Void(ctx context.Context, id uuid.UUID, reason string) error {
	return g.withDraft(ctx, id, func(inv *draft.Invoice) error {
		if inv.Status == draft.StatusVoid {
			return nil
		}
		if !draft.CanTransition(inv.Status, draft.StatusVoid) {
			return fmt.Errorf("%w: draft %s already sent", shared.ErrInvalidTransition, id)
		}
		inv.Status = draft.StatusVoid
		inv.VoidReason = reason
		inv.UpdatedAt = g.now()
		return g.drafts.Update(ctx, inv)
	})
}

// History returns the approval record trail for a draft, oldest first.
func (g *Gate) History(ctx context.Context, id uuid.UUID) ([]Record, error) {
	return g.records.List(ctx, id)
}

// SupplyPurchaseOrder attaches the missing PO number and releases the draft
// from AWAITING_PO.
func (g *Gate) SupplyPurchaseOrder(ctx context.Context, id uuid.UUID, po string) error {
	if po == "" {
		return fmt.Errorf("purchase order number: %w", shared.ErrMissingRequiredField)
	}
	return g.withDraft(ctx, id, func(inv *draft.Invoice) error {
		if inv.Status != draft.StatusAwaitingPO {
			return fmt.Errorf("%w: draft %s is %s, not %s",
				shared.ErrInvalidTransition, id, inv.Status, draft.StatusAwaitingPO)
		}
		inv.PurchaseOrder = po
		inv.Status = draft.StatusDraft
		inv.UpdatedAt = g.now()
		return g.drafts.Update(ctx, inv)
	})
}
