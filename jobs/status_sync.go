package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerpilot/ledgerpilot/internal/billing/draft"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/invoicing"
	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStatusSync reconciles local draft state with the external
	// invoicing directory.
	TaskStatusSync = "invoice:status_sync"

	syncConcurrency = 5
)

// NewStatusSyncTask constructs an Asynq task. The task carries no payload;
// each run scans the full set of externally created drafts.
func NewStatusSyncTask() *asynq.Task {
	return asynq.NewTask(TaskStatusSync, nil)
}

// Syncer reconciles local draft statuses against the external directory
// using idempotent reads only. It never mutates the external system.
type Syncer struct {
	drafts    draft.Repository
	directory invoicing.Directory
	logger    *slog.Logger
}

// NewSyncer constructs a Syncer.
func NewSyncer(drafts draft.Repository, directory invoicing.Directory, logger *slog.Logger) *Syncer {
	return &Syncer{drafts: drafts, directory: directory, logger: logger}
}

// Handle processes one TaskStatusSync run.
func (s *Syncer) Handle(ctx context.Context, t *asynq.Task) error {
	synced, err := s.Run(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("status sync complete", slog.Int("updated", synced))
	return nil
}

// Run scans drafts that exist externally and applies any externally
// observed terminal state. Returns the number of drafts updated.
func (s *Syncer) Run(ctx context.Context) (int, error) {
	var candidates []draft.Invoice
	for _, status := range []draft.Status{draft.StatusPendingApproval, draft.StatusApproved, draft.StatusSent} {
		batch, err := s.drafts.List(ctx, draft.ListFilter{Status: status})
		if err != nil {
			return 0, err
		}
		candidates = append(candidates, batch...)
	}

	var (
		mu      sync.Mutex
		updated int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)
	for i := range candidates {
		inv := candidates[i]
		if inv.ExternalID == "" {
			continue
		}
		g.Go(func() error {
			changed, err := s.syncOne(ctx, inv)
			if err != nil {
				// One unreachable invoice must not abort the scan.
				s.logger.Warn("status sync", slog.String("draft_id", inv.ID.String()), slog.Any("error", err))
				return nil
			}
			if changed {
				mu.Lock()
				updated++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return updated, err
	}
	return updated, nil
}

func (s *Syncer) syncOne(ctx context.Context, inv draft.Invoice) (bool, error) {
	snapshot, err := s.directory.GetInvoice(ctx, inv.ExternalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Deleted upstream; mirror as a void.
			return s.apply(ctx, inv, draft.StatusVoid, "deleted in external directory")
		}
		return false, err
	}

	switch externalState(snapshot.Status) {
	case draft.StatusSent:
		if inv.Status == draft.StatusSent {
			return false, nil
		}
		return s.apply(ctx, inv, draft.StatusSent, "")
	case draft.StatusVoid:
		if inv.Status == draft.StatusVoid {
			return false, nil
		}
		return s.apply(ctx, inv, draft.StatusVoid, "voided in external directory")
	default:
		return false, nil
	}
}

func (s *Syncer) apply(ctx context.Context, inv draft.Invoice, to draft.Status, reason string) (bool, error) {
	if inv.Status == to {
		return false, nil
	}
	// The external directory is the ledger of record for sends that
	// happened outside this service, so SENT is also mirrored from
	// PENDING_APPROVAL.
	allowed := draft.CanTransition(inv.Status, to) ||
		(to == draft.StatusSent && inv.Status == draft.StatusPendingApproval)
	if !allowed {
		return false, nil
	}
	if to == draft.StatusSent && inv.Status == draft.StatusPendingApproval {
		s.logger.Warn("invoice sent outside approval gate", slog.String("draft_id", inv.ID.String()))
	}
	inv.Status = to
	if reason != "" {
		inv.VoidReason = reason
	}
	inv.UpdatedAt = time.Now()
	if err := s.drafts.Update(ctx, &inv); err != nil {
		return false, err
	}
	s.logger.Info("status sync applied",
		slog.String("draft_id", inv.ID.String()),
		slog.String("status", string(to)))
	return true, nil
}

// externalState maps the directory's invoice status vocabulary onto the
// local lifecycle. Anything unrecognized leaves the draft untouched.
func externalState(status string) draft.Status {
	switch strings.ToLower(status) {
	case "sent", "viewed", "paid", "partial", "auto-paid", "autopaid":
		return draft.StatusSent
	case "void", "deleted":
		return draft.StatusVoid
	default:
		return ""
	}
}
