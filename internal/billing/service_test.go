package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerpilot/ledgerpilot/internal/billing/approval"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/customer"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/draft"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/invoicing"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/policy"
	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

// fakeBackend implements both the invoicing and customer directories the
// way one external accounting service would.
type fakeBackend struct {
	customers []customer.Record

	nextInvoiceID int
	created       []invoicing.CreateDraftInput
	sent          []string
	deleted       []string
	createErr     error
}

func (f *fakeBackend) CreateInvoiceDraft(ctx context.Context, in invoicing.CreateDraftInput) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextInvoiceID++
	f.created = append(f.created, in)
	return fmt.Sprintf("inv-%d", f.nextInvoiceID), nil
}

func (f *fakeBackend) SendInvoice(ctx context.Context, externalID string, humanApproved bool) error {
	if !humanApproved {
		return shared.ErrApprovalRequired
	}
	f.sent = append(f.sent, externalID)
	return nil
}

func (f *fakeBackend) DeleteInvoice(ctx context.Context, externalID string) error {
	f.deleted = append(f.deleted, externalID)
	return nil
}

func (f *fakeBackend) GetInvoice(ctx context.Context, externalID string) (invoicing.Snapshot, error) {
	return invoicing.Snapshot{ID: externalID, Status: "draft"}, nil
}

func (f *fakeBackend) ListInvoices(ctx context.Context, statuses []string) ([]invoicing.Snapshot, error) {
	return nil, nil
}

func (f *fakeBackend) FindByEmail(ctx context.Context, email string) ([]customer.Record, error) {
	var out []customer.Record
	for _, r := range f.customers {
		if r.Email == email {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBackend) FindByOrganization(ctx context.Context, fragment string) ([]customer.Record, error) {
	var out []customer.Record
	for _, r := range f.customers {
		if strings.Contains(strings.ToLower(r.Organization), strings.ToLower(fragment)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBackend) Create(ctx context.Context, in customer.CreateInput) (customer.Record, error) {
	rec := customer.Record{
		ID:           fmt.Sprintf("c-%d", len(f.customers)+1),
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Organization: in.Organization,
	}
	f.customers = append(f.customers, rec)
	return rec, nil
}

func (f *fakeBackend) Update(ctx context.Context, id string, fields map[string]string) error {
	return nil
}

type serviceFixture struct {
	service *Service
	backend *fakeBackend
	drafts  *draft.MemoryRepository
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	backend := &fakeBackend{customers: []customer.Record{
		{ID: "101", Email: "contact@progress.com", Organization: "Progress Software"},
		{ID: "102", Email: "billing@outpost24.com", Organization: "Outpost24"},
	}}
	drafts := draft.NewMemoryRepository()
	records := approval.NewMemoryRecordRepository()
	logger := slog.Default()
	gate := approval.NewGate(drafts, records, backend, logger, nil)

	engine := policy.NewEngine(policy.DefaultRegistry(), time.January)
	engine.WithNow(func() time.Time { return time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC) })

	service := NewService(engine, customer.NewResolver(backend), drafts, gate, backend, logger)
	return &serviceFixture{service: service, backend: backend, drafts: drafts}
}

func TestCreateInvoicesSplitsAndRegistersEachDraft(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	results, err := f.service.CreateInvoices(ctx, CreateInvoicesInput{
		ClientIdentifier: "contact@progress.com",
		LineItems: []draft.LineItem{
			{Description: "Sitefinity retainer", UnitAmount: 5000, Quantity: 1, ProductTag: "SiteFinity"},
			{Description: "MoveIT support", UnitAmount: 3000, Quantity: 1, ProductTag: "MoveIT"},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, f.backend.created, 2)

	for _, res := range results {
		require.NoError(t, res.Err)
		require.Equal(t, draft.StatusPendingApproval, res.Draft.Status)
		require.Equal(t, "101", res.Draft.CustomerID)
		require.Equal(t, "Progress Software", res.Draft.Organization)
		require.NotEmpty(t, res.Draft.ExternalID)
	}
	// Nothing is ever sent during creation.
	require.Empty(t, f.backend.sent)
}

func TestCreateInvoicesAwaitingPOStaysLocal(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	results, err := f.service.CreateInvoices(ctx, CreateInvoicesInput{
		ClientIdentifier: "billing@outpost24.com",
		LineItems:        []draft.LineItem{{Description: "referral fee", UnitAmount: 1200, Quantity: 1}},
		FiscalYear:       2027,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, draft.StatusAwaitingPO, results[0].Draft.Status)
	require.Empty(t, f.backend.created)

	// Progressing without a PO names the missing field.
	_, err = f.service.SubmitDraft(ctx, results[0].Draft.ID)
	require.ErrorIs(t, err, shared.ErrMissingRequiredField)
	require.Contains(t, err.Error(), "purchase order")

	// Supplying the PO submits immediately.
	inv, err := f.service.SupplyPurchaseOrder(ctx, results[0].Draft.ID, "PO-2027-001")
	require.NoError(t, err)
	require.Equal(t, draft.StatusPendingApproval, inv.Status)
	require.Equal(t, "PO-2027-001", inv.PurchaseOrder)
	require.Len(t, f.backend.created, 1)
	require.Equal(t, "PO-2027-001", f.backend.created[0].PONumber)
}

func TestCreateInvoicesExternalFailureReportsPartialResult(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.backend.createErr = shared.ErrExternalUnavailable

	results, err := f.service.CreateInvoices(ctx, CreateInvoicesInput{
		ClientIdentifier: "contact@progress.com",
		LineItems: []draft.LineItem{
			{Description: "Sitefinity retainer", UnitAmount: 5000, Quantity: 1, ProductTag: "SiteFinity"},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.ErrorIs(t, results[0].Err, shared.ErrExternalUnavailable)

	// The draft is stored locally for an explicit retry.
	inv, err := f.service.Get(ctx, results[0].Draft.ID)
	require.NoError(t, err)
	require.Equal(t, draft.StatusDraft, inv.Status)

	f.backend.createErr = nil
	resubmitted, err := f.service.SubmitDraft(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, draft.StatusPendingApproval, resubmitted.Status)
}

func TestFullApprovalFlowThroughService(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	results, err := f.service.CreateInvoices(ctx, CreateInvoicesInput{
		ClientIdentifier: "contact@progress.com",
		LineItems: []draft.LineItem{
			{Description: "Sitefinity retainer", UnitAmount: 5000, Quantity: 1, ProductTag: "SiteFinity"},
		},
	})
	require.NoError(t, err)
	id := results[0].Draft.ID

	pres, err := f.service.Present(ctx, id)
	require.NoError(t, err)
	require.Contains(t, pres.Text, "Sitefinity retainer")

	_, err = f.service.Send(ctx, id)
	require.ErrorIs(t, err, shared.ErrApprovalRequired)

	rec, err := f.service.RecordResponse(ctx, id, "yes, send it")
	require.NoError(t, err)
	require.Equal(t, approval.DecisionApproved, rec.Decision)

	result, err := f.service.Send(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []string{result.ExternalID}, f.backend.sent)
}

func TestVoidDeletesExternalCopy(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	results, err := f.service.CreateInvoices(ctx, CreateInvoicesInput{
		ClientIdentifier: "contact@progress.com",
		LineItems: []draft.LineItem{
			{Description: "Sitefinity retainer", UnitAmount: 5000, Quantity: 1, ProductTag: "SiteFinity"},
		},
	})
	require.NoError(t, err)
	id := results[0].Draft.ID

	require.NoError(t, f.service.Void(ctx, id, "duplicate request"))
	require.Len(t, f.backend.deleted, 1)

	// Second void is a no-op and does not delete again.
	require.NoError(t, f.service.Void(ctx, id, "duplicate request"))
	require.Len(t, f.backend.deleted, 1)
}

func TestCreateCustomerConflictReturnsExisting(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	rec, err := f.service.CreateCustomer(ctx, customer.CreateInput{
		Email:        "contact@progress.com",
		FirstName:    "Pat",
		LastName:     "Doe",
		Organization: "Progress Software",
	})
	require.ErrorIs(t, err, shared.ErrDuplicate)
	require.Equal(t, "101", rec.ID)
}
