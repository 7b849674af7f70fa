package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerpilot/ledgerpilot/internal/billing/draft"
	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

func fixedClock() time.Time {
	return time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine := NewEngine(DefaultRegistry(), time.January)
	engine.WithNow(fixedClock)
	return engine
}

func TestBuildDraftsSplitsProgressByProduct(t *testing.T) {
	engine := newTestEngine(t)

	drafts, err := engine.BuildDrafts(Request{
		ClientIdentifier: "contact@progress.com",
		LineItems: []draft.LineItem{
			{Description: "Sitefinity retainer", UnitAmount: 5000, Quantity: 1, ProductTag: "SiteFinity"},
			{Description: "MoveIT support", UnitAmount: 3000, Quantity: 1, ProductTag: "MoveIT"},
		},
	})
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	require.Len(t, drafts[0].LineItems, 1)
	require.Len(t, drafts[1].LineItems, 1)
	require.Equal(t, "Sitefinity retainer", drafts[0].LineItems[0].Description)
	require.Equal(t, "MoveIT support", drafts[1].LineItems[0].Description)
	for _, d := range drafts {
		require.Equal(t, "progress", d.PolicyName)
		require.Equal(t, draft.StatusDraft, d.Status)
		require.Equal(t, 30, d.PaymentTermDays)
	}
}

func TestBuildDraftsGroupsSameTagRegardlessOfCase(t *testing.T) {
	engine := newTestEngine(t)

	drafts, err := engine.BuildDrafts(Request{
		ClientIdentifier: "contact@progress.com",
		LineItems: []draft.LineItem{
			{Description: "license", UnitAmount: 100, Quantity: 1, ProductTag: "sitefinity"},
			{Description: "support", UnitAmount: 200, Quantity: 1, ProductTag: "SiteFinity"},
		},
	})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Len(t, drafts[0].LineItems, 2)
}

func TestBuildDraftsRejectsOffCatalogTag(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.BuildDrafts(Request{
		ClientIdentifier: "contact@progress.com",
		LineItems: []draft.LineItem{
			{Description: "consulting", UnitAmount: 100, Quantity: 1, ProductTag: "Consulting"},
		},
	})
	require.ErrorIs(t, err, shared.ErrPolicyViolation)
}

func TestBuildDraftsOutpost24AppliesDefaultPOAndTerms(t *testing.T) {
	engine := newTestEngine(t)

	drafts, err := engine.BuildDrafts(Request{
		ClientIdentifier: "billing@outpost24.com",
		LineItems: []draft.LineItem{
			{Description: "referral fee", UnitAmount: 1200, Quantity: 1},
		},
		FiscalYear: 2026,
	})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Equal(t, "AR-FY26-ATA-Referral-NA", drafts[0].PurchaseOrder)
	require.Equal(t, 60, drafts[0].PaymentTermDays)
	require.Equal(t, draft.StatusDraft, drafts[0].Status)
}

func TestBuildDraftsOutpost24WithoutPOAwaitsOne(t *testing.T) {
	engine := newTestEngine(t)

	drafts, err := engine.BuildDrafts(Request{
		ClientIdentifier: "billing@outpost24.com",
		LineItems: []draft.LineItem{
			{Description: "referral fee", UnitAmount: 1200, Quantity: 1},
		},
		FiscalYear: 2027,
	})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Empty(t, drafts[0].PurchaseOrder)
	require.Equal(t, draft.StatusAwaitingPO, drafts[0].Status)
}

func TestBuildDraftsCallerPOWinsOverDefault(t *testing.T) {
	engine := newTestEngine(t)

	drafts, err := engine.BuildDrafts(Request{
		ClientIdentifier: "billing@outpost24.com",
		LineItems: []draft.LineItem{
			{Description: "referral fee", UnitAmount: 1200, Quantity: 1},
		},
		PurchaseOrder: "PO-CUSTOM-1",
		FiscalYear:    2026,
	})
	require.NoError(t, err)
	require.Equal(t, "PO-CUSTOM-1", drafts[0].PurchaseOrder)
}

func TestBuildDraftsDefaultPolicy(t *testing.T) {
	engine := newTestEngine(t)

	drafts, err := engine.BuildDrafts(Request{
		ClientIdentifier: "someone@example.com",
		LineItems: []draft.LineItem{
			{Description: "work", UnitAmount: 500, Quantity: 2},
		},
	})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Equal(t, "default", drafts[0].PolicyName)
	require.Equal(t, 30, drafts[0].PaymentTermDays)
	require.Empty(t, drafts[0].PurchaseOrder)
	require.Equal(t, "USD", drafts[0].Currency)
	require.Equal(t, 2026, drafts[0].FiscalYear)
}

func TestBuildDraftsDeterministicPartitioning(t *testing.T) {
	engine := newTestEngine(t)

	req := Request{
		ClientIdentifier: "contact@progress.com",
		LineItems: []draft.LineItem{
			{Description: "a", UnitAmount: 1, Quantity: 1, ProductTag: "MoveIT"},
			{Description: "b", UnitAmount: 2, Quantity: 1, ProductTag: "SiteFinity"},
			{Description: "c", UnitAmount: 3, Quantity: 1, ProductTag: "MoveIT"},
		},
	}

	first, err := engine.BuildDrafts(req)
	require.NoError(t, err)
	second, err := engine.BuildDrafts(req)
	require.NoError(t, err)

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	for i := range first {
		require.Equal(t, first[i].LineItems, second[i].LineItems)
	}
	// MoveIT appears first in the input, so its partition comes first and
	// keeps input order.
	require.Equal(t, "a", first[0].LineItems[0].Description)
	require.Equal(t, "c", first[0].LineItems[1].Description)
	require.Equal(t, "b", first[1].LineItems[0].Description)
}

func TestBuildDraftsRequiresIdentifierAndLines(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.BuildDrafts(Request{LineItems: []draft.LineItem{{Description: "x", UnitAmount: 1, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrMissingRequiredField)

	_, err = engine.BuildDrafts(Request{ClientIdentifier: "a@b.com"})
	require.ErrorIs(t, err, shared.ErrMissingRequiredField)
}

func TestFiscalYear(t *testing.T) {
	cases := []struct {
		name       string
		t          time.Time
		startMonth time.Month
		want       int
	}{
		{"calendar year", time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC), time.January, 2026},
		{"before fiscal start", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), time.April, 2026},
		{"after fiscal start", time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC), time.April, 2027},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, FiscalYear(tc.t, tc.startMonth))
		})
	}
}
