package policy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerpilot/ledgerpilot/internal/billing/draft"
	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

// Request describes a desired invoice before policy is applied.
type Request struct {
	ClientIdentifier string
	LineItems        []draft.LineItem
	Currency         string
	Notes            string
	Attachments      []string
	// PurchaseOrder is the caller-supplied PO, used only when the matched
	// policy requires one.
	PurchaseOrder string
	// FiscalYear overrides the clock-derived fiscal year when non-zero.
	FiscalYear int
}

// Engine rewrites invoice requests according to the client policy table.
type Engine struct {
	registry   *Registry
	startMonth time.Month
	now        func() time.Time
}

// NewEngine constructs an Engine. startMonth is the first month of the
// fiscal year.
func NewEngine(registry *Registry, startMonth time.Month) *Engine {
	return &Engine{registry: registry, startMonth: startMonth, now: time.Now}
}

// WithNow overrides the engine clock for testing.
func (e *Engine) WithNow(fn func() time.Time) {
	if fn != nil {
		e.now = fn
	}
}

// BuildDrafts validates and rewrites the request into one or more draft
// invoices. No external call is made here; identical input and policy table
// produce identical partitioning and ordering.
func (e *Engine) BuildDrafts(req Request) ([]draft.Invoice, error) {
	if req.ClientIdentifier == "" {
		return nil, fmt.Errorf("client identifier: %w", shared.ErrMissingRequiredField)
	}
	if len(req.LineItems) == 0 {
		return nil, fmt.Errorf("line items: %w", shared.ErrMissingRequiredField)
	}

	pol := e.registry.Match(req.ClientIdentifier)

	partitions, err := partition(pol, req.LineItems)
	if err != nil {
		return nil, err
	}

	fiscalYear := req.FiscalYear
	if fiscalYear == 0 {
		fiscalYear = FiscalYear(e.now(), e.startMonth)
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	now := e.now()
	drafts := make([]draft.Invoice, 0, len(partitions))
	for _, items := range partitions {
		inv := draft.Invoice{
			ID:              uuid.New(),
			ClientEmail:     req.ClientIdentifier,
			PolicyName:      pol.Name,
			Currency:        currency,
			LineItems:       items,
			PaymentTermDays: pol.PaymentTermDays,
			Attachments:     req.Attachments,
			Notes:           req.Notes,
			Status:          draft.StatusDraft,
			FiscalYear:      fiscalYear,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if pol.RequiresPurchaseOrder {
			inv.PurchaseOrder = req.PurchaseOrder
			if inv.PurchaseOrder == "" {
				inv.PurchaseOrder = pol.DefaultPurchaseOrders[fiscalYear]
			}
			if inv.PurchaseOrder == "" {
				inv.Status = draft.StatusAwaitingPO
			}
		}
		drafts = append(drafts, inv)
	}
	return drafts, nil
}

// partition groups line items per product tag when the policy requires a
// split, preserving input order within each group. Group order follows the
// first appearance of each tag in the input.
func partition(pol ClientPolicy, items []draft.LineItem) ([][]draft.LineItem, error) {
	if !pol.SplitByProduct {
		return [][]draft.LineItem{items}, nil
	}
	var order []string
	groups := make(map[string][]draft.LineItem)
	for _, item := range items {
		tag, ok := pol.CatalogTag(item.ProductTag)
		if item.ProductTag == "" || !ok {
			return nil, fmt.Errorf("%w: line %q has product tag %q outside the %s catalog",
				shared.ErrPolicyViolation, item.Description, item.ProductTag, pol.Name)
		}
		if _, seen := groups[tag]; !seen {
			order = append(order, tag)
		}
		groups[tag] = append(groups[tag], item)
	}
	out := make([][]draft.LineItem, 0, len(order))
	for _, tag := range order {
		out = append(out, groups[tag])
	}
	return out, nil
}

// FiscalYear labels the fiscal year containing t by the calendar year in
// which the fiscal year ends.
func FiscalYear(t time.Time, startMonth time.Month) int {
	if startMonth <= time.January {
		return t.Year()
	}
	if t.Month() >= startMonth {
		return t.Year() + 1
	}
	return t.Year()
}
