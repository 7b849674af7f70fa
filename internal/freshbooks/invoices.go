package freshbooks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ledgerpilot/ledgerpilot/internal/billing/invoicing"
	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

type invoiceLine struct {
	Name     string      `json:"name"`
	Qty      string      `json:"qty"`
	UnitCost invoiceCost `json:"unit_cost"`
}

type invoiceCost struct {
	Amount string `json:"amount"`
	Code   string `json:"code"`
}

type invoicePayload struct {
	CustomerID    string        `json:"customerid"`
	CreateDate    string        `json:"create_date"`
	DueOffsetDays int           `json:"due_offset_days"`
	CurrencyCode  string        `json:"currency_code"`
	Language      string        `json:"language"`
	Lines         []invoiceLine `json:"lines"`
	PONumber      string        `json:"po_number,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	SendNow       bool          `json:"send_now"`
}

type invoiceEnvelope struct {
	Response struct {
		Result struct {
			Invoice  invoiceBody   `json:"invoice"`
			Invoices []invoiceBody `json:"invoices"`
		} `json:"result"`
	} `json:"response"`
}

type invoiceBody struct {
	ID         int64  `json:"id"`
	Status     string `json:"v3_status"`
	Amount     invoiceCost `json:"amount"`
	CustomerID int64  `json:"customerid"`
}

func (b invoiceBody) snapshot() invoicing.Snapshot {
	amount, _ := strconv.ParseFloat(b.Amount.Amount, 64)
	return invoicing.Snapshot{
		ID:         strconv.FormatInt(b.ID, 10),
		Status:     b.Status,
		Amount:     amount,
		CustomerID: strconv.FormatInt(b.CustomerID, 10),
	}
}

// CreateInvoiceDraft creates a draft invoice in the external directory and
// returns its id. Never retried: duplicate drafts are worse than a failed
// call.
func (c *Client) CreateInvoiceDraft(ctx context.Context, in invoicing.CreateDraftInput) (string, error) {
	lines := make([]invoiceLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		lines = append(lines, invoiceLine{
			Name: l.Name,
			Qty:  strconv.FormatFloat(l.Quantity, 'f', -1, 64),
			UnitCost: invoiceCost{
				Amount: strconv.FormatFloat(l.UnitAmount, 'f', 2, 64),
				Code:   l.CurrencyCode,
			},
		})
	}
	payload := map[string]invoicePayload{"invoice": {
		CustomerID:    in.CustomerID,
		CreateDate:    time.Now().Format("2006-01-02"),
		DueOffsetDays: in.DueOffsetDays,
		CurrencyCode:  in.CurrencyCode,
		Language:      "en",
		Lines:         lines,
		PONumber:      in.PONumber,
		Notes:         in.Notes,
		SendNow:       false,
	}}

	var envelope invoiceEnvelope
	path := fmt.Sprintf("/accounting/account/%s/invoices/invoices", c.accountID)
	if err := c.do(ctx, http.MethodPost, path, nil, payload, &envelope, false); err != nil {
		return "", err
	}
	if envelope.Response.Result.Invoice.ID == 0 {
		return "", fmt.Errorf("%w: create returned no invoice id", shared.ErrExternalRejection)
	}
	return strconv.FormatInt(envelope.Response.Result.Invoice.ID, 10), nil
}

// SendInvoice emails the invoice to the client. The humanApproved flag is a
// second line of defense; callers must already hold a valid approval.
func (c *Client) SendInvoice(ctx context.Context, externalID string, humanApproved bool) error {
	if !humanApproved {
		return fmt.Errorf("%w: invoice %s cannot be sent without explicit human approval", shared.ErrApprovalRequired, externalID)
	}
	payload := map[string]map[string]bool{"invoice": {"action_email": true}}
	path := fmt.Sprintf("/accounting/account/%s/invoices/invoices/%s", c.accountID, externalID)
	return c.do(ctx, http.MethodPut, path, nil, payload, nil, false)
}

// DeleteInvoice voids the external invoice by marking it deleted.
func (c *Client) DeleteInvoice(ctx context.Context, externalID string) error {
	payload := map[string]map[string]int{"invoice": {"vis_state": 1}}
	path := fmt.Sprintf("/accounting/account/%s/invoices/invoices/%s", c.accountID, externalID)
	return c.do(ctx, http.MethodPut, path, nil, payload, nil, false)
}

// GetInvoice fetches one invoice snapshot. Idempotent, retried on
// transient failures.
func (c *Client) GetInvoice(ctx context.Context, externalID string) (invoicing.Snapshot, error) {
	query := url.Values{"include[]": {"lines"}}
	path := fmt.Sprintf("/accounting/account/%s/invoices/invoices/%s", c.accountID, externalID)
	var envelope invoiceEnvelope
	if err := c.do(ctx, http.MethodGet, path, query, nil, &envelope, true); err != nil {
		return invoicing.Snapshot{}, err
	}
	return envelope.Response.Result.Invoice.snapshot(), nil
}

// ListInvoices returns snapshots filtered by status. Idempotent, retried
// on transient failures.
func (c *Client) ListInvoices(ctx context.Context, statuses []string) ([]invoicing.Snapshot, error) {
	query := url.Values{}
	for _, s := range statuses {
		query.Add("status[]", s)
	}
	path := fmt.Sprintf("/search/account/%s/invoices_current", c.accountID)
	var envelope invoiceEnvelope
	if err := c.do(ctx, http.MethodGet, path, query, nil, &envelope, true); err != nil {
		return nil, err
	}
	snapshots := make([]invoicing.Snapshot, 0, len(envelope.Response.Result.Invoices))
	for _, b := range envelope.Response.Result.Invoices {
		snapshots = append(snapshots, b.snapshot())
	}
	return snapshots, nil
}
