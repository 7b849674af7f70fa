package draft

import (
	"time"

	"github.com/google/uuid"
)

// Status enumerates draft invoice statuses.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusAwaitingPO      Status = "AWAITING_PO"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusSent            Status = "SENT"
	StatusVoid            Status = "VOID"
)

// LineItem is a single billable row on a draft invoice.
type LineItem struct {
	Description string  `json:"description"`
	UnitAmount  float64 `json:"unit_amount"`
	Quantity    float64 `json:"quantity"`
	ProductTag  string  `json:"product_tag,omitempty"`
}

// Amount returns the extended amount for the line.
func (l LineItem) Amount() float64 {
	return l.UnitAmount * l.Quantity
}

// Invoice is a not-yet-transmitted billing document. ExternalID is empty
// until the draft has been created in the external invoicing directory.
type Invoice struct {
	ID                  uuid.UUID  `json:"id"`
	ExternalID          string     `json:"external_id,omitempty"`
	CustomerID          string     `json:"customer_id,omitempty"`
	ClientEmail         string     `json:"client_email,omitempty"`
	Organization        string     `json:"organization,omitempty"`
	PolicyName          string     `json:"policy_name"`
	Currency            string     `json:"currency"`
	LineItems           []LineItem `json:"line_items"`
	PurchaseOrder       string     `json:"purchase_order,omitempty"`
	PaymentTermDays     int        `json:"payment_term_days"`
	Attachments         []string   `json:"attachments,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	Status              Status     `json:"status"`
	PresentationVersion int        `json:"presentation_version"`
	FiscalYear          int        `json:"fiscal_year"`
	VoidReason          string     `json:"void_reason,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Total sums all line amounts.
func (i *Invoice) Total() float64 {
	var total float64
	for _, l := range i.LineItems {
		total += l.Amount()
	}
	return total
}

// DueDate derives the due date from the creation date and payment terms.
func (i *Invoice) DueDate() time.Time {
	return i.CreatedAt.AddDate(0, 0, i.PaymentTermDays)
}

// transitions lists the allowed forward moves. VOID is handled separately
// since it is reachable from every state except SENT.
var transitions = map[Status][]Status{
	StatusAwaitingPO:      {StatusDraft},
	StatusDraft:           {StatusPendingApproval},
	StatusPendingApproval: {StatusApproved},
	StatusApproved:        {StatusSent},
}

// CanTransition reports whether a status change is allowed.
func CanTransition(from, to Status) bool {
	if to == StatusVoid {
		return from != StatusSent
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
