package approval

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ledgerpilot/ledgerpilot/internal/billing/draft"
)

// Presentation is the canonical rendering of a draft shown to a human
// before a decision is solicited. It must enumerate every line item, the
// total, and the due date; omitting any field voids the contract.
type Presentation struct {
	DraftID    uuid.UUID `json:"draft_id"`
	Version    int       `json:"version"`
	Text       string    `json:"text"`
	RenderedAt time.Time `json:"rendered_at"`
}

var printer = message.NewPrinter(language.English)

// Render produces the presentation text for a draft at the given version.
func Render(inv *draft.Invoice, version int, renderedAt time.Time) Presentation {
	var b strings.Builder
	b.WriteString(printer.Sprintf("Invoice for %s", clientLabel(inv)))
	if inv.ExternalID != "" {
		b.WriteString(printer.Sprintf(" (invoice %s)", inv.ExternalID))
	}
	b.WriteString("\n")
	for _, l := range inv.LineItems {
		b.WriteString(printer.Sprintf("  - %s: %v x %s %.2f = %s %.2f\n",
			l.Description, l.Quantity, inv.Currency, l.UnitAmount, inv.Currency, l.Amount()))
	}
	b.WriteString(printer.Sprintf("Total: %s %.2f\n", inv.Currency, inv.Total()))
	if inv.PurchaseOrder != "" {
		b.WriteString(printer.Sprintf("Purchase order: %s\n", inv.PurchaseOrder))
	}
	b.WriteString(printer.Sprintf("Due: %s (%d-day terms)\n",
		inv.DueDate().Format("2006-01-02"), inv.PaymentTermDays))

	return Presentation{
		DraftID:    inv.ID,
		Version:    version,
		Text:       b.String(),
		RenderedAt: renderedAt,
	}
}

func clientLabel(inv *draft.Invoice) string {
	if inv.Organization != "" {
		return inv.Organization
	}
	return inv.ClientEmail
}
