package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const draftColumns = `id, external_id, customer_id, client_email, organization, policy_name, currency,
line_items, purchase_order, payment_term_days, attachments, notes, status,
presentation_version, fiscal_year, void_reason, created_at, updated_at`

// Create inserts a new draft invoice.
func (r *PGRepository) Create(ctx context.Context, inv *Invoice) error {
	lines, err := json.Marshal(inv.LineItems)
	if err != nil {
		return fmt.Errorf("draft: marshal line items: %w", err)
	}
	attachments, err := json.Marshal(inv.Attachments)
	if err != nil {
		return fmt.Errorf("draft: marshal attachments: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO billing_drafts (`+draftColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		inv.ID, inv.ExternalID, inv.CustomerID, inv.ClientEmail, inv.Organization, inv.PolicyName, inv.Currency,
		lines, inv.PurchaseOrder, inv.PaymentTermDays, attachments, inv.Notes, string(inv.Status),
		inv.PresentationVersion, inv.FiscalYear, inv.VoidReason, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("draft %s: %w", inv.ID, shared.ErrDuplicate)
		}
		return fmt.Errorf("draft: insert: %w", err)
	}
	return nil
}

// Get loads one draft invoice by id.
func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+draftColumns+` FROM billing_drafts WHERE id=$1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("draft %s: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("draft: get: %w", err)
	}
	return inv, nil
}

// Update persists mutable fields of a draft invoice.
func (r *PGRepository) Update(ctx context.Context, inv *Invoice) error {
	lines, err := json.Marshal(inv.LineItems)
	if err != nil {
		return fmt.Errorf("draft: marshal line items: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE billing_drafts SET external_id=$2, customer_id=$3, line_items=$4,
purchase_order=$5, status=$6, presentation_version=$7, void_reason=$8, updated_at=$9 WHERE id=$1`,
		inv.ID, inv.ExternalID, inv.CustomerID, lines,
		inv.PurchaseOrder, string(inv.Status), inv.PresentationVersion, inv.VoidReason, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("draft: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("draft %s: %w", inv.ID, shared.ErrNotFound)
	}
	return nil
}

// List returns drafts matching the filter, oldest first.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	query := `SELECT ` + draftColumns + ` FROM billing_drafts WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if filter.ClientEmail != "" {
		args = append(args, filter.ClientEmail)
		query += fmt.Sprintf(" AND client_email=$%d", len(args))
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("draft: list: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("draft: scan: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var status string
	var lines, attachments []byte
	if err := row.Scan(&inv.ID, &inv.ExternalID, &inv.CustomerID, &inv.ClientEmail, &inv.Organization,
		&inv.PolicyName, &inv.Currency, &lines, &inv.PurchaseOrder, &inv.PaymentTermDays,
		&attachments, &inv.Notes, &status, &inv.PresentationVersion, &inv.FiscalYear,
		&inv.VoidReason, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	inv.Status = Status(status)
	if err := json.Unmarshal(lines, &inv.LineItems); err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &inv.Attachments); err != nil {
			return nil, err
		}
	}
	return &inv, nil
}
