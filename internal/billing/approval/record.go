package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

// Record binds one draft invoice to an approval decision. Records are
// immutable once written; a new presentation produces a new record at a
// higher version.
type Record struct {
	ID                  int64
	DraftID             uuid.UUID
	PresentationVersion int
	Decision            Decision
	RawUtterance        string
	DecidedAt           time.Time
}

// RecordRepository persists approval history per draft.
type RecordRepository interface {
	Append(ctx context.Context, rec Record) error
	Latest(ctx context.Context, draftID uuid.UUID) (*Record, error)
	List(ctx context.Context, draftID uuid.UUID) ([]Record, error)
}

// PGRecordRepository stores approval records in PostgreSQL.
type PGRecordRepository struct {
	pool *pgxpool.Pool
}

// NewPGRecordRepository constructs the repository.
func NewPGRecordRepository(pool *pgxpool.Pool) *PGRecordRepository {
	return &PGRecordRepository{pool: pool}
}

// Append writes one approval record.
func (r *PGRecordRepository) Append(ctx context.Context, rec Record) error {
	if rec.DraftID == uuid.Nil {
		return errors.New("approval: draft id required")
	}
	if rec.Decision == "" {
		return errors.New("approval: decision required")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO billing_approvals (draft_id, presentation_version, decision, raw_utterance, decided_at)
VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`,
		rec.DraftID, rec.PresentationVersion, string(rec.Decision), rec.RawUtterance, rec.DecidedAt)
	if err != nil {
		return fmt.Errorf("approval: append: %w", err)
	}
	return nil
}

// Latest returns the most recent record for a draft.
func (r *PGRecordRepository) Latest(ctx context.Context, draftID uuid.UUID) (*Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, draft_id, presentation_version, decision, raw_utterance, decided_at
FROM billing_approvals WHERE draft_id=$1 ORDER BY id DESC LIMIT 1`, draftID)
	var rec Record
	var decision string
	if err := row.Scan(&rec.ID, &rec.DraftID, &rec.PresentationVersion, &decision, &rec.RawUtterance, &rec.DecidedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("approval record for draft %s: %w", draftID, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("approval: latest: %w", err)
	}
	rec.Decision = Decision(decision)
	return &rec, nil
}

// List returns the full approval history for a draft, oldest first.
func (r *PGRecordRepository) List(ctx context.Context, draftID uuid.UUID) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, draft_id, presentation_version, decision, raw_utterance, decided_at
FROM billing_approvals WHERE draft_id=$1 ORDER BY id`, draftID)
	if err != nil {
		return nil, fmt.Errorf("approval: list: %w", err)
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		var decision string
		if err := rows.Scan(&rec.ID, &rec.DraftID, &rec.PresentationVersion, &decision, &rec.RawUtterance, &rec.DecidedAt); err != nil {
			return nil, err
		}
		rec.Decision = Decision(decision)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// MemoryRecordRepository keeps approval records in memory for tests.
type MemoryRecordRepository struct {
	mu      sync.Mutex
	nextID  int64
	records map[uuid.UUID][]Record
}

// NewMemoryRecordRepository constructs an empty repository.
func NewMemoryRecordRepository() *MemoryRecordRepository {
	return &MemoryRecordRepository{records: make(map[uuid.UUID][]Record)}
}

// Append stores one record.
func (r *MemoryRecordRepository) Append(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rec.ID = r.nextID
	r.records[rec.DraftID] = append(r.records[rec.DraftID], rec)
	return nil
}

// Latest returns the most recent record for a draft.
func (r *MemoryRecordRepository) Latest(ctx context.Context, draftID uuid.UUID) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs := r.records[draftID]
	if len(recs) == 0 {
		return nil, fmt.Errorf("approval record for draft %s: %w", draftID, shared.ErrNotFound)
	}
	rec := recs[len(recs)-1]
	return &rec, nil
}

// List returns the history for a draft, oldest first.
func (r *MemoryRecordRepository) List(ctx context.Context, draftID uuid.UUID) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs := append([]Record(nil), r.records[draftID]...)
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}
