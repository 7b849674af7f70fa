package reminders

import (
	"context"
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

const taskColumns = `id, list_id, title, notes, due_at, completed, completed_at, created_at, updated_at`

// CreateList inserts a new task list. List names are unique.
func (r *PGRepository) CreateList(ctx context.Context, list *TaskList) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO reminder_lists (id, name, created_at) VALUES ($1, $2, $3)`,
		list.ID, list.Name, list.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("list %q: %w", list.Name, shared.ErrDuplicate)
		}
		return fmt.Errorf("reminders: insert list: %w", err)
	}
	return nil
}

// ListByName loads one list by its unique name.
func (r *PGRepository) ListByName(ctx context.Context, name string) (*TaskList, error) {
	var list TaskList
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at FROM reminder_lists WHERE name=$1`, name).
		Scan(&list.ID, &list.Name, &list.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("list %q: %w", name, shared.ErrListNotFound)
		}
		return nil, fmt.Errorf("reminders: get list: %w", err)
	}
	return &list, nil
}

// Lists returns all task lists, oldest first.
func (r *PGRepository) Lists(ctx context.Context) ([]TaskList, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM reminder_lists ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("reminders: list lists: %w", err)
	}
	defer rows.Close()

	var lists []TaskList
	for rows.Next() {
		var list TaskList
		if err := rows.Scan(&list.ID, &list.Name, &list.CreatedAt); err != nil {
			return nil, fmt.Errorf("reminders: scan list: %w", err)
		}
		lists = append(lists, list)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lists, nil
}

// InsertTask appends a task to its list.
func (r *PGRepository) InsertTask(ctx context.Context, task *Task) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO reminder_tasks (`+taskColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.ListID, task.Title, task.Notes, task.DueAt,
		task.Completed, task.CompletedAt, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("reminders: insert task: %w", err)
	}
	return nil
}

// TasksByList returns tasks in creation order.
func (r *PGRepository) TasksByList(ctx context.Context, listID uuid.UUID) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM reminder_tasks WHERE list_id=$1 ORDER BY created_at, id`, listID)
	if err != nil {
		return nil, fmt.Errorf("reminders: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var task Task
		if err := rows.Scan(&task.ID, &task.ListID, &task.Title, &task.Notes, &task.DueAt,
			&task.Completed, &task.CompletedAt, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, fmt.Errorf("reminders: scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateTask persists mutable task fields.
func (r *PGRepository) UpdateTask(ctx context.Context, task *Task) error {
	tag, err := r.pool.Exec(ctx, `UPDATE reminder_tasks SET title=$2, notes=$3, due_at=$4,
completed=$5, completed_at=$6, updated_at=$7 WHERE id=$1`,
		task.ID, task.Title, task.Notes, task.DueAt, task.Completed, task.CompletedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("reminders: update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", task.ID, shared.ErrNotFound)
	}
	return nil
}

// DeleteTask removes a task permanently.
func (r *PGRepository) DeleteTask(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reminder_tasks WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("reminders: delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, shared.ErrNotFound)
	}
	return nil
}
