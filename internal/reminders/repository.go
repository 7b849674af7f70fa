package reminders

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence boundary for lists and tasks.
type Repository interface {
	CreateList(ctx context.Context, list *TaskList) error
	ListByName(ctx context.Context, name string) (*TaskList, error)
	Lists(ctx context.Context) ([]TaskList, error)

	InsertTask(ctx context.Context, task *Task) error
	// TasksByList returns tasks in creation order; positional indexes are
	// derived from this ordering.
	TasksByList(ctx context.Context, listID uuid.UUID) ([]Task, error)
	UpdateTask(ctx context.Context, task *Task) error
	DeleteTask(ctx context.Context, id uuid.UUID) error
}
