// Package reminders manages named task lists with positionally addressed
// tasks. Tasks are addressed by list name plus 1-based index, where index
// order is creation order within the list.
package reminders

import (
	"time"

	"github.com/google/uuid"
)

// TaskList is a named container of tasks. Names are unique.
type TaskList struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is one entry in a list. DueAt is optional and always an absolute
// timestamp.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	ListID      uuid.UUID  `json:"list_id"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskEdit carries the mutable task fields. Nil means leave unchanged.
type TaskEdit struct {
	Title *string    `json:"title,omitempty"`
	Notes *string    `json:"notes,omitempty"`
	DueAt *time.Time `json:"due_at,omitempty"`
}
