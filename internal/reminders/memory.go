package reminders

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

// MemoryRepository is an in-memory Repository for tests and local runs.
type MemoryRepository struct {
	mu    sync.Mutex
	lists map[uuid.UUID]TaskList
	tasks map[uuid.UUID]Task
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		lists: make(map[uuid.UUID]TaskList),
		tasks: make(map[uuid.UUID]Task),
	}
}

func (r *MemoryRepository) CreateList(ctx context.Context, list *TaskList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.lists {
		if existing.Name == list.Name {
			return fmt.Errorf("list %q: %w", list.Name, shared.ErrDuplicate)
		}
	}
	r.lists[list.ID] = *list
	return nil
}

func (r *MemoryRepository) ListByName(ctx context.Context, name string) (*TaskList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, list := range r.lists {
		if list.Name == name {
			out := list
			return &out, nil
		}
	}
	return nil, fmt.Errorf("list %q: %w", name, shared.ErrListNotFound)
}

func (r *MemoryRepository) Lists(ctx context.Context) ([]TaskList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TaskList, 0, len(r.lists))
	for _, list := range r.lists {
		out = append(out, list)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) InsertTask(ctx context.Context, task *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = *task
	return nil
}

func (r *MemoryRepository) TasksByList(ctx context.Context, listID uuid.UUID) ([]Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Task
	for _, task := range r.tasks {
		if task.ListID == listID {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) UpdateTask(ctx context.Context, task *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[task.ID]; !ok {
		return fmt.Errorf("task %s: %w", task.ID, shared.ErrNotFound)
	}
	r.tasks[task.ID] = *task
	return nil
}

func (r *MemoryRepository) DeleteTask(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, shared.ErrNotFound)
	}
	delete(r.tasks, id)
	return nil
}
