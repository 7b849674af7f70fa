package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

// Service handles task list operations. Tasks are addressed by list name
// plus 1-based position within the list.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// CreateList creates a new named list.
func (s *Service) CreateList(ctx context.Context, name string) (TaskList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TaskList{}, fmt.Errorf("list name: %w", shared.ErrMissingRequiredField)
	}
	list := TaskList{ID: uuid.New(), Name: name, CreatedAt: s.now()}
	if err := s.repo.CreateList(ctx, &list); err != nil {
		return TaskList{}, err
	}
	return list, nil
}

// Lists returns all task lists.
func (s *Service) Lists(ctx context.Context) ([]TaskList, error) {
	return s.repo.Lists(ctx)
}

// AddTaskInput carries the fields for task creation.
type AddTaskInput struct {
	Title string
	Notes string
	DueAt *time.Time
}

// AddTask appends a task to the named list.
func (s *Service) AddTask(ctx context.Context, listName string, in AddTaskInput) (Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return Task{}, fmt.Errorf("task title: %w", shared.ErrMissingRequiredField)
	}
	list, err := s.repo.ListByName(ctx, listName)
	if err != nil {
		return Task{}, err
	}
	now := s.now()
	task := Task{
		ID:        uuid.New(),
		ListID:    list.ID,
		Title:     strings.TrimSpace(in.Title),
		Notes:     in.Notes,
		DueAt:     in.DueAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertTask(ctx, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// Tasks returns the named list's tasks in positional order.
func (s *Service) Tasks(ctx context.Context, listName string) ([]Task, error) {
	list, err := s.repo.ListByName(ctx, listName)
	if err != nil {
		return nil, err
	}
	return s.repo.TasksByList(ctx, list.ID)
}

// CompleteTask marks the task at the 1-based index as done. Completing an
// already completed task is a no-op.
func (s *Service) CompleteTask(ctx context.Context, listName string, index int) (Task, error) {
	task, err := s.taskAt(ctx, listName, index)
	if err != nil {
		return Task{}, err
	}
	if task.Completed {
		return task, nil
	}
	now := s.now()
	task.Completed = true
	task.CompletedAt = &now
	task.UpdatedAt = now
	if err := s.repo.UpdateTask(ctx, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// EditTask updates fields of the task at the 1-based index.
func (s *Service) EditTask(ctx context.Context, listName string, index int, edit TaskEdit) (Task, error) {
	task, err := s.taskAt(ctx, listName, index)
	if err != nil {
		return Task{}, err
	}
	if edit.Title != nil {
		if strings.TrimSpace(*edit.Title) == "" {
			return Task{}, fmt.Errorf("task title: %w", shared.ErrMissingRequiredField)
		}
		task.Title = strings.TrimSpace(*edit.Title)
	}
	if edit.Notes != nil {
		task.Notes = *edit.Notes
	}
	if edit.DueAt != nil {
		task.DueAt = edit.DueAt
	}
	task.UpdatedAt = s.now()
	if err := s.repo.UpdateTask(ctx, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// DeleteTask removes the task at the 1-based index.
func (s *Service) DeleteTask(ctx context.Context, listName string, index int) error {
	task, err := s.taskAt(ctx, listName, index)
	if err != nil {
		return err
	}
	return s.repo.DeleteTask(ctx, task.ID)
}

func (s *Service) taskAt(ctx context.Context, listName string, index int) (Task, error) {
	list, err := s.repo.ListByName(ctx, listName)
	if err != nil {
		return Task{}, err
	}
	tasks, err := s.repo.TasksByList(ctx, list.ID)
	if err != nil {
		return Task{}, err
	}
	if index < 1 || index > len(tasks) {
		return Task{}, fmt.Errorf("%w: list %q has %d tasks, index %d requested",
			shared.ErrIndexOutOfRange, listName, len(tasks), index)
	}
	return tasks[index-1], nil
}
