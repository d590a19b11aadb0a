package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/todo-api/internal/model"
	"github.com/BuzzLyutic/todo-api/internal/repo"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
)

var (
	ErrValidation = errors.New("validation error")
	ErrForbidden  = errors.New("cannot access another user's resources")
	ErrNotFound   = errors.New("task not found")
)

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Access pairs the owner named in the request path with the identity verified from the token.
type Access struct {
	OwnerID  string
	CallerID string
}

type TaskService struct {
	repo   repo.TaskRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewTaskService(repo repo.TaskRepository, logger *zap.Logger) *TaskService {
	return &TaskService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// AssertOwnership fails with ErrForbidden unless both identities are exactly equal.
// It never looks at storage.
func (s *TaskService) AssertOwnership(pathOwner, verified string) error {
	if pathOwner != verified {
		return ErrForbidden
	}
	return nil
}

func (s *TaskService) Create(ctx context.Context, a Access, in model.TaskInput) (model.Task, error) {
	if err := s.AssertOwnership(a.OwnerID, a.CallerID); err != nil {
		return model.Task{}, err
	}
	if err := validate(in); err != nil { // Валидация до обращения к БД
		return model.Task{}, err
	}

	now := s.timestamp()
	task, err := s.repo.Insert(ctx, model.Task{
		OwnerID:     a.OwnerID,
		Title:       in.Title,
		Description: in.Description,
		Completed:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return model.Task{}, fmt.Errorf("insert task: %w", err)
	}

	s.logger.Debug("task created", zap.String("owner_id", a.OwnerID), zap.Int64("task_id", task.ID))
	return task, nil
}

func (s *TaskService) Get(ctx context.Context, a Access, id int64) (model.Task, error) {
	if err := s.AssertOwnership(a.OwnerID, a.CallerID); err != nil {
		return model.Task{}, err
	}
	return s.lookup(ctx, a.OwnerID, id)
}

// Update replaces title and description. A nil description clears it; completed is untouched.
func (s *TaskService) Update(ctx context.Context, a Access, id int64, in model.TaskInput) (model.Task, error) {
	if err := s.AssertOwnership(a.OwnerID, a.CallerID); err != nil {
		return model.Task{}, err
	}
	if err := validate(in); err != nil {
		return model.Task{}, err
	}

	task, err := s.lookup(ctx, a.OwnerID, id)
	if err != nil {
		return model.Task{}, err
	}

	task.Title = in.Title
	task.Description = in.Description
	task.UpdatedAt = s.touch(task.UpdatedAt)
	return s.save(ctx, task)
}

func (s *TaskService) ToggleComplete(ctx context.Context, a Access, id int64) (model.Task, error) {
	if err := s.AssertOwnership(a.OwnerID, a.CallerID); err != nil {
		return model.Task{}, err
	}

	task, err := s.lookup(ctx, a.OwnerID, id)
	if err != nil {
		return model.Task{}, err
	}

	task.Completed = !task.Completed
	task.UpdatedAt = s.touch(task.UpdatedAt)
	return s.save(ctx, task)
}

func (s *TaskService) Delete(ctx context.Context, a Access, id int64) error {
	if err := s.AssertOwnership(a.OwnerID, a.CallerID); err != nil {
		return err
	}
	if _, err := s.lookup(ctx, a.OwnerID, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrorNotFound) { // удалена параллельным запросом
			return ErrNotFound
		}
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

// List returns one page of the owner's tasks. The statistics always cover the
// owner's whole task set, whatever the status filter, limit or offset.
func (s *TaskService) List(ctx context.Context, a Access, q model.ListQuery) (model.TaskPage, error) {
	if err := s.AssertOwnership(a.OwnerID, a.CallerID); err != nil {
		return model.TaskPage{}, err
	}
	if err := ValidateQuery(q); err != nil {
		return model.TaskPage{}, err
	}

	tasks, err := s.repo.QueryByOwner(ctx, a.OwnerID, q)
	if err != nil {
		return model.TaskPage{}, fmt.Errorf("query tasks: %w", err)
	}
	pending, err := s.repo.CountByOwner(ctx, a.OwnerID, model.StatusPending)
	if err != nil {
		return model.TaskPage{}, fmt.Errorf("count pending tasks: %w", err)
	}
	completed, err := s.repo.CountByOwner(ctx, a.OwnerID, model.StatusCompleted)
	if err != nil {
		return model.TaskPage{}, fmt.Errorf("count completed tasks: %w", err)
	}

	if tasks == nil {
		tasks = []model.Task{}
	}
	return model.TaskPage{
		Tasks:     tasks,
		Total:     pending + completed,
		Pending:   pending,
		Completed: completed,
	}, nil
}

// lookup is the single found-and-owned predicate: a task owned by someone
// else is reported exactly like a missing one.
func (s *TaskService) lookup(ctx context.Context, owner string, id int64) (model.Task, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrorNotFound) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, fmt.Errorf("get task %d: %w", id, err)
	}
	if task.OwnerID != owner {
		return model.Task{}, ErrNotFound
	}
	return task, nil
}

func (s *TaskService) save(ctx context.Context, task model.Task) (model.Task, error) {
	saved, err := s.repo.Save(ctx, task)
	if err != nil {
		if errors.Is(err, repo.ErrorNotFound) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, fmt.Errorf("save task %d: %w", task.ID, err)
	}
	return saved, nil
}

func (s *TaskService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// touch returns a new updated_at strictly after prev, even if the clock has not moved.
func (s *TaskService) touch(prev time.Time) time.Time {
	now := s.timestamp()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond).UTC()
	}
	return now
}

func validate(in model.TaskInput) error {
	n := utf8.RuneCountInString(in.Title)
	if n < 1 {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if n > MaxTitleLength {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("must be at most %d characters", MaxTitleLength)}
	}
	if in.Description != nil && utf8.RuneCountInString(*in.Description) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", MaxDescriptionLength)}
	}
	return nil
}

// ValidateQuery checks the filter, sort and pagination bounds of a list request.
func ValidateQuery(q model.ListQuery) error {
	switch {
	case !q.Status.Valid():
		return &ValidationError{Field: "status", Reason: "must be one of all, pending, completed"}
	case !q.Sort.Valid():
		return &ValidationError{Field: "sort", Reason: "must be one of created, updated, title"}
	case !q.Order.Valid():
		return &ValidationError{Field: "order", Reason: "must be asc or desc"}
	case q.Limit < model.MinLimit || q.Limit > model.MaxLimit:
		return &ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between %d and %d", model.MinLimit, model.MaxLimit)}
	case q.Offset < 0:
		return &ValidationError{Field: "offset", Reason: "must not be negative"}
	}
	return nil
}
