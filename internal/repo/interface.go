package repo

import (
	"context"

	"github.com/BuzzLyutic/todo-api/internal/model"
)

// TaskRepository определяет интерфейс для работы с задачами.
// Ownership is not checked here; callers filter by owner themselves.
type TaskRepository interface {
	Insert(ctx context.Context, t model.Task) (model.Task, error)
	GetByID(ctx context.Context, id int64) (model.Task, error)
	Save(ctx context.Context, t model.Task) (model.Task, error)
	Delete(ctx context.Context, id int64) error
	QueryByOwner(ctx context.Context, owner string, q model.ListQuery) ([]model.Task, error)
	CountByOwner(ctx context.Context, owner string, status model.StatusFilter) (int, error)
}
