package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/todo-api/internal/model"
	"github.com/BuzzLyutic/todo-api/migrations"
)

var (
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")
)

const taskColumns = `id, owner_id, title, description, completed, created_at, updated_at`

type TaskRepo struct { // Репозиторий для работы непосредственно с БД
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo { // Конструктор
	return &TaskRepo{
		pool: pool,
	}
}

// Migrate creates the tasks table if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, migrations.PostgresUp); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *TaskRepo) Insert(ctx context.Context, t model.Task) (model.Task, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (owner_id, title, description, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+taskColumns,
		t.OwnerID, t.Title, t.Description, t.Completed, t.CreatedAt, t.UpdatedAt,
	)
	created, err := scanPgTask(row)
	return created, r.mapError(err)
}

func (r *TaskRepo) GetByID(ctx context.Context, id int64) (model.Task, error) {
	t, err := scanPgTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
	`, id))
	return t, r.mapError(err)
}

// Save overwrites the mutable columns of an existing row; owner_id and created_at are never written.
func (r *TaskRepo) Save(ctx context.Context, t model.Task) (model.Task, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, completed = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+taskColumns,
		t.ID, t.Title, t.Description, t.Completed, t.UpdatedAt,
	)
	saved, err := scanPgTask(row)
	return saved, r.mapError(err)
}

func (r *TaskRepo) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

// QueryByOwner returns one page of the owner's tasks. Ties on the sort column
// are broken by id ascending; titles compare byte-wise.
func (r *TaskRepo) QueryByOwner(ctx context.Context, owner string, q model.ListQuery) ([]model.Task, error) {
	sortExpr := q.Sort.Column()
	if q.Sort == model.SortTitle {
		sortExpr += ` COLLATE "C"`
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM tasks
		WHERE owner_id = $1 AND ($2::boolean IS NULL OR completed = $2)
		ORDER BY %s %s, id ASC
		LIMIT $3 OFFSET $4
	`, taskColumns, sortExpr, q.Order.SQL())

	rows, err := r.pool.Query(ctx, query, owner, q.Status.Completed(), q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]model.Task, 0, q.Limit)
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepo) CountByOwner(ctx context.Context, owner string, status model.StatusFilter) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tasks
		WHERE owner_id = $1 AND ($2::boolean IS NULL OR completed = $2)
	`, owner, status.Completed()).Scan(&n)
	return n, err
}

// scanPgTask reads one row in taskColumns order; timestamptz values come back in UTC.
func scanPgTask(s scanner) (model.Task, error) {
	var t model.Task
	if err := s.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Task{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func (r *TaskRepo) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23514": // unique_violation, check_violation
			return fmt.Errorf("%w: %s", ErrorConflict, pgErr.ConstraintName)
		}
	}
	return err
}
