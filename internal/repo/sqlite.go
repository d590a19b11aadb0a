package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/BuzzLyutic/todo-api/internal/model"
	"github.com/BuzzLyutic/todo-api/migrations"
)

// OpenSQLite opens (or creates) the database file at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; one connection avoids SQLITE_BUSY under concurrent requests
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// SQLiteTaskRepo is the embedded alternative to TaskRepo for single-node runs.
type SQLiteTaskRepo struct {
	db *sql.DB
}

func NewSQLiteTaskRepo(db *sql.DB) *SQLiteTaskRepo {
	return &SQLiteTaskRepo{db: db}
}

func (r *SQLiteTaskRepo) Insert(ctx context.Context, t model.Task) (model.Task, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (owner_id, title, description, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.OwnerID, t.Title, nullString(t.Description), t.Completed, toMicros(t.CreatedAt), toMicros(t.UpdatedAt))
	if err != nil {
		return t, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return t, err
	}
	return r.GetByID(ctx, id)
}

func (r *SQLiteTaskRepo) GetByID(ctx context.Context, id int64) (model.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = ?
	`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrorNotFound
	}
	return t, err
}

func (r *SQLiteTaskRepo) Save(ctx context.Context, t model.Task) (model.Task, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, completed = ?, updated_at = ?
		WHERE id = ?
	`, t.Title, nullString(t.Description), t.Completed, toMicros(t.UpdatedAt), t.ID)
	if err != nil {
		return t, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return t, err
	}
	if n == 0 {
		return t, ErrorNotFound
	}
	return r.GetByID(ctx, t.ID)
}

func (r *SQLiteTaskRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrorNotFound
	}
	return nil
}

// QueryByOwner orders by the requested column then id ascending.
// SQLite's default BINARY collation compares titles byte-wise.
func (r *SQLiteTaskRepo) QueryByOwner(ctx context.Context, owner string, q model.ListQuery) ([]model.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM tasks
		WHERE owner_id = ? AND (? IS NULL OR completed = ?)
		ORDER BY %s %s, id ASC
		LIMIT ? OFFSET ?
	`, taskColumns, q.Sort.Column(), q.Order.SQL())

	completed := nullBool(q.Status.Completed())
	rows, err := r.db.QueryContext(ctx, query, owner, completed, completed, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]model.Task, 0, q.Limit)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *SQLiteTaskRepo) CountByOwner(ctx context.Context, owner string, status model.StatusFilter) (int, error) {
	completed := nullBool(status.Completed())
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM tasks
		WHERE owner_id = ? AND (? IS NULL OR completed = ?)
	`, owner, completed, completed).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (model.Task, error) {
	var (
		t                  model.Task
		description        sql.NullString
		createdAt, updated int64
	)
	if err := s.Scan(&t.ID, &t.OwnerID, &t.Title, &description, &t.Completed, &createdAt, &updated); err != nil {
		return model.Task{}, err
	}
	if description.Valid {
		t.Description = &description.String
	}
	t.CreatedAt = fromMicros(createdAt)
	t.UpdatedAt = fromMicros(updated)
	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}
