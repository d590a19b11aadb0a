package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/todo-api/internal/model"
)

// testRepositoryContract runs the behaviour every TaskRepository must share.
// newRepo returns a repository over an empty store.
func testRepositoryContract(t *testing.T, newRepo func(t *testing.T) TaskRepository) {
	t.Run("insert and get", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		desc := "details"
		now := stamp(0)

		created, err := r.Insert(ctx, model.Task{
			OwnerID:     "owner-1",
			Title:       "Write tests",
			Description: &desc,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, "owner-1", created.OwnerID)
		assert.False(t, created.Completed)
		assert.True(t, now.Equal(created.CreatedAt))

		got, err := r.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created, got)
		require.NotNil(t, got.Description)
		assert.Equal(t, "details", *got.Description)
	})

	t.Run("ids are unique", func(t *testing.T) {
		r := newRepo(t)
		first := insert(t, r, "o", "a", 0, false)
		second := insert(t, r, "o", "b", 0, false)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("get missing", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.GetByID(context.Background(), 12345)
		assert.ErrorIs(t, err, ErrorNotFound)
	})

	t.Run("save keeps owner and created_at", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		task := insert(t, r, "owner-1", "before", 0, false)

		task.Title = "after"
		task.Description = nil
		task.Completed = true
		task.OwnerID = "someone-else"
		task.CreatedAt = stamp(99)
		task.UpdatedAt = stamp(5)

		saved, err := r.Save(ctx, task)
		require.NoError(t, err)
		assert.Equal(t, "after", saved.Title)
		assert.Nil(t, saved.Description)
		assert.True(t, saved.Completed)
		assert.Equal(t, "owner-1", saved.OwnerID)
		assert.True(t, stamp(0).Equal(saved.CreatedAt))
		assert.True(t, stamp(5).Equal(saved.UpdatedAt))
	})

	t.Run("save missing", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.Save(context.Background(), model.Task{ID: 777, Title: "x", CreatedAt: stamp(0), UpdatedAt: stamp(0)})
		assert.ErrorIs(t, err, ErrorNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		task := insert(t, r, "o", "gone", 0, false)

		require.NoError(t, r.Delete(ctx, task.ID))
		_, err := r.GetByID(ctx, task.ID)
		assert.ErrorIs(t, err, ErrorNotFound)
		assert.ErrorIs(t, r.Delete(ctx, task.ID), ErrorNotFound)
	})

	t.Run("counts", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			insert(t, r, "owner-1", fmt.Sprintf("pending %d", i), i, false)
		}
		for i := 0; i < 3; i++ {
			insert(t, r, "owner-1", fmt.Sprintf("done %d", i), i, true)
		}
		insert(t, r, "owner-2", "foreign", 0, true)

		counts := map[model.StatusFilter]int{
			model.StatusAll:       8,
			model.StatusPending:   5,
			model.StatusCompleted: 3,
		}
		for status, want := range counts {
			n, err := r.CountByOwner(ctx, "owner-1", status)
			require.NoError(t, err)
			assert.Equal(t, want, n, "status %s", status)
		}

		n, err := r.CountByOwner(ctx, "nobody", model.StatusAll)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("query filters by owner and status", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		insert(t, r, "owner-1", "a", 0, false)
		insert(t, r, "owner-1", "b", 1, true)
		insert(t, r, "owner-2", "c", 2, false)

		q := model.DefaultListQuery()
		all, err := r.QueryByOwner(ctx, "owner-1", q)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, titles(all))

		q.Status = model.StatusCompleted
		done, err := r.QueryByOwner(ctx, "owner-1", q)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, titles(done))

		q.Status = model.StatusPending
		pending, err := r.QueryByOwner(ctx, "owner-1", q)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, titles(pending))

		none, err := r.QueryByOwner(ctx, "nobody", model.DefaultListQuery())
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("query sorting", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		// same created_at for the first two to exercise the id tie-break
		first := insert(t, r, "o", "banana", 0, false)
		second := insert(t, r, "o", "Apple", 0, false)
		third := insert(t, r, "o", "apple", 1, false)

		// bump updated_at so the updated order differs from creation order
		first.UpdatedAt = stamp(10)
		_, err := r.Save(ctx, first)
		require.NoError(t, err)

		tests := []struct {
			sort  model.SortField
			order model.SortOrder
			want  []int64
		}{
			{model.SortCreated, model.OrderAsc, []int64{first.ID, second.ID, third.ID}},
			{model.SortCreated, model.OrderDesc, []int64{third.ID, first.ID, second.ID}},
			{model.SortUpdated, model.OrderDesc, []int64{first.ID, third.ID, second.ID}},
			{model.SortUpdated, model.OrderAsc, []int64{second.ID, third.ID, first.ID}},
			{model.SortTitle, model.OrderAsc, []int64{second.ID, third.ID, first.ID}},
			{model.SortTitle, model.OrderDesc, []int64{first.ID, third.ID, second.ID}},
		}
		for _, tt := range tests {
			t.Run(string(tt.sort)+" "+string(tt.order), func(t *testing.T) {
				q := model.DefaultListQuery()
				q.Sort, q.Order = tt.sort, tt.order
				got, err := r.QueryByOwner(ctx, "o", q)
				require.NoError(t, err)
				assert.Equal(t, tt.want, ids(got))
			})
		}
	})

	t.Run("query pagination", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		var want []int64
		for i := 0; i < 7; i++ {
			want = append(want, insert(t, r, "o", fmt.Sprintf("t%d", i), i, false).ID)
		}

		q := model.DefaultListQuery()
		q.Order = model.OrderAsc
		q.Limit = 3

		var got []int64
		for q.Offset = 0; q.Offset < 9; q.Offset += q.Limit {
			page, err := r.QueryByOwner(ctx, "o", q)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(page), 3)
			got = append(got, ids(page)...)
		}
		assert.Equal(t, want, got)
	})

	t.Run("concurrent inserts", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		owner := uuid.NewString()

		const goroutines = 20
		var wg sync.WaitGroup
		errs := make([]error, goroutines)
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				_, errs[idx] = r.Insert(ctx, model.Task{
					OwnerID:   owner,
					Title:     fmt.Sprintf("Concurrent Task %d", idx),
					CreatedAt: stamp(idx),
					UpdatedAt: stamp(idx),
				})
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			require.NoError(t, err, "insert %d should not error", i)
		}
		n, err := r.CountByOwner(ctx, owner, model.StatusAll)
		require.NoError(t, err)
		assert.Equal(t, goroutines, n)
	})
}

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func stamp(seconds int) time.Time {
	return epoch.Add(time.Duration(seconds) * time.Second)
}

func insert(t *testing.T, r TaskRepository, owner, title string, at int, completed bool) model.Task {
	t.Helper()
	task, err := r.Insert(context.Background(), model.Task{
		OwnerID:   owner,
		Title:     title,
		Completed: completed,
		CreatedAt: stamp(at),
		UpdatedAt: stamp(at),
	})
	require.NoError(t, err)
	return task
}

func titles(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Title)
	}
	return out
}

func ids(tasks []model.Task) []int64 {
	out := make([]int64, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.ID)
	}
	return out
}

// errRepository fails every call; used to check error propagation through decorators.
type errRepository struct{ err error }

func (e errRepository) Insert(context.Context, model.Task) (model.Task, error) {
	return model.Task{}, e.err
}
func (e errRepository) GetByID(context.Context, int64) (model.Task, error) {
	return model.Task{}, e.err
}
func (e errRepository) Save(context.Context, model.Task) (model.Task, error) {
	return model.Task{}, e.err
}
func (e errRepository) Delete(context.Context, int64) error { return e.err }
func (e errRepository) QueryByOwner(context.Context, string, model.ListQuery) ([]model.Task, error) {
	return nil, e.err
}
func (e errRepository) CountByOwner(context.Context, string, model.StatusFilter) (int, error) {
	return 0, e.err
}

var errBoom = errors.New("boom")
