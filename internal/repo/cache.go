package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BuzzLyutic/todo-api/internal/model"
)

// errStaleLoad reports that a write happened while a value was being loaded.
var errStaleLoad = errors.New("cache generation moved during load")

// CachedTaskRepo is a cache-aside decorator over another TaskRepository.
// Single tasks and per-owner counts are cached in Redis; pages are always
// read from the underlying store. Redis failures are logged and the call
// falls through to the store.
//
// Every cached key has a generation counter. Writes bump the generation
// before dropping the keys, and a loaded value is stored only if the
// generation read before the load is still current (WATCH/MULTI), so a
// slow read can never put a row back after it was changed or deleted.
type CachedTaskRepo struct {
	next   TaskRepository
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

func NewCachedTaskRepo(next TaskRepository, client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *CachedTaskRepo {
	return &CachedTaskRepo{
		next:   next,
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedTaskRepo) taskKey(id int64) string {
	return c.prefix + "task:" + strconv.FormatInt(id, 10)
}

func (c *CachedTaskRepo) taskGenKey(id int64) string {
	return c.prefix + "gen:task:" + strconv.FormatInt(id, 10)
}

func (c *CachedTaskRepo) countKey(owner string, status model.StatusFilter) string {
	return c.prefix + "count:" + owner + ":" + string(status)
}

func (c *CachedTaskRepo) ownerGenKey(owner string) string {
	return c.prefix + "gen:owner:" + owner
}

func (c *CachedTaskRepo) Insert(ctx context.Context, t model.Task) (model.Task, error) {
	created, err := c.next.Insert(ctx, t)
	if err != nil {
		return created, err
	}
	c.invalidate(ctx, created.OwnerID, 0)
	return created, nil
}

func (c *CachedTaskRepo) GetByID(ctx context.Context, id int64) (model.Task, error) {
	key := c.taskKey(id)

	var t model.Task
	if c.get(ctx, key, &t) {
		return t, nil
	}

	genKey := c.taskGenKey(id)
	gen, genOK := c.generation(ctx, genKey)

	t, err := c.next.GetByID(ctx, id)
	if err != nil {
		return t, err
	}
	if genOK {
		c.setIfCurrent(ctx, key, genKey, gen, t)
	}
	return t, nil
}

func (c *CachedTaskRepo) Save(ctx context.Context, t model.Task) (model.Task, error) {
	saved, err := c.next.Save(ctx, t)
	if err != nil {
		return saved, err
	}
	c.invalidate(ctx, saved.OwnerID, saved.ID)
	return saved, nil
}

func (c *CachedTaskRepo) Delete(ctx context.Context, id int64) error {
	// the owner is needed to drop its cached counts
	existing, err := c.next.GetByID(ctx, id)
	if err != nil && !errors.Is(err, ErrorNotFound) {
		return err
	}
	if err := c.next.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, existing.OwnerID, id)
	return nil
}

func (c *CachedTaskRepo) QueryByOwner(ctx context.Context, owner string, q model.ListQuery) ([]model.Task, error) {
	return c.next.QueryByOwner(ctx, owner, q)
}

func (c *CachedTaskRepo) CountByOwner(ctx context.Context, owner string, status model.StatusFilter) (int, error) {
	key := c.countKey(owner, status)

	var n int
	if c.get(ctx, key, &n) {
		return n, nil
	}

	genKey := c.ownerGenKey(owner)
	gen, genOK := c.generation(ctx, genKey)

	// callers only share a load started under the same generation
	flight := key + "@" + strconv.FormatInt(gen, 10)
	v, err, _ := c.group.Do(flight, func() (any, error) {
		n, err := c.next.CountByOwner(ctx, owner, status)
		if err != nil {
			return 0, err
		}
		if genOK {
			c.setIfCurrent(ctx, key, genKey, gen, n)
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (c *CachedTaskRepo) get(ctx context.Context, key string, dest any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("cache unmarshal failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// generation reads the counter guarding a key; a missing counter is zero.
// ok is false when Redis could not be read, and the caller then skips caching.
func (c *CachedTaskRepo) generation(ctx context.Context, genKey string) (gen int64, ok bool) {
	gen, err := c.client.Get(ctx, genKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache generation read failed", zap.String("key", genKey), zap.Error(err))
		return 0, false
	}
	return gen, true
}

// setIfCurrent stores value under key only while genKey still holds gen.
func (c *CachedTaskRepo) setIfCurrent(ctx context.Context, key, genKey string, gen int64, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleLoad
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleLoad), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("cache fill skipped after concurrent write", zap.String("key", key))
	default:
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate bumps the generations and drops the owner's counts, plus the
// task key when id is non-zero.
func (c *CachedTaskRepo) invalidate(ctx context.Context, owner string, id int64) {
	genKeys := []string{c.ownerGenKey(owner)}
	keys := []string{
		c.countKey(owner, model.StatusAll),
		c.countKey(owner, model.StatusPending),
		c.countKey(owner, model.StatusCompleted),
	}
	if id != 0 {
		genKeys = append(genKeys, c.taskGenKey(id))
		keys = append(keys, c.taskKey(id))
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, g := range genKeys {
			pipe.Incr(ctx, g)
			if c.ttl > 0 {
				// outlives any value it guards
				pipe.Expire(ctx, g, 2*c.ttl)
			}
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		c.logger.Error("cache invalidation failed", zap.String("owner", owner), zap.Error(fmt.Errorf("invalidate %v: %w", keys, err)))
	}
}
