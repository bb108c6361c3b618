package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"board-api/domain"
)

// CachedStore wraps a TaskStore with Redis-backed caching of the listing
// read path. Every mutation evicts the user's cached listing so the next
// refresh observes the authoritative state.
type CachedStore struct {
	base  TaskStore
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedStore creates a caching TaskStore wrapper using the provided
// Redis client and TTL.
func NewCachedStore(base TaskStore, client *redis.Client, ttl time.Duration) *CachedStore {
	if base == nil {
		panic("gateway.NewCachedStore: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &CachedStore{base: base, redis: client, ttl: ttl}
}

func (c *CachedStore) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	if tasks, ok := c.loadFromCache(ctx, userID); ok {
		return tasks, nil
	}

	tasks, err := c.base.ListTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, userID, tasks)
	return tasks, nil
}

func (c *CachedStore) CreateTask(ctx context.Context, userID string, fields domain.Fields) (domain.Task, error) {
	task, err := c.base.CreateTask(ctx, userID, fields)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, userID)
	return task, nil
}

func (c *CachedStore) UpdateTask(ctx context.Context, userID, id string, patch domain.Patch) error {
	if err := c.base.UpdateTask(ctx, userID, id, patch); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *CachedStore) DeleteTask(ctx context.Context, userID, id string) error {
	if err := c.base.DeleteTask(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *CachedStore) loadFromCache(ctx context.Context, userID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, listingCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, listingCacheKey(userID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, listingCacheKey(userID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *CachedStore) store(ctx context.Context, userID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, listingCacheKey(userID), data, c.ttl).Err()
}

func (c *CachedStore) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, listingCacheKey(userID)).Result()
}

func listingCacheKey(userID string) string {
	return "board:" + userID
}
