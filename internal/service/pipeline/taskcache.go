package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ugcstudio/internal/model/generation"
	"ugcstudio/internal/pkg/cache"
)

// TaskCache 外部任务ID（或生成ID）到任务视图的缓存
// 缓存不可信，记录仓库始终是权威来源；未命中时由恢复层重建
type TaskCache interface {
	Get(ctx context.Context, key string) (*generation.TaskView, bool)
	Set(ctx context.Context, view *generation.TaskView, keys ...string)
	Delete(ctx context.Context, keys ...string)
}

// MemoryTaskCache 进程内缓存，带过期时间
type MemoryTaskCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]memoryEntry
}

type memoryEntry struct {
	view      generation.TaskView
	expiresAt time.Time
}

// NewMemoryTaskCache 创建进程内缓存，ttl<=0 时使用默认值
func NewMemoryTaskCache(ttl time.Duration) *MemoryTaskCache {
	if ttl <= 0 {
		ttl = cache.TaskViewTTL
	}
	return &MemoryTaskCache{ttl: ttl, now: time.Now, items: make(map[string]memoryEntry)}
}

func (c *MemoryTaskCache) Get(_ context.Context, key string) (*generation.TaskView, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, false
	}
	v := e.view
	return &v, true
}

func (c *MemoryTaskCache) Set(_ context.Context, view *generation.TaskView, keys ...string) {
	if view == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := c.now().Add(c.ttl)
	for _, k := range keys {
		if k == "" {
			continue
		}
		c.items[k] = memoryEntry{view: *view, expiresAt: exp}
	}
}

func (c *MemoryTaskCache) Delete(_ context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
}

// RedisTaskCache 基于 Redis 的缓存，多实例部署时共享
// Redis 出错只记录日志，按未命中处理
type RedisTaskCache struct {
	rc  *cache.RedisCache
	ttl time.Duration
}

// NewRedisTaskCache 创建 Redis 缓存
func NewRedisTaskCache(rc *cache.RedisCache, ttl time.Duration) *RedisTaskCache {
	if ttl <= 0 {
		ttl = cache.TaskViewTTL
	}
	return &RedisTaskCache{rc: rc, ttl: ttl}
}

func (c *RedisTaskCache) Get(ctx context.Context, key string) (*generation.TaskView, bool) {
	var view generation.TaskView
	if err := c.rc.Get(ctx, cache.TaskViewKey(key), &view); err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			log.Warn().Err(err).Str("key", key).Msg("task cache get failed")
		}
		return nil, false
	}
	return &view, true
}

func (c *RedisTaskCache) Set(ctx context.Context, view *generation.TaskView, keys ...string) {
	if view == nil {
		return
	}
	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			redisKeys = append(redisKeys, cache.TaskViewKey(k))
		}
	}
	if err := c.rc.SetMany(ctx, redisKeys, view, c.ttl); err != nil {
		log.Warn().Err(err).Str("generation_id", view.GenerationID).Msg("task cache set failed")
	}
}

func (c *RedisTaskCache) Delete(ctx context.Context, keys ...string) {
	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		redisKeys = append(redisKeys, cache.TaskViewKey(k))
	}
	if err := c.rc.Delete(ctx, redisKeys...); err != nil {
		log.Warn().Err(err).Msg("task cache delete failed")
	}
}
