package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config holds fixed-window limiter parameters.
type Config struct {
	Limit  int
	Window time.Duration
}

// RedisLimiter counts requests in fixed windows on shared Redis counters,
// so every server instance enforces the same limit.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, cfg Config) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	window := time.Now().Unix() / int64(l.cfg.Window.Seconds())
	counterKey := fmt.Sprintf("ratelimit:%s:%d", key, window)

	count, err := l.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		l.client.Expire(ctx, counterKey, l.cfg.Window)
	}

	return count <= int64(l.cfg.Limit), nil
}

type memoryWindow struct {
	count     int
	startedAt time.Time
}

// MemoryLimiter is a fixed-window limiter held in process memory. Only
// suitable for single-instance runs; deployments share counters through
// RedisLimiter instead.
type MemoryLimiter struct {
	cfg     Config
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg,
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.now()
	w, ok := l.windows[key]
	if !ok || current.Sub(w.startedAt) > l.cfg.Window {
		w = &memoryWindow{startedAt: current}
		l.windows[key] = w
	}

	if w.count+1 > l.cfg.Limit {
		return false, nil
	}
	w.count++
	return true, nil
}
