package nlu

import (
	"context"
	"sync"
	"time"

	"finbot/internal/cache"
)

// Limiter caps classifier calls per user within a window.
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// RedisLimiter counts calls with INCR and a window expiry.
type RedisLimiter struct {
	redis  *cache.Redis
	limit  int
	window time.Duration
}

func NewRedisLimiter(r *cache.Redis, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{redis: r, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	n, err := l.redis.Incr(ctx, "finbot:classify:"+userID, l.window)
	if err != nil {
		return true, err
	}
	return n <= int64(l.limit), nil
}

const maxTrackedUsers = 10000

// MemoryLimiter is a fixed-window counter kept in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]memoryWindow
}

type memoryWindow struct {
	start time.Time
	count int
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string]memoryWindow),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, userID string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.windows) > maxTrackedUsers {
		for id, w := range l.windows {
			if now.Sub(w.start) >= l.window {
				delete(l.windows, id)
			}
		}
	}
	w := l.windows[userID]
	if now.Sub(w.start) >= l.window {
		w = memoryWindow{start: now}
	}
	w.count++
	l.windows[userID] = w
	return w.count <= l.limit, nil
}
