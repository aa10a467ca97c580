package handlers

import (
	"context"
	"strconv"
	"sync"
	"time"

	"finbot/internal/cache"
)

// DedupeTTL is how long an update id is remembered.
const DedupeTTL = 24 * time.Hour

// Deduper remembers update ids. First reports whether key had not been seen
// before and marks it seen.
type Deduper interface {
	First(ctx context.Context, key string) (bool, error)
}

// RedisDeduper shares seen ids across replicas with SETNX.
type RedisDeduper struct {
	redis *cache.Redis
	ttl   time.Duration
}

func NewRedisDeduper(r *cache.Redis, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{redis: r, ttl: ttl}
}

func (d *RedisDeduper) First(ctx context.Context, key string) (bool, error) {
	return d.redis.SetNX(ctx, "finbot:update:"+key, "1", d.ttl)
}

// MemoryDeduper keeps seen ids in process memory.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

const memoryDedupeSweep = 10000

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (d *MemoryDeduper) First(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if len(d.seen) >= memoryDedupeSweep {
		for k, exp := range d.seen {
			if !now.Before(exp) {
				delete(d.seen, k)
			}
		}
	}
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.seen[key] = now.Add(d.ttl)
	return true, nil
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
