package confirm

import (
	"context"
	"sync"
	"time"

	"finbot/internal/cache"
)

// Outcome is what happened to a draft once a tap claimed it.
type Outcome string

const (
	OutcomeClaimed   Outcome = "claimed"
	OutcomeCommitted Outcome = "committed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExpired   Outcome = "expired"
)

// ClaimTTL is how long a claimed draft is remembered. It must outlive the
// confirmation window.
const ClaimTTL = 24 * time.Hour

// Ledger records which drafts have been acted on. The first Claim for a draft
// wins; Settle records how it ended.
type Ledger interface {
	Claim(ctx context.Context, draftID string) (bool, error)
	Settle(ctx context.Context, draftID string, outcome Outcome) error
	Lookup(ctx context.Context, draftID string) (Outcome, bool, error)
	Release(ctx context.Context, draftID string) error
}

// RedisLedger claims drafts with SETNX.
type RedisLedger struct {
	redis *cache.Redis
	ttl   time.Duration
}

func NewRedisLedger(r *cache.Redis) *RedisLedger {
	return &RedisLedger{redis: r, ttl: ClaimTTL}
}

func (l *RedisLedger) key(draftID string) string {
	return "finbot:draft:" + draftID
}

func (l *RedisLedger) Claim(ctx context.Context, draftID string) (bool, error) {
	return l.redis.SetNX(ctx, l.key(draftID), string(OutcomeClaimed), l.ttl)
}

func (l *RedisLedger) Settle(ctx context.Context, draftID string, outcome Outcome) error {
	return l.redis.Set(ctx, l.key(draftID), string(outcome), l.ttl)
}

func (l *RedisLedger) Lookup(ctx context.Context, draftID string) (Outcome, bool, error) {
	v, ok, err := l.redis.Get(ctx, l.key(draftID))
	if err != nil || !ok {
		return "", false, err
	}
	return Outcome(v), true, nil
}

func (l *RedisLedger) Release(ctx context.Context, draftID string) error {
	return l.redis.Delete(ctx, l.key(draftID))
}

// MemoryLedger keeps claims in process memory.
type MemoryLedger struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	claims map[string]memoryClaim
}

type memoryClaim struct {
	outcome Outcome
	expires time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{ttl: ClaimTTL, now: time.Now, claims: make(map[string]memoryClaim)}
}

func (l *MemoryLedger) Claim(_ context.Context, draftID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if c, ok := l.claims[draftID]; ok && now.Before(c.expires) {
		return false, nil
	}
	l.sweep(now)
	l.claims[draftID] = memoryClaim{outcome: OutcomeClaimed, expires: now.Add(l.ttl)}
	return true, nil
}

func (l *MemoryLedger) Settle(_ context.Context, draftID string, outcome Outcome) error {
	l.mu.Lock()
	l.claims[draftID] = memoryClaim{outcome: outcome, expires: l.now().Add(l.ttl)}
	l.mu.Unlock()
	return nil
}

func (l *MemoryLedger) Lookup(_ context.Context, draftID string) (Outcome, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.claims[draftID]
	if !ok || !l.now().Before(c.expires) {
		return "", false, nil
	}
	return c.outcome, true, nil
}

func (l *MemoryLedger) Release(_ context.Context, draftID string) error {
	l.mu.Lock()
	delete(l.claims, draftID)
	l.mu.Unlock()
	return nil
}

// sweep drops expired claims once the map grows. Callers hold mu.
func (l *MemoryLedger) sweep(now time.Time) {
	if len(l.claims) < 4096 {
		return
	}
	for id, c := range l.claims {
		if !now.Before(c.expires) {
			delete(l.claims, id)
		}
	}
}
