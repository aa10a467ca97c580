package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "finbot:session:"
	maxWatchRetries = 5
)

var errContended = errors.New("session update contended")

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore shares sessions across processes. Update uses WATCH/MULTI so the
// read-modify-write is atomic per key.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) key(userID string) string {
	return redisKeyPrefix + userID
}

func (r *RedisStore) Get(ctx context.Context, userID string) (Session, error) {
	return r.get(ctx, r.client, userID)
}

func (r *RedisStore) Set(ctx context.Context, userID string, s Session) error {
	if s == nil {
		return r.Clear(ctx, userID)
	}
	raw, err := encode(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(userID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}

func (r *RedisStore) Update(ctx context.Context, userID string, fn UpdateFunc) (Session, error) {
	key := r.key(userID)
	for i := 0; i < maxWatchRetries; i++ {
		var result Session
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := r.get(ctx, tx, userID)
			if err != nil {
				return err
			}
			next, err := fn(current)
			if err != nil {
				return err
			}
			var raw []byte
			if next != nil {
				if raw, err = encode(next); err != nil {
					return err
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if next == nil {
					pipe.Del(ctx, key)
				} else {
					pipe.Set(ctx, key, raw, r.ttl)
				}
				return nil
			})
			result = next
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, errContended
}

func (r *RedisStore) get(ctx context.Context, c getter, userID string) (Session, error) {
	raw, err := c.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	return decode(raw)
}
