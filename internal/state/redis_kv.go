package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	StateKey(sessionID, name string) string
}

// RedisKV mirrors collections into redis under bm:state:<session>:<name>.
type RedisKV struct {
	client redisStore
	ttl    time.Duration
}

// NewRedisKV wraps a pkg/redis client. ttl of zero keeps keys forever.
func NewRedisKV(client redisStore, ttl time.Duration) (*RedisKV, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisKV{client: client, ttl: ttl}, nil
}

func (r *RedisKV) Get(ctx context.Context, sessionID, name string) ([]byte, error) {
	raw, err := r.client.Get(ctx, r.client.StateKey(sessionID, name))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", name, err)
	}
	return []byte(raw), nil
}

// Set writes the value and refreshes its TTL.
func (r *RedisKV) Set(ctx context.Context, sessionID, name string, value []byte) error {
	if err := r.client.Set(ctx, r.client.StateKey(sessionID, name), string(value), r.ttl); err != nil {
		return fmt.Errorf("redis set %s: %w", name, err)
	}
	return nil
}

func (r *RedisKV) Del(ctx context.Context, sessionID, name string) error {
	return r.client.Del(ctx, r.client.StateKey(sessionID, name))
}

func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}
