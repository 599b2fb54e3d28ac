package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildmart/storefront/pkg/config"
)

// mockCmdable emulates the two Lua scripts the client sends.
type mockCmdable struct {
	data    map[string]string
	counts  map[string]int64
	expires map[string]time.Duration
	evalErr error
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:    map[string]string{},
		counts:  map[string]int64{},
		expires: map[string]time.Duration{},
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if m.evalErr != nil {
		return redis.NewCmdResult(nil, m.evalErr)
	}
	key := keys[0]
	switch script {
	case fixedWindowScript:
		m.counts[key]++
		if m.counts[key] == 1 {
			m.expires[key] = time.Duration(args[0].(int64)) * time.Millisecond
		}
		return redis.NewCmdResult(m.counts[key], nil)
	case releaseScript:
		if v, ok := m.data[key]; ok && v == args[0] {
			delete(m.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, errors.New("unexpected script"))
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for i := int64(1); i <= 2; i++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "checkout|sess-1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, i, count)
	}
	allowed, count, err := client.FixedWindowAllow(ctx, "checkout|sess-1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(3), count)

	key := client.RateLimitKey("checkout|sess-1")
	assert.Equal(t, time.Minute, mock.expires[key], "window armed on first hit")

	_, _, err = client.FixedWindowAllow(ctx, "x", 1, 0)
	require.Error(t, err)

	mock.evalErr = errors.New("NOSCRIPT")
	_, _, err = client.FixedWindowAllow(ctx, "x", 1, time.Second)
	require.Error(t, err)
}

func TestReleaseIfOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("state-retention")

	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := client.ReleaseIfOwner(ctx, key, "owner-b")
	require.NoError(t, err)
	assert.False(t, released)
	assert.Contains(t, mock.data, key)

	released, err = client.ReleaseIfOwner(ctx, key, "owner-a")
	require.NoError(t, err)
	assert.True(t, released)
	assert.NotContains(t, mock.data, key)
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	key := client.StateKey("sess-1", "cart")
	require.NoError(t, client.Set(ctx, key, `[{"productId":1001}]`, time.Hour))
	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `[{"productId":1001}]`, got)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	require.Error(t, client.Ping(context.Background()))
	_, _, err := client.FixedWindowAllow(context.Background(), "s", 1, time.Second)
	require.Error(t, err)
	require.NoError(t, client.Close(), "close on uninitialized client is a no-op")
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "bm:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "bm:rate_limit:scope", client.RateLimitKey("scope"))
	assert.Equal(t, "bm:state:sess:favorites", client.StateKey("sess", "favorites"))
	assert.Equal(t, "bm:state:cart", client.StateKey("", "cart"), "empty parts are skipped")
	assert.Equal(t, "bm:lock:state-retention", client.LockKey("state-retention"))

	staging := &Client{namespace: "bm-staging:"}
	assert.Equal(t, "bm-staging:state:sess:cart", staging.StateKey("sess", "cart"))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:secret@cache:6380/2", PoolSize: 20, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 20, opts.PoolSize)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 3})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 3, opts.DB)
}
