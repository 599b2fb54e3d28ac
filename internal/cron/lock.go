package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/buildmart/storefront/pkg/instance"
)

// Lock gates a scheduler cycle. Acquire reports false when another holder
// has it.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// leaseStore is satisfied by *redis.Client.
type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
}

// LeaseLock is a cross-replica lock held as a key with a TTL. A replica that
// dies mid-cycle loses the lease when the TTL runs out.
type LeaseLock struct {
	store leaseStore
	key   string
	ttl   time.Duration

	mu    sync.Mutex
	token string
}

func NewLeaseLock(store leaseStore, key string, ttl time.Duration) (*LeaseLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("cron: lease store required")
	case key == "":
		return nil, errors.New("cron: lease key required")
	case ttl <= 0:
		return nil, errors.New("cron: lease ttl must be positive")
	}
	return &LeaseLock{store: store, key: key, ttl: ttl}, nil
}

func (l *LeaseLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token != "" {
		return false, nil
	}
	// the instance prefix makes the holder visible with GET
	token := instance.GetID() + "/" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("lease %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release drops the lease if this process still holds it. A lease that
// expired and was taken by another replica is left alone.
func (l *LeaseLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()
	if token == "" {
		return nil
	}
	if _, err := l.store.ReleaseIfOwner(ctx, l.key, token); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}

// LocalLock keeps overlapping cycles out within one process.
type LocalLock struct {
	held atomic.Bool
}

func (l *LocalLock) Acquire(context.Context) (bool, error) {
	return l.held.CompareAndSwap(false, true), nil
}

// Release is a no-op when the lock is not held.
func (l *LocalLock) Release(context.Context) error {
	l.held.Store(false)
	return nil
}
