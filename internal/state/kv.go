package state

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by KV implementations when no value is stored.
var ErrNotFound = errors.New("state: key not found")

// KV is the durable mirror for session collections. Values are opaque
// JSON documents addressed by session id and collection name.
type KV interface {
	Get(ctx context.Context, sessionID, name string) ([]byte, error)
	Set(ctx context.Context, sessionID, name string, value []byte) error
	Del(ctx context.Context, sessionID, name string) error
}

// Pinger is implemented by backends that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MemoryKV keeps values in process. It is the fallback backend and the
// test double for the others.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string][]byte

	// SetErr, when non-nil, is returned from every Set.
	SetErr error
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: map[string][]byte{}}
}

func memoryKey(sessionID, name string) string {
	return sessionID + "/" + name
}

func (m *MemoryKV) Get(_ context.Context, sessionID, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[memoryKey(sessionID, name)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryKV) Set(_ context.Context, sessionID, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[memoryKey(sessionID, name)] = stored
	return nil
}

func (m *MemoryKV) Del(_ context.Context, sessionID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, memoryKey(sessionID, name))
	return nil
}

// Put seeds a raw value, bypassing SetErr.
func (m *MemoryKV) Put(sessionID, name string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[memoryKey(sessionID, name)] = value
}

func (m *MemoryKV) Ping(context.Context) error {
	return nil
}
