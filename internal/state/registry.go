package state

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/buildmart/storefront/pkg/errors"
	"github.com/buildmart/storefront/pkg/logger"
	"github.com/buildmart/storefront/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const maxSessionIDLength = 64

// RegistryParams groups dependencies for the session registry.
type RegistryParams struct {
	KV      KV
	Logger  *logger.Logger
	Metrics *metrics.StateMetrics
	// IdleTTL bounds how long an untouched store stays resident. Zero keeps
	// stores until Evict.
	IdleTTL time.Duration
	// Shared marks a backend that other replicas also write to. Resident
	// stores are then refreshed from it on every access.
	Shared bool
	Now    func() time.Time
}

type resident struct {
	store    *Store
	lastSeen time.Time
}

// Registry owns the live stores of all sessions. Stores are opened lazily
// and concurrent first requests for a session share one rehydration.
type Registry struct {
	kv      KV
	logg    *logger.Logger
	metrics *metrics.StateMetrics
	idleTTL time.Duration
	shared  bool
	now     func() time.Time

	mu     sync.Mutex
	stores map[string]*resident
	group  singleflight.Group
}

func NewRegistry(params RegistryParams) (*Registry, error) {
	if params.KV == nil {
		return nil, fmt.Errorf("state kv backend required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		kv:      params.KV,
		logg:    logg,
		metrics: params.Metrics,
		idleTTL: params.IdleTTL,
		shared:  params.Shared,
		now:     now,
		stores:  map[string]*resident{},
	}, nil
}

// Session returns the store for sessionID, rehydrating it on first use.
func (r *Registry) Session(ctx context.Context, sessionID string) (*Store, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || len(sessionID) > maxSessionIDLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid session id")
	}

	r.mu.Lock()
	if res, ok := r.stores[sessionID]; ok {
		res.lastSeen = r.now()
		r.mu.Unlock()
		if r.shared {
			res.store.Refresh(ctx)
		}
		return res.store, nil
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do(sessionID, func() (any, error) {
		r.mu.Lock()
		if res, ok := r.stores[sessionID]; ok {
			r.mu.Unlock()
			return res.store, nil
		}
		r.mu.Unlock()

		store := Open(context.WithoutCancel(ctx), r.kv, sessionID, Options{Logger: r.logg, Metrics: r.metrics})

		r.mu.Lock()
		r.stores[sessionID] = &resident{store: store, lastSeen: r.now()}
		r.mu.Unlock()
		return store, nil
	})
	return v.(*Store), nil
}

// Evict drops the resident store. The KV mirror is left intact.
func (r *Registry) Evict(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, sessionID)
}

// Sweep evicts stores idle for longer than IdleTTL and returns how many.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, res := range r.stores {
		if res.lastSeen.Before(cutoff) {
			delete(r.stores, id)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of resident sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Ping checks the backend when it supports readiness probes.
func (r *Registry) Ping(ctx context.Context) error {
	if p, ok := r.kv.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
