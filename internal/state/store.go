package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pkgerrors "github.com/buildmart/storefront/pkg/errors"
	"github.com/buildmart/storefront/pkg/logger"
	"github.com/buildmart/storefront/pkg/metrics"
	"go.uber.org/multierr"
)

// Store is the authoritative cart/favorites state of one session.
// Every mutation is written through to the KV mirror before returning.
// A failed write is reported but the in-memory state is kept.
type Store struct {
	mu        sync.Mutex
	sessionID string
	kv        KV
	logg      *logger.Logger
	metrics   *metrics.StateMetrics

	cart      []CartEntry
	favorites []FavoriteEntry
	// unsaved marks collections whose last write did not reach the mirror.
	unsaved map[string]bool
}

// Options carries optional collaborators for Open.
type Options struct {
	Logger  *logger.Logger
	Metrics *metrics.StateMetrics
}

// Open rehydrates the session's collections. Missing or unreadable values
// start empty; Open never fails.
func Open(ctx context.Context, kv KV, sessionID string, opts Options) *Store {
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	s := &Store{
		sessionID: sessionID,
		kv:        kv,
		logg:      logg,
		metrics:   opts.Metrics,
		cart:      []CartEntry{},
		favorites: []FavoriteEntry{},
		unsaved:   map[string]bool{},
	}
	ctx = logg.WithSessionID(ctx, sessionID)

	var cart []CartEntry
	if s.rehydrate(ctx, CollectionCart, &cart) {
		normalized, dropped := normalizeCart(cart)
		if dropped > 0 {
			logg.Warn(logg.WithField(ctx, "dropped", dropped), "discarded invalid cart rows during rehydration")
		}
		s.cart = normalized
	}
	var favorites []FavoriteEntry
	if s.rehydrate(ctx, CollectionFavorites, &favorites) {
		normalized, dropped := normalizeFavorites(favorites)
		if dropped > 0 {
			logg.Warn(logg.WithField(ctx, "dropped", dropped), "discarded invalid favorite rows during rehydration")
		}
		s.favorites = normalized
	}
	return s
}

func (s *Store) rehydrate(ctx context.Context, name string, dst any) bool {
	if s.kv == nil {
		return false
	}
	ctx = s.logg.WithField(ctx, "collection", name)
	raw, err := s.kv.Get(ctx, s.sessionID, name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "state backend read failed, starting empty")
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.metrics.IncCorrupt(name)
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stored collection is not valid json, starting empty")
		return false
	}
	return true
}

// Refresh re-reads both collections from the mirror so writes made by
// another replica become visible. A collection keeps its resident copy when
// its last write failed or the backend cannot return a readable value.
func (s *Store) Refresh(ctx context.Context) {
	if s.kv == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = s.logg.WithSessionID(ctx, s.sessionID)

	if !s.unsaved[CollectionCart] {
		var cart []CartEntry
		if s.reload(ctx, CollectionCart, &cart) {
			s.cart, _ = normalizeCart(cart)
		}
	}
	if !s.unsaved[CollectionFavorites] {
		var favorites []FavoriteEntry
		if s.reload(ctx, CollectionFavorites, &favorites) {
			s.favorites, _ = normalizeFavorites(favorites)
		}
	}
}

// reload reports whether dst now holds the mirror's value. A missing key
// counts as an empty collection.
func (s *Store) reload(ctx context.Context, name string, dst any) bool {
	raw, err := s.kv.Get(ctx, s.sessionID, name)
	if errors.Is(err, ErrNotFound) {
		return true
	}
	ctx = s.logg.WithField(ctx, "collection", name)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "state backend read failed, keeping resident copy")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.metrics.IncCorrupt(name)
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stored collection is not valid json, keeping resident copy")
		return false
	}
	return true
}

// SessionID returns the owning session.
func (s *Store) SessionID() string {
	return s.sessionID
}

// Cart returns a copy of the cart collection.
func (s *Store) Cart() []CartEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCart(s.cart)
}

// Favorites returns a copy of the favorites collection.
func (s *Store) Favorites() []FavoriteEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneFavorites(s.favorites)
}

// SetCart replaces the cart and persists it.
func (s *Store) SetCart(ctx context.Context, entries []CartEntry) error {
	_, err := s.UpdateCart(ctx, func([]CartEntry) ([]CartEntry, error) {
		return entries, nil
	})
	return err
}

// SetFavorites replaces the favorites and persists them.
func (s *Store) SetFavorites(ctx context.Context, entries []FavoriteEntry) error {
	_, err := s.UpdateFavorites(ctx, func([]FavoriteEntry) ([]FavoriteEntry, error) {
		return entries, nil
	})
	return err
}

// UpdateCart applies fn to the current cart under the session lock.
// An error from fn leaves the cart untouched. The returned slice is the new
// cart even when persisting it failed.
func (s *Store) UpdateCart(ctx context.Context, fn func([]CartEntry) ([]CartEntry, error)) ([]CartEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(cloneCart(s.cart))
	if err != nil {
		return cloneCart(s.cart), err
	}
	if next == nil {
		next = []CartEntry{}
	}
	s.cart = cloneCart(next)
	return cloneCart(s.cart), s.persist(ctx, CollectionCart, s.cart)
}

// UpdateFavorites is UpdateCart for the favorites collection.
func (s *Store) UpdateFavorites(ctx context.Context, fn func([]FavoriteEntry) ([]FavoriteEntry, error)) ([]FavoriteEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(cloneFavorites(s.favorites))
	if err != nil {
		return cloneFavorites(s.favorites), err
	}
	if next == nil {
		next = []FavoriteEntry{}
	}
	s.favorites = cloneFavorites(next)
	return cloneFavorites(s.favorites), s.persist(ctx, CollectionFavorites, s.favorites)
}

// Flush rewrites both collections to the backend.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return multierr.Combine(
		s.persist(ctx, CollectionCart, s.cart),
		s.persist(ctx, CollectionFavorites, s.favorites),
	)
}

func (s *Store) persist(ctx context.Context, name string, value any) error {
	if s.kv == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, fmt.Sprintf("encode %s", name))
	}
	s.metrics.IncWrite(name)
	if err := s.kv.Set(ctx, s.sessionID, name, payload); err != nil {
		s.unsaved[name] = true
		s.metrics.IncFailure(name)
		logCtx := s.logg.WithFields(s.logg.WithSessionID(ctx, s.sessionID), map[string]any{"collection": name})
		s.logg.Error(logCtx, "persist session state", err)
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, fmt.Sprintf("persist %s", name))
	}
	delete(s.unsaved, name)
	return nil
}
