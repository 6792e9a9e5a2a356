// Package catalog owns the listing collection and its persistence.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/bryan-buckman/grainotheque/internal/database"
	"github.com/bryan-buckman/grainotheque/internal/model"
	"go.uber.org/zap"
)

// DefaultStorageKey is the key the serialized collection is stored under.
const DefaultStorageKey = "grainotheque_listings_v2"

var errMalformed = errors.New("malformed listing collection")

// Store holds the authoritative in-memory listing collection and writes it
// through to a KV backend after every mutation.
type Store struct {
	mu       sync.Mutex
	kv       database.KV
	key      string
	seed     []model.Listing
	logger   *zap.Logger
	listings []model.Listing
	loaded   bool
}

// New creates a store persisting under key. seed is the collection used when
// persisted state is absent or corrupt.
func New(kv database.KV, key string, seed []model.Listing, logger *zap.Logger) *Store {
	if key == "" {
		key = DefaultStorageKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		kv:     kv,
		key:    key,
		seed:   clone(seed),
		logger: logger.Named("catalog"),
	}
}

// Load re-reads the persisted collection. Absent or malformed state is
// replaced by the seed list, which is persisted before returning.
func (s *Store) Load(ctx context.Context) []model.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = s.load(ctx)
	s.loaded = true
	return clone(s.listings)
}

func (s *Store) load(ctx context.Context) []model.Listing {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		// Backend unreachable: serve the seed without overwriting what may be valid data.
		s.logger.Error("read listings", zap.String("key", s.key), zap.Error(err))
		return clone(s.seed)
	}
	if ok {
		listings, err := decode(raw)
		if err == nil {
			return listings
		}
		s.logger.Warn("persisted listings unreadable, reseeding", zap.String("key", s.key), zap.Error(err))
	}
	seed := clone(s.seed)
	if err := s.save(ctx, seed); err != nil {
		s.logger.Error("persist seed listings", zap.String("key", s.key), zap.Error(err))
	}
	return seed
}

// Save overwrites the persisted collection with listings.
func (s *Store) Save(ctx context.Context, listings []model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := clone(listings)
	if err := s.save(ctx, next); err != nil {
		return err
	}
	s.listings = next
	s.loaded = true
	return nil
}

func (s *Store) save(ctx context.Context, listings []model.Listing) error {
	if listings == nil {
		listings = []model.Listing{}
	}
	data, err := json.Marshal(listings)
	if err != nil {
		return fmt.Errorf("encode listings: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("write listings: %w", err)
	}
	return nil
}

func (s *Store) ensureLoaded(ctx context.Context) {
	if !s.loaded {
		s.listings = s.load(ctx)
		s.loaded = true
	}
}

// All returns a copy of the collection in insertion order.
func (s *Store) All(ctx context.Context) []model.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)
	return clone(s.listings)
}

// Get returns the listing with the given id.
func (s *Store) Get(ctx context.Context, id string) (model.Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)
	if i := s.indexOf(id); i >= 0 {
		return s.listings[i], true
	}
	return model.Listing{}, false
}

// Insert appends a listing. A listing whose id is empty or already present
// is ignored and false is returned.
func (s *Store) Insert(ctx context.Context, l model.Listing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)
	if l.ID == "" || s.indexOf(l.ID) >= 0 {
		return false, nil
	}
	next := append(clone(s.listings), l)
	return true, s.commit(ctx, next)
}

// Remove deletes the listing with the given id. Unknown ids are a no-op.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	return s.mutate(ctx, id, func(next []model.Listing, i int) []model.Listing {
		return append(next[:i], next[i+1:]...)
	})
}

// IncrementReportCount adds one to the listing's report counter.
func (s *Store) IncrementReportCount(ctx context.Context, id string) (bool, error) {
	return s.mutate(ctx, id, func(next []model.Listing, i int) []model.Listing {
		next[i].Reports++
		return next
	})
}

// SetImage replaces the listing's image.
func (s *Store) SetImage(ctx context.Context, id, image string) (bool, error) {
	return s.mutate(ctx, id, func(next []model.Listing, i int) []model.Listing {
		next[i].Image = image
		return next
	})
}

// Reset replaces the collection with the seed list.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	return s.commit(ctx, clone(s.seed))
}

func (s *Store) mutate(ctx context.Context, id string, fn func([]model.Listing, int) []model.Listing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)
	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	return true, s.commit(ctx, fn(clone(s.listings), i))
}

// commit persists next and only then makes it the in-memory collection.
func (s *Store) commit(ctx context.Context, next []model.Listing) error {
	if err := s.save(ctx, next); err != nil {
		return err
	}
	s.listings = next
	return nil
}

func (s *Store) indexOf(id string) int {
	for i := range s.listings {
		if s.listings[i].ID == id {
			return i
		}
	}
	return -1
}

func decode(raw []byte) ([]model.Listing, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errMalformed
	}
	var listings []model.Listing
	if err := json.Unmarshal(trimmed, &listings); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	seen := make(map[string]bool, len(listings))
	for _, l := range listings {
		if l.ID == "" || seen[l.ID] || l.Price < 0 || l.Reports < 0 {
			return nil, fmt.Errorf("%w: invalid record %q", errMalformed, l.ID)
		}
		seen[l.ID] = true
	}
	if listings == nil {
		listings = []model.Listing{}
	}
	return listings, nil
}

func clone(listings []model.Listing) []model.Listing {
	if listings == nil {
		return nil
	}
	return append(make([]model.Listing, 0, len(listings)), listings...)
}
