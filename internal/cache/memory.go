package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/yourusername/frc-picklist/internal/models"
)

type flight struct {
	done chan struct{}
}

// MemoryStore keeps results in process memory.
type MemoryStore struct {
	results  *gocache.Cache
	mu       sync.Mutex
	inFlight map[string]*flight
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// NewMemoryStore creates an in-memory store. Results without an explicit TTL use defaultTTL;
// zero keeps them until invalidated.
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	expiration := gocache.NoExpiration
	cleanup := 10 * time.Minute
	if defaultTTL > 0 {
		expiration = defaultTTL
		cleanup = defaultTTL * 2
	}
	return &MemoryStore{
		results:  gocache.New(expiration, cleanup),
		inFlight: make(map[string]*flight),
	}
}

// Get returns a copy of a completed result.
func (s *MemoryStore) Get(ctx context.Context, key string) (*models.PicklistResult, error) {
	if v, ok := s.results.Get(key); ok {
		if r, ok := v.(*models.PicklistResult); ok {
			s.hits.Add(1)
			return r.Clone(), nil
		}
	}
	s.misses.Add(1)
	return nil, ErrMiss
}

// Put stores a result and wakes every waiter on key.
func (s *MemoryStore) Put(ctx context.Context, key string, result *models.PicklistResult, ttl time.Duration) error {
	if result == nil {
		return models.ErrInvalidRequest
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results.Set(key, result.Clone(), ttl)
	s.finishLocked(key)
	return nil
}

// Claim marks key as in flight. It returns false if a result exists or another caller owns it.
func (s *MemoryStore) Claim(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.results.Get(key); ok {
		return false, nil
	}
	if _, ok := s.inFlight[key]; ok {
		return false, nil
	}
	s.inFlight[key] = &flight{done: make(chan struct{})}
	return true, nil
}

// Wait blocks until the in-flight generation for key finishes or ctx ends.
func (s *MemoryStore) Wait(ctx context.Context, key string) (*models.PicklistResult, error) {
	s.mu.Lock()
	if v, ok := s.results.Get(key); ok {
		s.mu.Unlock()
		s.hits.Add(1)
		return v.(*models.PicklistResult).Clone(), nil
	}
	f, ok := s.inFlight[key]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotClaimed
	}

	select {
	case <-f.done:
		return s.Get(ctx, key)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release drops a claim without storing a result.
func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(key)
	return nil
}

// Invalidate removes a stored result.
func (s *MemoryStore) Invalidate(ctx context.Context, key string) error {
	s.results.Delete(key)
	return nil
}

// InvalidateAll removes every stored result. In-flight generations are unaffected.
func (s *MemoryStore) InvalidateAll(ctx context.Context) error {
	s.results.Flush()
	return nil
}

// DeleteExpired evicts expired results.
func (s *MemoryStore) DeleteExpired() {
	s.results.DeleteExpired()
}

// Stats returns store counters.
func (s *MemoryStore) Stats() Stats {
	s.mu.Lock()
	inFlight := len(s.inFlight)
	s.mu.Unlock()
	return Stats{
		Backend:  "memory",
		Entries:  s.results.ItemCount(),
		InFlight: inFlight,
		Hits:     s.hits.Load(),
		Misses:   s.misses.Load(),
	}
}

func (s *MemoryStore) finishLocked(key string) {
	if f, ok := s.inFlight[key]; ok {
		close(f.done)
		delete(s.inFlight, key)
	}
}
