// Package cache stores completed picklist results by request fingerprint and
// guarantees at most one in-flight generation per fingerprint.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/frc-picklist/internal/models"
)

var (
	// ErrMiss indicates no completed result is stored for a key
	ErrMiss = errors.New("cache miss")

	// ErrNotClaimed indicates a wait on a key with no generation in flight
	ErrNotClaimed = errors.New("no generation in flight for key")
)

// Store is the result cache used by the picklist generator.
//
// A caller that gets ErrMiss from Get calls Claim. The caller that wins the claim
// generates and calls Put (or Release on abort); every other caller calls Wait,
// which returns once the owner finishes. Wait returns ErrNotClaimed or ErrMiss when
// the owner gave up without a result, and the waiter should try to claim again.
type Store interface {
	Get(ctx context.Context, key string) (*models.PicklistResult, error)
	Put(ctx context.Context, key string, result *models.PicklistResult, ttl time.Duration) error
	Claim(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) (*models.PicklistResult, error)
	Release(ctx context.Context, key string) error
	Invalidate(ctx context.Context, key string) error
	InvalidateAll(ctx context.Context) error
	Stats() Stats
}

// Stats is a point-in-time view of the store.
type Stats struct {
	Backend  string `json:"backend"`
	Entries  int    `json:"entries"`
	InFlight int    `json:"in_flight"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}
