package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/frc-picklist/internal/models"
)

func sampleResult() *models.PicklistResult {
	r := models.NewErrorResult([]int{1, 2}, "")
	r.Status = models.StatusOK
	r.Entries = []models.RankingEntry{{TeamNumber: 1, Score: 90}, {TeamNumber: 2, Score: 80}}
	return r
}

// TestMemoryStoreGetPut tests basic storage and copy semantics
func TestMemoryStoreGetPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	_, err := s.Get(ctx, "fp")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Put(ctx, "fp", sampleResult(), 0))

	got, err := s.Get(ctx, "fp")
	require.NoError(t, err)
	assert.Len(t, got.Entries, 2)

	got.Entries[0].Score = -1
	again, err := s.Get(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, 90.0, again.Entries[0].Score)

	stats := s.Stats()
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)

	assert.ErrorIs(t, s.Put(ctx, "nil", nil, 0), models.ErrInvalidRequest)
}

// TestMemoryStoreClaimOnce tests that only one caller wins a claim
func TestMemoryStoreClaimOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Claim(ctx, "fp")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, s.Stats().InFlight)
}

// TestMemoryStoreWaitReceivesResult tests that waiters observe the owner's result
func TestMemoryStoreWaitReceivesResult(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	owned, err := s.Claim(ctx, "fp")
	require.NoError(t, err)
	require.True(t, owned)

	results := make(chan *models.PicklistResult, 3)
	for i := 0; i < 3; i++ {
		go func() {
			r, err := s.Wait(ctx, "fp")
			assert.NoError(t, err)
			results <- r
		}()
	}

	time.Sleep(20 * time.Millisecond)
	want := sampleResult()
	require.NoError(t, s.Put(ctx, "fp", want, 0))

	for i := 0; i < 3; i++ {
		select {
		case r := <-results:
			assert.Equal(t, want.ID, r.ID)
		case <-time.After(time.Second):
			t.Fatal("waiter not released")
		}
	}
	assert.Zero(t, s.Stats().InFlight)
}

// TestMemoryStoreRelease tests that releasing wakes waiters with a miss
func TestMemoryStoreRelease(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	owned, _ := s.Claim(ctx, "fp")
	require.True(t, owned)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Wait(ctx, "fp")
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Release(ctx, "fp"))

	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, ErrMiss) || errors.Is(err, ErrNotClaimed), "unexpected error %v", err)
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}

	owned, _ = s.Claim(ctx, "fp")
	assert.True(t, owned)
}

// TestMemoryStoreWaitContext tests waiter cancellation
func TestMemoryStoreWaitContext(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	owned, _ := s.Claim(context.Background(), "fp")
	require.True(t, owned)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Wait(ctx, "fp")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = s.Wait(context.Background(), "other")
	assert.ErrorIs(t, err, ErrNotClaimed)
}

// TestMemoryStoreInvalidate tests invalidation
func TestMemoryStoreInvalidate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	require.NoError(t, s.Put(ctx, "a", sampleResult(), 0))
	require.NoError(t, s.Put(ctx, "b", sampleResult(), 0))

	require.NoError(t, s.Invalidate(ctx, "a"))
	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)

	owned, _ := s.Claim(ctx, "b")
	assert.False(t, owned)

	require.NoError(t, s.InvalidateAll(ctx))
	assert.Zero(t, s.Stats().Entries)
}

// TestMemoryStoreTTL tests per-entry expiration
func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	require.NoError(t, s.Put(ctx, "short", sampleResult(), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := s.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrMiss)
}
