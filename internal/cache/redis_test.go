package cache

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisStore connects to PICKLIST_TEST_REDIS_ADDR or skips.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("PICKLIST_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PICKLIST_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	l := logrus.New()
	l.SetOutput(io.Discard)
	s := NewRedisStore(client, RedisConfig{
		KeyPrefix:    "frc-picklist-test-" + time.Now().Format("150405.000000"),
		DefaultTTL:   time.Minute,
		LockTTL:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}, l)
	require.NoError(t, s.Ping(context.Background()))
	t.Cleanup(func() { _ = s.InvalidateAll(context.Background()) })
	return s
}

// TestRedisStoreClaimAndPut tests the claim, wait and put cycle against a live redis
func TestRedisStoreClaimAndPut(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "fp")
	assert.ErrorIs(t, err, ErrMiss)

	owned, err := s.Claim(ctx, "fp")
	require.NoError(t, err)
	require.True(t, owned)

	owned, err = s.Claim(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, owned)

	done := make(chan error, 1)
	go func() {
		r, err := s.Wait(ctx, "fp")
		if err == nil && len(r.Entries) != 2 {
			err = assert.AnError
		}
		done <- err
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Put(ctx, "fp", sampleResult(), 0))
	require.NoError(t, <-done)

	require.NoError(t, s.Invalidate(ctx, "fp"))
	_, err = s.Get(ctx, "fp")
	assert.ErrorIs(t, err, ErrMiss)
}

// TestRedisStoreRelease tests that a released claim leaves waiters with nothing to wait on
func TestRedisStoreRelease(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	owned, err := s.Claim(ctx, "fp2")
	require.NoError(t, err)
	require.True(t, owned)
	require.NoError(t, s.Release(ctx, "fp2"))

	_, err = s.Wait(ctx, "fp2")
	assert.ErrorIs(t, err, ErrNotClaimed)
}
