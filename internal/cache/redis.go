package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/frc-picklist/internal/models"
)

const defaultKeyPrefix = "frc-picklist"

// RedisConfig configures the redis store.
type RedisConfig struct {
	KeyPrefix    string
	DefaultTTL   time.Duration
	LockTTL      time.Duration
	PollInterval time.Duration
}

// RedisStore shares results and claims between processes through redis.
// Claims are SETNX locks that expire after LockTTL, so a crashed owner cannot block a key forever.
type RedisStore struct {
	client redis.UniversalClient
	config RedisConfig
	logger *logrus.Entry
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedisStore creates a redis-backed store.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig, logger *logrus.Logger) *RedisStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &RedisStore{
		client: client,
		config: cfg,
		logger: logger.WithField("component", "redis_cache"),
	}
}

func (s *RedisStore) resultKey(key string) string {
	return fmt.Sprintf("%s:result:%s", s.config.KeyPrefix, key)
}

func (s *RedisStore) lockKey(key string) string {
	return fmt.Sprintf("%s:lock:%s", s.config.KeyPrefix, key)
}

// Get retrieves a completed result.
func (s *RedisStore) Get(ctx context.Context, key string) (*models.PicklistResult, error) {
	data, err := s.client.Get(ctx, s.resultKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.misses.Add(1)
			return nil, ErrMiss
		}
		s.logger.WithError(err).WithField("key", key).Error("Failed to get cached picklist")
		return nil, err
	}

	var result models.PicklistResult
	if err := json.Unmarshal(data, &result); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to unmarshal cached picklist")
		return nil, fmt.Errorf("failed to unmarshal cached picklist: %w", err)
	}
	s.hits.Add(1)
	return &result, nil
}

// Put stores a result and releases the claim on key.
func (s *RedisStore) Put(ctx context.Context, key string, result *models.PicklistResult, ttl time.Duration) error {
	if result == nil {
		return models.ErrInvalidRequest
	}
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal picklist: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.resultKey(key), data, ttl)
	pipe.Del(ctx, s.lockKey(key))
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to cache picklist")
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"key": key,
		"ttl": ttl.String(),
	}).Debug("Cached picklist")
	return nil
}

// Claim takes the generation lock for key.
func (s *RedisStore) Claim(ctx context.Context, key string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.resultKey(key)).Result()
	if err != nil {
		return false, err
	}
	if exists > 0 {
		return false, nil
	}

	ok, err := s.client.SetNX(ctx, s.lockKey(key), time.Now().UTC().Format(time.RFC3339Nano), s.config.LockTTL).Result()
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to claim picklist generation")
		return false, err
	}
	return ok, nil
}

// Wait polls until the result appears, the lock disappears or ctx ends.
func (s *RedisStore) Wait(ctx context.Context, key string) (*models.PicklistResult, error) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		result, err := s.Get(ctx, key)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrMiss) {
			return nil, err
		}

		locked, err := s.client.Exists(ctx, s.lockKey(key)).Result()
		if err != nil {
			return nil, err
		}
		if locked == 0 {
			// The owner may have stored the result between the two reads.
			if result, err := s.Get(ctx, key); err == nil {
				return result, nil
			}
			return nil, ErrNotClaimed
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release drops the claim on key.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.lockKey(key)).Err()
}

// Invalidate removes a stored result.
func (s *RedisStore) Invalidate(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.resultKey(key)).Err()
}

// InvalidateAll removes every stored result under the key prefix.
func (s *RedisStore) InvalidateAll(ctx context.Context) error {
	keys, err := s.scan(ctx, s.resultKey("*"))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Stats returns store counters. Entry counts come from a key scan.
func (s *RedisStore) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stats := Stats{Backend: "redis", Hits: s.hits.Load(), Misses: s.misses.Load()}
	if keys, err := s.scan(ctx, s.resultKey("*")); err == nil {
		stats.Entries = len(keys)
	}
	if keys, err := s.scan(ctx, s.lockKey("*")); err == nil {
		stats.InFlight = len(keys)
	}
	return stats
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}
