// Package scheduler runs cron-driven maintenance of the picklist result cache.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/frc-picklist/internal/cache"
	"github.com/yourusername/frc-picklist/internal/metrics"
)

// Flusher drops every cached picklist, recording why.
type Flusher interface {
	InvalidateAll(ctx context.Context, reason string) error
}

type expirer interface {
	DeleteExpired()
}

// CacheMaintenance schedules cache flushes and stats sweeps
type CacheMaintenance struct {
	cron            *cron.Cron
	flusher         Flusher
	store           cache.Store
	logger          *logrus.Entry
	mu              sync.RWMutex
	isRunning       bool
	jobIDs          []cron.EntryID
	jobTimeout      time.Duration
	gracefulTimeout time.Duration
}

// NewCacheMaintenance creates a maintenance scheduler
func NewCacheMaintenance(flusher Flusher, store cache.Store, logger *logrus.Logger) *CacheMaintenance {
	return &CacheMaintenance{
		cron:            cron.New(cron.WithLocation(time.UTC)),
		flusher:         flusher,
		store:           store,
		logger:          logger.WithField("component", "cache-maintenance"),
		jobIDs:          make([]cron.EntryID, 0),
		jobTimeout:      time.Minute,
		gracefulTimeout: 30 * time.Second,
	}
}

// ScheduleFlush drops all cached picklists on the given schedule, for example
// overnight between competition days when the scouting data is rebuilt.
func (s *CacheMaintenance) ScheduleFlush(cronExpression string) error {
	return s.add(cronExpression, "flush", s.Flush)
}

// ScheduleStats evicts expired in-memory entries and publishes cache size.
func (s *CacheMaintenance) ScheduleStats(cronExpression string) error {
	return s.add(cronExpression, "stats", func(context.Context) error {
		s.Sweep()
		return nil
	})
}

func (s *CacheMaintenance) add(cronExpression, name string, job func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	entryID, err := s.cron.AddFunc(cronExpression, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()
		if err := job(ctx); err != nil {
			s.logger.WithError(err).WithField("job", name).Error("Scheduled cache job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add %s job: %w", name, err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithFields(logrus.Fields{"job": name, "schedule": cronExpression}).Info("Scheduled cache job")
	return nil
}

// Flush invalidates every cached picklist.
func (s *CacheMaintenance) Flush(ctx context.Context) error {
	if err := s.flusher.InvalidateAll(ctx, "scheduled flush"); err != nil {
		metrics.RecordCacheFlush("error")
		return fmt.Errorf("scheduled flush failed: %w", err)
	}
	metrics.RecordCacheFlush("success")
	return nil
}

// Sweep evicts expired entries where the backend supports it and records the
// store's size.
func (s *CacheMaintenance) Sweep() cache.Stats {
	if e, ok := s.store.(expirer); ok {
		e.DeleteExpired()
	}
	stats := s.store.Stats()
	metrics.RecordCacheStats(stats.Backend, stats.Entries)
	s.logger.WithFields(logrus.Fields{
		"backend":   stats.Backend,
		"entries":   stats.Entries,
		"in_flight": stats.InFlight,
		"hits":      stats.Hits,
		"misses":    stats.Misses,
	}).Info("Cache stats")
	return stats
}

// Start starts the scheduler. With no jobs scheduled it is a no-op.
func (s *CacheMaintenance) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.jobIDs) == 0 {
		return nil
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Cache maintenance started")
	return nil
}

// Stop waits for running jobs to finish, up to the graceful timeout.
func (s *CacheMaintenance) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}
	s.isRunning = false

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("Cache maintenance stopped")
		return nil
	case <-time.After(s.gracefulTimeout):
		return fmt.Errorf("cache maintenance jobs still running after %s", s.gracefulTimeout)
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *CacheMaintenance) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun returns the earliest upcoming job time, or zero when stopped.
func (s *CacheMaintenance) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}

	var next time.Time
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() && (next.IsZero() || entry.Next.Before(next)) {
			next = entry.Next
		}
	}
	return next
}
