package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/forum-subscriptions/internal/config"
	"github.com/user/forum-subscriptions/internal/metrics"
)

// Resetter drops memoized subscription state so later lookups reload it
// from the record store
type Resetter interface {
	ResetForumCache()
	ResetDiscussionCache()
}

// Scheduler periodically resets the shared subscription cache, bounding how
// long changes made by other processes stay invisible
type Scheduler struct {
	resetter Resetter
	config   *config.CacheConfig
	running  atomic.Bool
	mu       sync.Mutex // at most one reset at a time
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a new scheduler instance
func NewScheduler(resetter Resetter, cfg *config.CacheConfig) *Scheduler {
	return &Scheduler{
		resetter: resetter,
		config:   cfg,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic resets at the configured interval
func (s *Scheduler) Start(ctx context.Context) {
	if !s.config.ResetEnabled {
		log.Info().Msg("Cache reset scheduler is disabled")
		return
	}

	s.wg.Add(1)
	go s.run(ctx)
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.ResetInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.config.ResetInterval).Msg("Cache reset scheduler started")

	for {
		select {
		case <-ticker.C:
			s.executeReset()
		case <-s.stopCh:
			log.Info().Msg("Cache reset scheduler stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Cache reset scheduler context cancelled")
			return
		}
	}
}

// executeReset runs a scheduled reset unless one is already in progress
func (s *Scheduler) executeReset() {
	if !s.TryRun() {
		log.Warn().Msg("Cache reset already running, skipping this trigger")
	}
}

// RunOnce resets both cache tables and records how long it took
func (s *Scheduler) RunOnce() {
	startTime := time.Now()

	s.resetter.ResetForumCache()
	s.resetter.ResetDiscussionCache()

	duration := time.Since(startTime)
	metrics.RecordCacheResetDuration(duration)
	log.Debug().Dur("duration", duration).Msg("Subscription cache reset")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping cache reset scheduler...")
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// IsRunning returns true if a reset is currently running
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// TryRun resets the cache immediately.
// Returns false if a reset is already running
func (s *Scheduler) TryRun() bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()

	s.running.Store(true)
	defer s.running.Store(false)

	s.RunOnce()
	return true
}
