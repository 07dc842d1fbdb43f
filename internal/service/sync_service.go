package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/config"
	"github.com/appgallery-cms/internal/metrics"
	"github.com/appgallery-cms/internal/models"
	"github.com/appgallery-cms/internal/repository"
	"github.com/appgallery-cms/internal/storage"
)

// syncService periodically flushes memory-only writes and re-reads every
// collection so the cache follows the persistent tiers
type syncService struct {
	store    SyncStore
	repos    *repository.Repositories
	enabled  bool
	schedule string
	log      zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running bool

	runMu sync.Mutex
	last  atomic.Pointer[models.SyncReport]

	// Semaphore: buffered channel to limit concurrent refreshes
	sem chan struct{}
}

func newSyncService(store SyncStore, repos *repository.Repositories, cfg config.SyncConfig, log zerolog.Logger) *syncService {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &syncService{
		store:    store,
		repos:    repos,
		enabled:  cfg.Enabled,
		schedule: cfg.Schedule,
		log:      log.With().Str("service", "sync").Logger(),
		sem:      make(chan struct{}, workers),
	}
}

// Start schedules reconciliation runs. It returns immediately; Stop ends them.
func (s *syncService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || !s.enabled {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(s.ctx) }); err != nil {
		s.cancel()
		return fmt.Errorf("invalid sync schedule %q: %w", s.schedule, err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.Info().Str("schedule", s.schedule).Int("workers", cap(s.sem)).Msg("Sync processor started")
	return nil
}

// Stop waits for a running reconciliation to finish
func (s *syncService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.running = false
	s.log.Info().Msg("Sync processor stopped")
}

// RunOnce flushes dirty entries and refreshes every collection. Overlapping
// calls return the previous report instead of running twice.
func (s *syncService) RunOnce(ctx context.Context) models.SyncReport {
	if !s.runMu.TryLock() {
		if last := s.last.Load(); last != nil {
			return *last
		}
		return models.SyncReport{}
	}
	defer s.runMu.Unlock()

	start := time.Now()
	flushed := s.store.Flush(ctx)

	dirty := make(map[string]bool)
	for _, k := range s.store.Dirty() {
		dirty[k] = true
	}

	var (
		wg        sync.WaitGroup
		refreshed atomic.Int64
	)
	for _, key := range s.repos.Keys() {
		if dirty[key] {
			continue
		}
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return s.finish(start, flushed, int(refreshed.Load()))
		}

		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			defer func() { <-s.sem }()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Interface("panic", r).Str("key", key).Msg("Refresh panicked - recovered")
				}
			}()

			if res := s.store.Refresh(ctx, key); res.Source != storage.SourceEmpty {
				refreshed.Add(1)
			}
		}(key)
	}
	wg.Wait()

	return s.finish(start, flushed, int(refreshed.Load()))
}

func (s *syncService) finish(start time.Time, flushed storage.FlushResult, refreshed int) models.SyncReport {
	report := models.SyncReport{
		StartedAt:  start.UTC(),
		DurationMs: time.Since(start).Milliseconds(),
		Flushed:    flushed.Flushed,
		CaughtUp:   flushed.CaughtUp,
		Remaining:  flushed.Remaining,
		Refreshed:  refreshed,
		Dirty:      s.store.Dirty(),
	}
	s.last.Store(&report)

	outcome := "ok"
	if report.Remaining > 0 {
		outcome = "degraded"
	}
	metrics.SyncRun(outcome)

	event := s.log.Debug()
	if report.Flushed > 0 || report.Remaining > 0 {
		event = s.log.Info()
	}
	event.Int("flushed", report.Flushed).
		Int("caught_up", report.CaughtUp).
		Int("remaining", report.Remaining).
		Int("refreshed", report.Refreshed).
		Int64("duration_ms", report.DurationMs).
		Msg("Sync run completed")
	return report
}

// LastReport returns the most recent run, or nil before the first one
func (s *syncService) LastReport() *models.SyncReport {
	return s.last.Load()
}
