// Package retention evicts terminal build records older than a configured
// age, together with their journal rows. Records still running are never
// touched.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/osforge/internal/config"
	"git.home.luguber.info/inful/osforge/internal/eventstore"
	"git.home.luguber.info/inful/osforge/internal/logfields"
	"git.home.luguber.info/inful/osforge/internal/store"
)

// Sweeper periodically removes expired terminal build records.
type Sweeper struct {
	scheduler gocron.Scheduler
	records   store.RecordStore
	events    eventstore.Store
	maxAge    time.Duration
	now       func() time.Time
}

// NewSweeper creates a sweeper from retention config. events may be nil when
// no journal is configured.
func NewSweeper(cfg config.RetentionConfig, records store.RecordStore, events eventstore.Store) (*Sweeper, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("retention is disabled")
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("retention max_age must be positive")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	s := &Sweeper{
		scheduler: scheduler,
		records:   records,
		events:    events,
		maxAge:    cfg.MaxAge,
		now:       time.Now,
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.SweepInterval),
		gocron.NewTask(s.sweep),
		gocron.WithName("retention-sweep"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retention job: %w", err)
	}

	return s, nil
}

// Start begins periodic sweeping.
func (s *Sweeper) Start() {
	slog.Info("Starting retention sweeper", slog.Duration("max_age", s.maxAge))
	s.scheduler.Start()
}

// Stop shuts the scheduler down.
func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}

// sweep runs one eviction pass.
func (s *Sweeper) sweep() {
	if n := s.SweepOnce(context.Background()); n > 0 {
		slog.Info("Retention sweep evicted builds", slog.Int("evicted", n))
	}
}

// SweepOnce evicts all expired terminal records and returns how many were
// removed. Exposed for tests and for an explicit admin-triggered pass.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	cutoff := s.now().Add(-s.maxAge)
	evicted := 0

	for _, rec := range s.records.List() {
		if !rec.Status.IsTerminal() || rec.CompletedAt == nil {
			continue
		}
		if rec.CompletedAt.After(cutoff) {
			continue
		}

		if err := s.records.Delete(rec.BuildID); err != nil {
			slog.Warn("Failed to evict build record", logfields.BuildID(rec.BuildID), logfields.Error(err))
			continue
		}
		if s.events != nil {
			if err := s.events.DeleteByBuildID(ctx, rec.BuildID); err != nil {
				slog.Warn("Failed to evict journal rows", logfields.BuildID(rec.BuildID), logfields.Error(err))
			}
		}
		evicted++
	}

	return evicted
}
