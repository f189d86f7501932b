// Package scheduler implements background task scheduling for GMBridge,
// including audit log retention and periodic database statistics.
package scheduler

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gmbridge-project/gmbridge/internal/config"
	"github.com/gmbridge-project/gmbridge/internal/db"
	"github.com/gmbridge-project/gmbridge/internal/events"
	"github.com/gmbridge-project/gmbridge/internal/util"
)

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg      *config.Config
	eventBus *events.EventBus
	store    *db.UserStore
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg *config.Config, eventBus *events.EventBus, store *db.UserStore) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		eventBus: eventBus,
		store:    store,
	}
}

// Start begins running all scheduled tasks. It blocks until the context is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	go s.runAuditPurgeLoop(ctx)
	go s.runStatsCollectionLoop(ctx)

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

// runAuditPurgeLoop trims audit entries older than the retention window.
func (s *Scheduler) runAuditPurgeLoop(ctx context.Context) {
	app := s.cfg.GetApplicationData()
	interval := time.Duration(app.Timers.AuditPurgeInterval) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run once on startup so long-stopped installs catch up immediately.
	s.purgeAudit()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purgeAudit()
		}
	}
}

func (s *Scheduler) purgeAudit() {
	retention := s.cfg.GetApplicationData().Database.AuditRetentionDays
	if retention <= 0 {
		return
	}

	purged, err := s.store.PurgeAudit(retention)
	if err != nil {
		log.Warn().Err(err).Msg("audit purge failed")
		return
	}
	if purged > 0 {
		log.Info().
			Int64("purged", purged).
			Int("retention_days", retention).
			Msg("audit log trimmed")
	}
}

// runStatsCollectionLoop logs periodic storage statistics.
func (s *Scheduler) runStatsCollectionLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collectStats()
		}
	}
}

// collectStats gathers daily storage statistics.
func (s *Scheduler) collectStats() {
	dbDir := filepath.Dir(s.cfg.GetApplicationData().Database.Path)
	if dbDir == "" || dbDir == "." {
		dbDir = "/"
	}

	usage, err := util.GetDiskUsage(dbDir)
	if err != nil {
		log.Warn().Err(err).Msg("stats collection failed")
		return
	}

	log.Info().
		Float64("disk_used_percent", usage.UsedPercent).
		Uint64("disk_free_gb", usage.Free).
		Msg("daily stats collected")
}
