// Package scheduler runs the periodic background sync jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jmerrifield20/civicsync/internal/reports"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CategorySyncer is the part of the category directory the scheduler drives.
type CategorySyncer interface {
	Stale(ctx context.Context) bool
	Sync(ctx context.Context) bool
}

// ReportSyncer is the part of the report repository the scheduler drives.
type ReportSyncer interface {
	SyncPending(ctx context.Context) (reports.SyncResult, error)
	RefreshMine(ctx context.Context) (int, error)
}

// Config holds the cron specs for each job. An empty spec disables the job.
type Config struct {
	CategorySpec string
	PendingSpec  string
	JobTimeout   time.Duration
}

// Scheduler handles periodic background jobs.
type Scheduler struct {
	cron       *cron.Cron
	categories CategorySyncer
	reports    ReportSyncer
	online     func() bool
	cfg        Config
	logger     *zap.Logger
}

// New creates a scheduler. online gates the jobs that talk to the backend;
// nil means always try.
func New(categories CategorySyncer, reports ReportSyncer, online func() bool, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.JobTimeout == 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if online == nil {
		online = func() bool { return true }
	}
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		categories: categories,
		reports:    reports,
		online:     online,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	if s.cfg.CategorySpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.CategorySpec, s.RefreshCategories); err != nil {
			return fmt.Errorf("register category job: %w", err)
		}
	}
	if s.cfg.PendingSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.PendingSpec, s.SyncReports); err != nil {
			return fmt.Errorf("register report sync job: %w", err)
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("category_spec", s.cfg.CategorySpec),
		zap.String("pending_spec", s.cfg.PendingSpec),
	)
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// RefreshCategories syncs the category directory when its cache is stale.
func (s *Scheduler) RefreshCategories() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	if !s.online() {
		s.logger.Debug("backend offline, skipping category refresh")
		return
	}
	if !s.categories.Stale(ctx) {
		return
	}
	if !s.categories.Sync(ctx) {
		s.logger.Info("category refresh failed, keeping cached set")
	}
}

// SyncReports pushes pending reports and then refreshes the owned list.
func (s *Scheduler) SyncReports() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	if !s.online() {
		s.logger.Debug("backend offline, skipping report sync")
		return
	}
	res, err := s.reports.SyncPending(ctx)
	if err != nil {
		s.logger.Warn("pending report sync failed", zap.Error(err))
	}
	if res.Pushed > 0 || res.Failed > 0 {
		s.logger.Info("pending reports synced", zap.Int("pushed", res.Pushed), zap.Int("failed", res.Failed))
	}
	if _, err := s.reports.RefreshMine(ctx); err != nil {
		s.logger.Info("owned report refresh failed", zap.Error(err))
	}
}
