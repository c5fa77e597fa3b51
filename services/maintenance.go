package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"persona-advisor/internal/logger"
)

// MaintenanceService runs periodic job-table hygiene: failing jobs whose
// worker died mid-processing and pruning terminal jobs past retention.
type MaintenanceService struct {
	scheduler    *gocron.Scheduler
	jobs         *JobService
	staleTimeout time.Duration
	retention    time.Duration
}

func NewMaintenanceService(jobs *JobService, staleTimeout, retention time.Duration) *MaintenanceService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &MaintenanceService{
		scheduler:    s,
		jobs:         jobs,
		staleTimeout: staleTimeout,
		retention:    retention,
	}
}

func (m *MaintenanceService) Start() error {
	if _, err := m.scheduler.Every(15 * time.Minute).Tag("fail-stale-jobs").Do(m.failStaleJobs); err != nil {
		return err
	}
	if _, err := m.scheduler.Every(24 * time.Hour).Tag("prune-old-jobs").Do(m.pruneOldJobs); err != nil {
		return err
	}
	m.scheduler.StartAsync()
	logger.Info("maintenance scheduler started",
		"stale_timeout", m.staleTimeout.String(), "retention", m.retention.String())
	return nil
}

func (m *MaintenanceService) Stop() {
	m.scheduler.Stop()
}

func (m *MaintenanceService) failStaleJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := m.jobs.FailStaleJobs(ctx, m.staleTimeout); err != nil {
		logger.Error("stale job sweep failed", "error", err.Error())
	}
}

func (m *MaintenanceService) pruneOldJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := m.jobs.DeleteOldJobs(ctx, m.retention)
	if err != nil {
		logger.Error("job retention prune failed", "error", err.Error())
		return
	}
	if deleted > 0 {
		logger.Info("old jobs pruned", "count", deleted)
	}
}
