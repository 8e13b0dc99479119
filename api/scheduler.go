/*
scheduler.go - Scheduled daily backup

PURPOSE:
  Takes the daily database snapshot even on days nobody opens the
  dashboard. The job calls backup.Manager.EnsureDaily, so a dashboard
  visit earlier that day makes the scheduled run a no-op.

DESIGN:
  - robfig/cron drives the schedule (BACKUP_SCHEDULE, default "5 0 * * *")
  - Runs once immediately on Start to catch up after downtime
  - Overlapping runs are skipped, not queued
  - Each run gets its own timeout

USAGE:
  scheduler, err := NewBackupScheduler(manager, "5 0 * * *")
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - backup/backup.go: Manager
  - dashboard.go: Dashboard-triggered and forced backups
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/warp/shuttle-admin/backup"
)

// BackupScheduler runs backup.Manager.EnsureDaily on a cron schedule.
type BackupScheduler struct {
	Manager    *backup.Manager
	Schedule   string
	RunTimeout time.Duration
	Logger     logrus.FieldLogger

	cron    *cron.Cron
	catchUp sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewBackupScheduler validates the schedule and creates a stopped scheduler.
func NewBackupScheduler(manager *backup.Manager, schedule string) (*BackupScheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}
	return &BackupScheduler{
		Manager:    manager,
		Schedule:   schedule,
		RunTimeout: 5 * time.Minute,
		Logger:     logrus.StandardLogger(),
	}, nil
}

// Start begins the scheduler.
func (bs *BackupScheduler) Start() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.started {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(bs.Schedule, bs.RunOnce); err != nil {
		return fmt.Errorf("failed to schedule backup: %w", err)
	}
	c.Start()
	bs.cron = c
	bs.started = true

	bs.catchUp.Add(1)
	go func() {
		defer bs.catchUp.Done()
		bs.RunOnce()
	}()

	bs.Logger.WithField("schedule", bs.Schedule).Info("backup scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running backup to finish.
func (bs *BackupScheduler) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.started {
		return
	}
	<-bs.cron.Stop().Done()
	bs.catchUp.Wait()
	bs.started = false
	bs.Logger.Info("backup scheduler stopped")
}

// RunOnce performs one EnsureDaily run and logs the outcome.
func (bs *BackupScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), bs.RunTimeout)
	defer cancel()

	res, err := bs.Manager.EnsureDaily(ctx)
	log := bs.Logger.WithField("date", res.Date)
	switch {
	case err != nil:
		log.WithError(err).Error("scheduled backup failed")
	case res.Created:
		log.WithField("path", res.Path).Info("scheduled backup created")
	default:
		log.Debug("backup already taken today")
	}
}
