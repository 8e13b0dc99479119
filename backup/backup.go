/*
Package backup keeps one database snapshot per day.

FLOW (EnsureDaily):
  1. Read meta "last_backup_date"; stop if it equals today
  2. Snapshot the database to <Dir>/servis_takip_<YYYY-MM-DD>.db
  3. Record today in meta
  4. Upload the file when an Uploader is configured

  An upload failure is logged and returned as *UploadError, but the local
  snapshot and the meta date are kept: the next day still produces a fresh
  backup. Any other error after the file is written (meta) comes back
  with Created set and is not an *UploadError.

  Later snapshots of the same day get a _<HHMMSS> suffix, then a counter,
  so a file is never overwritten.

TRIGGERS:
  - Dashboard requests (first visit of the day)
  - The cron schedule (api.BackupScheduler)
  - POST /api/admin/backup (Force)

Runs are serialized by a mutex so concurrent triggers produce one file.
*/
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/shuttle-admin/billing"
)

// MetaLastBackupDate is the meta key holding the date of the last snapshot.
const MetaLastBackupDate = "last_backup_date"

// Snapshotter is the storage side of a backup.
type Snapshotter interface {
	MetaValue(ctx context.Context, key string) (string, bool, error)
	SetMetaValue(ctx context.Context, key, value string) error
	// BackupTo writes a consistent copy of the database to a new file.
	BackupTo(ctx context.Context, path string) error
}

// Uploader ships a finished snapshot off the machine.
type Uploader interface {
	Upload(ctx context.Context, path string) (location string, err error)
}

// UploadError means the snapshot was taken and recorded locally; only the
// upload failed.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return "failed to upload backup: " + e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }

// Result describes one backup run.
type Result struct {
	Date     string `json:"date"`
	Path     string `json:"path,omitempty"`
	Created  bool   `json:"created"`
	Location string `json:"location,omitempty"`
}

type Manager struct {
	Store    Snapshotter
	Dir      string
	Uploader Uploader // optional
	Now      func() time.Time
	Logger   logrus.FieldLogger

	mu sync.Mutex
}

func NewManager(store Snapshotter, dir string, uploader Uploader) *Manager {
	return &Manager{
		Store:    store,
		Dir:      dir,
		Uploader: uploader,
		Now:      time.Now,
		Logger:   logrus.StandardLogger(),
	}
}

// EnsureDaily takes today's snapshot unless one was already taken.
func (m *Manager) EnsureDaily(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	today := billing.FormatDate(now)

	last, ok, err := m.Store.MetaValue(ctx, MetaLastBackupDate)
	if err != nil {
		return Result{Date: today}, fmt.Errorf("failed to read last backup date: %w", err)
	}
	if ok && last == today {
		return Result{Date: today}, nil
	}

	return m.snapshot(ctx, now)
}

// Force takes a snapshot now, even if today's already exists.
func (m *Manager) Force(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(ctx, m.now())
}

// snapshot must be called with m.mu held.
func (m *Manager) snapshot(ctx context.Context, now time.Time) (Result, error) {
	today := billing.FormatDate(now)
	res := Result{Date: today}

	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return res, fmt.Errorf("failed to create backup dir: %w", err)
	}

	path, err := m.freePath(now)
	if err != nil {
		return res, err
	}

	if err := m.Store.BackupTo(ctx, path); err != nil {
		return res, err
	}
	res.Path = path
	res.Created = true

	if err := m.Store.SetMetaValue(ctx, MetaLastBackupDate, today); err != nil {
		return res, fmt.Errorf("failed to record backup date: %w", err)
	}

	log := m.logger().WithFields(logrus.Fields{"path": path, "date": today})
	log.Info("database backup created")

	if m.Uploader != nil {
		location, err := m.Uploader.Upload(ctx, path)
		if err != nil {
			log.WithError(err).Error("backup upload failed")
			return res, &UploadError{Err: err}
		}
		res.Location = location
		log.WithField("location", location).Info("database backup uploaded")
	}

	return res, nil
}

// freePath picks the first unused snapshot name for now: the daily name,
// then _<HHMMSS>, then _<HHMMSS>_2, _3 and so on.
func (m *Manager) freePath(now time.Time) (string, error) {
	base := "servis_takip_" + billing.FormatDate(now)
	name := func(n int) string {
		switch n {
		case 0:
			return base + ".db"
		case 1:
			return base + "_" + now.Format("150405") + ".db"
		default:
			return fmt.Sprintf("%s_%s_%d.db", base, now.Format("150405"), n)
		}
	}

	for n := 0; ; n++ {
		path := filepath.Join(m.Dir, name(n))
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// FileName is the daily snapshot name for the given day.
func FileName(day time.Time) string {
	return "servis_takip_" + billing.FormatDate(day) + ".db"
}

func (m *Manager) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Manager) logger() logrus.FieldLogger {
	if m.Logger == nil {
		return logrus.StandardLogger()
	}
	return m.Logger
}
