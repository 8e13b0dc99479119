/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the shuttle office server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment), then apply flags
  2. Configure logging
  3. Initialize SQLite store and seed default users
  4. Create API handler, backup manager and backup scheduler
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the backup scheduler, waiting for a running backup
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/servis_takip.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Upload backups to S3
  BACKUP_S3_BUCKET=my-bucket ./server

SEE ALSO:
  - config/config.go: Environment keys and defaults
  - api/server.go: Router configuration
  - api/scheduler.go: Scheduled backups
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/shuttle-admin/api"
	"github.com/warp/shuttle-admin/backup"
	"github.com/warp/shuttle-admin/billing"
	"github.com/warp/shuttle-admin/config"
	"github.com/warp/shuttle-admin/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Port = *port
	cfg.DBPath = *dbPath
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	if err := cfg.ConfigureLogging(); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	billing.DefaultCurrency = billing.Currency(cfg.Currency)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logrus.WithError(err).WithField("db", cfg.DBPath).Fatal("Failed to initialize database")
	}
	defer store.Close()

	ctx := context.Background()
	if err := api.EnsureDefaultUsers(ctx, store); err != nil {
		logrus.WithError(err).Fatal("Failed to seed users")
	}

	// Initialize handler
	auth := api.NewAuthenticator(store, cfg.SecretKey, cfg.SessionTTL)
	auth.Secure = cfg.IsProduction()
	handler := api.NewHandler(store, auth)

	manager, err := newBackupManager(ctx, cfg, store)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to configure backups")
	}
	handler.Backups = manager
	handler.SetClock(time.Now)

	scheduler, err := api.NewBackupScheduler(manager, cfg.BackupSchedule)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to configure backup schedule")
	}
	if err := scheduler.Start(); err != nil {
		logrus.WithError(err).Fatal("Failed to start backup scheduler")
	}

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   "./web/dist",
		Scenarios:   !cfg.IsProduction(),
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logrus.WithFields(logrus.Fields{
			"port": cfg.Port,
			"db":   cfg.DBPath,
			"env":  cfg.AppEnv,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}
	scheduler.Stop()

	logrus.Info("Server stopped")
}

// newBackupManager writes snapshots to BACKUP_DIR and, when a bucket is
// configured, uploads each one to S3.
func newBackupManager(ctx context.Context, cfg config.Config, store *sqlite.Store) (*backup.Manager, error) {
	var uploader backup.Uploader
	if cfg.BackupBucket != "" {
		s3u, err := backup.NewS3Uploader(ctx, cfg.BackupBucket, cfg.BackupRegion, cfg.BackupPrefix)
		if err != nil {
			return nil, err
		}
		uploader = s3u
		logrus.WithField("bucket", cfg.BackupBucket).Info("Backups will be uploaded to S3")
	}
	return backup.NewManager(store, cfg.BackupDir, uploader), nil
}
