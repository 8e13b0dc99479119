/*
Package config loads runtime settings.

SOURCES (later wins):
  1. Defaults below
  2. .env file in the working directory, if present
  3. Process environment
  4. Command-line flags (-port, -db), applied by cmd/server

KEYS:
  PORT, DB_PATH, SECRET_KEY, SESSION_TTL, APP_ENV, LOG_LEVEL, LOG_FORMAT,
  CORS_ORIGINS, BACKUP_DIR, BACKUP_SCHEDULE, BACKUP_S3_BUCKET,
  BACKUP_S3_REGION, BACKUP_S3_PREFIX, CURRENCY
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const devSecretKey = "servis-takip-dev-secret-change-me"

type Config struct {
	Port   int
	DBPath string
	AppEnv string

	SecretKey  string
	SessionTTL time.Duration

	LogLevel  string
	LogFormat string

	CORSOrigins []string

	BackupDir      string
	BackupSchedule string
	BackupBucket   string
	BackupRegion   string
	BackupPrefix   string

	Currency string
}

// IsProduction reports whether APP_ENV is "production".
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.IsProduction() && (len(c.SecretKey) < 16 || c.SecretKey == devSecretKey) {
		return errors.New("SECRET_KEY must be set to at least 16 characters in production")
	}
	return nil
}

// Load reads defaults, .env and the environment.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Config{}, fmt.Errorf("config.godotenv(.env): %w", err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config.os.Stat(.env): %w", err)
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_PATH", "servis_takip.db")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SECRET_KEY", devSecretKey)
	v.SetDefault("SESSION_TTL", 12*time.Hour)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")
	v.SetDefault("BACKUP_DIR", "backups")
	v.SetDefault("BACKUP_SCHEDULE", "5 0 * * *")
	v.SetDefault("BACKUP_S3_BUCKET", "")
	v.SetDefault("BACKUP_S3_REGION", "eu-central-1")
	v.SetDefault("BACKUP_S3_PREFIX", "backups/")
	v.SetDefault("CURRENCY", "TRY")

	v.AutomaticEnv()
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:           v.GetInt("PORT"),
		DBPath:         v.GetString("DB_PATH"),
		AppEnv:         v.GetString("APP_ENV"),
		SecretKey:      v.GetString("SECRET_KEY"),
		SessionTTL:     v.GetDuration("SESSION_TTL"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFormat:      v.GetString("LOG_FORMAT"),
		CORSOrigins:    splitList(v.GetString("CORS_ORIGINS")),
		BackupDir:      v.GetString("BACKUP_DIR"),
		BackupSchedule: v.GetString("BACKUP_SCHEDULE"),
		BackupBucket:   v.GetString("BACKUP_S3_BUCKET"),
		BackupRegion:   v.GetString("BACKUP_S3_REGION"),
		BackupPrefix:   v.GetString("BACKUP_S3_PREFIX"),
		Currency:       strings.ToUpper(v.GetString("CURRENCY")),
	}
	return cfg, cfg.Validate()
}

// ConfigureLogging applies LOG_LEVEL and LOG_FORMAT to the standard logrus logger.
func (c Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	logrus.SetLevel(level)

	switch strings.ToLower(c.LogFormat) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
