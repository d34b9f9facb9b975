package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/config"
)

// Backend kinds accepted by MONITOR_STORAGE_BACKEND
const (
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// BackupConfig holds backup-specific configuration
type BackupConfig struct {
	Enabled        bool
	BackupDir      string
	RetentionDays  int
	BackupInterval time.Duration
}

// Config holds all configuration options for the persistence system
type Config struct {
	Kind   string
	DBPath string
	Backup BackupConfig
}

// LoadConfig loads configuration from the environment and any loaded
// config file.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Kind:   strings.ToLower(config.StringValue("MONITOR_STORAGE_BACKEND")),
		DBPath: config.StringValue("MONITOR_DB_PATH"),
		Backup: BackupConfig{
			Enabled:        config.BoolValue("MONITOR_BACKUP_ENABLED"),
			BackupDir:      config.StringValue("MONITOR_BACKUP_DIR"),
			RetentionDays:  config.IntValue("MONITOR_BACKUP_RETENTION_DAYS"),
			BackupInterval: config.DurationValue("MONITOR_BACKUP_INTERVAL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	switch c.Kind {
	case KindSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("MONITOR_DB_PATH is required for the sqlite backend")
		}
	case KindMemory:
		if c.Backup.Enabled {
			return fmt.Errorf("backups require the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Kind)
	}

	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup retention days must not be negative")
	}
	if c.Backup.Enabled && c.Backup.BackupInterval <= 0 {
		return fmt.Errorf("backup interval must be positive")
	}
	return nil
}

// Open creates the backend described by c.
func (c *Config) Open() (Backend, error) {
	switch c.Kind {
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindSQLite:
		backend, err := NewSQLiteBackend(SQLiteConfig{DBPath: c.DBPath})
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		return backend, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", c.Kind)
}
