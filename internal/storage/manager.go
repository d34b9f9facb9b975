package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/config"
)

// Manager coordinates persistence operations between the request handlers
// and a storage backend. It owns server-side defaults such as the
// ingestion timestamp.
type Manager struct {
	backend Backend
	backup  BackupConfig
	now     func() time.Time
	logger  *config.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now as the source of default timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithBackup sets the backup configuration used by Backup and RunBackups.
func WithBackup(cfg BackupConfig) Option {
	return func(m *Manager) { m.backup = cfg }
}

// WithLogger sets the sink for background backup messages.
func WithLogger(logger *config.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a new persistence manager
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		now:     time.Now,
		logger:  config.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewManagerFromConfig creates a manager using environment variable configuration
func NewManagerFromConfig(opts ...Option) (*Manager, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	backend, err := cfg.Open()
	if err != nil {
		return nil, err
	}

	return NewManager(backend, append([]Option{WithBackup(cfg.Backup)}, opts...)...), nil
}

// Insert stores a reading, stamping it with the current UTC time when
// no timestamp is set. It returns the stored reading with its id and the
// timestamp at storage precision (microseconds).
func (m *Manager) Insert(ctx context.Context, reading Reading) (Reading, error) {
	if reading.Timestamp.IsZero() {
		reading.Timestamp = m.now()
	}
	reading.Timestamp = reading.Timestamp.UTC().Truncate(time.Microsecond)
	reading.ID = 0

	id, err := m.backend.Insert(ctx, reading)
	if err != nil {
		return Reading{}, wrapError("insert", err)
	}
	reading.ID = id
	return reading, nil
}

// QueryByDevice retrieves the readings of one device, oldest first
func (m *Manager) QueryByDevice(ctx context.Context, deviceID string, page Page) ([]Reading, error) {
	readings, err := m.backend.QueryByDevice(ctx, deviceID, page)
	return readings, wrapError("query by device", err)
}

// QueryLatestPerDevice retrieves the latest reading of every device
func (m *Manager) QueryLatestPerDevice(ctx context.Context) ([]Reading, error) {
	readings, err := m.backend.QueryLatestPerDevice(ctx)
	return readings, wrapError("query latest", err)
}

// ListDeviceIDs lists all devices that have stored readings
func (m *Manager) ListDeviceIDs(ctx context.Context) ([]string, error) {
	devices, err := m.backend.ListDeviceIDs(ctx)
	return devices, wrapError("list devices", err)
}

// Backup snapshots the database if the backend supports it.
func (m *Manager) Backup() error {
	b, ok := m.backend.(interface {
		CreateBackup(config *BackupConfig) error
	})
	if !ok {
		return fmt.Errorf("storage backend %T does not support backups", m.backend)
	}
	return b.CreateBackup(&m.backup)
}

// RunBackups takes a backup every BackupInterval until ctx is done. It
// returns immediately when backups are disabled.
func (m *Manager) RunBackups(ctx context.Context) {
	if !m.backup.Enabled || m.backup.BackupInterval <= 0 {
		return
	}

	ticker := time.NewTicker(m.backup.BackupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Backup(); err != nil {
				m.logger.Error(ctx, fmt.Sprintf("scheduled backup failed: %v", err))
				continue
			}
			m.logger.Info(ctx, fmt.Sprintf("database backup written to %s", m.backup.BackupDir))
		}
	}
}

// Close gracefully shuts down the persistence manager
func (m *Manager) Close() error {
	if m.backend == nil {
		return nil
	}
	return m.backend.Close()
}
