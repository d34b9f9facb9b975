package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteBackend implements Backend interface using SQLite database
type SQLiteBackend struct {
	db     *sql.DB
	dbPath string
}

// SQLiteConfig holds configuration for SQLite backend
type SQLiteConfig struct {
	DBPath      string
	BusyTimeout time.Duration
}

const readingColumns = `id, device_id, timestamp, cpu_usage, heap_free, min_heap_free, task_count, stack_hwm`

// NewSQLiteBackend creates a new SQLite storage backend
func NewSQLiteBackend(config SQLiteConfig) (*SQLiteBackend, error) {
	if config.DBPath == "" {
		return nil, fmt.Errorf("sqlite database path is empty")
	}

	dsn := config.DBPath
	if config.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}

		busy := config.BusyTimeout
		if busy <= 0 {
			busy = 5 * time.Second
		}
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d",
			config.DBPath, busy.Milliseconds())
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single connection. It also keeps a
	// :memory: database alive for the life of the backend.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runSQLiteMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteBackend{
		db:     db,
		dbPath: config.DBPath,
	}, nil
}

// Insert writes one reading inside a transaction and returns its id.
// A failed insert leaves no row behind.
func (s *SQLiteBackend) Insert(ctx context.Context, reading Reading) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapError("insert", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO health_readings
			(device_id, timestamp, cpu_usage, heap_free, min_heap_free, task_count, stack_hwm)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		reading.DeviceID,
		reading.Timestamp.UTC().UnixMicro(),
		reading.CPUUsage,
		reading.HeapFree,
		reading.MinHeapFree,
		reading.TaskCount,
		reading.StackHWM,
	)
	if err != nil {
		return 0, wrapError("insert", classifySQLiteError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, wrapError("insert", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapError("insert", fmt.Errorf("failed to commit transaction: %w", err))
	}

	return id, nil
}

// QueryByDevice returns the readings of one device, oldest first.
func (s *SQLiteBackend) QueryByDevice(ctx context.Context, deviceID string, page Page) ([]Reading, error) {
	limit := -1 // no limit
	if page.Limit > 0 {
		limit = page.Limit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+readingColumns+` FROM health_readings
		WHERE device_id = ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ? OFFSET ?`,
		deviceID, limit, page.Offset)
	if err != nil {
		return nil, wrapError("query by device", err)
	}
	defer rows.Close()

	readings, err := scanReadings(rows)
	if err != nil {
		return nil, wrapError("query by device", err)
	}
	return readings, nil
}

// QueryLatestPerDevice groups readings by device, keeps the max timestamp
// per group and, when several readings share it, the highest id.
func (s *SQLiteBackend) QueryLatestPerDevice(ctx context.Context) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+readingColumns+` FROM health_readings
		WHERE id IN (
			SELECT MAX(r.id) FROM health_readings r
			JOIN (
				SELECT device_id, MAX(timestamp) AS max_timestamp
				FROM health_readings
				GROUP BY device_id
			) latest ON r.device_id = latest.device_id AND r.timestamp = latest.max_timestamp
			GROUP BY r.device_id
		)
		ORDER BY device_id ASC`)
	if err != nil {
		return nil, wrapError("query latest", err)
	}
	defer rows.Close()

	readings, err := scanReadings(rows)
	if err != nil {
		return nil, wrapError("query latest", err)
	}
	return readings, nil
}

// ListDeviceIDs returns all unique device ids
func (s *SQLiteBackend) ListDeviceIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT device_id FROM health_readings ORDER BY device_id`)
	if err != nil {
		return nil, wrapError("list devices", err)
	}
	defer rows.Close()

	devices := []string{}
	for rows.Next() {
		var deviceID string
		if err := rows.Scan(&deviceID); err != nil {
			return nil, wrapError("list devices", fmt.Errorf("failed to scan device id: %w", err))
		}
		devices = append(devices, deviceID)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapError("list devices", fmt.Errorf("error iterating rows: %w", err))
	}

	return devices, nil
}

// Close gracefully shuts down the SQLite backend
func (s *SQLiteBackend) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateBackup creates a backup of the SQLite database using the existing connection
// This avoids file locking issues by using the same database connection
func (s *SQLiteBackend) CreateBackup(config *BackupConfig) error {
	if s.db == nil {
		return fmt.Errorf("no database connection available")
	}

	return BackupHealthDatabase(s.db, config)
}

func scanReadings(rows *sql.Rows) ([]Reading, error) {
	readings := []Reading{}
	for rows.Next() {
		var r Reading
		var micros int64
		err := rows.Scan(&r.ID, &r.DeviceID, &micros, &r.CPUUsage,
			&r.HeapFree, &r.MinHeapFree, &r.TaskCount, &r.StackHWM)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Timestamp = time.UnixMicro(micros).UTC()
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return readings, nil
}

// classifySQLiteError tags constraint failures with ErrConstraint.
func classifySQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	return err
}
