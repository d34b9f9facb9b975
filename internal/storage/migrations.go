package storage

import (
	"database/sql"
	"fmt"
)

// SQLiteMigration represents a database schema migration for SQLite
type SQLiteMigration struct {
	Version int
	Up      string
	Down    string
}

// sqliteMigrations contains all SQLite database migrations in chronological order.
// Timestamps are unix microseconds in UTC.
var sqliteMigrations = []SQLiteMigration{
	{
		Version: 1,
		Up: `CREATE TABLE health_readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL CHECK (device_id <> ''),
			timestamp INTEGER NOT NULL,
			cpu_usage REAL NOT NULL,
			heap_free INTEGER NOT NULL,
			min_heap_free INTEGER NOT NULL,
			task_count INTEGER NOT NULL,
			stack_hwm INTEGER NOT NULL
		);`,
		Down: `DROP TABLE IF EXISTS health_readings;`,
	},
	{
		// serves QueryByDevice ordering and the per-device max lookup
		Version: 2,
		Up:      `CREATE INDEX idx_health_readings_device_time ON health_readings(device_id, timestamp, id);`,
		Down:    `DROP INDEX IF EXISTS idx_health_readings_device_time;`,
	},
}

// runSQLiteMigrations applies all pending SQLite migrations to the database
func runSQLiteMigrations(db *sql.DB) error {
	if err := createSQLiteMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := getCurrentSQLiteVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range sqliteMigrations {
		if migration.Version <= currentVersion {
			continue
		}

		err := inTx(db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(migration.Up); err != nil {
				return fmt.Errorf("failed to execute migration SQL: %w", err)
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
				return fmt.Errorf("failed to record migration: %w", err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration version %d: %w", migration.Version, err)
		}
	}

	return nil
}

// rollbackSQLiteMigrations reverts applied migrations, newest first, until
// the schema version equals target.
func rollbackSQLiteMigrations(db *sql.DB, target int) error {
	currentVersion, err := getCurrentSQLiteVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for i := len(sqliteMigrations) - 1; i >= 0; i-- {
		migration := sqliteMigrations[i]
		if migration.Version > currentVersion || migration.Version <= target {
			continue
		}

		err := inTx(db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(migration.Down); err != nil {
				return fmt.Errorf("failed to execute rollback SQL: %w", err)
			}
			if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", migration.Version); err != nil {
				return fmt.Errorf("failed to remove migration record: %w", err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to roll back migration version %d: %w", migration.Version, err)
		}
	}

	return nil
}

// createSQLiteMigrationsTable creates the schema_migrations table for tracking applied migrations
func createSQLiteMigrationsTable(db *sql.DB) error {
	query := `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	)`

	_, err := db.Exec(query)
	return err
}

// getCurrentSQLiteVersion returns the highest applied migration version
func getCurrentSQLiteVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// inTx runs fn inside a transaction, rolling back when fn fails.
func inTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// GetSQLiteSchemaVersion returns the current schema version (for testing/debugging)
func GetSQLiteSchemaVersion(db *sql.DB) (int, error) {
	return getCurrentSQLiteVersion(db)
}
