package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	backupPrefix     = "health_monitor_"
	backupSuffix     = ".db"
	backupDateLayout = "20060102"
)

// backupFileName returns the snapshot name for the day of t.
func backupFileName(t time.Time) string {
	return backupPrefix + t.Format(backupDateLayout) + backupSuffix
}

// BackupHealthDatabase creates a backup of the readings database using
// SQLite VACUUM INTO, then prunes snapshots older than the retention window.
// The readings themselves are never pruned.
func BackupHealthDatabase(db *sql.DB, config *BackupConfig) error {
	if !config.Enabled {
		return nil // Backup disabled
	}

	if err := os.MkdirAll(config.BackupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupPath := filepath.Join(config.BackupDir, backupFileName(time.Now()))

	// VACUUM INTO refuses an existing target, so today's snapshot is replaced
	if _, err := os.Stat(backupPath); err == nil {
		if err := os.Remove(backupPath); err != nil {
			return fmt.Errorf("failed to remove existing backup: %w", err)
		}
	}

	quoted := strings.ReplaceAll(backupPath, "'", "''")
	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	if err := CleanupHealthBackups(config); err != nil {
		return fmt.Errorf("backup succeeded but cleanup failed: %w", err)
	}

	return nil
}

// CleanupHealthBackups removes backup files older than RetentionDays.
// Zero retention keeps every backup.
func CleanupHealthBackups(config *BackupConfig) error {
	if config.RetentionDays <= 0 {
		return nil
	}

	files, err := os.ReadDir(config.BackupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Backup directory doesn't exist yet
		}
		return fmt.Errorf("failed to read backup directory: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -config.RetentionDays)

	for _, file := range files {
		fileDate, ok := parseBackupName(file.Name())
		if !ok {
			continue
		}

		if fileDate.After(cutoff) {
			continue
		}

		filePath := filepath.Join(config.BackupDir, file.Name())
		if err := os.Remove(filePath); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", file.Name(), err)
		}
	}

	return nil
}

// ListHealthBackups returns the available backup files, oldest first
func ListHealthBackups(config *BackupConfig) ([]string, error) {
	files, err := os.ReadDir(config.BackupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := []string{}
	for _, file := range files {
		if _, ok := parseBackupName(file.Name()); ok {
			backups = append(backups, file.Name())
		}
	}

	// the date layout sorts chronologically
	sort.Strings(backups)
	return backups, nil
}

// RestoreHealthDatabase copies a backup file over targetDBPath. The
// database must not be open while restoring.
func RestoreHealthDatabase(backupFileName string, targetDBPath string, config *BackupConfig) error {
	backupPath := filepath.Join(config.BackupDir, backupFileName)

	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("backup file not found: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(targetDBPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	// stale WAL files would be replayed over the restored snapshot
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(targetDBPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", targetDBPath+suffix, err)
		}
	}

	if err := copyFile(backupPath, targetDBPath); err != nil {
		return fmt.Errorf("failed to restore database: %w", err)
	}

	return nil
}

// FindBackupForDate finds the backup file for a date in YYYYMMDD format
func FindBackupForDate(targetDate string, config *BackupConfig) (string, error) {
	if _, err := time.Parse(backupDateLayout, targetDate); err != nil {
		return "", fmt.Errorf("invalid backup date %q, use YYYYMMDD", targetDate)
	}

	name := backupPrefix + targetDate + backupSuffix
	if _, err := os.Stat(filepath.Join(config.BackupDir, name)); os.IsNotExist(err) {
		return "", fmt.Errorf("backup for date %s not found", targetDate)
	}

	return name, nil
}

func parseBackupName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
		return time.Time{}, false
	}
	datePart := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)

	fileDate, err := time.Parse(backupDateLayout, datePart)
	if err != nil {
		return time.Time{}, false
	}
	return fileDate, true
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := dstFile.ReadFrom(srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}
