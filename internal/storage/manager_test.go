package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/config"
)

func TestManager_InsertStampsTimestamp(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))
	manager := NewManager(NewMemoryBackend(), WithClock(func() time.Time { return fixed }))
	defer manager.Close()

	stored, err := manager.Insert(context.Background(), Reading{ID: 99, DeviceID: "esp32-a", CPUUsage: 1})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if stored.ID != 1 {
		t.Errorf("Expected backend-assigned id 1, got %d", stored.ID)
	}
	if !stored.Timestamp.Equal(fixed) || stored.Timestamp.Location() != time.UTC {
		t.Errorf("Expected %v in UTC, got %v", fixed, stored.Timestamp)
	}

	explicit := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	stored, err = manager.Insert(context.Background(), Reading{DeviceID: "esp32-a", Timestamp: explicit})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if !stored.Timestamp.Equal(explicit) {
		t.Errorf("Expected explicit timestamp to be kept, got %v", stored.Timestamp)
	}
}

func TestManager_InsertMatchesStored(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 123456789, time.UTC)

	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			manager := NewManager(backend, WithClock(func() time.Time { return clock }))

			inserted, err := manager.Insert(context.Background(), sampleReading("esp32-a", time.Time{}))
			if err != nil {
				t.Fatalf("Insert failed: %v", err)
			}
			if inserted.Timestamp.Nanosecond() != 123456000 {
				t.Errorf("Expected microsecond timestamp, got %v", inserted.Timestamp)
			}

			stored, err := manager.QueryByDevice(context.Background(), "esp32-a", Page{})
			if err != nil {
				t.Fatalf("QueryByDevice failed: %v", err)
			}
			if len(stored) != 1 || !sameReading(stored[0], inserted) {
				t.Errorf("Inserted %+v, stored %+v", inserted, stored)
			}
		})
	}
}

func TestManager_InsertError(t *testing.T) {
	manager := NewManager(NewMemoryBackend())
	defer manager.Close()

	_, err := manager.Insert(context.Background(), Reading{})
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("Expected *StorageError, got %v", err)
	}
	if se.Op != "insert" {
		t.Errorf("Expected op insert, got %s", se.Op)
	}
}

func TestManager_Queries(t *testing.T) {
	manager := NewManager(NewMemoryBackend())
	defer manager.Close()
	ctx := context.Background()

	for _, id := range []string{"b", "a", "b"} {
		if _, err := manager.Insert(ctx, Reading{DeviceID: id}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	readings, err := manager.QueryByDevice(ctx, "b", Page{Limit: 1})
	if err != nil || len(readings) != 1 {
		t.Fatalf("Expected 1 reading, got %d (%v)", len(readings), err)
	}

	latest, err := manager.QueryLatestPerDevice(ctx)
	if err != nil || len(latest) != 2 {
		t.Fatalf("Expected 2 latest readings, got %d (%v)", len(latest), err)
	}
	if latest[1].ID != 3 {
		t.Errorf("Expected latest reading of b to be id 3, got %d", latest[1].ID)
	}

	devices, err := manager.ListDeviceIDs(ctx)
	if err != nil || len(devices) != 2 {
		t.Fatalf("Expected 2 devices, got %v (%v)", devices, err)
	}
}

func TestManager_BackupUnsupported(t *testing.T) {
	manager := NewManager(NewMemoryBackend(), WithBackup(BackupConfig{Enabled: true}))
	defer manager.Close()

	if err := manager.Backup(); err == nil {
		t.Fatal("Expected error for backend without backup support")
	}
}

func TestManager_RunBackups(t *testing.T) {
	backupDir := filepath.Join(t.TempDir(), "backups")
	var logs bytes.Buffer

	manager := NewManager(setupTestSQLiteBackend(t),
		WithBackup(BackupConfig{
			Enabled:        true,
			BackupDir:      backupDir,
			RetentionDays:  7,
			BackupInterval: 10 * time.Millisecond,
		}),
		WithLogger(config.NewLogger(&logs)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		manager.RunBackups(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(filepath.Join(backupDir, backupFileName(time.Now()))); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("Scheduled backup was not written")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunBackups did not stop after cancel")
	}

	if !strings.Contains(logs.String(), "database backup written") {
		t.Errorf("Expected backup log line, got %q", logs.String())
	}
}

func TestManager_RunBackupsDisabled(t *testing.T) {
	manager := NewManager(NewMemoryBackend())
	defer manager.Close()

	done := make(chan struct{})
	go func() {
		manager.RunBackups(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunBackups should return immediately when disabled")
	}
}

func TestNewManagerFromConfig(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "from_config.db")
	t.Setenv("MONITOR_STORAGE_BACKEND", "sqlite")
	t.Setenv("MONITOR_DB_PATH", dbPath)

	manager, err := NewManagerFromConfig()
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer manager.Close()

	if _, err := manager.Insert(context.Background(), Reading{DeviceID: "esp32-a"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Expected database file at %s: %v", dbPath, err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"sqlite", Config{Kind: KindSQLite, DBPath: "x.db"}, false},
		{"sqlite without path", Config{Kind: KindSQLite}, true},
		{"memory", Config{Kind: KindMemory}, false},
		{"memory with backups", Config{Kind: KindMemory, Backup: BackupConfig{Enabled: true, BackupInterval: time.Hour}}, true},
		{"unknown kind", Config{Kind: "postgres"}, true},
		{"negative retention", Config{Kind: KindSQLite, DBPath: "x.db", Backup: BackupConfig{RetentionDays: -1}}, true},
		{"backups without interval", Config{Kind: KindSQLite, DBPath: "x.db", Backup: BackupConfig{Enabled: true}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("MONITOR_STORAGE_BACKEND", "MEMORY")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Kind != KindMemory {
		t.Errorf("Expected memory kind, got %s", cfg.Kind)
	}
	if cfg.Backup.BackupInterval != 24*time.Hour {
		t.Errorf("Expected default interval 24h, got %v", cfg.Backup.BackupInterval)
	}
}
