package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/config"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/storage"
)

func TestMonitorEndToEnd(t *testing.T) {
	m, err := New(context.Background(),
		WithBackend(storage.NewMemoryBackend()),
		WithPublishers(nil),
		WithLogger(config.NewLogger(nil)),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer m.Close()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	body := `{"device_id":"esp32-a","cpu_usage":5,"heap_free":1,"min_heap_free":1,"task_count":1,"stack_hwm":1}`
	resp, err := http.Post(srv.URL+"/api/data", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/devices")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	var devices []string
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if len(devices) != 1 || devices[0] != "esp32-a" {
		t.Errorf("Expected [esp32-a], got %v", devices)
	}
}

func TestMonitorFromConfig(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "monitor.db")
	t.Setenv("MONITOR_STORAGE_BACKEND", "sqlite")
	t.Setenv("MONITOR_DB_PATH", dbPath)
	t.Setenv("MONITOR_REDIS_ADDR", "")
	t.Setenv("MONITOR_AMQP_URL", "")

	m, err := New(context.Background(), WithLogger(config.NewLogger(nil)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from /status, got %d", rec.Code)
	}

	if _, err := m.Storage().Insert(context.Background(), storage.Reading{DeviceID: "x"}); err != nil {
		t.Errorf("Insert through Storage failed: %v", err)
	}

	cancel()
	if err := m.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestMonitorInvalidConfig(t *testing.T) {
	t.Setenv("MONITOR_STORAGE_BACKEND", "postgres")

	if _, err := New(context.Background(), WithLogger(config.NewLogger(nil))); err == nil {
		t.Fatal("Expected error for unknown storage backend")
	}
}

// lockedBuffer is a log sink safe to read while background jobs write.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMonitorCloseStopsBackups(t *testing.T) {
	t.Setenv("MONITOR_SAMPLE_INTERVAL", "0")
	logs := &lockedBuffer{}

	// the memory backend cannot back up, so every tick logs a failure
	m, err := New(context.Background(),
		WithBackend(storage.NewMemoryBackend()),
		WithPublishers(nil),
		WithLogger(config.NewLogger(logs)),
		WithStorageOptions(storage.WithBackup(storage.BackupConfig{Enabled: true, BackupInterval: 5 * time.Millisecond})),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(logs.String(), "scheduled backup failed") {
		if time.Now().After(deadline) {
			t.Fatal("Backup loop never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	after := logs.String()
	time.Sleep(30 * time.Millisecond)
	if logs.String() != after {
		t.Error("Backup loop kept running after Close")
	}
}

func TestMonitorWithConfigFile(t *testing.T) {
	t.Cleanup(config.ResetFile)
	t.Setenv("MONITOR_STORAGE_BACKEND", "")
	os.Unsetenv("MONITOR_STORAGE_BACKEND")
	t.Setenv("MONITOR_REDIS_ADDR", "")
	t.Setenv("MONITOR_AMQP_URL", "")

	path := filepath.Join(t.TempDir(), "monitor.yaml")
	if err := os.WriteFile(path, []byte("MONITOR_STORAGE_BACKEND: memory\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m, err := New(context.Background(), WithConfigFile(path), WithLogger(config.NewLogger(nil)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer m.Close()

	if _, err := m.Storage().Insert(context.Background(), storage.Reading{DeviceID: "x"}); err != nil {
		t.Errorf("Insert failed: %v", err)
	}

	if _, err := New(context.Background(), WithConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))); err == nil {
		t.Error("Expected error for missing config file")
	}
}
