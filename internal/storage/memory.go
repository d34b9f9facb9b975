package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend implements Backend interface using in-memory storage.
// Readings are appended under the write lock, so readers only ever see
// complete records.
type MemoryBackend struct {
	mu     sync.RWMutex
	nextID int64
	closed bool
	rows   []Reading
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		nextID: 1,
		rows:   make([]Reading, 0),
	}
}

// Insert appends a reading and assigns its id.
func (m *MemoryBackend) Insert(ctx context.Context, reading Reading) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrapError("insert", err)
	}
	if reading.DeviceID == "" {
		return 0, wrapError("insert", fmt.Errorf("%w: device_id must not be empty", ErrConstraint))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, wrapError("insert", ErrClosed)
	}

	reading.ID = m.nextID
	reading.Timestamp = reading.Timestamp.UTC()
	m.nextID++
	m.rows = append(m.rows, reading)

	return reading.ID, nil
}

// QueryByDevice returns the readings of one device ordered by timestamp,
// then id.
func (m *MemoryBackend) QueryByDevice(ctx context.Context, deviceID string, page Page) ([]Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, wrapError("query by device", ErrClosed)
	}

	result := []Reading{}
	for _, r := range m.rows {
		if r.DeviceID == deviceID {
			result = append(result, r)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].ID < result[j].ID
		}
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	if page.Offset > 0 {
		if page.Offset >= len(result) {
			return []Reading{}, nil
		}
		result = result[page.Offset:]
	}
	if page.Limit > 0 && page.Limit < len(result) {
		result = result[:page.Limit]
	}

	return result, nil
}

// QueryLatestPerDevice partitions readings by device and reduces each
// partition to its latest reading.
func (m *MemoryBackend) QueryLatestPerDevice(ctx context.Context) ([]Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, wrapError("query latest", ErrClosed)
	}

	latest := make(map[string]Reading)
	for _, r := range m.rows {
		current, ok := latest[r.DeviceID]
		if !ok || latestOf(r, current) {
			latest[r.DeviceID] = r
		}
	}

	result := make([]Reading, 0, len(latest))
	for _, r := range latest {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DeviceID < result[j].DeviceID
	})

	return result, nil
}

// ListDeviceIDs returns all unique device ids.
func (m *MemoryBackend) ListDeviceIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, wrapError("list devices", ErrClosed)
	}

	seen := make(map[string]bool)
	devices := []string{}
	for _, r := range m.rows {
		if !seen[r.DeviceID] {
			seen[r.DeviceID] = true
			devices = append(devices, r.DeviceID)
		}
	}

	sort.Strings(devices)
	return devices, nil
}

// Close releases the stored readings. Later calls fail with ErrClosed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.rows = nil
	return nil
}

// Len returns the number of stored readings (for testing)
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}
