package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/config"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// mockSource implements LatestSource for testing
type mockSource struct {
	mu       sync.Mutex
	readings []storage.Reading
	err      error
	calls    int
}

func (m *mockSource) QueryLatestPerDevice(ctx context.Context) ([]storage.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.readings, m.err
}

func (m *mockSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestFleetSamplerCollectOnce(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	source := &mockSource{readings: []storage.Reading{
		{DeviceID: "A", Timestamp: now.Add(-90 * time.Second)},
		{DeviceID: "B", Timestamp: now.Add(-10 * time.Second)},
	}}
	c := New(10)

	sampler := NewFleetSampler(source, c, config.NewLogger(nil))
	sampler.now = func() time.Time { return now }

	if err := sampler.CollectOnce(context.Background()); err != nil {
		t.Fatalf("CollectOnce failed: %v", err)
	}

	if got := testutil.ToFloat64(c.devicesKnown); got != 2 {
		t.Errorf("Expected 2 devices, got %f", got)
	}
	if got := testutil.ToFloat64(c.latestReadingAge.WithLabelValues("A")); got != 90 {
		t.Errorf("Expected age 90s for A, got %f", got)
	}
	if got := testutil.ToFloat64(c.latestReadingAge.WithLabelValues("B")); got != 10 {
		t.Errorf("Expected age 10s for B, got %f", got)
	}
}

func TestFleetSamplerError(t *testing.T) {
	source := &mockSource{err: errors.New("database locked")}
	sampler := NewFleetSampler(source, New(10), config.NewLogger(nil))

	if err := sampler.CollectOnce(context.Background()); err == nil {
		t.Fatal("Expected error from source to be returned")
	}
}

func TestFleetSamplerStartStop(t *testing.T) {
	source := &mockSource{}
	sampler := NewFleetSamplerWithInterval(source, New(10), config.NewLogger(nil), 10*time.Millisecond)

	sampler.Start()
	time.Sleep(55 * time.Millisecond)
	sampler.Stop()

	calls := source.callCount()
	if calls < 2 {
		t.Errorf("Expected at least 2 samples, got %d", calls)
	}

	time.Sleep(30 * time.Millisecond)
	if after := source.callCount(); after > calls+1 {
		t.Errorf("Sampler kept running after Stop: %d -> %d", calls, after)
	}
}

func TestFleetSamplerDisabled(t *testing.T) {
	source := &mockSource{}
	sampler := NewFleetSamplerWithInterval(source, New(10), config.NewLogger(nil), 0)

	sampler.Start()
	time.Sleep(20 * time.Millisecond)
	sampler.Stop()

	if calls := source.callCount(); calls != 0 {
		t.Errorf("Expected no samples when disabled, got %d", calls)
	}
}
