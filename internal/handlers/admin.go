package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/storage"
)

// AdminInterface defines the storage reads needed for administrative
// data extraction
type AdminInterface interface {
	QueryByDevice(ctx context.Context, deviceID string, page storage.Page) ([]storage.Reading, error)
	ListDeviceIDs(ctx context.Context) ([]string, error)
}

// ValueSummary provides statistical summary for one reported metric
type ValueSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// DeviceSummary provides summary for a single device's readings
type DeviceSummary struct {
	DeviceID    string        `json:"device_id"`
	Readings    int           `json:"readings"`
	FirstSeen   time.Time     `json:"first_seen"`
	LastSeen    time.Time     `json:"last_seen"`
	CPUUsage    *ValueSummary `json:"cpu_usage"`
	HeapFree    *ValueSummary `json:"heap_free"`
	MinHeapFree *ValueSummary `json:"min_heap_free"`
	TaskCount   *ValueSummary `json:"task_count"`
	StackHWM    *ValueSummary `json:"stack_hwm"`
}

// FleetSummary provides aggregated health information for every device
type FleetSummary struct {
	GeneratedAt   time.Time       `json:"generated_at"`
	TotalDevices  int             `json:"total_devices"`
	TotalReadings int             `json:"total_readings"`
	Devices       []DeviceSummary `json:"devices"`
}

// DeviceExport is the full history of one device
type DeviceExport struct {
	DeviceID   string            `json:"device_id"`
	ExportedAt time.Time         `json:"exported_at"`
	Readings   []storage.Reading `json:"readings"`
}

// GetFleetSummary returns JSON with per-device statistics over every
// stored reading
func GetFleetSummary(ctx context.Context, admin AdminInterface, now time.Time) (string, error) {
	devices, err := admin.ListDeviceIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list devices: %w", err)
	}

	summary := FleetSummary{
		GeneratedAt: now.UTC(),
		Devices:     []DeviceSummary{},
	}

	for _, deviceID := range devices {
		readings, err := admin.QueryByDevice(ctx, deviceID, storage.Page{})
		if err != nil {
			return "", fmt.Errorf("failed to read device %s: %w", deviceID, err)
		}
		if len(readings) == 0 {
			continue
		}

		summary.Devices = append(summary.Devices, generateDeviceSummary(deviceID, readings))
		summary.TotalReadings += len(readings)
	}
	summary.TotalDevices = len(summary.Devices)

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	return string(data), nil
}

// ExportDevice returns every reading of one device as JSON
func ExportDevice(ctx context.Context, admin AdminInterface, deviceID string, now time.Time) (string, error) {
	readings, err := admin.QueryByDevice(ctx, deviceID, storage.Page{})
	if err != nil {
		return "", fmt.Errorf("failed to read device %s: %w", deviceID, err)
	}
	if len(readings) == 0 {
		return "", fmt.Errorf("no readings stored for device %s", deviceID)
	}

	data, err := json.MarshalIndent(DeviceExport{
		DeviceID:   deviceID,
		ExportedAt: now.UTC(),
		Readings:   readings,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal export: %w", err)
	}
	return string(data), nil
}

// generateDeviceSummary expects readings ordered oldest first
func generateDeviceSummary(deviceID string, readings []storage.Reading) DeviceSummary {
	cpu := make([]float64, len(readings))
	heap := make([]float64, len(readings))
	minHeap := make([]float64, len(readings))
	tasks := make([]float64, len(readings))
	stack := make([]float64, len(readings))

	for i, r := range readings {
		cpu[i] = r.CPUUsage
		heap[i] = float64(r.HeapFree)
		minHeap[i] = float64(r.MinHeapFree)
		tasks[i] = float64(r.TaskCount)
		stack[i] = float64(r.StackHWM)
	}

	return DeviceSummary{
		DeviceID:    deviceID,
		Readings:    len(readings),
		FirstSeen:   readings[0].Timestamp.UTC(),
		LastSeen:    readings[len(readings)-1].Timestamp.UTC(),
		CPUUsage:    calculateValueSummary(cpu),
		HeapFree:    calculateValueSummary(heap),
		MinHeapFree: calculateValueSummary(minHeap),
		TaskCount:   calculateValueSummary(tasks),
		StackHWM:    calculateValueSummary(stack),
	}
}

// calculateValueSummary computes min, max, and average for a slice of values
func calculateValueSummary(values []float64) *ValueSummary {
	if len(values) == 0 {
		return nil
	}

	min := values[0]
	max := values[0]
	sum := 0.0

	for _, val := range values {
		if val < min {
			min = val
		}
		if val > max {
			max = val
		}
		sum += val
	}

	return &ValueSummary{
		Count: len(values),
		Min:   min,
		Max:   max,
		Avg:   sum / float64(len(values)),
	}
}
