package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backend defines the interface for all storage implementations.
// Insert is the only mutating operation; readers never observe a
// partially written reading.
type Backend interface {
	Insert(ctx context.Context, reading Reading) (int64, error)
	QueryByDevice(ctx context.Context, deviceID string, page Page) ([]Reading, error)
	QueryLatestPerDevice(ctx context.Context) ([]Reading, error)
	ListDeviceIDs(ctx context.Context) ([]string, error)
	Close() error
}

// Reading is one telemetry sample from one device. ID is assigned by the
// backend on insert and is ignored on input.
type Reading struct {
	ID          int64     `json:"id"`
	DeviceID    string    `json:"device_id"`
	Timestamp   time.Time `json:"timestamp"`
	CPUUsage    float64   `json:"cpu_usage"`
	HeapFree    int64     `json:"heap_free"`
	MinHeapFree int64     `json:"min_heap_free"`
	TaskCount   int64     `json:"task_count"`
	StackHWM    int64     `json:"stack_hwm"`
}

// Page bounds a QueryByDevice result. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("storage backend is closed")

// ErrConstraint marks a reading the schema refuses, such as an empty
// device id.
var ErrConstraint = errors.New("constraint violation")

// StorageError is the single error kind surfaced by the persistence
// layer. Op names the failing operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// wrapError converts err into a *StorageError unless it already is one.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// latestOf reports whether candidate supersedes current as the latest
// reading of a device: greater timestamp, or equal timestamp and higher id.
func latestOf(candidate, current Reading) bool {
	if candidate.Timestamp.Equal(current.Timestamp) {
		return candidate.ID > current.ID
	}
	return candidate.Timestamp.After(current.Timestamp)
}
