package metrics

import "sync"

// RollingMetric implements a circular buffer for calculating rolling averages
type RollingMetric struct {
	mu    sync.Mutex
	data  []float64
	index int
	count int
}

// Add a value to an existing data array and return the rolling average.
// Until the buffer fills, the average covers only the values seen so far.
func (rm *RollingMetric) Add(value float64) float64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	dataLength := len(rm.data)

	// simple index wrap-around technique
	if rm.index >= dataLength {
		rm.index = 0
	}
	rm.data[rm.index] = value
	rm.index++
	if rm.count < dataLength {
		rm.count++
	}

	var total float64
	for i := 0; i < rm.count; i++ {
		total += rm.data[i]
	}

	return total / float64(rm.count)
}

// NewRollingMetric creates a new rolling metric with the specified size.
// Sizes below one are raised to one.
func NewRollingMetric(size int) *RollingMetric {
	if size < 1 {
		size = 1
	}
	return &RollingMetric{
		data: make([]float64, size),
	}
}
