package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/config"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/storage"
)

// LatestSource is the part of the storage manager the sampler reads.
type LatestSource interface {
	QueryLatestPerDevice(ctx context.Context) ([]storage.Reading, error)
}

// FleetSampler periodically refreshes the fleet gauges from storage: the
// number of known devices and the age of each device's latest reading.
type FleetSampler struct {
	source     LatestSource
	collectors *Collectors
	interval   time.Duration
	now        func() time.Time
	logger     *config.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewFleetSampler creates a sampler using MONITOR_SAMPLE_INTERVAL
func NewFleetSampler(source LatestSource, c *Collectors, logger *config.Logger) *FleetSampler {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = config.SetContextCorrelationId(ctx, "fleet")

	return &FleetSampler{
		source:     source,
		collectors: c,
		interval:   config.DurationValue("MONITOR_SAMPLE_INTERVAL"),
		now:        time.Now,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// NewFleetSamplerWithInterval creates a sampler with custom interval
func NewFleetSamplerWithInterval(source LatestSource, c *Collectors, logger *config.Logger, interval time.Duration) *FleetSampler {
	sampler := NewFleetSampler(source, c, logger)
	sampler.interval = interval
	return sampler
}

// Start begins background sampling. A non-positive interval disables it.
func (fs *FleetSampler) Start() {
	if fs.interval <= 0 || fs.collectors == nil {
		return
	}

	go fs.sampleLoop()
}

// Stop ends background sampling
func (fs *FleetSampler) Stop() {
	fs.cancel()
}

func (fs *FleetSampler) sampleLoop() {
	ticker := time.NewTicker(fs.interval)
	defer ticker.Stop()

	// Sample immediately so the gauges are populated before the first tick
	fs.sample()

	for {
		select {
		case <-fs.ctx.Done():
			return
		case <-ticker.C:
			fs.sample()
		}
	}
}

func (fs *FleetSampler) sample() {
	if err := fs.CollectOnce(fs.ctx); err != nil && fs.ctx.Err() == nil {
		fs.logger.Warn(fs.ctx, fmt.Sprintf("fleet sample failed: %v", err))
	}
}

// CollectOnce performs a single sample (useful for testing)
func (fs *FleetSampler) CollectOnce(ctx context.Context) error {
	latest, err := fs.source.QueryLatestPerDevice(ctx)
	if err != nil {
		return err
	}

	now := fs.now()
	fs.collectors.devicesKnown.Set(float64(len(latest)))
	fs.collectors.latestReadingAge.Reset()
	for _, r := range latest {
		fs.collectors.latestReadingAge.WithLabelValues(r.DeviceID).Set(now.Sub(r.Timestamp).Seconds())
	}
	return nil
}
