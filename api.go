package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/config"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/core"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/handlers"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/metrics"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/publish"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/storage"
)

// Monitor is the public interface for the health monitoring service
type Monitor struct {
	manager    *storage.Manager
	publishers publish.Set
	metrics    *metrics.Collectors
	sampler    *metrics.FleetSampler
	logger     *config.Logger
	handler    http.Handler

	// closing ends the background jobs; backups is closed once the
	// backup loop has returned.
	closing context.Context
	stop    context.CancelFunc
	backups chan struct{}
}

type options struct {
	configFile string
	backend    storage.Backend
	publishers publish.Set
	logger     *config.Logger
	storeOpts  []storage.Option
}

// Option configures New.
type Option func(*options)

// WithConfigFile reads MONITOR_* settings from a YAML file before
// anything is built. Environment variables still win over the file.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithBackend uses backend instead of the one described by configuration.
// The Monitor takes ownership and closes it.
func WithBackend(backend storage.Backend) Option {
	return func(o *options) { o.backend = backend }
}

// WithPublishers replaces the configured publishers. An empty set
// disables publication.
func WithPublishers(set publish.Set) Option {
	return func(o *options) {
		if set == nil {
			set = publish.Set{}
		}
		o.publishers = set
	}
}

// WithLogger sets the log sink for the whole service.
func WithLogger(logger *config.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStorageOptions passes options to the storage manager.
func WithStorageOptions(opts ...storage.Option) Option {
	return func(o *options) { o.storeOpts = append(o.storeOpts, opts...) }
}

// New creates a Monitor from configuration and opts.
func New(ctx context.Context, opts ...Option) (*Monitor, error) {
	o := options{logger: config.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.configFile != "" {
		if err := config.LoadFile(o.configFile); err != nil {
			return nil, err
		}
	}

	storeOpts := append([]storage.Option{storage.WithLogger(o.logger)}, o.storeOpts...)

	var manager *storage.Manager
	if o.backend != nil {
		manager = storage.NewManager(o.backend, storeOpts...)
	} else {
		var err error
		if manager, err = storage.NewManagerFromConfig(storeOpts...); err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
	}

	publishers := o.publishers
	if publishers == nil {
		var err error
		if publishers, err = publish.FromConfig(ctx); err != nil {
			manager.Close()
			return nil, fmt.Errorf("failed to initialize publishers: %w", err)
		}
	}

	c := metrics.New(config.IntValue("MONITOR_ROLLING_WINDOW"))
	service := core.NewService(manager,
		core.WithPublishers(publishers),
		core.WithLogger(o.logger),
		core.WithMetrics(c),
	)

	closing, stop := context.WithCancel(context.Background())
	m := &Monitor{
		closing:    closing,
		stop:       stop,
		manager:    manager,
		publishers: publishers,
		metrics:    c,
		sampler:    metrics.NewFleetSampler(manager, c, o.logger),
		logger:     o.logger,
		handler: handlers.NewRouter(handlers.RouterConfig{
			Service:      service,
			Metrics:      c,
			Logger:       o.logger,
			WebRoot:      config.StringValue("MONITOR_WEB_ROOT"),
			FirmwarePath: config.StringValue("MONITOR_FIRMWARE_PATH"),
		}),
	}
	return m, nil
}

// Handler returns the HTTP handler serving every endpoint
func (m *Monitor) Handler() http.Handler {
	return m.handler
}

// Start runs the background jobs, scheduled backups and fleet gauges,
// until ctx is done or Close is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	context.AfterFunc(m.closing, cancel)

	m.backups = make(chan struct{})
	go func() {
		defer close(m.backups)
		m.manager.RunBackups(config.AppendToContextCorrelationId(ctx, "backup"))
	}()
	m.sampler.Start()
}

// Storage exposes the storage manager for administrative tasks
func (m *Monitor) Storage() *storage.Manager {
	return m.manager
}

// Close stops the background jobs and releases the publishers and the
// storage backend. A running backup finishes before the database closes.
func (m *Monitor) Close() error {
	m.stop()
	m.sampler.Stop()
	if m.backups != nil {
		<-m.backups
	}
	return errors.Join(m.publishers.Close(), m.manager.Close())
}
