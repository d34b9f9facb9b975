// Package core holds the request semantics of the monitor: validation and
// conversion of incoming readings and the three read views. Handlers in
// internal/handlers only translate between HTTP and a Response.
package core

import (
	"context"
	"net/http"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/config"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/metrics"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/publish"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/storage"
)

// Store is the persistence the service needs. *storage.Manager satisfies it.
type Store interface {
	Insert(ctx context.Context, reading storage.Reading) (storage.Reading, error)
	QueryByDevice(ctx context.Context, deviceID string, page storage.Page) ([]storage.Reading, error)
	QueryLatestPerDevice(ctx context.Context) ([]storage.Reading, error)
	ListDeviceIDs(ctx context.Context) ([]string, error)
}

// Response is a status code and a JSON-encodable body.
type Response struct {
	Status int
	Body   interface{}
}

// Message is the body of every non-list response.
type Message struct {
	Message string                `json:"message"`
	Error   string                `json:"error,omitempty"`
	Logs    []config.CollectedLog `json:"logs,omitempty"`
}

// Response messages
const (
	MsgNotJSON        = "Request must be JSON"
	MsgMissingFields  = "Missing required fields"
	MsgSaved          = "Data received and saved successfully"
	MsgSaveFailed     = "Error saving data"
	MsgReadFailed     = "Error reading data"
	MsgNoDeviceData   = "No data found for this device"
	MsgNoData         = "No data found"
	MsgNoFirmware     = "Firmware not found for OTA update."
	MsgBadPagination  = "Invalid pagination parameters"
	MsgRouteNotFound  = "Not found"
	MsgMethodNotAllow = "Method not allowed"
)

// Service implements ingestion and queries on top of a Store.
type Service struct {
	store      Store
	publishers publish.Set
	logger     *config.Logger
	metrics    *metrics.Collectors
}

// Option configures a Service.
type Option func(*Service)

// WithPublishers sets the publishers told about every stored reading.
func WithPublishers(set publish.Set) Option {
	return func(s *Service) { s.publishers = set }
}

// WithLogger sets the log sink.
func WithLogger(logger *config.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(c *metrics.Collectors) Option {
	return func(s *Service) { s.metrics = c }
}

// NewService returns a Service over store. Without WithLogger it logs to
// the process-wide logger.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: config.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func message(status int, msg string) Response {
	return Response{Status: status, Body: Message{Message: msg}}
}

func failure(msg string, err error) Response {
	return Response{
		Status: http.StatusInternalServerError,
		Body:   Message{Message: msg, Error: err.Error()},
	}
}
