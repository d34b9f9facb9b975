package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "health_monitor"

// Ingestion outcomes recorded by ReadingIngested
const (
	OutcomeSaved    = "saved"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Collectors holds the Prometheus metrics of one service instance. Each
// instance owns its registry so tests and embedded servers never collide
// on the global default registry. A nil *Collectors records nothing.
type Collectors struct {
	registry *prometheus.Registry

	totalRequests   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	activeRequests  *prometheus.GaugeVec

	readingsIngested  *prometheus.CounterVec
	readingsPublished *prometheus.CounterVec
	rollingCPU        prometheus.Gauge
	devicesKnown      prometheus.Gauge
	latestReadingAge  *prometheus.GaugeVec

	cpu *RollingMetric
}

// New creates and registers the service metrics. window is the number of
// readings averaged by the rolling cpu gauge.
func New(window int) *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),

		totalRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		activeRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_active",
				Help:      "Number of active HTTP requests",
			},
			[]string{"method", "route"},
		),
		readingsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "readings_ingested_total",
				Help:      "Ingestion attempts by outcome",
			},
			[]string{"outcome"},
		),
		readingsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "readings_published_total",
				Help:      "Reading publications by publisher and outcome",
			},
			[]string{"publisher", "outcome"},
		),
		rollingCPU: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cpu_usage_rolling_average",
				Help:      "Rolling average of reported cpu_usage across recent readings",
			},
		),
		devicesKnown: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "devices_known",
				Help:      "Number of devices with stored readings",
			},
		),
		latestReadingAge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "latest_reading_age_seconds",
				Help:      "Seconds since the latest reading of each device",
			},
			[]string{"device_id"},
		),

		cpu: NewRollingMetric(window),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.totalRequests,
		c.requestDuration,
		c.activeRequests,
		c.readingsIngested,
		c.readingsPublished,
		c.rollingCPU,
		c.devicesKnown,
		c.latestReadingAge,
	)

	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts, durations and in-flight requests,
// labelled by the matched mux route template rather than the raw path so
// device ids do not explode label cardinality.
func (c *Collectors) Middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := routeLabel(r)

		c.activeRequests.WithLabelValues(r.Method, route).Inc()

		rw := &responseWriter{w, http.StatusOK}

		next.ServeHTTP(rw, r)

		c.activeRequests.WithLabelValues(r.Method, route).Dec()

		duration := time.Since(start).Seconds()
		c.requestDuration.WithLabelValues(r.Method, route).Observe(duration)
		c.totalRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
	})
}

// ReadingIngested counts one ingestion attempt.
func (c *Collectors) ReadingIngested(outcome string) {
	if c == nil {
		return
	}
	c.readingsIngested.WithLabelValues(outcome).Inc()
}

// ReadingPublished counts one publication attempt.
func (c *Collectors) ReadingPublished(publisher string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.readingsPublished.WithLabelValues(publisher, outcome).Inc()
}

// ObserveCPU feeds a reported cpu_usage into the rolling average gauge
// and returns the new average.
func (c *Collectors) ObserveCPU(value float64) float64 {
	if c == nil {
		return 0
	}
	avg := c.cpu.Add(value)
	c.rollingCPU.Set(avg)
	return avg
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
