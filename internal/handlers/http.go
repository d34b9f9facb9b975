package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/config"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/core"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/metrics"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/storage"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
)

// RequestIDHeader carries the correlation id in and out
const RequestIDHeader = "X-Request-ID"

// Service defines what the handlers need from the core service
type Service interface {
	Ingest(ctx context.Context, contentType string, body []byte) core.Response
	GetByDevice(ctx context.Context, deviceID string, page storage.Page) core.Response
	GetLatestAll(ctx context.Context) core.Response
	ListDevices(ctx context.Context) core.Response
}

// RouterConfig holds everything NewRouter wires together
type RouterConfig struct {
	Service      Service
	Metrics      *metrics.Collectors
	Logger       *config.Logger
	WebRoot      string
	FirmwarePath string
}

// NewRouter builds the HTTP surface of the monitor. Responses are gzip
// compressed for clients that accept it.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = config.Default()
	}

	// device ids may contain an encoded slash
	r := mux.NewRouter().UseEncodedPath()
	r.Use(CorrelationMiddleware(cfg.Logger))
	r.Use(cfg.Metrics.Middleware)

	r.HandleFunc("/", IndexHandler(cfg.WebRoot)).Methods("GET")
	r.HandleFunc("/api/data", IngestHandler(cfg.Service)).Methods("POST")
	r.HandleFunc("/api/data/{device_id}", DeviceDataHandler(cfg.Service)).Methods("GET")
	r.HandleFunc("/api/latest_data", LatestDataHandler(cfg.Service)).Methods("GET")
	r.HandleFunc("/api/devices", DevicesHandler(cfg.Service)).Methods("GET")
	r.HandleFunc("/ota", FirmwareHandler(cfg.FirmwarePath)).Methods("GET")
	r.HandleFunc("/status", StatusHandler()).Methods("GET")
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods("GET")
	}

	// mux skips r.Use middleware for these two
	unmatched := func(status int, msg string) http.Handler {
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, status, core.Message{Message: msg})
		})
		return CorrelationMiddleware(cfg.Logger)(cfg.Metrics.Middleware(h))
	}
	r.NotFoundHandler = unmatched(http.StatusNotFound, core.MsgRouteNotFound)
	r.MethodNotAllowedHandler = unmatched(http.StatusMethodNotAllowed, core.MsgMethodNotAllow)

	return gzhttp.GzipHandler(r)
}

// CorrelationMiddleware stamps each request context with a correlation id.
// A client supplied X-Request-ID becomes part of the id.
func CorrelationMiddleware(logger *config.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := r.Header.Get(RequestIDHeader)
			if value == "" {
				value = "http"
			}

			ctx := config.SetContextCorrelationId(r.Context(), value)
			w.Header().Set(RequestIDHeader, config.GetContextCorrelationId(ctx))

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.Debug(ctx, fmt.Sprintf("%s %s in %s", r.Method, r.URL.Path, time.Since(start)))
		})
	}
}

// IngestHandler accepts one reading per POST. With ?debug_logs=1 a
// rejected or failed ingest also returns the log lines it produced.
func IngestHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, core.Message{Message: core.MsgNotJSON})
			return
		}

		ctx := r.Context()
		collect := r.URL.Query().Get("debug_logs") == "1"
		if collect {
			ctx = config.EnableLogCollection(ctx)
		}

		resp := svc.Ingest(ctx, r.Header.Get("Content-Type"), body)
		if msg, ok := resp.Body.(core.Message); ok && collect && resp.Status != http.StatusOK {
			msg.Logs = config.CollectedLogs(ctx)
			resp.Body = msg
		}
		writeResponse(w, resp)
	}
}

// DeviceDataHandler returns every reading of the device in the path,
// optionally paged with ?limit=&offset=
func DeviceDataHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := parsePage(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, core.Message{Message: core.MsgBadPagination, Error: err.Error()})
			return
		}

		deviceID := mux.Vars(r)["device_id"]
		if unescaped, err := url.PathUnescape(deviceID); err == nil {
			deviceID = unescaped
		}

		writeResponse(w, svc.GetByDevice(r.Context(), deviceID, page))
	}
}

// LatestDataHandler returns the latest reading of every device
func LatestDataHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, svc.GetLatestAll(r.Context()))
	}
}

// DevicesHandler returns the known device ids
func DevicesHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, svc.ListDevices(r.Context()))
	}
}

// StatusHandler returns a simple UP status endpoint
func StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "UP\n")
	}
}

// parsePage reads limit and offset. Both are optional non-negative
// integers; a zero limit means no limit.
func parsePage(r *http.Request) (storage.Page, error) {
	var page storage.Page
	q := r.URL.Query()

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &page.Limit},
		{"offset", &page.Offset},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return storage.Page{}, fmt.Errorf("%s must be a non-negative integer, got %q", p.name, raw)
		}
		*p.dst = v
	}

	return page, nil
}

func writeResponse(w http.ResponseWriter, resp core.Response) {
	writeJSON(w, resp.Status, resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
