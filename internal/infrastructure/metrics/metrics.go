package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all pipeline-level Prometheus collectors.
//
// A single instance is created at start-up and shared by the dispatcher,
// event sources, command destinations, and the batch manager. All
// collectors are safe for concurrent use.
type Metrics struct {
	// Inbound side
	EventsReceived *prometheus.CounterVec
	DecodeErrors   *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec
	QueueDepth     prometheus.Gauge
	QueueCapacity  prometheus.Gauge
	WorkersBusy    prometheus.Gauge
	EventsHandled  *prometheus.CounterVec

	// Outbound side
	CommandsSent  *prometheus.CounterVec
	BatchElements *prometheus.CounterVec
}

// New creates a Metrics instance with all pipeline collectors.
func New() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldcomm",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Decoded canonical events received per source",
			},
			[]string{"source"},
		),
		DecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldcomm",
				Subsystem: "events",
				Name:      "decode_errors_total",
				Help:      "Malformed payloads dropped per source",
			},
			[]string{"source"},
		),
		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldcomm",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Events discarded during shutdown drain, per source",
			},
			[]string{"source"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fieldcomm",
				Subsystem: "dispatcher",
				Name:      "queue_depth",
				Help:      "Events currently waiting in the inbound queue",
			},
		),
		QueueCapacity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fieldcomm",
				Subsystem: "dispatcher",
				Name:      "queue_capacity",
				Help:      "Configured inbound queue capacity",
			},
		),
		WorkersBusy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fieldcomm",
				Subsystem: "dispatcher",
				Name:      "workers_busy",
				Help:      "Dispatcher workers currently processing an event",
			},
		),
		EventsHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldcomm",
				Subsystem: "dispatcher",
				Name:      "events_handled_total",
				Help:      "Events forwarded into the processing chain, by outcome",
			},
			[]string{"status"},
		),
		CommandsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldcomm",
				Subsystem: "commands",
				Name:      "sent_total",
				Help:      "Commands delivered per destination, by outcome",
			},
			[]string{"destination", "status"},
		),
		BatchElements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldcomm",
				Subsystem: "batch",
				Name:      "elements_total",
				Help:      "Batch operation elements processed, by terminal status",
			},
			[]string{"status"},
		),
	}
}

// Register registers every collector with a Prometheus registry.
//
// Returns:
//   - error: If any collector is already registered
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.EventsReceived,
		m.DecodeErrors,
		m.EventsDropped,
		m.QueueDepth,
		m.QueueCapacity,
		m.WorkersBusy,
		m.EventsHandled,
		m.CommandsSent,
		m.BatchElements,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("registering collector: %w", err)
		}
	}
	return nil
}

// Server exposes a Prometheus registry over HTTP.
type Server struct {
	srv *http.Server
}

// NewServer creates an exposition server for the given registry.
//
// Parameters:
//   - addr: Listen address (host:port)
//   - reg: Registry holding the pipeline collectors
func NewServer(addr string, reg *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start begins serving in the calling goroutine. It returns
// http.ErrServerClosed after a graceful Shutdown.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops the exposition server gracefully.
func (s *Server) Shutdown() error {
	return s.srv.Close()
}
