// Package metrics holds the Prometheus collectors shared by the metrics
// sink and the parse service.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wrpl"

// Metrics groups the collectors of one registry.
type Metrics struct {
	Registry prometheus.Gatherer

	packets      *prometheus.CounterVec
	packetBytes  *prometheus.HistogramVec
	notes        *prometheus.CounterVec
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	decompressed prometheus.Counter
	skipped      prometheus.Counter
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers a fresh set of collectors on reg. A nil reg gets its own
// registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		packets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "packets_total",
			Help:      "Packets decoded, by packet type.",
		}, []string{"type"}),
		packetBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "packet_size_bytes",
			Help:      "Frame size of decoded packets.",
			Buckets:   prometheus.ExponentialBuckets(4, 4, 8),
		}, []string{"type"}),
		notes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "notes_total",
			Help:      "Non-packet diagnostics, by kind.",
		}, []string{"kind"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "runs_total",
			Help:      "Finished parse runs, by stop reason.",
		}, []string{"stop"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "run_duration_seconds",
			Help:      "Wall time of parse runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		decompressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "decompressed_bytes_total",
			Help:      "Decompressed bytes consumed by parse runs.",
		}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "skipped_packets_total",
			Help:      "Packets that failed to decode and were passed through.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

var (
	defaultOnce sync.Once
	defaultSet  *Metrics
)

// Default returns the process-wide collectors. Their registry also carries
// the Go runtime and process collectors.
func Default() *Metrics {
	defaultOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		defaultSet = New(reg)
	})
	return defaultSet
}

func (m *Metrics) ObservePacket(typ string, size int) {
	m.packets.WithLabelValues(typ).Inc()
	m.packetBytes.WithLabelValues(typ).Observe(float64(size))
}

func (m *Metrics) ObserveNote(kind string) {
	m.notes.WithLabelValues(kind).Inc()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(stop string, decompressed uint64, skipped int, d time.Duration) {
	m.runs.WithLabelValues(stop).Inc()
	m.decompressed.Add(float64(decompressed))
	m.skipped.Add(float64(skipped))
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(route, method, statusLabel).Inc()
	m.httpDuration.WithLabelValues(route, method, statusLabel).Observe(d.Seconds())
}
