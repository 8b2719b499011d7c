package handler

import (
	"encoding/json"
	"time"

	"wrpl-inspect/internal/metrics"
	"wrpl-inspect/pkg/wrpl"
)

func init() {
	Register("metrics", NewMetricsHandler)
}

// MetricsHandler feeds the Prometheus collectors.
type MetricsHandler struct {
	m       *metrics.Metrics
	started time.Time
}

// NewMetricsHandler creates a new metrics handler. It uses env.Metrics, or
// the process-wide collectors when env has none.
func NewMetricsHandler(_ json.RawMessage, env Env) (Handler, error) {
	m := env.Metrics
	if m == nil {
		m = metrics.Default()
	}
	return &MetricsHandler{m: m}, nil
}

// Name returns the handler name.
func (h *MetricsHandler) Name() string { return "metrics" }

// OnBegin starts the run clock.
func (h *MetricsHandler) OnBegin(ctx *Context) Result {
	h.started = time.Now()
	return Result{Action: Continue}
}

// OnPacket counts the packet.
func (h *MetricsHandler) OnPacket(ctx *Context, rec *wrpl.Record) Result {
	typ := "none"
	if rec.HasHeader {
		typ = rec.Header.Type.String()
		if !rec.Header.Type.Known() {
			typ = "unknown"
		}
	}
	h.m.ObservePacket(typ, rec.FrameSize)
	return Result{Action: Continue}
}

// OnNote counts the note.
func (h *MetricsHandler) OnNote(ctx *Context, n wrpl.Note) {
	h.m.ObserveNote(n.Kind.String())
}

// OnEnd records the run.
func (h *MetricsHandler) OnEnd(ctx *Context, sum wrpl.Summary) Result {
	h.m.ObserveRun(sum.Stop.String(), sum.DecompressedBytes, sum.Skipped, time.Since(h.started))
	return Result{Action: Continue}
}
