package handler

import (
	"encoding/json"

	"wrpl-inspect/pkg/wrpl"
)

func init() {
	Register("jsonl", NewJSONLHandler)
}

// JSONLConfig configures the jsonl handler.
type JSONLConfig struct {
	Notes *bool `json:"notes"` // write note events, default on
}

// JSONLHandler writes one JSON object per line: packets, notes and the
// final summary.
type JSONLHandler struct {
	enc   *json.Encoder
	notes bool
	err   error
}

// NewJSONLHandler creates a new jsonl handler writing to env.Out.
func NewJSONLHandler(raw json.RawMessage, env Env) (Handler, error) {
	var cfg JSONLConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	return &JSONLHandler{
		enc:   json.NewEncoder(env.Out),
		notes: cfg.Notes == nil || *cfg.Notes,
	}, nil
}

// Name returns the handler name.
func (h *JSONLHandler) Name() string { return "jsonl" }

// OnBegin does nothing.
func (h *JSONLHandler) OnBegin(ctx *Context) Result { return Result{Action: Continue} }

// OnPacket writes a packet event.
func (h *JSONLHandler) OnPacket(ctx *Context, rec *wrpl.Record) Result {
	if err := h.enc.Encode(NewPacketEvent(rec)); err != nil {
		return Result{Action: Continue, Error: err}
	}
	return Result{Action: Continue}
}

// OnNote writes a note event.
func (h *JSONLHandler) OnNote(ctx *Context, n wrpl.Note) {
	if !h.notes || h.err != nil {
		return
	}
	h.err = h.enc.Encode(NewNoteEvent(n))
}

// OnEnd writes the summary event.
func (h *JSONLHandler) OnEnd(ctx *Context, sum wrpl.Summary) Result {
	if h.err != nil {
		return Result{Action: Continue, Error: h.err}
	}
	if err := h.enc.Encode(NewSummaryEvent(sum)); err != nil {
		return Result{Action: Continue, Error: err}
	}
	return Result{Action: Continue}
}
