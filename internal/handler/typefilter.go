package handler

import (
	"encoding/json"
	"fmt"

	"wrpl-inspect/pkg/wrpl"
)

func init() {
	Register("typefilter", NewTypeFilterHandler)
}

// TypeFilterConfig configures the typefilter handler.
type TypeFilterConfig struct {
	Types   []string `json:"types"`
	Exclude bool     `json:"exclude"` // drop the listed types instead
}

// TypeFilterHandler hides records from the handlers after it, by packet
// type. Records without a header never match a type.
type TypeFilterHandler struct {
	types   map[wrpl.PacketType]bool
	exclude bool
}

// FilteredKey counts the records a typefilter dropped in the run context.
const FilteredKey = "typefilter.dropped"

// NewTypeFilterHandler creates a new typefilter handler.
func NewTypeFilterHandler(raw json.RawMessage, _ Env) (Handler, error) {
	var cfg TypeFilterConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	h := &TypeFilterHandler{types: make(map[wrpl.PacketType]bool), exclude: cfg.Exclude}
	for _, name := range cfg.Types {
		t, ok := wrpl.ParsePacketType(name)
		if !ok {
			return nil, fmt.Errorf("unknown packet type %q", name)
		}
		h.types[t] = true
	}
	return h, nil
}

// Name returns the handler name.
func (h *TypeFilterHandler) Name() string { return "typefilter" }

// OnBegin does nothing.
func (h *TypeFilterHandler) OnBegin(ctx *Context) Result { return Result{Action: Continue} }

// OnPacket drops records that are not selected.
func (h *TypeFilterHandler) OnPacket(ctx *Context, rec *wrpl.Record) Result {
	match := rec.HasHeader && h.types[rec.Header.Type]
	if match != h.exclude {
		return Result{Action: Continue}
	}
	ctx.Set(FilteredKey, ctx.GetInt(FilteredKey)+1)
	return Result{Action: Drop}
}

// OnNote does nothing.
func (h *TypeFilterHandler) OnNote(ctx *Context, n wrpl.Note) {}

// OnEnd does nothing.
func (h *TypeFilterHandler) OnEnd(ctx *Context, sum wrpl.Summary) Result {
	return Result{Action: Continue}
}
