package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"wrpl-inspect/pkg/wrpl"
)

func init() {
	Register("stats", NewStatsHandler)
}

// StatsKey holds the per-type packet counts of the run as map[string]int.
const StatsKey = "stats.types"

// StatsHandler counts packets per type and writes a table at the end.
type StatsHandler struct {
	out    io.Writer
	counts map[string]int
	bytes  map[string]int
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(_ json.RawMessage, env Env) (Handler, error) {
	return &StatsHandler{out: env.Out}, nil
}

// Name returns the handler name.
func (h *StatsHandler) Name() string { return "stats" }

// OnBegin resets the counters.
func (h *StatsHandler) OnBegin(ctx *Context) Result {
	h.counts = make(map[string]int)
	h.bytes = make(map[string]int)
	ctx.Set(StatsKey, h.counts)
	return Result{Action: Continue}
}

// OnPacket counts the packet.
func (h *StatsHandler) OnPacket(ctx *Context, rec *wrpl.Record) Result {
	name := "(no header)"
	if rec.HasHeader {
		name = rec.Header.Type.String()
	}
	h.counts[name]++
	h.bytes[name] += rec.FrameSize
	return Result{Action: Continue}
}

// OnNote does nothing.
func (h *StatsHandler) OnNote(ctx *Context, n wrpl.Note) {}

// OnEnd writes the table, sorted by type name.
func (h *StatsHandler) OnEnd(ctx *Context, sum wrpl.Summary) Result {
	names := make([]string, 0, len(h.counts))
	for name := range h.counts {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.WriteString("\n== Packets by type ==\n")
	for _, name := range names {
		fmt.Fprintf(buf, "%-20s %8d packets %10d bytes\n", name, h.counts[name], h.bytes[name])
	}
	if _, err := h.out.Write(buf.Bytes()); err != nil {
		return Result{Action: Continue, Error: err}
	}
	return Result{Action: Continue}
}
