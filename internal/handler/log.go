package handler

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"wrpl-inspect/pkg/wrpl"
)

func init() {
	Register("log", NewLogHandler)
}

// LogHandler logs each packet through the operational logger.
type LogHandler struct {
	log zerolog.Logger
}

// NewLogHandler creates a new log handler.
func NewLogHandler(_ json.RawMessage, env Env) (Handler, error) {
	return &LogHandler{log: env.Logger.With().Str("sink", "log").Logger()}, nil
}

// Name returns the handler name.
func (h *LogHandler) Name() string { return "log" }

// OnBegin logs the run id.
func (h *LogHandler) OnBegin(ctx *Context) Result {
	h.log.Info().Str("run", ctx.Run.ID).Msg("run started")
	return Result{Action: Continue}
}

// OnPacket logs the packet.
func (h *LogHandler) OnPacket(ctx *Context, rec *wrpl.Record) Result {
	ev := h.log.Info().
		Int("index", rec.Index).
		Int64("offset", rec.Offset).
		Int("size", rec.FrameSize)
	if rec.HasHeader {
		ev = ev.Str("type", rec.Header.Type.String()).Uint32("ts", rec.Header.Timestamp)
	}
	if cp, ok := rec.Body.(*wrpl.ChatPacket); ok {
		ev = ev.Str("sender", cp.Sender).Str("message", cp.Message)
	}
	ev.Msg("packet")
	return Result{Action: Continue}
}

// OnNote does nothing; the driver logs notes itself.
func (h *LogHandler) OnNote(ctx *Context, n wrpl.Note) {}

// OnEnd does nothing.
func (h *LogHandler) OnEnd(ctx *Context, sum wrpl.Summary) Result {
	return Result{Action: Continue}
}
