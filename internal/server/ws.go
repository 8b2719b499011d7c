package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wrpl-inspect/internal/handler"
	"wrpl-inspect/internal/inspect"
	"wrpl-inspect/internal/source"
	"wrpl-inspect/pkg/wrpl"
)

const writeWait = 10 * time.Second

// Hello is the first message of a websocket parse session.
type Hello struct {
	Event string `json:"event"`
	RunID string `json:"run_id"`
}

// ErrorMessage ends a websocket session that could not run.
type ErrorMessage struct {
	Event string `json:"event"`
	Error string `json:"error"`
}

// handleParseWS streams the diagnostics of one replay: the client sends the
// file as its first binary message and receives one JSON event per record.
func (s *Server) handleParseWS(w http.ResponseWriter, r *http.Request) {
	pc, raw, _, err := s.parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	runID := uuid.NewString()
	if err := s.writeJSON(conn, Hello{Event: "hello", RunID: runID}); err != nil {
		return
	}

	conn.SetReadLimit(s.cfg.Server.MaxBodyBytes)
	kind, data, err := conn.ReadMessage()
	if err != nil {
		s.log.Debug().Err(err).Str("run", runID).Msg("websocket read")
		return
	}
	if kind != websocket.BinaryMessage {
		s.closeWith(conn, websocket.CloseUnsupportedData, "expected a binary message")
		return
	}

	stream := &wsHandler{s: s, conn: conn}
	metricsSink, err := handler.NewMetricsHandler(nil, handler.Env{Metrics: s.metrics})
	if err != nil {
		s.closeWith(conn, websocket.CloseInternalServerErr, err.Error())
		return
	}
	chain := handler.NewChain(stream, metricsSink)

	_, err = inspect.Run(r.Context(), data, chain, inspect.Options{Parse: pc, Raw: raw, RunID: runID, Logger: s.log})
	var inflateErr *wrpl.InflateError
	switch {
	case errors.Is(err, source.ErrNotFound):
		_ = s.writeJSON(conn, ErrorMessage{Event: "error", Error: err.Error()})
		s.closeWith(conn, websocket.CloseInvalidFramePayloadData, "zlib stream not found")
		return
	case err != nil && !errors.As(err, &inflateErr):
		_ = s.writeJSON(conn, ErrorMessage{Event: "error", Error: err.Error()})
		s.closeWith(conn, websocket.CloseInternalServerErr, "parse failed")
		return
	}
	s.closeWith(conn, websocket.CloseNormalClosure, "")
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (s *Server) closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// wsHandler writes every diagnostic to the websocket as a JSON event.
type wsHandler struct {
	s    *Server
	conn *websocket.Conn
	err  error
}

func (h *wsHandler) Name() string { return "websocket" }

func (h *wsHandler) OnBegin(ctx *handler.Context) handler.Result {
	return handler.Result{Action: handler.Continue}
}

func (h *wsHandler) OnPacket(ctx *handler.Context, rec *wrpl.Record) handler.Result {
	if err := h.s.writeJSON(h.conn, handler.NewPacketEvent(rec)); err != nil {
		// the client went away; stop the run
		return handler.Result{Action: handler.Continue, Error: err}
	}
	return handler.Result{Action: handler.Continue}
}

func (h *wsHandler) OnNote(ctx *handler.Context, n wrpl.Note) {
	if h.err == nil {
		h.err = h.s.writeJSON(h.conn, handler.NewNoteEvent(n))
	}
}

func (h *wsHandler) OnEnd(ctx *handler.Context, sum wrpl.Summary) handler.Result {
	if h.err != nil {
		return handler.Result{Action: handler.Continue, Error: h.err}
	}
	if err := h.s.writeJSON(h.conn, handler.NewSummaryEvent(sum)); err != nil {
		return handler.Result{Action: handler.Continue, Error: err}
	}
	return handler.Result{Action: handler.Continue}
}
