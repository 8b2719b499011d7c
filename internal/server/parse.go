package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"wrpl-inspect/internal/config"
	"wrpl-inspect/internal/handler"
	"wrpl-inspect/internal/inspect"
	"wrpl-inspect/internal/source"
	"wrpl-inspect/pkg/wrpl"
)

// RunIDHeader carries the id of the parse run.
const RunIDHeader = "X-Run-ID"

// StopHeader carries the stop reason of the parse run.
const StopHeader = "X-Parse-Stop"

var contentTypes = map[string]string{
	"text":  "text/plain; charset=utf-8",
	"jsonl": "application/x-ndjson",
}

// handleParse parses the request body and answers with the diagnostic
// stream. ?raw=1 marks the body as a bare zlib stream, ?format selects
// text (default) or jsonl, ?locate and ?skip override the [parse] section.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	pc, raw, format, err := s.parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}

	runID := uuid.NewString()
	var out bytes.Buffer
	chain, err := handler.BuildChain([]handler.HandlerConfig{{Type: format}, {Type: "metrics"}},
		handler.Env{Out: &out, Logger: s.log, Metrics: s.metrics})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	res, err := inspect.Run(r.Context(), data, chain, inspect.Options{Parse: pc, Raw: raw, RunID: runID, Logger: s.log})
	w.Header().Set(RunIDHeader, runID)
	if errors.Is(err, source.ErrNotFound) {
		http.Error(w, "zlib stream not found in body", http.StatusUnprocessableEntity)
		return
	}

	status := http.StatusOK
	var inflateErr *wrpl.InflateError
	switch {
	case errors.As(err, &inflateErr):
		status = http.StatusUnprocessableEntity
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	case chain.Err() != nil:
		http.Error(w, chain.Err().Error(), http.StatusInternalServerError)
		return
	case pc.Strict && !res.Summary.Stop.Clean():
		status = http.StatusUnprocessableEntity
	}

	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set(StopHeader, res.Summary.Stop.String())
	w.WriteHeader(status)
	_, _ = w.Write(out.Bytes())
}

// parseQuery applies the query overrides to the [parse] section.
func (s *Server) parseQuery(r *http.Request) (pc config.ParseConfig, raw bool, format string, err error) {
	q := r.URL.Query()
	pc = s.cfg.Parse
	raw = q.Get("raw") == "1" || q.Get("raw") == "true"

	format = q.Get("format")
	if format == "" {
		format = "text"
	}
	if _, ok := contentTypes[format]; !ok {
		return pc, false, "", fmt.Errorf("unsupported format %q", format)
	}
	if v := q.Get("locate"); v != "" {
		if _, err := source.ParseStrategy(v); err != nil {
			return pc, false, "", err
		}
		pc.Locate = v
	}
	if q.Get("skip") == "1" {
		pc.SkipBadPackets = true
	}
	if q.Get("strict") == "1" {
		pc.Strict = true
	}
	return pc, raw, format, nil
}
