package server

import (
	"net/http"
	"time"

	"github.com/wesm/revenueos/internal/db"
	"github.com/wesm/revenueos/internal/ingest"
	"github.com/wesm/revenueos/internal/timeutil"
)

func (s *Server) handleListTraces(
	w http.ResponseWriter, r *http.Request,
) {
	limit, ok := parseIntParam(w, r, "limit")
	if !ok {
		return
	}
	from, ok := parseTimeBound(w, r, "from")
	if !ok {
		return
	}
	to, ok := parseTimeBound(w, r, "to")
	if !ok {
		return
	}

	traces, err := s.db.ListTraces(r.Context(), db.TraceFilter{
		AgentID: r.URL.Query().Get("agent"),
		From:    from,
		To:      to,
		Limit: clampLimit(
			limit, db.DefaultTraceLimit, db.MaxTraceLimit,
		),
	})
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeInternalError(w, "traces", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"traces": traces,
		"count":  len(traces),
	})
}

func (s *Server) handleInsertTrace(
	w http.ResponseWriter, r *http.Request,
) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	t, err := ingest.ParseTrace(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trace: "+err.Error())
		return
	}
	if t.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	if t.CreatedAt == "" {
		t.CreatedAt = timeutil.Format(time.Now())
	} else if _, ok := timeutil.Parse(t.CreatedAt); !ok {
		writeError(w, http.StatusBadRequest,
			"invalid created_at: use RFC3339")
		return
	}
	if err := s.db.InsertTrace(&t); err != nil {
		writeInternalError(w, "inserting trace", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}
