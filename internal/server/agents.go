package server

import (
	"errors"
	"net/http"

	"github.com/wesm/revenueos/internal/db"
	"github.com/wesm/revenueos/internal/ingest"
)

func (s *Server) handleListAgents(
	w http.ResponseWriter, r *http.Request,
) {
	agents, err := s.db.ListAgents(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeInternalError(w, "agents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": agents,
	})
}

func (s *Server) handleGetAgent(
	w http.ResponseWriter, r *http.Request,
) {
	a, err := s.db.GetAgent(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeInternalError(w, "agents", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpsertAgent(
	w http.ResponseWriter, r *http.Request,
) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	a, err := ingest.ParseAgent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent: "+err.Error())
		return
	}
	if a.ID == "" {
		writeError(w, http.StatusBadRequest, "agent id is required")
		return
	}
	if a.TasksCompleted < 0 || a.TasksAssigned < 0 {
		writeError(w, http.StatusBadRequest,
			"task counts must not be negative")
		return
	}
	if err := s.db.UpsertAgent(a); err != nil {
		writeInternalError(w, "upserting agent", err)
		return
	}
	stored, err := s.db.GetAgent(r.Context(), a.ID)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeInternalError(w, "agents", err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleDeleteAgent(
	w http.ResponseWriter, r *http.Request,
) {
	err := s.db.DeleteAgent(r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		writeInternalError(w, "deleting agent", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
