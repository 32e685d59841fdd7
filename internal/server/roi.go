package server

import (
	"encoding/json"
	"net/http"

	"github.com/wesm/revenueos/internal/roi"
)

func (s *Server) handleROISummary(
	w http.ResponseWriter, r *http.Request,
) {
	sum, err := s.rollup.Summary(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeInternalError(w, "roi", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleROIAgent(
	w http.ResponseWriter, r *http.Request,
) {
	id := r.PathValue("id")
	m, ok, err := s.rollup.Agent(r.Context(), id)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeInternalError(w, "roi", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// paramsResponse shows both what was configured and what Compute
// uses after defaults are applied.
type paramsResponse struct {
	Configured roi.Params `json:"configured"`
	Effective  roi.Params `json:"effective"`
}

func (s *Server) handleGetParams(
	w http.ResponseWriter, _ *http.Request,
) {
	p := s.rollup.Params()
	writeJSON(w, http.StatusOK, paramsResponse{
		Configured: p,
		Effective:  p.WithDefaults(),
	})
}

func (s *Server) handlePutParams(
	w http.ResponseWriter, r *http.Request,
) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var p roi.Params
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.saveParams(p); err != nil {
		writeInternalError(w, "saving roi params", err)
		return
	}
	s.rollup.SetParams(p)
	writeJSON(w, http.StatusOK, paramsResponse{
		Configured: p,
		Effective:  p.WithDefaults(),
	})
}
