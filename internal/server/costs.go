package server

import (
	"net/http"

	"github.com/wesm/revenueos/internal/ingest"
	"github.com/wesm/revenueos/internal/timeutil"
)

func (s *Server) handleListCosts(
	w http.ResponseWriter, r *http.Request,
) {
	from, to, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	costs, err := s.db.ListDailyCosts(r.Context(), from, to)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeInternalError(w, "costs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"costs": costs,
	})
}

func (s *Server) handleInsertCost(
	w http.ResponseWriter, r *http.Request,
) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	c, err := ingest.ParseDailyCost(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cost: "+err.Error())
		return
	}
	if !timeutil.IsDate(c.Date) {
		writeError(w, http.StatusBadRequest,
			"invalid date format: use YYYY-MM-DD")
		return
	}
	for provider, v := range c.Costs {
		if v < 0 {
			writeError(w, http.StatusBadRequest,
				"negative cost for "+provider)
			return
		}
	}
	if err := s.db.InsertDailyCost(&c); err != nil {
		writeInternalError(w, "inserting daily cost", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
