package server

import (
	"net/http"
	"strconv"

	"github.com/wesm/revenueos/internal/timeutil"
)

// parseIntParam reads an optional integer query parameter. An
// absent parameter yields 0. A malformed one writes a 400 and
// returns false.
func parseIntParam(
	w http.ResponseWriter, r *http.Request, name string,
) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, true
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		writeError(w, http.StatusBadRequest,
			"invalid "+name+": must be an integer")
		return 0, false
	}
	return v, true
}

// clampLimit applies the default to non-positive limits and caps
// the rest at max.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, max)
}

// parseTimeBound reads an optional from/to query parameter
// accepting RFC3339 timestamps or YYYY-MM-DD dates.
func parseTimeBound(
	w http.ResponseWriter, r *http.Request, name string,
) (string, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return "", true
	}
	if timeutil.IsDate(s) {
		return s, true
	}
	if _, ok := timeutil.Parse(s); !ok {
		writeError(w, http.StatusBadRequest,
			"invalid "+name+": use RFC3339 or YYYY-MM-DD")
		return "", false
	}
	return s, true
}

// parseDateRange reads optional from/to YYYY-MM-DD parameters and
// rejects an inverted range.
func parseDateRange(
	w http.ResponseWriter, r *http.Request,
) (from, to string, ok bool) {
	q := r.URL.Query()
	from, to = q.Get("from"), q.Get("to")
	if (from != "" && !timeutil.IsDate(from)) ||
		(to != "" && !timeutil.IsDate(to)) {
		writeError(w, http.StatusBadRequest,
			"invalid date format: use YYYY-MM-DD")
		return "", "", false
	}
	if from != "" && to != "" && from > to {
		writeError(w, http.StatusBadRequest,
			"from must not be after to")
		return "", "", false
	}
	return from, to, true
}
