package server

import (
	"log"
	"net/http"
	"time"

	"github.com/wesm/revenueos/internal/feed"
)

const (
	defaultHeartbeat = 30 * time.Second
	// eventBuffer bounds how far a slow client may fall behind
	// before events are dropped for it.
	eventBuffer = 64
)

// handleEvents streams change events to the client. It sends a
// "ready" event first, then one "change" per feed event and a
// "heartbeat" on every tick.
func (s *Server) handleEvents(
	w http.ResponseWriter, r *http.Request,
) {
	stream, err := NewSSEStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError,
			"streaming not supported")
		return
	}

	events := make(chan feed.Event, eventBuffer)
	if s.bus != nil {
		cancel := s.bus.Subscribe(func(e feed.Event) {
			select {
			case events <- e:
			default:
				log.Printf("events: client behind, dropping %s %s",
					e.Table, e.Op)
			}
		})
		defer cancel()
	}

	if !stream.SendJSON("ready", map[string]any{
		"generation": s.rollup.Generation(),
	}) {
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if !stream.SendJSON("change", e) {
				return
			}
		case <-heartbeat.C:
			if !stream.Send("heartbeat",
				time.Now().UTC().Format(time.RFC3339)) {
				return
			}
		}
	}
}

// statsResponse extends the table counts with live service state.
type statsResponse struct {
	AgentCount      int    `json:"agent_count"`
	TraceCount      int    `json:"trace_count"`
	DailyCostCount  int    `json:"daily_cost_count"`
	CostDays        int    `json:"cost_days"`
	FirstTrace      string `json:"first_trace,omitempty"`
	LastTrace       string `json:"last_trace,omitempty"`
	Generation      uint64 `json:"generation"`
	Subscribers     int    `json:"subscribers"`
	MeteredProvider string `json:"metered_provider"`
}

func (s *Server) handleGetStats(
	w http.ResponseWriter, r *http.Request,
) {
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeInternalError(w, "stats", err)
		return
	}
	resp := statsResponse{
		AgentCount:      stats.AgentCount,
		TraceCount:      stats.TraceCount,
		DailyCostCount:  stats.DailyCostCount,
		CostDays:        stats.CostDays,
		FirstTrace:      stats.FirstTrace,
		LastTrace:       stats.LastTrace,
		Generation:      s.rollup.Generation(),
		MeteredProvider: s.cfg.MeteredProvider,
	}
	if s.bus != nil {
		resp.Subscribers = s.bus.Subscribers()
	}
	writeJSON(w, http.StatusOK, resp)
}
