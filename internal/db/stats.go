package db

import (
	"context"
	"fmt"
)

// Stats holds row counts for the status endpoint.
type Stats struct {
	AgentCount     int    `json:"agent_count"`
	TraceCount     int    `json:"trace_count"`
	DailyCostCount int    `json:"daily_cost_count"`
	CostDays       int    `json:"cost_days"`
	FirstTrace     string `json:"first_trace,omitempty"`
	LastTrace      string `json:"last_trace,omitempty"`
}

// GetStats returns table counts and the trace time window.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	const query = `
		SELECT
			(SELECT count(*) FROM agents),
			(SELECT count(*) FROM traces),
			(SELECT count(*) FROM daily_costs),
			(SELECT count(DISTINCT date) FROM daily_costs),
			(SELECT COALESCE(min(created_at), '') FROM traces),
			(SELECT COALESCE(max(created_at), '') FROM traces)`

	var s Stats
	err := db.reader.QueryRowContext(ctx, query).Scan(
		&s.AgentCount,
		&s.TraceCount,
		&s.DailyCostCount,
		&s.CostDays,
		&s.FirstTrace,
		&s.LastTrace,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching stats: %w", err)
	}
	return s, nil
}
