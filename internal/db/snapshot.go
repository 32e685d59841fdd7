package db

import (
	"context"
	"fmt"

	"github.com/wesm/revenueos/internal/roi"
	"github.com/wesm/revenueos/internal/timeutil"
)

// Snapshot holds everything the ROI rollup reads, already
// converted to aggregator types.
type Snapshot struct {
	Agents []roi.Agent
	Traces []roi.Trace
	Costs  []roi.DailyCost
}

// LoadSnapshot reads all agents, traces, and cost rows. Only the
// meteredProvider column of each cost row is carried over; the
// other providers are flat-fee and have no marginal cost.
func (db *DB) LoadSnapshot(
	ctx context.Context, meteredProvider string,
) (Snapshot, error) {
	agents, err := db.ListAgents(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	traces, err := db.ListTraces(ctx, TraceFilter{})
	if err != nil {
		return Snapshot{}, err
	}
	costs, err := db.ListDailyCosts(ctx, "", "")
	if err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("loading snapshot: %w", err)
	}

	s := Snapshot{
		Agents: make([]roi.Agent, 0, len(agents)),
		Traces: make([]roi.Trace, 0, len(traces)),
		Costs:  make([]roi.DailyCost, 0, len(costs)),
	}
	for _, a := range agents {
		s.Agents = append(s.Agents, a.ROI())
	}
	for _, t := range traces {
		s.Traces = append(s.Traces, t.ROI())
	}
	for _, c := range costs {
		s.Costs = append(s.Costs, roi.DailyCost{
			Date:         c.Date,
			ProviderCost: c.ProviderCost(meteredProvider),
		})
	}
	return s, nil
}

// ROI converts the row to the aggregator's agent type.
func (a Agent) ROI() roi.Agent {
	return roi.Agent{
		ID:             a.ID,
		Name:           a.Name,
		Emoji:          a.Emoji,
		Role:           a.Role,
		TasksCompleted: max(a.TasksCompleted, 0),
		TasksAssigned:  max(a.TasksAssigned, 0),
	}
}

// ROI converts the row to the aggregator's trace type. An
// unparseable timestamp becomes the zero time, which the
// aggregator ignores for the operating window.
func (t Trace) ROI() roi.Trace {
	ts, _ := timeutil.Parse(t.CreatedAt)
	return roi.Trace{
		AgentID:   t.AgentID,
		Status:    t.Status,
		CreatedAt: ts,
		Spans:     t.Spans,
	}
}
