// Package roi turns per-agent trace and cost rows into
// human-equivalent hours saved, cost projections, and an ROI
// multiplier for the fleet.
package roi

import "time"

// Data maturity labels. They flag how much history backs the
// figures; they do not change the math.
const (
	MaturityBootstrap = "bootstrap"
	MaturityEarly     = "early"
	MaturityStable    = "stable"
)

// StatusSuccess is the trace status counted as a success.
const StatusSuccess = "success"

// Agent is one member of the fleet.
type Agent struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Emoji          string `json:"emoji"`
	Role           string `json:"role,omitempty"`
	TasksCompleted int    `json:"tasks_completed"`
	// TasksAssigned is 0 when the store has no assignment count.
	TasksAssigned int `json:"tasks_assigned,omitempty"`
}

// Span is one model invocation inside a trace.
type Span struct {
	Model        string  `json:"model,omitempty"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CacheRead    int64   `json:"cache_read"`
	Cost         float64 `json:"cost"`
}

// Trace is one logical operation performed by an agent.
type Trace struct {
	AgentID   string    `json:"agent_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Spans     []Span    `json:"spans"`
}

// DailyCost carries the metered provider's spend for one row.
// Several rows may share a date.
type DailyCost struct {
	Date         string  `json:"date"`
	ProviderCost float64 `json:"provider_cost"`
}

// ModelUsage counts calls and output per model name.
type ModelUsage struct {
	Model        string  `json:"model"`
	Calls        int     `json:"calls"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// AgentMetrics is the rollup for a single agent.
type AgentMetrics struct {
	AgentID        string `json:"agent_id"`
	Name           string `json:"name"`
	Emoji          string `json:"emoji"`
	Role           string `json:"role,omitempty"`
	TasksCompleted int    `json:"tasks_completed"`

	Calls        int     `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CacheRead    int64   `json:"cache_read"`
	TraceCost    float64 `json:"trace_cost"`
	Successes    int     `json:"successes"`
	Classified   int     `json:"classified_traces"`

	HumanMinutes float64 `json:"human_minutes"`
	HumanHours   float64 `json:"human_equivalent_hours"`
	AgentMinutes float64 `json:"agent_minutes"`
	AgentHours   float64 `json:"agent_hours"`
	HoursSaved   float64 `json:"hours_saved"`
	HoursPerDay  float64 `json:"hours_per_day"`

	Speedup        int     `json:"speedup"`
	QualityScore   int     `json:"quality_score"`
	AutomationRate int     `json:"automation_rate"`
	CostPerTask    float64 `json:"cost_per_task"`
	HourlyRate     float64 `json:"hourly_rate"`

	HumanTimePerTask string `json:"human_time_per_task"`
	AgentTimePerTask string `json:"agent_time_per_task"`

	Models []ModelUsage `json:"models"`
}

// Summary is the fleet-wide rollup.
type Summary struct {
	Agents []AgentMetrics `json:"agents"`

	OperatingDays float64    `json:"operating_days"`
	DistinctDays  int        `json:"distinct_days"`
	Earliest      *time.Time `json:"earliest,omitempty"`
	Latest        *time.Time `json:"latest,omitempty"`

	OperationalCost       float64 `json:"operational_cost"`
	DailyCostAvg          float64 `json:"daily_cost_avg"`
	TotalHoursSaved       float64 `json:"total_hours_saved"`
	HoursPerDay           float64 `json:"hours_per_day"`
	WeightedHumanRate     float64 `json:"weighted_human_rate"`
	MonthlyValue          float64 `json:"monthly_value"`
	MonthlyCostProjection float64 `json:"monthly_cost_projection"`
	ROIMultiplier         float64 `json:"roi_multiplier"`

	AvgQualityScore   float64 `json:"avg_quality_score"`
	AvgAutomationRate float64 `json:"avg_automation_rate"`

	TotalCalls        int     `json:"total_calls"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	TotalTraceCost    float64 `json:"total_trace_cost"`

	DataMaturity string `json:"data_maturity"`
}

// FindAgent returns the metrics for id, if present.
func (s Summary) FindAgent(id string) (AgentMetrics, bool) {
	for _, a := range s.Agents {
		if a.AgentID == id {
			return a, true
		}
	}
	return AgentMetrics{}, false
}
