package roi

import (
	"fmt"
	"maps"
	"math"
)

// Calibration defaults. These are assumptions, not measurements,
// so every one of them can be overridden through Params.
const (
	DefaultHumanMinutesPer1KOutputTokens = 12.0
	DefaultAgentSecondsPerCall           = 30.0
	DefaultHourlyRate                    = 50.0
	DefaultCoordinatorID                 = "coordinator"
	DefaultDaysPerMonth                  = 30.0

	minOperatingDays   = 0.5
	earlyMaturityDays  = 3
	stableMaturityDays = 7
)

// defaultHourlyRates maps a role (or agent ID) to the hourly wage
// of the human who would otherwise do the work.
var defaultHourlyRates = map[string]float64{
	"orchestrator": 80,
	"coder":        65,
	"infra":        70,
	"docs":         55,
}

// Params holds the calibration used by Compute.
type Params struct {
	HumanMinutesPer1KOutputTokens float64            `json:"human_minutes_per_1k_output_tokens"`
	AgentSecondsPerCall           float64            `json:"agent_seconds_per_call"`
	HourlyRates                   map[string]float64 `json:"hourly_rates"`
	DefaultHourlyRate             float64            `json:"default_hourly_rate"`
	CoordinatorID                 string             `json:"coordinator_id"`
	DaysPerMonth                  float64            `json:"days_per_month"`
}

// DefaultParams returns the stock calibration.
func DefaultParams() Params {
	return Params{
		HumanMinutesPer1KOutputTokens: DefaultHumanMinutesPer1KOutputTokens,
		AgentSecondsPerCall:           DefaultAgentSecondsPerCall,
		HourlyRates:                   maps.Clone(defaultHourlyRates),
		DefaultHourlyRate:             DefaultHourlyRate,
		CoordinatorID:                 DefaultCoordinatorID,
		DaysPerMonth:                  DefaultDaysPerMonth,
	}
}

// Validate rejects negative or non-finite calibration values.
// Zero means "use the default" and is accepted.
func (p Params) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"human_minutes_per_1k_output_tokens", p.HumanMinutesPer1KOutputTokens},
		{"agent_seconds_per_call", p.AgentSecondsPerCall},
		{"default_hourly_rate", p.DefaultHourlyRate},
		{"days_per_month", p.DaysPerMonth},
	}
	for _, f := range fields {
		if f.v < 0 || math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("invalid %s: %v", f.name, f.v)
		}
	}
	for k, v := range p.HourlyRates {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid hourly rate for %q: %v", k, v)
		}
	}
	return nil
}

// WithDefaults returns p as Compute sees it: zero or negative
// fields are filled from DefaultParams. An empty HourlyRates map
// falls back to the stock table; a non-empty one replaces it
// entirely.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.HumanMinutesPer1KOutputTokens <= 0 {
		p.HumanMinutesPer1KOutputTokens = d.HumanMinutesPer1KOutputTokens
	}
	if p.AgentSecondsPerCall <= 0 {
		p.AgentSecondsPerCall = d.AgentSecondsPerCall
	}
	if len(p.HourlyRates) == 0 {
		p.HourlyRates = d.HourlyRates
	}
	if p.DefaultHourlyRate <= 0 {
		p.DefaultHourlyRate = d.DefaultHourlyRate
	}
	if p.CoordinatorID == "" {
		p.CoordinatorID = d.CoordinatorID
	}
	if p.DaysPerMonth <= 0 {
		p.DaysPerMonth = d.DaysPerMonth
	}
	return p
}

// rateFor looks up the agent's role, then its ID, then the
// flat default.
func (p Params) rateFor(a Agent) float64 {
	if a.Role != "" {
		if r, ok := p.HourlyRates[a.Role]; ok && r > 0 {
			return r
		}
	}
	if r, ok := p.HourlyRates[a.ID]; ok && r > 0 {
		return r
	}
	return p.DefaultHourlyRate
}

// Maturity labels how much history operatingDays represents.
func Maturity(operatingDays float64) string {
	switch {
	case operatingDays >= stableMaturityDays:
		return MaturityStable
	case operatingDays >= earlyMaturityDays:
		return MaturityEarly
	default:
		return MaturityBootstrap
	}
}
