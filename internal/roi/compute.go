package roi

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"
)

const unknownModel = "unknown"

// Compute builds the fleet Summary from snapshot rows. It is pure:
// identical inputs always produce identical output, and every
// division with a zero denominator yields 0 rather than NaN or Inf.
// The coordinator agent named by p.CoordinatorID is left out.
func Compute(
	agents []Agent, traces []Trace, costs []DailyCost, p Params,
) Summary {
	p = p.WithDefaults()

	s := Summary{Agents: []AgentMetrics{}}

	earliest, latest, ok := traceRange(traces)
	if ok {
		s.Earliest = &earliest
		s.Latest = &latest
	}
	s.OperatingDays = operatingDays(earliest, latest, ok)
	s.DataMaturity = Maturity(s.OperatingDays)

	byAgent := make(map[string][]Trace)
	for _, t := range traces {
		byAgent[t.AgentID] = append(byAgent[t.AgentID], t)
	}

	var (
		qualitySum    int
		automationSum int
		weightedRate  float64
	)
	for _, a := range agents {
		if a.ID == p.CoordinatorID {
			continue
		}
		m := computeAgent(a, byAgent[a.ID], s.OperatingDays, p)
		s.Agents = append(s.Agents, m)

		s.TotalHoursSaved += m.HoursSaved
		s.TotalCalls += m.Calls
		s.TotalOutputTokens += m.OutputTokens
		s.TotalTraceCost += m.TraceCost
		qualitySum += m.QualityScore
		automationSum += m.AutomationRate
		if m.HoursSaved > 0 {
			weightedRate += m.HourlyRate * m.HoursSaved
		}
	}

	distinct := make(map[string]struct{}, len(costs))
	for _, c := range costs {
		s.OperationalCost += c.ProviderCost
		distinct[c.Date] = struct{}{}
	}
	s.DistinctDays = max(len(distinct), 1)
	s.DailyCostAvg = safeDiv(s.OperationalCost, float64(s.DistinctDays))

	s.HoursPerDay = safeDiv(s.TotalHoursSaved, s.OperatingDays)
	s.WeightedHumanRate = p.DefaultHourlyRate
	if s.TotalHoursSaved > 0 {
		s.WeightedHumanRate = safeDiv(weightedRate, s.TotalHoursSaved)
	}
	s.MonthlyValue = s.HoursPerDay * p.DaysPerMonth * s.WeightedHumanRate
	s.MonthlyCostProjection = s.DailyCostAvg * p.DaysPerMonth
	if s.MonthlyCostProjection > 0 {
		s.ROIMultiplier = safeDiv(s.MonthlyValue, s.MonthlyCostProjection)
	}

	if n := len(s.Agents); n > 0 {
		s.AvgQualityScore = float64(qualitySum) / float64(n)
		s.AvgAutomationRate = float64(automationSum) / float64(n)
	}
	return s
}

func computeAgent(
	a Agent, traces []Trace, days float64, p Params,
) AgentMetrics {
	m := AgentMetrics{
		AgentID:        a.ID,
		Name:           a.Name,
		Emoji:          a.Emoji,
		Role:           a.Role,
		TasksCompleted: a.TasksCompleted,
		HourlyRate:     p.rateFor(a),
	}

	models := make(map[string]*ModelUsage)
	for _, t := range traces {
		if t.Status != "" {
			m.Classified++
			if t.Status == StatusSuccess {
				m.Successes++
			}
		}
		for _, sp := range t.Spans {
			m.Calls++
			m.InputTokens += sp.InputTokens
			m.OutputTokens += sp.OutputTokens
			m.CacheRead += sp.CacheRead
			m.TraceCost += sp.Cost

			name := sp.Model
			if name == "" {
				name = unknownModel
			}
			u := models[name]
			if u == nil {
				u = &ModelUsage{Model: name}
				models[name] = u
			}
			u.Calls++
			u.OutputTokens += sp.OutputTokens
			u.Cost += sp.Cost
		}
	}
	m.Models = sortedModels(models)

	m.HumanMinutes = float64(m.OutputTokens) / 1000 *
		p.HumanMinutesPer1KOutputTokens
	m.HumanHours = m.HumanMinutes / 60
	m.AgentMinutes = float64(m.Calls) * p.AgentSecondsPerCall / 60
	m.AgentHours = m.AgentMinutes / 60
	m.HoursSaved = max(m.HumanHours-m.AgentHours, 0)
	m.HoursPerDay = safeDiv(m.HoursSaved, days)

	if m.AgentMinutes > 0 {
		m.Speedup = roundInt(m.HumanMinutes / m.AgentMinutes)
	}

	switch {
	case m.Classified > 0:
		m.QualityScore = roundInt(
			100 * float64(m.Successes) / float64(m.Classified),
		)
	case m.Calls > 0:
		m.QualityScore = 100
	}

	tasks := a.TasksCompleted
	m.AutomationRate = automationRate(tasks, a.TasksAssigned)
	if tasks > 0 {
		m.CostPerTask = m.TraceCost / float64(tasks)
		m.HumanTimePerTask = FormatMinutes(
			m.HumanMinutes / float64(tasks),
		)
		m.AgentTimePerTask = FormatMinutes(
			m.AgentMinutes / float64(tasks),
		)
	} else {
		m.HumanTimePerTask = "-"
		m.AgentTimePerTask = "-"
	}
	return m
}

// automationRate is 100 for any agent with completed work unless
// an assignment count is known. Without tasks assigned the
// denominator is max(done, 1), so only 0 and 100 are reachable.
func automationRate(done, assigned int) int {
	if done <= 0 {
		return 0
	}
	denom := max(done, 1)
	if assigned > 0 {
		denom = assigned
	}
	return min(100, roundInt(100*float64(done)/float64(denom)))
}

// traceRange returns the earliest and latest non-zero trace
// timestamps. ok is false when no trace carries a timestamp.
func traceRange(traces []Trace) (earliest, latest time.Time, ok bool) {
	for _, t := range traces {
		if t.CreatedAt.IsZero() {
			continue
		}
		if !ok || t.CreatedAt.Before(earliest) {
			earliest = t.CreatedAt
		}
		if !ok || t.CreatedAt.After(latest) {
			latest = t.CreatedAt
		}
		ok = true
	}
	return earliest, latest, ok
}

// operatingDays floors the observed span at half a day so short
// datasets cannot blow up per-day rates.
func operatingDays(earliest, latest time.Time, ok bool) float64 {
	if !ok {
		return minOperatingDays
	}
	days := latest.Sub(earliest).Hours() / 24
	return max(days, minOperatingDays)
}

func sortedModels(models map[string]*ModelUsage) []ModelUsage {
	out := make([]ModelUsage, 0, len(models))
	for _, u := range models {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b ModelUsage) int {
		if c := cmp.Compare(b.Calls, a.Calls); c != 0 {
			return c
		}
		return cmp.Compare(a.Model, b.Model)
	})
	return out
}

// FormatMinutes renders a duration given in minutes: seconds below
// one minute, whole minutes below an hour, otherwise tenths of an
// hour.
func FormatMinutes(minutes float64) string {
	switch {
	case minutes < 1:
		return fmt.Sprintf("%.0fs", max(minutes, 0)*60)
	case minutes < 60:
		return fmt.Sprintf("%.0fm", minutes)
	default:
		return fmt.Sprintf("%.1fh", minutes/60)
	}
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	v := num / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func roundInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}
