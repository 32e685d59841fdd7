// Package metrics registers the prometheus collectors exported on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wesm/revenueos/internal/roi"
)

var (
	ROIMultiplier = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "revenueos_roi_multiplier",
		Help: "Monthly value generated divided by monthly cost projection",
	})

	HoursSaved = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "revenueos_hours_saved_total",
		Help: "Human-equivalent hours saved across the fleet",
	})

	MonthlyValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "revenueos_monthly_value_dollars",
		Help: "Projected monthly value of hours saved",
	})

	MonthlyCost = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "revenueos_monthly_cost_dollars",
		Help: "Projected monthly metered provider cost",
	})

	OperatingDays = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "revenueos_operating_days",
		Help: "Days between the earliest and latest trace",
	})

	AgentHoursSaved = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "revenueos_agent_hours_saved",
		Help: "Human-equivalent hours saved per agent",
	}, []string{"agent"})

	Recomputes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revenueos_rollup_recomputes_total",
		Help: "ROI summary recomputations",
	})

	FeedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revenueos_feed_events_total",
		Help: "Change events published by table and op",
	}, []string{"table", "op"})

	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revenueos_http_requests_total",
		Help: "API requests by method and status class",
	}, []string{"method", "code"})

	Imported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revenueos_ingest_records_total",
		Help: "Records imported from watched files by kind",
	}, []string{"kind"})
)

// ObserveSummary publishes the fleet gauges for s.
func ObserveSummary(s roi.Summary) {
	ROIMultiplier.Set(s.ROIMultiplier)
	HoursSaved.Set(s.TotalHoursSaved)
	MonthlyValue.Set(s.MonthlyValue)
	MonthlyCost.Set(s.MonthlyCostProjection)
	OperatingDays.Set(s.OperatingDays)

	AgentHoursSaved.Reset()
	for _, a := range s.Agents {
		AgentHoursSaved.WithLabelValues(a.AgentID).Set(a.HoursSaved)
	}
}

// StatusClass buckets an HTTP status code as "2xx", "4xx", etc.
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
