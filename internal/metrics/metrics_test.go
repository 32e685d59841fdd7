package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/wesm/revenueos/internal/roi"
)

func TestObserveSummary(t *testing.T) {
	ObserveSummary(roi.Summary{
		ROIMultiplier:         4.5,
		TotalHoursSaved:       12,
		MonthlyValue:          900,
		MonthlyCostProjection: 200,
		OperatingDays:         3,
		Agents: []roi.AgentMetrics{
			{AgentID: "a", HoursSaved: 5},
			{AgentID: "b", HoursSaved: 7},
		},
	})
	assert.Equal(t, 4.5, testutil.ToFloat64(ROIMultiplier))
	assert.Equal(t, 12.0, testutil.ToFloat64(HoursSaved))
	assert.Equal(t, 900.0, testutil.ToFloat64(MonthlyValue))
	assert.Equal(t, 200.0, testutil.ToFloat64(MonthlyCost))
	assert.Equal(t, 3.0, testutil.ToFloat64(OperatingDays))
	assert.Equal(t, 7.0, testutil.ToFloat64(AgentHoursSaved.WithLabelValues("b")))

	// Agents that disappear lose their series.
	ObserveSummary(roi.Summary{Agents: []roi.AgentMetrics{{AgentID: "a"}}})
	assert.Equal(t, 1, testutil.CollectAndCount(AgentHoursSaved))
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{
		200: "2xx", 204: "2xx", 304: "3xx",
		400: "4xx", 404: "4xx", 500: "5xx", 503: "5xx",
	}
	for code, want := range tests {
		assert.Equal(t, want, StatusClass(code), "code %d", code)
	}
}
