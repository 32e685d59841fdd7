// Package report renders an ROI summary for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/wesm/revenueos/internal/roi"
)

// Supported output formats.
const (
	FormatTable = "table"
	FormatPlain = "plain"
	FormatJSON  = "json"
)

// Write renders sum to w in the requested format. An empty
// format means table.
func Write(w io.Writer, sum roi.Summary, format string) error {
	switch strings.ToLower(format) {
	case "", FormatTable:
		return writeTable(w, sum, isTerminal(w))
	case FormatPlain:
		return writePlain(w, sum)
	case FormatJSON:
		return writeJSON(w, sum)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

var agentHeader = []string{
	"agent", "role", "calls", "tasks", "hours_saved", "hours_per_day",
	"speedup", "quality", "automation", "cost_per_task",
	"human_per_task", "agent_per_task",
}

func agentCells(m roi.AgentMetrics) []any {
	return []any{
		agentLabel(m),
		dash(m.Role),
		m.Calls,
		m.TasksCompleted,
		fmt.Sprintf("%.1f", m.HoursSaved),
		fmt.Sprintf("%.2f", m.HoursPerDay),
		fmt.Sprintf("%dx", m.Speedup),
		fmt.Sprintf("%d%%", m.QualityScore),
		fmt.Sprintf("%d%%", m.AutomationRate),
		fmt.Sprintf("$%.2f", m.CostPerTask),
		m.HumanTimePerTask,
		m.AgentTimePerTask,
	}
}

func agentLabel(m roi.AgentMetrics) string {
	name := m.Name
	if name == "" {
		name = m.AgentID
	}
	if m.Emoji != "" {
		return m.Emoji + " " + name
	}
	return name
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// fleetLines are the fleet-wide figures printed under the table.
func fleetLines(sum roi.Summary) [][2]string {
	return [][2]string{
		{"operating days", fmt.Sprintf("%.1f (%d distinct, %s)",
			sum.OperatingDays, sum.DistinctDays, sum.DataMaturity)},
		{"hours saved", fmt.Sprintf("%.1f (%.2f/day)",
			sum.TotalHoursSaved, sum.HoursPerDay)},
		{"weighted rate", fmt.Sprintf("$%.2f/h", sum.WeightedHumanRate)},
		{"monthly value", fmt.Sprintf("$%.2f", sum.MonthlyValue)},
		{"monthly cost", fmt.Sprintf("$%.2f (avg $%.2f/day)",
			sum.MonthlyCostProjection, sum.DailyCostAvg)},
		{"roi", fmt.Sprintf("%.1fx", sum.ROIMultiplier)},
	}
}

func writeTable(w io.Writer, sum roi.Summary, color bool) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true
	tw.Style().Options.DrawBorder = true
	if color {
		tw.Style().Color.Header = text.Colors{text.Bold, text.FgCyan}
		tw.Style().Color.Footer = text.Colors{text.Bold}
	}

	cfgs := []table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
	}
	for i := 3; i <= len(agentHeader); i++ {
		cfgs = append(cfgs, table.ColumnConfig{
			Number: i, Align: text.AlignRight, AlignHeader: text.AlignCenter,
		})
	}
	tw.SetColumnConfigs(cfgs)

	header := make(table.Row, len(agentHeader))
	for i, h := range agentHeader {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, m := range sum.Agents {
		tw.AppendRow(table.Row(agentCells(m)))
	}
	if len(sum.Agents) == 0 {
		tw.AppendRow(table.Row{"(no agents)", "-", 0, 0, "0.0", "0.00",
			"-", "-", "-", "-", "-", "-"})
	}
	tw.AppendFooter(table.Row{
		"total", "", sum.TotalCalls, "",
		fmt.Sprintf("%.1f", sum.TotalHoursSaved),
		fmt.Sprintf("%.2f", sum.HoursPerDay),
		"", fmt.Sprintf("%.0f%%", sum.AvgQualityScore),
		fmt.Sprintf("%.0f%%", sum.AvgAutomationRate),
		"", "", "",
	})
	_ = tw.Render()

	for _, l := range fleetLines(sum) {
		if _, err := fmt.Fprintf(w, "%-15s %s\n", l[0]+":", l[1]); err != nil {
			return err
		}
	}
	return nil
}

func writePlain(w io.Writer, sum roi.Summary) error {
	if _, err := fmt.Fprintln(w, strings.Join(agentHeader, "\t")); err != nil {
		return err
	}
	for _, m := range sum.Agents {
		cells := agentCells(m)
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = fmt.Sprint(c)
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, "\t")); err != nil {
			return err
		}
	}
	for _, l := range fleetLines(sum) {
		if _, err := fmt.Fprintf(w, "# %s\t%s\n", l[0], l[1]); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, sum roi.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}
