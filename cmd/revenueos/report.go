package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/wesm/revenueos/internal/config"
	"github.com/wesm/revenueos/internal/report"
	"github.com/wesm/revenueos/internal/roi"
	"github.com/wesm/revenueos/internal/rollup"
)

// ReportConfig holds parsed CLI options for the report command.
type ReportConfig struct {
	Format string
	Agent  string
}

func parseReportFlags(args []string) (ReportConfig, *flag.FlagSet, error) {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	format := fs.String(
		"format", report.FormatTable,
		"Output format: table, plain, or json",
	)
	agent := fs.String("agent", "", "Show a single agent")
	config.RegisterReportFlags(fs)

	if err := fs.Parse(args); err != nil {
		return ReportConfig{}, nil, err
	}
	switch *format {
	case report.FormatTable, report.FormatPlain, report.FormatJSON:
	default:
		return ReportConfig{}, nil, fmt.Errorf(
			"unsupported format %q", *format,
		)
	}
	return ReportConfig{Format: *format, Agent: *agent}, fs, nil
}

// Reporter renders the rollup of a database.
type Reporter struct {
	Rollup *rollup.Service
	Out    io.Writer
}

// Report computes the summary and writes it in cfg.Format. With
// cfg.Agent set only that agent's row is listed.
func (r *Reporter) Report(ctx context.Context, cfg ReportConfig) error {
	sum, err := r.Rollup.Summary(ctx)
	if err != nil {
		return err
	}
	if cfg.Agent != "" {
		m, ok := sum.FindAgent(cfg.Agent)
		if !ok {
			return fmt.Errorf("agent %q not found", cfg.Agent)
		}
		sum.Agents = []roi.AgentMetrics{m}
	}
	return report.Write(r.Out, sum, cfg.Format)
}

func runReport(args []string) {
	cfg, fs, err := parseReportFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	appCfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := appCfg.ROI.Validate(); err != nil {
		log.Fatalf("invalid roi config: %v", err)
	}
	database := mustOpenDB(appCfg)
	defer database.Close()

	svc := rollup.New(database, nil, appCfg.ROI, appCfg.MeteredProvider)
	r := &Reporter{Rollup: svc, Out: os.Stdout}
	if err := r.Report(context.Background(), cfg); err != nil {
		log.Fatalf("report: %v", err)
	}
}
