package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wesm/revenueos/internal/db"
	"github.com/wesm/revenueos/internal/ingest"
	"github.com/wesm/revenueos/internal/roi"
	"github.com/wesm/revenueos/internal/timeutil"
)

type agentSpec struct {
	id       string
	name     string
	emoji    string
	role     string
	tasks    int
	perDay   int
	outToks  int64
	failures int // failed traces per day
}

var specs = []agentSpec{
	{"coordinator", "Coordinator", "🧭", "orchestrator", 0, 4, 300, 0},
	{"atlas", "Atlas", "🗺️", "orchestrator", 12, 6, 1800, 0},
	{"forge", "Forge", "🔨", "coder", 30, 10, 4200, 1},
	{"sentinel", "Sentinel", "🛡️", "infra", 8, 3, 900, 1},
	{"quill", "Quill", "🪶", "docs", 5, 2, 2500, 0},
}

const fixtureDays = 10

func main() {
	out := flag.String("out", "", "output path (.db or .jsonl)")
	flag.Parse()
	if *out == "" {
		fmt.Fprintln(os.Stderr, "usage: testfixture -out <path>")
		os.Exit(1)
	}

	if err := os.Remove(*out); err != nil &&
		!errors.Is(err, os.ErrNotExist) {
		log.Fatalf("removing existing file: %v", err)
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fx := buildFixture(base, fixtureDays)

	var err error
	if strings.EqualFold(filepath.Ext(*out), ".jsonl") {
		err = writeJSONLFile(*out, fx)
	} else {
		err = writeDB(*out, fx)
	}
	if err != nil {
		log.Fatalf("writing fixture: %v", err)
	}
	fmt.Printf(
		"Fixture written to %s: %d agents, %d traces, %d cost days\n",
		*out, len(fx.agents), len(fx.traces), len(fx.costs),
	)
}

type fixture struct {
	agents []db.Agent
	traces []db.Trace
	costs  []db.DailyCost
}

// buildFixture generates a deterministic fleet spanning days days
// from base.
func buildFixture(base time.Time, days int) fixture {
	var fx fixture
	for _, s := range specs {
		fx.agents = append(fx.agents, db.Agent{
			ID:             s.id,
			Name:           s.name,
			Emoji:          s.emoji,
			Role:           s.role,
			Status:         "active",
			TasksCompleted: s.tasks,
			TasksAssigned:  s.tasks + s.failures*days,
		})
	}

	for day := range days {
		start := base.AddDate(0, 0, day)
		var spend float64
		for _, s := range specs {
			for i := range s.perDay {
				status, errMsg := roi.StatusSuccess, (*string)(nil)
				if i < s.failures {
					status = "error"
					msg := "tool call timed out"
					errMsg = &msg
				}
				cost := float64(s.outToks) * 0.00001
				spend += cost
				fx.traces = append(fx.traces, db.Trace{
					ID: fmt.Sprintf("%s-%02d-%02d", s.id, day, i),
					AgentID: s.id,
					Status:  status,
					CreatedAt: timeutil.Format(
						start.Add(time.Duration(i) * 17 * time.Minute),
					),
					DurationMs: 20000 + int64(i)*1500,
					Error:      errMsg,
					Spans: []roi.Span{{
						Model:        "gemini-2.5-pro",
						InputTokens:  s.outToks * 3,
						OutputTokens: s.outToks,
						Cost:         cost,
					}},
				})
			}
		}
		fx.costs = append(fx.costs, db.DailyCost{
			Date: start.Format("2006-01-02"),
			Costs: map[string]float64{
				"google":    spend,
				"anthropic": 6.67,
			},
		})
	}
	return fx
}

func writeDB(path string, fx fixture) error {
	database, err := db.Open(path)
	if err != nil {
		return fmt.Errorf("opening db: %w", err)
	}
	defer database.Close()

	for _, a := range fx.agents {
		if err := database.UpsertAgent(a); err != nil {
			return err
		}
	}
	for i := range fx.traces {
		if err := database.InsertTrace(&fx.traces[i]); err != nil {
			return err
		}
	}
	for i := range fx.costs {
		if err := database.InsertDailyCost(&fx.costs[i]); err != nil {
			return err
		}
	}
	return nil
}

func writeJSONLFile(path string, fx fixture) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeJSONL(f, fx); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeJSONL emits one importable line per record.
func writeJSONL(w io.Writer, fx fixture) error {
	enc := json.NewEncoder(w)
	emit := func(kind string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		m["kind"] = kind
		return enc.Encode(m)
	}
	for _, a := range fx.agents {
		if err := emit(ingest.KindAgent, a); err != nil {
			return err
		}
	}
	for _, t := range fx.traces {
		if err := emit(ingest.KindTrace, t); err != nil {
			return err
		}
	}
	for _, c := range fx.costs {
		if err := emit(ingest.KindDailyCost, c); err != nil {
			return err
		}
	}
	return nil
}
