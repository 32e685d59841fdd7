// Package dbtest holds helpers shared by tests that need a real
// database.
package dbtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wesm/revenueos/internal/db"
	"github.com/wesm/revenueos/internal/roi"
)

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// WriteTestFile writes data to path, creating parent directories.
func WriteTestFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// OpenTestDB opens a database in a temp dir and closes it when
// the test ends.
func OpenTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// SeedAgent upserts an agent, applying opts over the defaults.
func SeedAgent(
	t *testing.T, d *db.DB, id string, opts ...func(*db.Agent),
) {
	t.Helper()
	a := db.Agent{ID: id, Name: id, Status: "active"}
	for _, opt := range opts {
		opt(&a)
	}
	if err := d.UpsertAgent(a); err != nil {
		t.Fatalf("seeding agent %s: %v", id, err)
	}
}

// SeedTraces inserts n successful one-span traces for agentID at
// createdAt, each with outTokens output tokens and the given cost.
func SeedTraces(
	t *testing.T, d *db.DB, agentID, createdAt string,
	n int, outTokens int64, cost float64,
) {
	t.Helper()
	for range n {
		tr := &db.Trace{
			AgentID:   agentID,
			Status:    roi.StatusSuccess,
			CreatedAt: createdAt,
			Spans: []roi.Span{{
				Model:        "gemini-2.5-pro",
				OutputTokens: outTokens,
				Cost:         cost,
			}},
		}
		if err := d.InsertTrace(tr); err != nil {
			t.Fatalf("seeding trace for %s: %v", agentID, err)
		}
	}
}

// SeedCost inserts one daily cost row.
func SeedCost(
	t *testing.T, d *db.DB, date string, costs map[string]float64,
) {
	t.Helper()
	if err := d.InsertDailyCost(&db.DailyCost{
		Date: date, Costs: costs,
	}); err != nil {
		t.Fatalf("seeding cost for %s: %v", date, err)
	}
}
