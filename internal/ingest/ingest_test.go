package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/revenueos/internal/db"
	"github.com/wesm/revenueos/internal/dbtest"
	"github.com/wesm/revenueos/internal/roi"
)

const sampleJSONL = `{"kind":"agent","id":"forge","name":"Forge","role":"coder","tasks_completed":3,"tasksAssigned":4}
{"kind":"trace","id":"t1","agent_id":"forge","status":"success","created_at":"2026-03-01T10:00:00Z","spans":[{"model":"gemini-2.5-pro","outputTokens":1500,"cost":0.02}]}
{"kind":"trace","id":"t2","agentId":"forge","status":"error","createdAt":"2026-03-02T10:00:00Z","error":"timeout","spans":"[{\"output_tokens\":200}]"}
{"kind":"daily_cost","date":"2026-03-01","costs":{"google":1.5,"anthropic":200}}
not json
{"kind":"mystery"}
[1,2,3]
`

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	dbtest.WriteTestFile(t, path, []byte(data))
	return path
}

func appendFile(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestImportFile(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	im := NewImporter(d)
	path := writeFile(t, t.TempDir(), "fleet.jsonl", sampleJSONL)

	st, err := im.ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Files: 1, Agents: 1, Traces: 2, DailyCosts: 1, Skipped: 3,
	}, st)
	assert.Equal(t, int64(len(sampleJSONL)), im.offset(path))

	ctx := context.Background()
	a, err := d.GetAgent(ctx, "forge")
	require.NoError(t, err)
	assert.Equal(t, "coder", a.Role)
	assert.Equal(t, 3, a.TasksCompleted)
	assert.Equal(t, 4, a.TasksAssigned)

	traces, err := d.ListTraces(ctx, db.TraceFilter{AgentID: "forge"})
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, int64(1500), traces[0].Spans[0].OutputTokens)
	assert.Equal(t, "gemini-2.5-pro", traces[0].Spans[0].Model)
	assert.Equal(t, int64(200), traces[1].Spans[0].OutputTokens)
	require.NotNil(t, traces[1].Error)
	assert.Equal(t, "timeout", *traces[1].Error)

	costs, err := d.ListDailyCosts(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, costs, 1)
	assert.InDelta(t, 1.5, costs[0].ProviderCost("google"), 1e-9)
	assert.InDelta(t, 201.5, costs[0].Total, 1e-9)
}

func TestImportFileStoreRejects(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	im := NewImporter(d)
	path := writeFile(t, t.TempDir(), "bad.jsonl", strings.Join([]string{
		`{"kind":"agent","name":"no id"}`,
		`{"kind":"trace","agent_id":"forge","created_at":"yesterday"}`,
		`{"kind":"trace","agent_id":"forge","created_at":"2026-03-01T00:00:00Z","spans":{"not":"array"}}`,
		`{"kind":"daily_cost","date":"March 1"}`,
	}, "\n")+"\n")

	st, err := im.ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 1, Failed: 4}, st)
}

func TestImportFileIncremental(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	im := NewImporter(d)
	path := writeFile(t, t.TempDir(), "costs.jsonl",
		`{"kind":"daily_cost","date":"2026-03-01","costs":{"google":1}}`+"\n")

	st, err := im.ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, st.DailyCosts)

	// Nothing new: nothing imported.
	st, err = im.ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 1}, st)

	// A half-written line is left for later.
	appendFile(t, path, `{"kind":"daily_cost","date":"2026-03-02",`)
	st, err = im.ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 1}, st)

	appendFile(t, path, `"costs":{"google":2}}`+"\n")
	st, err = im.ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, st.DailyCosts)

	costs, err := d.ListDailyCosts(context.Background(), "", "")
	require.NoError(t, err)
	require.Len(t, costs, 2)
	assert.Equal(t, "2026-03-02", costs[1].Date)
}

func TestImportFileUnterminatedValidLine(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	im := NewImporter(d)
	data := `{"kind":"agent","id":"scribe"}`
	path := writeFile(t, t.TempDir(), "a.jsonl", data)

	st, err := im.ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Agents)
	assert.Equal(t, int64(len(data)), im.offset(path))
}

func TestImportFileTruncated(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	im := NewImporter(d)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.jsonl", sampleJSONL)
	_, err := im.ImportFile(path)
	require.NoError(t, err)

	writeFile(t, dir, "a.jsonl", `{"kind":"agent","id":"scribe"}`+"\n")
	st, err := im.ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Agents)

	agents, err := d.ListAgents(context.Background())
	require.NoError(t, err)
	assert.Len(t, agents, 2)
}

// restartJSONL has an id-less trace and a cost row, the records
// that have no natural key of their own.
const restartJSONL = `{"kind":"agent","id":"forge","role":"coder"}
{"kind":"trace","agent_id":"forge","status":"success","created_at":"2026-03-01T10:00:00Z","spans":[{"output_tokens":1000}]}
{"kind":"daily_cost","date":"2026-03-01","costs":{"google":1.0}}
`

func countRows(t *testing.T, d *db.DB) (traces, costs int) {
	t.Helper()
	ctx := context.Background()
	tr, err := d.ListTraces(ctx, db.TraceFilter{})
	require.NoError(t, err)
	cs, err := d.ListDailyCosts(ctx, "", "")
	require.NoError(t, err)
	return len(tr), len(cs)
}

func summarize(t *testing.T, d *db.DB) roi.Summary {
	t.Helper()
	snap, err := d.LoadSnapshot(context.Background(), "google")
	require.NoError(t, err)
	return roi.Compute(snap.Agents, snap.Traces, snap.Costs, roi.Params{})
}

func TestImportDirAfterRestart(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "fleet.jsonl", restartJSONL)

	st, err := NewImporter(d).ImportDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Records())
	before := summarize(t, d)
	assert.InDelta(t, 1.0, before.OperationalCost, 1e-9)

	// A fresh importer over the same database resumes at the end.
	im := NewImporter(d)
	assert.Equal(t, int64(len(restartJSONL)), im.offset(path))
	st, err = im.ImportDir(dir)
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 1}, st)

	traces, costs := countRows(t, d)
	assert.Equal(t, 1, traces)
	assert.Equal(t, 1, costs)
	after := summarize(t, d)
	assert.InDelta(t, before.OperationalCost, after.OperationalCost, 1e-9)
	assert.InDelta(t, before.TotalHoursSaved, after.TotalHoursSaved, 1e-9)
	assert.Equal(t, before.TotalOutputTokens, after.TotalOutputTokens)
}

func TestImportFileLostOffsets(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	path := writeFile(t, t.TempDir(), "fleet.jsonl", restartJSONL)

	_, err := NewImporter(d).ImportFile(path)
	require.NoError(t, err)
	before := summarize(t, d)

	// Without a recorded offset every line is read again, and the
	// rows it built are recognized rather than copied.
	require.NoError(t, d.DeleteImportOffset(offsetKey(path)))
	im := NewImporter(d)
	assert.Zero(t, im.offset(path))
	st, err := im.ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Files: 1, Agents: 1, Traces: 1, Skipped: 1,
	}, st)

	traces, costs := countRows(t, d)
	assert.Equal(t, 1, traces)
	assert.Equal(t, 1, costs)
	after := summarize(t, d)
	assert.InDelta(t, before.OperationalCost, after.OperationalCost, 1e-9)
	assert.InDelta(t, before.TotalHoursSaved, after.TotalHoursSaved, 1e-9)
}

func TestImportFileSameLineTwice(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	line := `{"kind":"daily_cost","date":"2026-03-01","costs":{"google":1}}` + "\n"
	path := writeFile(t, t.TempDir(), "costs.jsonl", line+line)

	st, err := NewImporter(d).ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, st.DailyCosts)
	_, costs := countRows(t, d)
	assert.Equal(t, 2, costs)
}

func TestImportFileRemovedForgetsOffset(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	path := writeFile(t, t.TempDir(), "a.jsonl", restartJSONL)
	im := NewImporter(d)
	_, err := im.ImportFile(path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	_, err = im.ImportFile(path)
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Zero(t, im.offset(path))

	offsets, err := d.LoadImportOffsets()
	require.NoError(t, err)
	assert.NotContains(t, offsets, offsetKey(path))
}

func TestSourceKey(t *testing.T) {
	a := sourceKey("/x/a.jsonl", 0, `{"kind":"trace"}`)
	assert.Len(t, a, 16)
	assert.Equal(t, a, sourceKey("/x/a.jsonl", 0, `{"kind":"trace"}`+"\r"))
	assert.NotEqual(t, a, sourceKey("/x/a.jsonl", 17, `{"kind":"trace"}`))
	assert.NotEqual(t, a, sourceKey("/x/b.jsonl", 0, `{"kind":"trace"}`))
	assert.NotEqual(t, a, sourceKey("/x/a.jsonl", 0, `{"kind":"agent"}`))
}

func TestImportFileMissing(t *testing.T) {
	im := NewImporter(dbtest.OpenTestDB(t))
	_, err := im.ImportFile(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestImportPaths(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	im := NewImporter(d)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.jsonl", `{"kind":"agent","id":"forge"}`+"\n")
	b := writeFile(t, dir, "b.JSONL", `{"kind":"agent","id":"scribe"}`+"\n")
	txt := writeFile(t, dir, "notes.txt", `{"kind":"agent","id":"ignored"}`+"\n")
	missing := filepath.Join(dir, "gone.jsonl")

	st := im.ImportPaths([]string{a, b, txt, missing})
	assert.Equal(t, Stats{Files: 2, Agents: 2}, st)
	assert.Equal(t, 2, st.Records())
}

func TestImportDir(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	im := NewImporter(d)
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", `{"kind":"agent","id":"forge"}`+"\n")
	writeFile(t, dir, filepath.Join("nested", "b.jsonl"),
		`{"kind":"agent","id":"scribe"}`+"\n")

	st, err := im.ImportDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Files)
	assert.Equal(t, 2, st.Agents)
}

func TestIsImportable(t *testing.T) {
	assert.True(t, IsImportable("/x/a.jsonl"))
	assert.True(t, IsImportable("A.JSONL"))
	assert.False(t, IsImportable("a.json"))
	assert.False(t, IsImportable("jsonl"))
}

func TestStatsAdd(t *testing.T) {
	s := Stats{Files: 1, Agents: 2}
	s.Add(Stats{Files: 1, Traces: 3, Skipped: 1, Failed: 2})
	assert.Equal(t, Stats{
		Files: 2, Agents: 2, Traces: 3, Skipped: 1, Failed: 2,
	}, s)
}

func TestParseFunctions(t *testing.T) {
	a, err := ParseAgent(`{"id":"forge","tasksCompleted":7}`)
	require.NoError(t, err)
	assert.Equal(t, "forge", a.ID)
	assert.Equal(t, 7, a.TasksCompleted)

	tr, err := ParseTrace(`{"agentId":"forge","createdAt":"2026-03-01T00:00:00Z","spans":[{"usage":{"output_tokens":9}}]}`)
	require.NoError(t, err)
	assert.Equal(t, "forge", tr.AgentID)
	require.Len(t, tr.Spans, 1)
	assert.Equal(t, int64(9), tr.Spans[0].OutputTokens)

	_, err = ParseTrace(`{"spans":"not json"}`)
	assert.Error(t, err)

	c, err := ParseDailyCost(`{"date":"2026-03-01","costs":{"google":3,"note":"x"}}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"google": 3}, c.Costs)

	for _, raw := range []string{"", "[]", "42", "{oops"} {
		_, err := ParseAgent(raw)
		assert.ErrorIs(t, err, ErrNotObject, "input %q", raw)
	}
}
