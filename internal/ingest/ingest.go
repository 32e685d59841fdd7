// Package ingest imports agents, traces, and daily cost rows from
// JSONL files. Each line is an object whose "kind" field selects
// the record type.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/wesm/revenueos/internal/db"
	"github.com/wesm/revenueos/internal/metrics"
)

// Record kinds.
const (
	KindAgent     = "agent"
	KindTrace     = "trace"
	KindDailyCost = "daily_cost"
)

// Store is the subset of *db.DB the importer writes to. Import
// offsets are kept in the store so a restarted importer resumes
// where the last one stopped.
type Store interface {
	UpsertAgent(a db.Agent) error
	InsertTrace(t *db.Trace) error
	InsertDailyCost(c *db.DailyCost) error
	LoadImportOffsets() (map[string]int64, error)
	SetImportOffset(path string, offset, size int64) error
	DeleteImportOffset(path string) error
}

// Stats counts what an import did.
type Stats struct {
	Files      int `json:"files"`
	Agents     int `json:"agents"`
	Traces     int `json:"traces"`
	DailyCosts int `json:"daily_costs"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Files += o.Files
	s.Agents += o.Agents
	s.Traces += o.Traces
	s.DailyCosts += o.DailyCosts
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

// Records returns the number of rows written.
func (s Stats) Records() int {
	return s.Agents + s.Traces + s.DailyCosts
}

// Importer writes parsed lines to a Store. It records how far it
// has read each file so a re-import of an appended file only
// processes the new lines, across restarts too.
type Importer struct {
	store Store

	mu      sync.Mutex
	offsets map[string]int64
}

// NewImporter returns an importer writing to store, resuming from
// the offsets store has recorded.
func NewImporter(store Store) *Importer {
	offsets := make(map[string]int64)
	if loaded, err := store.LoadImportOffsets(); err == nil {
		offsets = loaded
	} else {
		log.Printf("loading import offsets: %v", err)
	}
	return &Importer{
		store:   store,
		offsets: offsets,
	}
}

// offset returns the byte offset the next import of path starts
// from.
func (im *Importer) offset(path string) int64 {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.offsets[offsetKey(path)]
}

// offsetKey names path the same way however it was spelled.
func offsetKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// sourceKey identifies the line at offset in the file keyed by
// file. Rows built from id-less lines take it as their identity,
// so reading the same line again overwrites or skips instead of
// adding a copy.
func sourceKey(file string, offset int64, line string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00", file, offset)
	h.Write([]byte(strings.TrimSpace(line)))
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// IsImportable reports whether path names a JSONL file.
func IsImportable(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".jsonl")
}

// ImportFile reads the unread part of one JSONL file.
// Unparseable lines and lines of unknown kind are counted as
// skipped; lines the store rejects are counted as failed. A final
// line with no newline that does not parse is left for the next
// import, since a writer may still be appending it. A file that
// shrank is read again from the start, and a file that vanished
// is forgotten. Only an unreadable file is an error.
func (im *Importer) ImportFile(path string) (Stats, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	key := offsetKey(path)
	f, err := os.Open(path)
	if err != nil {
		if _, ok := im.offsets[key]; ok && errors.Is(err, os.ErrNotExist) {
			delete(im.offsets, key)
			if derr := im.store.DeleteImportOffset(key); derr != nil {
				log.Printf("import %s: clearing offset: %v", path, derr)
			}
		}
		return Stats{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Stats{}, fmt.Errorf("stat %s: %w", path, err)
	}
	stored := im.offsets[key]
	start := stored
	if info.Size() < start {
		log.Printf("import %s: file truncated, rereading", path)
		start = 0
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return Stats{}, fmt.Errorf("seeking %s: %w", path, err)
	}

	st := Stats{Files: 1}
	lr := newLineReader(f, maxLineSize)
	deferred := false
	var done int64
	for {
		before := lr.consumed
		line, terminated, ok := lr.next()
		if !ok {
			break
		}
		if !terminated && !gjson.Valid(strings.TrimSpace(line)) {
			deferred = true
			done = before
			break
		}
		src := sourceKey(key, start+before, line)
		if err := im.importLine(line, src, &st); err != nil {
			if errors.Is(err, errSkip) {
				st.Skipped++
				continue
			}
			st.Failed++
			log.Printf("import %s: %v", path, err)
		}
	}
	if !deferred {
		done = lr.consumed
	}
	st.Skipped += lr.oversized
	if next := start + done; next != stored {
		im.offsets[key] = next
		if err := im.store.SetImportOffset(
			key, next, info.Size(),
		); err != nil {
			log.Printf("import %s: saving offset: %v", path, err)
		}
	}
	if err := lr.Err(); err != nil {
		return st, fmt.Errorf("reading %s: %w", path, err)
	}
	return st, nil
}

// ImportPaths imports every importable file among paths. Errors
// on individual files are logged and counted as failed so one bad
// file does not stop the rest.
func (im *Importer) ImportPaths(paths []string) Stats {
	var total Stats
	for _, p := range paths {
		if !IsImportable(p) {
			continue
		}
		st, err := im.ImportFile(p)
		if err != nil {
			log.Printf("import error: %v", err)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			st.Failed++
		}
		total.Add(st)
	}
	return total
}

// ImportDir imports every JSONL file under root, in lexical order.
func (im *Importer) ImportDir(root string) (Stats, error) {
	var paths []string
	err := filepath.WalkDir(root,
		func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // skip unreadable entries
			}
			if !d.IsDir() && IsImportable(path) {
				paths = append(paths, path)
			}
			return nil
		})
	if err != nil {
		return Stats{}, fmt.Errorf("walking %s: %w", root, err)
	}
	return im.ImportPaths(paths), nil
}

var errSkip = errors.New("skip line")

// ErrNotObject is returned by the Parse functions when the input
// is not a JSON object.
var ErrNotObject = errors.New("not a JSON object")

func parseObject(raw string) (gjson.Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return gjson.Result{}, ErrNotObject
	}
	v := gjson.Parse(raw)
	if !v.IsObject() {
		return gjson.Result{}, ErrNotObject
	}
	return v, nil
}

// ParseAgent decodes one agent object. The kind field is ignored.
func ParseAgent(raw string) (db.Agent, error) {
	v, err := parseObject(raw)
	if err != nil {
		return db.Agent{}, err
	}
	return parseAgent(v), nil
}

// ParseTrace decodes one trace object, accepting the same key
// spellings as the importer.
func ParseTrace(raw string) (db.Trace, error) {
	v, err := parseObject(raw)
	if err != nil {
		return db.Trace{}, err
	}
	return parseTrace(v)
}

// ParseDailyCost decodes one daily cost object.
func ParseDailyCost(raw string) (db.DailyCost, error) {
	v, err := parseObject(raw)
	if err != nil {
		return db.DailyCost{}, err
	}
	return parseDailyCost(v), nil
}

// importLine writes one record. src keys traces without an id
// and every daily cost row.
func (im *Importer) importLine(
	line, src string, st *Stats,
) error {
	v, err := parseObject(line)
	if err != nil {
		return errSkip
	}

	kind := v.Get("kind").String()
	switch kind {
	case KindAgent:
		if err := im.store.UpsertAgent(parseAgent(v)); err != nil {
			return err
		}
		st.Agents++
	case KindTrace:
		t, err := parseTrace(v)
		if err != nil {
			return err
		}
		if t.ID == "" {
			t.ID = src
		}
		if err := im.store.InsertTrace(&t); err != nil {
			return err
		}
		st.Traces++
	case KindDailyCost:
		c := parseDailyCost(v)
		c.Source = src
		if err := im.store.InsertDailyCost(&c); err != nil {
			if errors.Is(err, db.ErrDuplicate) {
				return errSkip
			}
			return err
		}
		st.DailyCosts++
	default:
		return errSkip
	}
	metrics.Imported.WithLabelValues(kind).Inc()
	return nil
}

// first returns the first of keys present in v.
func first(v gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

func parseAgent(v gjson.Result) db.Agent {
	return db.Agent{
		ID:             v.Get("id").String(),
		Name:           v.Get("name").String(),
		Emoji:          v.Get("emoji").String(),
		Role:           v.Get("role").String(),
		Status:         v.Get("status").String(),
		TasksCompleted: int(first(v, "tasks_completed", "tasksCompleted").Int()),
		TasksAssigned:  int(first(v, "tasks_assigned", "tasksAssigned").Int()),
		ErrorRate:      first(v, "error_rate", "errorRate").Float(),
		TotalCost:      first(v, "total_cost", "totalCost").Float(),
	}
}

func parseTrace(v gjson.Result) (db.Trace, error) {
	t := db.Trace{
		ID:         v.Get("id").String(),
		AgentID:    first(v, "agent_id", "agentId").String(),
		Status:     v.Get("status").String(),
		CreatedAt:  first(v, "created_at", "createdAt").String(),
		DurationMs: first(v, "duration_ms", "durationMs").Int(),
	}
	if e := v.Get("error"); e.Exists() && e.Type != gjson.Null {
		msg := e.String()
		t.Error = &msg
	}

	// Spans arrive either as an array or as a JSON-encoded string.
	raw := v.Get("spans")
	payload := raw.Raw
	if raw.Type == gjson.String {
		payload = raw.String()
	}
	spans, err := db.DecodeSpans(payload)
	if err != nil {
		return db.Trace{}, fmt.Errorf("trace %q: %w", t.ID, err)
	}
	t.Spans = spans
	return t, nil
}

func parseDailyCost(v gjson.Result) db.DailyCost {
	return db.DailyCost{
		Date:  v.Get("date").String(),
		Costs: db.DecodeCosts(v.Get("costs").Raw),
		Total: v.Get("total").Float(),
	}
}
