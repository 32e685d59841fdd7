package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/wesm/revenueos/internal/feed"
	"github.com/wesm/revenueos/internal/roi"
	"github.com/wesm/revenueos/internal/timeutil"
)

const (
	// DefaultTraceLimit is the default number of traces returned.
	DefaultTraceLimit = 500
	// MaxTraceLimit is the maximum number of traces returned.
	MaxTraceLimit = 5000
)

const traceCols = `id, agent_id, status, created_at, duration_ms,
	error, spans`

// Trace represents a row in the traces table with its span
// payload already decoded.
type Trace struct {
	ID         string     `json:"id"`
	AgentID    string     `json:"agent_id"`
	Status     string     `json:"status"`
	CreatedAt  string     `json:"created_at"`
	DurationMs int64      `json:"duration_ms"`
	Error      *string    `json:"error,omitempty"`
	Spans      []roi.Span `json:"spans"`
}

// TraceFilter restricts ListTraces. Zero values mean no filter.
type TraceFilter struct {
	AgentID string
	From    string // inclusive, RFC3339 or YYYY-MM-DD
	To      string // inclusive, RFC3339 or YYYY-MM-DD
	Limit   int
}

func newTraceID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating trace id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// InsertTrace stores a trace, replacing any row with the same
// ID. An empty ID is generated and written back; an empty
// CreatedAt is rejected. CreatedAt is normalized to a fixed-width
// UTC form so range filters compare correctly.
func (db *DB) InsertTrace(t *Trace) error {
	if t.AgentID == "" {
		return fmt.Errorf("inserting trace: empty agent_id")
	}
	ts, ok := timeutil.Parse(t.CreatedAt)
	if !ok {
		return fmt.Errorf(
			"inserting trace: invalid created_at %q", t.CreatedAt,
		)
	}
	t.CreatedAt = timeutil.FormatSortable(ts)
	if t.ID == "" {
		id, err := newTraceID()
		if err != nil {
			return err
		}
		t.ID = id
	}
	spans, err := encodeSpans(t.Spans)
	if err != nil {
		return err
	}

	existed := false
	err = db.Update(func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRow(
			"SELECT count(*) FROM traces WHERE id = ?", t.ID,
		).Scan(&n); err != nil {
			return fmt.Errorf("checking trace %s: %w", t.ID, err)
		}
		existed = n > 0
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO traces
				(id, agent_id, status, created_at, duration_ms,
				 error, spans)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.AgentID, t.Status, t.CreatedAt,
			t.DurationMs, t.Error, spans,
		)
		if err != nil {
			return fmt.Errorf("inserting trace %s: %w", t.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	op := feed.OpInsert
	if existed {
		op = feed.OpUpdate
	}
	db.publish(feed.TableTraces, op, t.ID)
	return nil
}

// DeleteTrace removes a trace by ID, or returns ErrNotFound.
func (db *DB) DeleteTrace(id string) error {
	err := db.Update(func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM traces WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting trace %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("deleting trace %s: %w", id, err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	db.publish(feed.TableTraces, feed.OpDelete, id)
	return nil
}

// boundArg converts a filter bound to a comparable stored
// timestamp. Date-only upper bounds extend to the end of the day.
func boundArg(s string, upper bool) (string, error) {
	if upper && timeutil.IsDate(s) {
		return s + "T23:59:59.999Z", nil
	}
	t, ok := timeutil.Parse(s)
	if !ok {
		return "", fmt.Errorf("invalid time bound %q", s)
	}
	return timeutil.FormatSortable(t), nil
}

// ListTraces returns traces ordered by created_at then ID.
func (db *DB) ListTraces(
	ctx context.Context, f TraceFilter,
) ([]Trace, error) {
	var (
		preds []string
		args  []any
	)
	if f.AgentID != "" {
		preds = append(preds, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.From != "" {
		v, err := boundArg(f.From, false)
		if err != nil {
			return nil, err
		}
		preds = append(preds, "created_at >= ?")
		args = append(args, v)
	}
	if f.To != "" {
		v, err := boundArg(f.To, true)
		if err != nil {
			return nil, err
		}
		preds = append(preds, "created_at <= ?")
		args = append(args, v)
	}

	query := "SELECT " + traceCols + " FROM traces"
	if len(preds) > 0 {
		query += " WHERE " + strings.Join(preds, " AND ")
	}
	query += " ORDER BY created_at, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, min(f.Limit, MaxTraceLimit))
	}

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying traces: %w", err)
	}
	defer rows.Close()

	traces := []Trace{}
	for rows.Next() {
		var (
			t   Trace
			raw string
		)
		if err := rows.Scan(
			&t.ID, &t.AgentID, &t.Status, &t.CreatedAt,
			&t.DurationMs, &t.Error, &raw,
		); err != nil {
			return nil, fmt.Errorf("scanning trace: %w", err)
		}
		spans, err := DecodeSpans(raw)
		if err != nil {
			log.Printf("trace %s: %v", t.ID, err)
		}
		t.Spans = spans
		traces = append(traces, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating traces: %w", err)
	}
	return traces, nil
}
