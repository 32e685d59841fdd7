package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wesm/revenueos/internal/feed"
	"github.com/wesm/revenueos/internal/timeutil"
)

// DailyCost represents a row in the daily_costs table. Costs maps
// provider name to spend. Several rows may share a date. Source,
// when set, is a stable key for the record that produced the row;
// at most one row exists per Source.
type DailyCost struct {
	ID     int64              `json:"id"`
	Date   string             `json:"date"`
	Costs  map[string]float64 `json:"costs"`
	Total  float64            `json:"total"`
	Source string             `json:"source,omitempty"`
}

// ProviderCost returns the spend for provider, or 0.
func (c DailyCost) ProviderCost(provider string) float64 {
	return c.Costs[provider]
}

// InsertDailyCost appends a cost row and writes the assigned ID
// back. A zero Total is filled with the sum of Costs. If a row
// with the same Source exists, nothing is written, c.ID is set to
// the stored row and ErrDuplicate is returned.
func (db *DB) InsertDailyCost(c *DailyCost) error {
	if !timeutil.IsDate(c.Date) {
		return fmt.Errorf(
			"inserting daily cost: invalid date %q", c.Date,
		)
	}
	if c.Costs == nil {
		c.Costs = map[string]float64{}
	}
	if c.Total == 0 {
		for _, v := range c.Costs {
			c.Total += v
		}
	}
	costs, err := json.Marshal(c.Costs)
	if err != nil {
		return fmt.Errorf("encoding costs: %w", err)
	}

	var source any
	if c.Source != "" {
		source = c.Source
	}

	inserted := true
	err = db.Update(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO daily_costs (date, costs, total, source)
			VALUES (?, ?, ?, ?)
			ON CONFLICT DO NOTHING`,
			c.Date, string(costs), c.Total, source,
		)
		if err != nil {
			return fmt.Errorf("inserting daily cost: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			inserted = false
			return tx.QueryRow(
				"SELECT id FROM daily_costs WHERE source = ?",
				c.Source,
			).Scan(&c.ID)
		}
		c.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return err
	}
	if !inserted {
		return ErrDuplicate
	}
	db.publish(
		feed.TableDailyCosts, feed.OpInsert,
		strconv.FormatInt(c.ID, 10),
	)
	return nil
}

// ListDailyCosts returns cost rows with from <= date <= to,
// ordered by date then ID. Empty bounds are open.
func (db *DB) ListDailyCosts(
	ctx context.Context, from, to string,
) ([]DailyCost, error) {
	var (
		preds []string
		args  []any
	)
	if from != "" {
		preds = append(preds, "date >= ?")
		args = append(args, from)
	}
	if to != "" {
		preds = append(preds, "date <= ?")
		args = append(args, to)
	}
	query := "SELECT id, date, costs, total, COALESCE(source, '')" +
		" FROM daily_costs"
	if len(preds) > 0 {
		query += " WHERE " + strings.Join(preds, " AND ")
	}
	query += " ORDER BY date, id"

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying daily costs: %w", err)
	}
	defer rows.Close()

	out := []DailyCost{}
	for rows.Next() {
		var (
			c   DailyCost
			raw string
		)
		if err := rows.Scan(
			&c.ID, &c.Date, &raw, &c.Total, &c.Source,
		); err != nil {
			return nil, fmt.Errorf("scanning daily cost: %w", err)
		}
		c.Costs = DecodeCosts(raw)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily costs: %w", err)
	}
	return out, nil
}

// DecodeCosts parses a {provider: amount} object. Non-numeric
// values are dropped; invalid JSON yields an empty map.
func DecodeCosts(raw string) map[string]float64 {
	costs := map[string]float64{}
	if raw == "" {
		return costs
	}
	if !gjson.Valid(raw) {
		log.Printf("daily cost: invalid costs json")
		return costs
	}
	gjson.Parse(raw).ForEach(func(k, v gjson.Result) bool {
		if v.Type == gjson.Number {
			costs[k.String()] = v.Float()
		}
		return true
	})
	return costs
}
