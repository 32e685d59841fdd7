package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wesm/revenueos/internal/feed"
)

// agentCols is the column list for agent queries. Keep in sync
// with scanAgentRow.
const agentCols = `id, name, emoji, role, status,
	tasks_completed, tasks_assigned, error_rate, total_cost,
	updated_at`

// Agent represents a row in the agents table.
type Agent struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Emoji          string  `json:"emoji"`
	Role           string  `json:"role"`
	Status         string  `json:"status"`
	TasksCompleted int     `json:"tasks_completed"`
	TasksAssigned  int     `json:"tasks_assigned"`
	ErrorRate      float64 `json:"error_rate"`
	TotalCost      float64 `json:"total_cost"`
	UpdatedAt      string  `json:"updated_at"`
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows,
// allowing a single scan helper for both.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgentRow(rs rowScanner) (Agent, error) {
	var a Agent
	err := rs.Scan(
		&a.ID, &a.Name, &a.Emoji, &a.Role, &a.Status,
		&a.TasksCompleted, &a.TasksAssigned, &a.ErrorRate,
		&a.TotalCost, &a.UpdatedAt,
	)
	return a, err
}

// UpsertAgent inserts or replaces an agent row. It publishes an
// insert for new IDs and an update otherwise.
func (db *DB) UpsertAgent(a Agent) error {
	if a.ID == "" {
		return fmt.Errorf("upserting agent: empty id")
	}
	existed := false
	err := db.Update(func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRow(
			"SELECT count(*) FROM agents WHERE id = ?", a.ID,
		).Scan(&n); err != nil {
			return fmt.Errorf("checking agent %s: %w", a.ID, err)
		}
		existed = n > 0
		_, err := tx.Exec(`
			INSERT INTO agents (id, name, emoji, role, status,
				tasks_completed, tasks_assigned, error_rate,
				total_cost, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?,
				strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				emoji = excluded.emoji,
				role = excluded.role,
				status = excluded.status,
				tasks_completed = excluded.tasks_completed,
				tasks_assigned = excluded.tasks_assigned,
				error_rate = excluded.error_rate,
				total_cost = excluded.total_cost,
				updated_at = excluded.updated_at`,
			a.ID, a.Name, a.Emoji, a.Role, a.Status,
			a.TasksCompleted, a.TasksAssigned, a.ErrorRate,
			a.TotalCost,
		)
		if err != nil {
			return fmt.Errorf("upserting agent %s: %w", a.ID, err)
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
	db.publish(feed.TableAgents, op, a.ID)
	return nil
}

// GetAgent returns a single agent by ID, or ErrNotFound.
func (db *DB) GetAgent(ctx context.Context, id string) (Agent, error) {
	row := db.reader.QueryRowContext(ctx,
		"SELECT "+agentCols+" FROM agents WHERE id = ?", id,
	)
	a, err := scanAgentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("getting agent %s: %w", id, err)
	}
	return a, nil
}

// ListAgents returns all agents ordered by ID.
func (db *DB) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := db.reader.QueryContext(ctx,
		"SELECT "+agentCols+" FROM agents ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	agents := []Agent{}
	for rows.Next() {
		a, err := scanAgentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agents: %w", err)
	}
	return agents, nil
}

// DeleteAgent removes an agent and its traces. Returns
// ErrNotFound when no agent has the ID.
func (db *DB) DeleteAgent(id string) error {
	err := db.Update(func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM agents WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting agent %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("deleting agent %s: %w", id, err)
		}
		if n == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec(
			"DELETE FROM traces WHERE agent_id = ?", id,
		); err != nil {
			return fmt.Errorf("deleting traces for %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	db.publish(feed.TableAgents, feed.OpDelete, id)
	return nil
}
