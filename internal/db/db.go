package db

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wesm/revenueos/internal/feed"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a row with the same source key
// is already stored.
var ErrDuplicate = errors.New("duplicate")

// DB manages a write connection and a read-only pool.
type DB struct {
	writer *sql.DB
	reader *sql.DB
	mu     sync.Mutex // serializes writes

	pubMu sync.RWMutex
	pub   feed.Publisher
}

// SetPublisher attaches the change feed. Every committed write
// publishes one event. Nil disables publishing.
func (db *DB) SetPublisher(p feed.Publisher) {
	db.pubMu.Lock()
	defer db.pubMu.Unlock()
	db.pub = p
}

func (db *DB) publish(table string, op feed.Op, key string) {
	db.pubMu.RLock()
	p := db.pub
	db.pubMu.RUnlock()
	if p == nil {
		return
	}
	p.Publish(feed.Event{Table: table, Op: op, Key: key})
}

// makeDSN builds a SQLite connection string with shared pragmas.
func makeDSN(path string, readOnly bool) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "ON")
	params.Set("_cache_size", "-16000")
	if readOnly {
		params.Set("mode", "ro")
	} else {
		params.Set("_synchronous", "NORMAL")
	}
	return path + "?" + params.Encode()
}

// Open creates or opens a SQLite database at the given path.
// It configures WAL mode and returns a DB with separate writer
// and reader connections.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	writer, err := sql.Open("sqlite3", makeDSN(path, false))
	if err != nil {
		return nil, fmt.Errorf("opening writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	// The schema must exist before a read-only connection can
	// open the file.
	db := &DB{writer: writer}
	if err := db.init(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	reader, err := sql.Open("sqlite3", makeDSN(path, true))
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("opening reader: %w", err)
	}
	reader.SetMaxOpenConns(4)
	db.reader = reader
	return db, nil
}

// ensureColumn adds a column if it doesn't already exist.
func (db *DB) ensureColumn(
	table, column, definition string,
) error {
	var count int
	err := db.writer.QueryRow(
		fmt.Sprintf(
			"SELECT count(*) FROM pragma_table_info('%s')"+
				" WHERE name='%s'",
			table, column,
		),
	).Scan(&count)
	if err != nil {
		return fmt.Errorf(
			"checking column %s.%s: %w", table, column, err,
		)
	}
	if count > 0 {
		return nil
	}
	_, err = db.writer.Exec(fmt.Sprintf(
		"ALTER TABLE %s ADD COLUMN %s %s",
		table, column, definition,
	))
	return err
}

func (db *DB) init() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, err := db.writer.Exec(schemaSQL); err != nil {
		return err
	}

	// Migration: databases created before assignment counts
	// were tracked lack tasks_assigned.
	if err := db.ensureColumn(
		"agents", "tasks_assigned", "INTEGER NOT NULL DEFAULT 0",
	); err != nil {
		return fmt.Errorf("adding tasks_assigned column: %w", err)
	}

	// Migration: imported cost rows carry a source key so a
	// re-read line is not stored twice.
	if err := db.ensureColumn(
		"daily_costs", "source", "TEXT",
	); err != nil {
		return fmt.Errorf("adding source column: %w", err)
	}
	if _, err := db.writer.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_daily_costs_source
		ON daily_costs(source) WHERE source IS NOT NULL`,
	); err != nil {
		return fmt.Errorf("creating source index: %w", err)
	}
	return nil
}

// Close closes both writer and reader connections.
func (db *DB) Close() error {
	return errors.Join(db.writer.Close(), db.reader.Close())
}

// Update executes fn within a write lock and transaction.
// The transaction is committed if fn returns nil, rolled back
// otherwise.
func (db *DB) Update(fn func(tx *sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.writer.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Reader returns the read-only connection pool.
func (db *DB) Reader() *sql.DB {
	return db.reader
}
