package db

import (
	"database/sql"
	"fmt"
)

// LoadImportOffsets returns the persisted import positions as a
// map from file path to byte offset.
func (db *DB) LoadImportOffsets() (map[string]int64, error) {
	rows, err := db.reader.Query(
		"SELECT file_path, byte_offset FROM import_offsets",
	)
	if err != nil {
		return nil, fmt.Errorf("loading import offsets: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var path string
		var offset int64
		if err := rows.Scan(&path, &offset); err != nil {
			return nil, fmt.Errorf("scanning import offset: %w", err)
		}
		result[path] = offset
	}
	return result, rows.Err()
}

// SetImportOffset records how far path has been imported and the
// file size seen at that time.
func (db *DB) SetImportOffset(path string, offset, size int64) error {
	return db.Update(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO import_offsets (file_path, byte_offset, size, updated_at)
			VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
			ON CONFLICT(file_path) DO UPDATE SET
				byte_offset = excluded.byte_offset,
				size = excluded.size,
				updated_at = excluded.updated_at`,
			path, offset, size,
		)
		if err != nil {
			return fmt.Errorf("saving import offset %s: %w", path, err)
		}
		return nil
	})
}

// DeleteImportOffset forgets path, so its next import starts
// from the beginning.
func (db *DB) DeleteImportOffset(path string) error {
	return db.Update(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"DELETE FROM import_offsets WHERE file_path = ?", path,
		)
		return err
	})
}
