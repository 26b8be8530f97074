package statuslog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Registers the "sqlite" driver.
)

const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS status_messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at INTEGER NOT NULL,
	message    TEXT    NOT NULL
)`

	insertQuery = `INSERT INTO status_messages (created_at, message) VALUES (?, ?)`

	trimQuery = `DELETE FROM status_messages
WHERE id NOT IN (SELECT id FROM status_messages ORDER BY id DESC LIMIT ?)`

	selectQuery = `SELECT created_at, message FROM status_messages ORDER BY id ASC`
)

// SQLiteLog stores status messages in a SQLite database.
type SQLiteLog struct {
	// db is the open database handle.
	db *sql.DB
	// limit is the maximum number of kept rows.
	limit int
}

// OpenSQLite opens (and creates when needed) the status database at path.
func OpenSQLite(ctx context.Context, path string, limit int) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	for _, query := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		createTableQuery,
	} {
		if _, err = db.ExecContext(ctx, query); err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("prepare sqlite %s: %w", path, err)
		}
	}

	return &SQLiteLog{
		db:    db,
		limit: max(limit, 1),
	}, nil
}

// Add inserts a message and trims the table to the limit.
func (l *SQLiteLog) Add(ctx context.Context, message string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status insert: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx, insertQuery, time.Now().UnixNano(), message); err != nil {
		return fmt.Errorf("insert status message: %w", err)
	}

	if _, err = tx.ExecContext(ctx, trimQuery, l.limit); err != nil {
		return fmt.Errorf("trim status messages: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit status insert: %w", err)
	}

	return nil
}

// Messages returns the kept messages, oldest first.
func (l *SQLiteLog) Messages(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, selectQuery)
	if err != nil {
		return nil, fmt.Errorf("query status messages: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry

	for rows.Next() {
		var (
			createdAt int64
			entry     Entry
		)

		if err = rows.Scan(&createdAt, &entry.Message); err != nil {
			return nil, fmt.Errorf("scan status message: %w", err)
		}

		entry.Time = time.Unix(0, createdAt)
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status messages: %w", err)
	}

	return entries, nil
}

// Close releases the database handle.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}
