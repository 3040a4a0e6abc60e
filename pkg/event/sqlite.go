package event

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_kind_created ON events(kind, created_at);
`

// sqliteUploader stores each event record as one row, a batch per
// transaction. Useful where no object store is reachable.
type sqliteUploader struct {
	db   *sql.DB
	stmt *sql.Stmt
}

// NewSQLiteSink creates a batching sink backed by a local SQLite database.
func NewSQLiteSink(path string, opts Options) (Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite sink: %w", err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO events (kind, body, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	up := &sqliteUploader{db: db, stmt: stmt}
	return newChannelSink(up, opts), nil
}

func (u *sqliteUploader) Upload(ctx context.Context, kind string, payload []byte) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	createdAt := time.Now().UTC().Format(time.RFC3339Nano)
	stmt := tx.StmtContext(ctx, u.stmt)

	for _, line := range bytes.Split(payload, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		if _, err := stmt.ExecContext(ctx, kind, string(line), createdAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

// Close releases the prepared statement and the database handle. Called by
// the channel sink after its workers have drained.
func (u *sqliteUploader) Close() error {
	_ = u.stmt.Close()
	return u.db.Close()
}
