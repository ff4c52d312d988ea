// Package sqlite implements the local cache driver on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// SQLite driver.
	_ "modernc.org/sqlite"
)

// DB is the sqlite-backed cache driver.
type DB struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS conversation (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	pinned INTEGER NOT NULL DEFAULT 0,
	owner TEXT NOT NULL DEFAULT '',
	created_ts INTEGER NOT NULL DEFAULT 0,
	last_message_ts INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_conversation_last_message_ts ON conversation (last_message_ts DESC);
`

// NewDB opens (and if needed bootstraps) the cache database at dsn.
func NewDB(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite db with dsn %q", dsn)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply cache schema")
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) execContext(ctx context.Context, stmt string, args ...any) error {
	_, err := d.db.ExecContext(ctx, stmt, args...)
	return err
}
