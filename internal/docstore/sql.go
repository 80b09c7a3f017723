package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Dialect describes the SQL differences between supported databases.
type Dialect struct {
	Name        string
	Placeholder func(n int) string
}

var (
	Postgres = Dialect{Name: "postgres", Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }}
	SQLite   = Dialect{Name: "sqlite", Placeholder: func(int) string { return "?" }}
)

// SQLBackend stores one row per collection in a documents table.
// The version column makes Save a compare-and-swap, so several API
// processes can share one database.
type SQLBackend struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLBackend creates the documents table if it does not exist.
func NewSQLBackend(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLBackend, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT PRIMARY KEY,
			version    BIGINT NOT NULL,
			body       TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return &SQLBackend{db: db, dialect: dialect}, nil
}

func (b *SQLBackend) ph(n int) string { return b.dialect.Placeholder(n) }

func (b *SQLBackend) Load(ctx context.Context, collection string) (Snapshot, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT version, body FROM documents WHERE collection = `+b.ph(1), collection)
	var (
		snap Snapshot
		body string
	)
	if err := row.Scan(&snap.Version, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, nil
		}
		return Snapshot{}, err
	}
	snap.Data = []byte(body)
	return snap, nil
}

func (b *SQLBackend) Save(ctx context.Context, collection string, data []byte, baseVersion int64) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if baseVersion == 0 {
		res, err = b.db.ExecContext(ctx, `
			INSERT INTO documents (collection, version, body)
			VALUES (`+b.ph(1)+`, 1, `+b.ph(2)+`)
			ON CONFLICT (collection) DO NOTHING
		`, collection, string(data))
	} else {
		res, err = b.db.ExecContext(ctx, `
			UPDATE documents
			SET body = `+b.ph(1)+`, version = version + 1
			WHERE collection = `+b.ph(2)+` AND version = `+b.ph(3),
			string(data), collection, baseVersion)
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrStaleVersion
	}
	return baseVersion + 1, nil
}

func (b *SQLBackend) Close() error { return b.db.Close() }
