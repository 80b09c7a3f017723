package store

import (
	"context"
	"database/sql"
	"fmt"

	"campusconnect/internal/config"
	"campusconnect/internal/docstore"
)

// OpenDocuments builds the document store selected by STORE_BACKEND. The
// returned *sql.DB is nil for the file backend; it is owned by the store.
func OpenDocuments(ctx context.Context, cfg config.App) (*docstore.Store, *sql.DB, error) {
	switch cfg.StoreBackend {
	case "", "file":
		b, err := docstore.NewFileBackend(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return docstore.New(b), nil, nil
	case "postgres":
		db, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return sqlDocuments(ctx, db, docstore.Postgres)
	case "sqlite":
		db, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlDocuments(ctx, db, docstore.SQLite)
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func sqlDocuments(ctx context.Context, db *sql.DB, d docstore.Dialect) (*docstore.Store, *sql.DB, error) {
	b, err := docstore.NewSQLBackend(ctx, db, d)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return docstore.New(b), db, nil
}
