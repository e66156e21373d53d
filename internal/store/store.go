// Package store persists feed records idempotently, keyed on the post ID.
package store

import (
	"context"
	"errors"
	"strings"

	"sjsage522/feedharvester/internal/crawler"
)

// ErrNotFound is returned by Get when no row has the requested ID
var ErrNotFound = errors.New("record not found")

// Store is a durable record table. Rows are inserted once and never updated.
type Store interface {
	// InsertBatch writes records in one transaction, ignoring IDs that already
	// exist, and returns the number of rows that were new
	InsertBatch(ctx context.Context, records []crawler.Record) (int, error)
	// LatestID returns the ID of the most recently published record
	LatestID(ctx context.Context) (int64, bool, error)
	Get(ctx context.Context, id int64) (*crawler.Record, error)
	// List returns up to limit records, newest first
	List(ctx context.Context, limit int) ([]crawler.Record, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Open selects a backend from the DSN: postgres:// and postgresql:// URLs
// use Postgres, anything else is a SQLite path
func Open(ctx context.Context, dsn string, maxConns int) (Store, error) {
	if isPostgresDSN(dsn) {
		return OpenPostgres(ctx, dsn, maxConns)
	}
	return OpenSQLite(dsn)
}

func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}
