package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"sjsage522/feedharvester/internal/crawler"
)

// SQLite stores records in a local database file.
// All methods are safe for concurrent use.
type SQLite struct {
	db *sql.DB
	mu sync.RWMutex
}

// Ensure SQLite implements Store
var _ Store = (*SQLite)(nil)

// memSeq names in-memory databases so that each store gets its own
var memSeq atomic.Int64

// OpenSQLite opens the database at path and creates the table if needed.
// ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	connStr := path
	if path == ":memory:" {
		connStr = fmt.Sprintf("file:feedharvester-mem%d?mode=memory&cache=shared", memSeq.Add(1))
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &SQLite{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLite) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feed_posts (
		id INTEGER PRIMARY KEY CHECK (id > 0),
		author TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME,
		reply_count INTEGER,
		share_count INTEGER,
		like_count INTEGER,
		ingested_on DATE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_feed_posts_created_at ON feed_posts(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_feed_posts_author ON feed_posts(author);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// InsertBatch writes the records in one transaction. Only an existing ID is
// skipped; any other constraint violation fails the whole batch. New rows are
// counted from rows affected.
func (s *SQLite) InsertBatch(ctx context.Context, records []crawler.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO feed_posts (
			id, author, content, created_at, reply_count, share_count, like_count, ingested_on
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, r.ID, r.Author, r.Content, nullTime(r.CreatedAt),
			nullInt(r.ReplyCount), nullInt(r.ShareCount), nullInt(r.LikeCount), r.IngestedAt)
		if err != nil {
			return 0, fmt.Errorf("insert record %d: %w", r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return inserted, nil
}

func (s *SQLite) LatestID(ctx context.Context) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM feed_posts ORDER BY created_at DESC NULLS LAST, id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query latest id: %w", err)
	}
	return id, true, nil
}

func (s *SQLite) Get(ctx context.Context, id int64) (*crawler.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM feed_posts WHERE id = ?`, id)
	rec, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %d: %w", id, err)
	}
	return rec, nil
}

func (s *SQLite) List(ctx context.Context, limit int) ([]crawler.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM feed_posts ORDER BY created_at DESC NULLS LAST, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []crawler.Record
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feed_posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLite(row rowScanner) (*crawler.Record, error) {
	var (
		rec                   crawler.Record
		createdAt             sql.NullTime
		replies, shares, like sql.NullInt64
		ingested              sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.Author, &rec.Content, &createdAt, &replies, &shares, &like, &ingested)
	if err != nil {
		return nil, err
	}

	if createdAt.Valid {
		t := createdAt.Time.UTC()
		rec.CreatedAt = &t
	}
	rec.ReplyCount = int64Ptr(replies)
	rec.ShareCount = int64Ptr(shares)
	rec.LikeCount = int64Ptr(like)
	if ingested.Valid {
		rec.IngestedAt = ingested.Time
	}
	return &rec, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullInt(n *int64) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
