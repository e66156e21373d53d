package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sjsage522/feedharvester/internal/crawler"
	"sjsage522/feedharvester/logger"
)

const insertBatchPostgres = `
INSERT INTO feed_posts (id, author, content, created_at, reply_count, share_count, like_count, ingested_on)
SELECT * FROM unnest($1::bigint[], $2::text[], $3::text[], $4::timestamp[], $5::bigint[], $6::bigint[], $7::bigint[], $8::date[])
ON CONFLICT (id) DO NOTHING
RETURNING id`

const selectColumns = `id, author, content, created_at, reply_count, share_count, like_count, ingested_on`

// Postgres stores records in a pgx connection pool
type Postgres struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// Ensure Postgres implements Store
var _ Store = (*Postgres)(nil)

// OpenPostgres connects a pool of at most maxConns connections and migrates
// the schema
func OpenPostgres(ctx context.Context, dsn string, maxConns int) (*Postgres, error) {
	log := logger.ForStore()

	version, dirty, err := RunMigrations(dsn)
	if err != nil {
		return nil, err
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Database migrations applied")

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 5
	}
	cfg.MaxConns = int32(maxConns)
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &Postgres{pool: pool, log: log}, nil
}

// InsertBatch inserts all records with one statement inside a transaction.
// RETURNING yields only the rows that did not conflict.
func (s *Postgres) InsertBatch(ctx context.Context, records []crawler.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	n := len(records)
	ids := make([]int64, n)
	authors := make([]string, n)
	contents := make([]string, n)
	createdAt := make([]*time.Time, n)
	replies := make([]*int64, n)
	shares := make([]*int64, n)
	likes := make([]*int64, n)
	ingested := make([]time.Time, n)
	for i, r := range records {
		ids[i] = r.ID
		authors[i] = r.Author
		contents[i] = r.Content
		createdAt[i] = r.CreatedAt
		replies[i] = r.ReplyCount
		shares[i] = r.ShareCount
		likes[i] = r.LikeCount
		ingested[i] = r.IngestedAt
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, insertBatchPostgres, ids, authors, contents, createdAt, replies, shares, likes, ingested)
	if err != nil {
		return 0, fmt.Errorf("failed to insert batch: %w", err)
	}
	inserted := 0
	for rows.Next() {
		inserted++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to insert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return inserted, nil
}

func (s *Postgres) LatestID(ctx context.Context) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM feed_posts ORDER BY created_at DESC NULLS LAST, id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query latest id: %w", err)
	}
	return id, true, nil
}

func (s *Postgres) Get(ctx context.Context, id int64) (*crawler.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM feed_posts WHERE id = $1`, id)
	rec, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %d: %w", id, err)
	}
	return rec, nil
}

func (s *Postgres) List(ctx context.Context, limit int) ([]crawler.Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM feed_posts ORDER BY created_at DESC NULLS LAST, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []crawler.Record
	for rows.Next() {
		rec, err := scanPostgres(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM feed_posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgres(row pgx.Row) (*crawler.Record, error) {
	var rec crawler.Record
	err := row.Scan(&rec.ID, &rec.Author, &rec.Content, &rec.CreatedAt,
		&rec.ReplyCount, &rec.ShareCount, &rec.LikeCount, &rec.IngestedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
