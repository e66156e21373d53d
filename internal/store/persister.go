package store

import (
	"context"
	"fmt"
	"time"

	"sjsage522/feedharvester/helpers"
	"sjsage522/feedharvester/internal/crawler"
	"sjsage522/feedharvester/logger"
	errs "sjsage522/feedharvester/pkg/errors"
)

// Persister commits batches at the batch boundary. A failed batch is logged,
// journaled and counted as zero new rows; it is never retried and never
// stops the run.
type Persister struct {
	store    Store
	log      *logger.Logger
	failures helpers.LoggerInterface
	failed   int
}

// NewPersister creates a persister over store
func NewPersister(store Store) *Persister {
	return &Persister{
		store:    store,
		log:      logger.ForStore(),
		failures: helpers.NopLogger{},
	}
}

// SetLogger replaces the persister's logger
func (p *Persister) SetLogger(l *logger.Logger) {
	p.log = l
}

// SetFailureLog sets where failed batches are journaled
func (p *Persister) SetFailureLog(f helpers.LoggerInterface) {
	p.failures = f
}

// Failed returns the number of batches that could not be committed
func (p *Persister) Failed() int {
	return p.failed
}

// Commit inserts the batch and returns the number of newly stored rows.
// Duplicate IDs already in storage are not counted.
func (p *Persister) Commit(ctx context.Context, batch crawler.Batch) int {
	if batch.Len() == 0 {
		return 0
	}

	first, last := batch.IDRange()
	start := time.Now()

	inserted, err := p.store.InsertBatch(ctx, batch.Records)
	if err != nil {
		p.failed++
		perr := errs.NewPersistence("store", "batch insert failed", err)
		p.log.Error().
			Err(perr).
			Int("batch_seq", batch.Seq).
			Int("batch_size", batch.Len()).
			Int64("first_id", first).
			Int64("last_id", last).
			Msg("Failed to commit batch")
		p.failures.LogError(fmt.Sprintf("batch %d ids %d..%d", batch.Seq, first, last), perr)
		return 0
	}

	p.log.Info().
		Int("batch_seq", batch.Seq).
		Int("batch_size", batch.Len()).
		Int("inserted", inserted).
		Int("duplicates", batch.Len()-inserted).
		Dur("duration", time.Since(start)).
		Msg("Committed batch")
	return inserted
}
