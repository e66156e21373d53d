package worker

import (
	"context"
	"errors"
	"time"

	"sjsage522/feedharvester/internal/crawler"
	"sjsage522/feedharvester/logger"
	errs "sjsage522/feedharvester/pkg/errors"
	"sjsage522/feedharvester/services/publisher"
)

// Producer emits batches of new records; *crawler.Paginator is one
type Producer interface {
	Run(ctx context.Context, out chan<- crawler.Batch) error
	Stats() crawler.RunStats
}

// Committer persists one batch and counts the batches it could not
// persist; *store.Persister is one
type Committer interface {
	Commit(ctx context.Context, batch crawler.Batch) int
	Failed() int
}

// Stats summarizes one harvest run
type Stats struct {
	Iterations    int
	ItemsSeen     int
	Accepted      int
	Batches       int
	Inserted      int
	FailedBatches int
	Duration      time.Duration
	// Err is the error that ended the scroll loop early, if any
	Err error
}

// Worker runs the producer in its own goroutine and commits every batch it
// emits, in order, on the calling goroutine
type Worker struct {
	ctx       context.Context
	producer  Producer
	committer Committer
	publisher publisher.Publisher
	username  string
	queueSize int
	log       *logger.Logger
}

// NewWorker creates a new worker. pub may be nil.
func NewWorker(
	ctx context.Context,
	producer Producer,
	committer Committer,
	pub publisher.Publisher,
	username string,
	queueSize int,
) *Worker {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Worker{
		ctx:       ctx,
		producer:  producer,
		committer: committer,
		publisher: pub,
		username:  username,
		queueSize: queueSize,
		log:       logger.ForWorker(),
	}
}

// SetLogger replaces the worker's logger
func (w *Worker) SetLogger(l *logger.Logger) {
	w.log = l
}

// Run harvests until the producer is exhausted or the context is cancelled
func (w *Worker) Run() Stats {
	start := time.Now()
	batches := make(chan crawler.Batch, w.queueSize)
	done := make(chan error, 1)

	go func() {
		defer close(batches)
		done <- w.producer.Run(w.ctx, batches)
	}()

	// A batch already handed over is committed even if the run is cancelled
	commitCtx := context.WithoutCancel(w.ctx)

	var stats Stats
	failedBefore := w.committer.Failed()
	for batch := range batches {
		stats.Batches++
		failed := w.committer.Failed()
		inserted := w.committer.Commit(commitCtx, batch)
		if w.committer.Failed() > failed {
			// Already logged and journaled by the committer
			continue
		}
		stats.Inserted += inserted
		w.announce(commitCtx, batch, inserted)
	}
	stats.FailedBatches = w.committer.Failed() - failedBefore

	stats.Err = <-done
	ps := w.producer.Stats()
	stats.Iterations = ps.Iterations
	stats.ItemsSeen = ps.ItemsSeen
	stats.Accepted = ps.Accepted

	if w.publisher != nil {
		if err := w.publisher.TrimStreams(commitCtx); err != nil {
			w.log.Warn().Err(errs.NewPublisher("redis", "failed to trim stream", err)).Msg("Stream trimming failed")
		}
	}

	stats.Duration = time.Since(start)
	w.logSummary(stats)
	return stats
}

func (w *Worker) announce(ctx context.Context, batch crawler.Batch, inserted int) {
	if w.publisher == nil {
		return
	}
	ev := publisher.NewBatchEvent(w.username, batch, inserted, time.Now().UTC())
	if err := publisher.PublishBatch(ctx, w.publisher, ev); err != nil {
		w.log.Warn().
			Err(errs.NewPublisher("redis", "failed to publish batch event", err)).
			Int("batch_seq", batch.Seq).
			Msg("Batch event not published")
	}
}

func (w *Worker) logSummary(stats Stats) {
	switch {
	case stats.Err == nil:
	case errors.Is(stats.Err, context.Canceled):
		w.log.Warn().Msg("Run cancelled, pending records were not committed")
	case errs.IsType(stats.Err, errs.ErrorTypeNavigation):
		w.log.Error().
			Err(stats.Err).
			Bool("retryable", errs.IsRetryable(stats.Err)).
			Msg("Failed to open feed")
	default:
		w.log.Error().Err(stats.Err).Msg("Run ended early")
	}

	w.log.Info().
		Int("iterations", stats.Iterations).
		Int("items_seen", stats.ItemsSeen).
		Int("accepted", stats.Accepted).
		Int("batches", stats.Batches).
		Int("inserted", stats.Inserted).
		Int("failed_batches", stats.FailedBatches).
		Dur("duration", stats.Duration).
		Msg("Harvest finished")
}
