package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"sjsage522/feedharvester/internal/crawler"
	"sjsage522/feedharvester/logger"
	errs "sjsage522/feedharvester/pkg/errors"
	"sjsage522/feedharvester/services/publisher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProducer emits a fixed list of batches
type MockProducer struct {
	batches []crawler.Batch
	runErr  error
	stats   crawler.RunStats
}

// Ensure MockProducer implements Producer
var _ Producer = (*MockProducer)(nil)

func (m *MockProducer) Run(ctx context.Context, out chan<- crawler.Batch) error {
	for _, b := range m.batches {
		select {
		case out <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.runErr
}

func (m *MockProducer) Stats() crawler.RunStats {
	return m.stats
}

// MockCommitter keeps committed IDs in memory and fails selected batches
type MockCommitter struct {
	mu      sync.Mutex
	seen    map[int64]bool
	order   []int
	failSeq map[int]bool
	failed  int
}

// Ensure MockCommitter implements Committer
var _ Committer = (*MockCommitter)(nil)

func NewMockCommitter() *MockCommitter {
	return &MockCommitter{
		seen:    make(map[int64]bool),
		failSeq: make(map[int]bool),
	}
}

func (m *MockCommitter) Commit(ctx context.Context, batch crawler.Batch) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order = append(m.order, batch.Seq)
	if m.failSeq[batch.Seq] {
		m.failed++
		return 0
	}
	n := 0
	for _, r := range batch.Records {
		if !m.seen[r.ID] {
			m.seen[r.ID] = true
			n++
		}
	}
	return n
}

func (m *MockCommitter) Failed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed
}

// MockPublisher implements the publisher.Publisher interface for testing
type MockPublisher struct {
	mu       sync.Mutex
	messages [][]byte
	trimmed  int
	err      error
}

// Ensure MockPublisher implements publisher.Publisher
var _ publisher.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, key string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	// Copy the message to ensure thread safety
	messageCopy := make([]byte, len(message))
	copy(messageCopy, message)
	m.messages = append(m.messages, messageCopy)
	return nil
}

func (m *MockPublisher) TrimStreams(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimmed++
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

func batch(seq int, ids ...int64) crawler.Batch {
	b := crawler.Batch{Seq: seq}
	for _, id := range ids {
		b.Records = append(b.Records, crawler.Record{ID: id})
	}
	return b
}

func newTestWorker(p Producer, c Committer, pub publisher.Publisher) *Worker {
	w := NewWorker(context.Background(), p, c, pub, "alice", 1)
	w.SetLogger(logger.Nop())
	return w
}

func TestWorkerCommitsInOrder(t *testing.T) {
	producer := &MockProducer{
		batches: []crawler.Batch{batch(1, 1, 2), batch(2, 3, 4), batch(3, 5)},
		stats:   crawler.RunStats{Iterations: 2, ItemsSeen: 6, Accepted: 5},
	}
	committer := NewMockCommitter()
	pub := &MockPublisher{}

	stats := newTestWorker(producer, committer, pub).Run()

	assert.NoError(t, stats.Err)
	assert.Equal(t, []int{1, 2, 3}, committer.order)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 5, stats.Inserted)
	assert.Equal(t, 0, stats.FailedBatches)
	assert.Equal(t, 2, stats.Iterations)
	assert.Equal(t, 6, stats.ItemsSeen)
	assert.Equal(t, 5, stats.Accepted)

	require.Len(t, pub.messages, 3)
	var ev publisher.BatchEvent
	require.NoError(t, json.Unmarshal(pub.messages[2], &ev))
	assert.Equal(t, "alice", ev.Username)
	assert.Equal(t, 3, ev.Seq)
	assert.Equal(t, []int64{5}, ev.IDs)
	assert.Equal(t, 1, pub.trimmed)
}

func TestWorkerContinuesAfterFailedBatch(t *testing.T) {
	producer := &MockProducer{batches: []crawler.Batch{batch(1, 1), batch(2, 2), batch(3, 3)}}
	committer := NewMockCommitter()
	committer.failSeq[2] = true
	pub := &MockPublisher{}

	stats := newTestWorker(producer, committer, pub).Run()

	assert.NoError(t, stats.Err)
	assert.Equal(t, []int{1, 2, 3}, committer.order, "failed batches are not retried")
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 1, stats.FailedBatches)
	require.Len(t, pub.messages, 2, "failed batches are not announced")
	var ev publisher.BatchEvent
	require.NoError(t, json.Unmarshal(pub.messages[1], &ev))
	assert.Equal(t, 3, ev.Seq)
}

func TestWorkerCountsOnlyThisRunsFailures(t *testing.T) {
	committer := NewMockCommitter()
	committer.failed = 4
	committer.failSeq[1] = true

	stats := newTestWorker(&MockProducer{batches: []crawler.Batch{batch(1, 1)}}, committer, nil).Run()

	assert.Equal(t, 1, stats.FailedBatches)
}

func TestWorkerWithoutPublisher(t *testing.T) {
	producer := &MockProducer{batches: []crawler.Batch{batch(1, 1)}}

	stats := newTestWorker(producer, NewMockCommitter(), nil).Run()

	assert.Equal(t, 1, stats.Inserted)
}

func TestWorkerPublishErrorIsNotFatal(t *testing.T) {
	producer := &MockProducer{batches: []crawler.Batch{batch(1, 1), batch(2, 2)}}
	pub := &MockPublisher{err: errors.New("redis down")}

	stats := newTestWorker(producer, NewMockCommitter(), pub).Run()

	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 0, stats.FailedBatches)
}

func TestWorkerReportsProducerError(t *testing.T) {
	navErr := errs.NewNavigation("paginator", "failed to open feed", errors.New("net::ERR_NAME_NOT_RESOLVED"))
	producer := &MockProducer{runErr: navErr}
	committer := NewMockCommitter()

	var buf bytes.Buffer
	w := NewWorker(context.Background(), producer, committer, nil, "alice", 1)
	w.SetLogger(logger.New(&buf))
	stats := w.Run()

	assert.ErrorIs(t, stats.Err, navErr)
	assert.Equal(t, 0, stats.Batches)
	assert.Empty(t, committer.order)
	assert.Contains(t, buf.String(), `"retryable":true`)
}

func TestWorkerCancelledRunKeepsCommittedBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	producer := &MockProducer{batches: []crawler.Batch{batch(1, 1), batch(2, 2)}}
	committer := NewMockCommitter()

	// Cancel as soon as the first batch is committed
	c := &cancelAfterFirst{MockCommitter: committer, cancel: cancel}
	w := NewWorker(ctx, producer, c, nil, "alice", 1)
	w.SetLogger(logger.Nop())
	stats := w.Run()

	assert.GreaterOrEqual(t, stats.Inserted, 1)
	assert.Contains(t, committer.order, 1)
}

type cancelAfterFirst struct {
	*MockCommitter
	cancel context.CancelFunc
}

func (c *cancelAfterFirst) Commit(ctx context.Context, b crawler.Batch) int {
	n := c.MockCommitter.Commit(ctx, b)
	c.cancel()
	return n
}

func TestNewWorkerClampsQueueSize(t *testing.T) {
	w := NewWorker(context.Background(), &MockProducer{}, NewMockCommitter(), nil, "alice", 0)
	assert.Equal(t, 1, w.queueSize)
}
