package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sjsage522/feedharvester/internal/crawler"
)

// BatchEventKey is the stream field carrying an encoded BatchEvent
const BatchEventKey = "b64_batch"

// Publisher represents a service for publishing messages
type Publisher interface {
	// Publish publishes a message to the stream under key
	Publish(ctx context.Context, key string, message []byte) error

	// TrimStreams trims the stream to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}

// BatchEvent announces one committed batch to downstream consumers
type BatchEvent struct {
	Username    string    `json:"username"`
	Seq         int       `json:"seq"`
	Size        int       `json:"size"`
	Inserted    int       `json:"inserted"`
	FirstID     int64     `json:"first_id"`
	LastID      int64     `json:"last_id"`
	IDs         []int64   `json:"ids"`
	CommittedAt time.Time `json:"committed_at"`
}

// NewBatchEvent describes batch after it was committed with inserted new rows
func NewBatchEvent(username string, batch crawler.Batch, inserted int, at time.Time) BatchEvent {
	first, last := batch.IDRange()
	ids := make([]int64, 0, batch.Len())
	for _, r := range batch.Records {
		ids = append(ids, r.ID)
	}
	return BatchEvent{
		Username:    username,
		Seq:         batch.Seq,
		Size:        batch.Len(),
		Inserted:    inserted,
		FirstID:     first,
		LastID:      last,
		IDs:         ids,
		CommittedAt: at,
	}
}

// PublishBatch encodes ev as JSON and publishes it
func PublishBatch(ctx context.Context, p Publisher, ev BatchEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal batch event: %w", err)
	}
	return p.Publish(ctx, BatchEventKey, data)
}
