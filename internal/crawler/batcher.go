package crawler

import (
	"context"
	"fmt"
)

// SeenSet holds the IDs already forwarded during one run. It is owned by a
// single paginator and is not safe for concurrent use.
type SeenSet struct {
	ids map[int64]struct{}
}

// NewSeenSet creates an empty set
func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[int64]struct{})}
}

// Add records id and reports whether it was new
func (s *SeenSet) Add(id int64) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Has reports whether id was already added
func (s *SeenSet) Has(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of IDs in the set
func (s *SeenSet) Len() int {
	return len(s.ids)
}

// Batcher groups accepted records into batches of a fixed size and sends
// each completed batch on out
type Batcher struct {
	size int
	acc  []Record
	seq  int
	out  chan<- Batch
}

// NewBatcher creates a batcher emitting batches of at most size records
func NewBatcher(size int, out chan<- Batch) (*Batcher, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", size)
	}
	return &Batcher{
		size: size,
		acc:  make([]Record, 0, size),
		out:  out,
	}, nil
}

// Accept appends rec and emits the accumulator once it is full
func (b *Batcher) Accept(ctx context.Context, rec Record) error {
	b.acc = append(b.acc, rec)
	if len(b.acc) < b.size {
		return nil
	}
	return b.emit(ctx)
}

// Flush emits the remaining records as a final, possibly smaller batch.
// An empty accumulator emits nothing.
func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.acc) == 0 {
		return nil
	}
	return b.emit(ctx)
}

// Pending returns the number of accepted records not yet emitted
func (b *Batcher) Pending() int {
	return len(b.acc)
}

// Emitted returns the number of batches sent so far
func (b *Batcher) Emitted() int {
	return b.seq
}

func (b *Batcher) emit(ctx context.Context) error {
	batch := Batch{Seq: b.seq + 1, Records: b.acc}
	select {
	case b.out <- batch:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.seq++
	b.acc = make([]Record, 0, b.size)
	return nil
}
