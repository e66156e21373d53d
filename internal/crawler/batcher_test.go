package crawler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeenSet(t *testing.T) {
	seen := NewSeenSet()

	assert.True(t, seen.Add(1))
	assert.True(t, seen.Add(2))
	assert.False(t, seen.Add(1))
	assert.True(t, seen.Has(2))
	assert.False(t, seen.Has(3))
	assert.Equal(t, 2, seen.Len())
}

func TestNewBatcherRejectsNonPositiveSize(t *testing.T) {
	_, err := NewBatcher(0, make(chan Batch))
	assert.Error(t, err)
}

func TestBatcherEmitsCeilNOverB(t *testing.T) {
	for _, tc := range []struct {
		n, size, batches int
	}{
		{0, 3, 0},
		{1, 3, 1},
		{3, 3, 1},
		{7, 3, 3},
		{9, 3, 3},
		{5, 1, 5},
	} {
		out := make(chan Batch, tc.n+1)
		b, err := NewBatcher(tc.size, out)
		require.NoError(t, err)

		ctx := context.Background()
		for i := 0; i < tc.n; i++ {
			require.NoError(t, b.Accept(ctx, Record{ID: int64(i + 1)}))
		}
		require.NoError(t, b.Flush(ctx))
		close(out)

		var ids []int64
		seq := 0
		for batch := range out {
			seq++
			assert.Equal(t, seq, batch.Seq)
			assert.NotZero(t, batch.Len())
			assert.LessOrEqual(t, batch.Len(), tc.size)
			for _, r := range batch.Records {
				ids = append(ids, r.ID)
			}
		}

		assert.Equal(t, tc.batches, seq, "n=%d size=%d", tc.n, tc.size)
		assert.Equal(t, tc.batches, b.Emitted())
		assert.Equal(t, 0, b.Pending())
		require.Len(t, ids, tc.n)
		for i, id := range ids {
			assert.Equal(t, int64(i+1), id, "order must be preserved")
		}
	}
}

func TestBatcherFlushOnEmptyIsNoop(t *testing.T) {
	out := make(chan Batch, 1)
	b, err := NewBatcher(2, out)
	require.NoError(t, err)

	require.NoError(t, b.Flush(context.Background()))
	assert.Len(t, out, 0)
	assert.Equal(t, 0, b.Emitted())
}

func TestBatcherHonoursCancellation(t *testing.T) {
	// Unbuffered with no reader: the send can only give way to ctx
	out := make(chan Batch)
	b, err := NewBatcher(1, out)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = b.Accept(ctx, Record{ID: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.Emitted())
	assert.Equal(t, 1, b.Pending())
}

func TestBatchIDRange(t *testing.T) {
	first, last := Batch{}.IDRange()
	assert.Zero(t, first)
	assert.Zero(t, last)

	first, last = Batch{Records: []Record{{ID: 5}, {ID: 9}, {ID: 7}}}.IDRange()
	assert.Equal(t, int64(5), first)
	assert.Equal(t, int64(7), last)
}
