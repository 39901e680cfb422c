package cfstore

import (
	"context"
	"fmt"
)

// maxPreallocate caps the initial pending buffer so very large batch
// sizes grow on demand instead of allocating up front.
const maxPreallocate = 1 << 16

// Batch buffers row writes on the client and sends them to the store
// once the configured size is reached. Send must be called once more
// after the last Put to write the remainder.
//
// Batch is not safe for concurrent use.
type Batch struct {
	store   Store
	table   string
	size    int
	pending []Mutation

	puts    int
	written int
	flushes int
}

// NewBatch creates a batch bound to table that flushes every size puts.
func NewBatch(store Store, table string, size int) (*Batch, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatch, size)
	}

	return &Batch{
		store:   store,
		table:   table,
		size:    size,
		pending: make([]Mutation, 0, min(size, maxPreallocate)),
	}, nil
}

// Put appends a row write and flushes when the batch is full.
func (b *Batch) Put(ctx context.Context, row string, cells Cells) error {
	if row == "" {
		return ErrEmptyRowKey
	}

	b.pending = append(b.pending, Mutation{Row: row, Cells: cells})
	b.puts++

	if len(b.pending) >= b.size {
		return b.Send(ctx)
	}
	return nil
}

// Send writes all pending rows. Calling Send with nothing pending is a no-op.
// On failure the pending rows are kept.
func (b *Batch) Send(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}

	if err := b.store.Apply(ctx, b.table, b.pending); err != nil {
		return fmt.Errorf("cfstore: batch send to %s failed: %w", b.table, err)
	}

	b.written += len(b.pending)
	b.flushes++
	clear(b.pending)
	b.pending = b.pending[:0]
	return nil
}

// Size returns the flush threshold.
func (b *Batch) Size() int { return b.size }

// Pending returns the number of buffered rows.
func (b *Batch) Pending() int { return len(b.pending) }

// Puts returns the number of Put calls accepted.
func (b *Batch) Puts() int { return b.puts }

// Written returns the number of rows sent to the store.
func (b *Batch) Written() int { return b.written }

// Flushes returns the number of round trips made to the store.
func (b *Batch) Flushes() int { return b.flushes }
