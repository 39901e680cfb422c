package cfstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// recordingStore counts Apply calls and rows without persisting anything.
type recordingStore struct {
	applies  int
	rows     int
	sizes    []int
	failNext error
}

func (r *recordingStore) DisableTable(context.Context, string) error { return nil }
func (r *recordingStore) DeleteTable(context.Context, string) error  { return nil }
func (r *recordingStore) CreateTable(context.Context, string, []FamilyDescriptor) error {
	return nil
}
func (r *recordingStore) CountRows(context.Context, string) (int64, error) {
	return int64(r.rows), nil
}
func (r *recordingStore) Close() error { return nil }

func (r *recordingStore) Apply(_ context.Context, _ string, m []Mutation) error {
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	r.applies++
	r.rows += len(m)
	r.sizes = append(r.sizes, len(m))
	return nil
}

func testCells(i int) Cells {
	return Cells{"ride_data": {"ride_type": []byte(fmt.Sprintf("bike-%d", i))}}
}

func TestNewBatch_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := NewBatch(&recordingStore{}, "t", size); !errors.Is(err, ErrInvalidBatch) {
			t.Errorf("size %d: expected ErrInvalidBatch, got %v", size, err)
		}
	}
}

func TestBatch_AutoFlushAtThreshold(t *testing.T) {
	store := &recordingStore{}
	b, err := NewBatch(store, "t", 3)
	if err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if err := b.Put(ctx, fmt.Sprintf("row-%d", i), testCells(i)); err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
	}

	if store.applies != 2 {
		t.Errorf("applies = %d, want 2 before final send", store.applies)
	}
	if b.Pending() != 1 {
		t.Errorf("pending = %d, want 1", b.Pending())
	}

	if err := b.Send(ctx); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if store.rows != 7 || b.Written() != 7 || b.Puts() != 7 {
		t.Errorf("rows=%d written=%d puts=%d, want 7", store.rows, b.Written(), b.Puts())
	}
	if b.Flushes() != 3 {
		t.Errorf("flushes = %d, want 3", b.Flushes())
	}
	want := []int{3, 3, 1}
	for i, s := range want {
		if store.sizes[i] != s {
			t.Errorf("flush %d size = %d, want %d", i, store.sizes[i], s)
		}
	}
}

func TestBatch_SendIsIdempotent(t *testing.T) {
	store := &recordingStore{}
	b, _ := NewBatch(store, "t", 10)
	ctx := context.Background()

	_ = b.Put(ctx, "a", testCells(1))
	_ = b.Put(ctx, "b", testCells(2))

	if err := b.Send(ctx); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := b.Send(ctx); err != nil {
		t.Fatalf("second Send failed: %v", err)
	}
	if store.applies != 1 {
		t.Errorf("applies = %d, want 1", store.applies)
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d, want 0", b.Pending())
	}
}

func TestBatch_SendOnEmptyBatch(t *testing.T) {
	store := &recordingStore{}
	b, _ := NewBatch(store, "t", 5)
	if err := b.Send(context.Background()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if store.applies != 0 {
		t.Error("Send on empty batch should not reach the store")
	}
}

func TestBatch_EmptyRowKey(t *testing.T) {
	b, _ := NewBatch(&recordingStore{}, "t", 5)
	if err := b.Put(context.Background(), "", testCells(0)); !errors.Is(err, ErrEmptyRowKey) {
		t.Errorf("expected ErrEmptyRowKey, got %v", err)
	}
	if b.Puts() != 0 {
		t.Error("rejected put should not be counted")
	}
}

func TestBatch_FailedSendKeepsPending(t *testing.T) {
	cause := errors.New("region server unavailable")
	store := &recordingStore{failNext: cause}
	b, _ := NewBatch(store, "t", 2)
	ctx := context.Background()

	_ = b.Put(ctx, "a", testCells(1))
	err := b.Put(ctx, "b", testCells(2))
	if !errors.Is(err, cause) {
		t.Fatalf("expected store error, got %v", err)
	}
	if b.Pending() != 2 {
		t.Errorf("pending = %d, want 2 after failed send", b.Pending())
	}

	if err := b.Send(ctx); err != nil {
		t.Fatalf("retry Send failed: %v", err)
	}
	if store.rows != 2 {
		t.Errorf("rows = %d, want 2", store.rows)
	}
}

// TestProperty_BatchWritesEveryRowOnce checks that for any row count and
// batch size every put reaches the store exactly once and nothing stays
// buffered after the final send.
func TestProperty_BatchWritesEveryRowOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("rows written equals rows put, regardless of batch size", prop.ForAll(
		func(rows, size int) bool {
			store := &recordingStore{}
			b, err := NewBatch(store, "t", size)
			if err != nil {
				return false
			}
			ctx := context.Background()
			for i := 0; i < rows; i++ {
				if err := b.Put(ctx, fmt.Sprintf("r%d", i), testCells(i)); err != nil {
					return false
				}
			}
			if err := b.Send(ctx); err != nil {
				return false
			}
			applies := store.applies
			if err := b.Send(ctx); err != nil {
				return false
			}

			wantFlushes := (rows + size - 1) / size
			return store.rows == rows &&
				b.Pending() == 0 &&
				store.applies == applies &&
				b.Flushes() == wantFlushes
		},
		gen.IntRange(0, 500),
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t)
}
