package engine

import (
	"context"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/sandboxws/chronon/pkg/operator"
	"github.com/sandboxws/chronon/pkg/operators"
	"github.com/sandboxws/chronon/pkg/stream"
)

// ── Helpers ─────────────────────────────────────────────────────────

type capture struct {
	batches []*stream.Batch[string, string]
}

func (c *capture) OnNext(b *stream.Batch[string, string]) {
	c.batches = append(c.batches, b)
}

type mergedRow struct {
	sync    int64
	punct   bool
	payload string
}

func capturedRows(batches []*stream.Batch[string, string]) []mergedRow {
	var rows []mergedRow
	for _, b := range batches {
		for i := 0; i < b.Count(); i++ {
			if b.IsPunctuation(i) {
				rows = append(rows, mergedRow{sync: b.SyncTime[i], punct: true})
				continue
			}
			if b.IsDeleted(i) {
				continue
			}
			rows = append(rows, mergedRow{sync: b.SyncTime[i], payload: b.Payload[i]})
		}
	}
	return rows
}

func fillBatch(pool stream.Pool[string, string], rows ...mergedRow) *stream.Batch[string, string] {
	b := pool.Get()
	for _, r := range rows {
		if r.punct {
			b.AddPunctuation(r.sync)
		} else {
			b.AddEvent(r.sync, r.sync+1, r.payload, r.payload, stream.HashString(r.payload))
		}
	}
	b.Seal()
	return b
}

// ── Driver ──────────────────────────────────────────────────────────

func TestBinaryDriverMergesBothInputs(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	pool := stream.NewColumnPool[string, string](alloc, 8)
	sink := &capture{}
	union := operators.NewUnion[string, string](pool, sink, "driver test")

	leftCh := make(chan *stream.Batch[string, string], 4)
	rightCh := make(chan *stream.Batch[string, string], 4)
	leftCh <- fillBatch(pool, mergedRow{sync: 1, payload: "a"}, mergedRow{sync: 3, payload: "c"})
	leftCh <- fillBatch(pool, mergedRow{sync: 5, payload: "e"}, mergedRow{sync: 6, punct: true})
	rightCh <- fillBatch(pool, mergedRow{sync: 2, payload: "b"}, mergedRow{sync: 4, payload: "d"})
	close(leftCh)
	close(rightCh)

	driver := NewBinaryDriver[string, string](union, pool)
	ctx := operator.NewContext(context.Background(), alloc, "driver-test", "union")
	if err := driver.Run(ctx, leftCh, rightCh); err != nil {
		t.Fatalf("driver run failed: %v", err)
	}

	got := capturedRows(sink.batches)
	want := []mergedRow{
		{sync: 1, payload: "a"}, {sync: 2, payload: "b"}, {sync: 3, payload: "c"},
		{sync: 4, payload: "d"}, {sync: 5, payload: "e"}, {sync: 6, punct: true},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	// Every batch handed downstream goes back to the pool, the operator
	// releases its held output, and nothing leaks.
	for _, b := range sink.batches {
		pool.Put(b)
	}
	union.DisposeState()
	pool.Close()
	alloc.AssertSize(t, 0)
}

func TestBinaryDriverCompletesAfterQueueDrains(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	pool := stream.NewColumnPool[string, string](alloc, 8)
	sink := &capture{}
	union := operators.NewUnion[string, string](pool, sink, "late right test")

	// The left input closes with its batch still queued; the right input
	// delivers later. The left side must not be reported finished until its
	// queued batch is fully merged, or the trailing right row stalls.
	leftCh := make(chan *stream.Batch[string, string], 1)
	rightCh := make(chan *stream.Batch[string, string], 1)
	leftCh <- fillBatch(pool, mergedRow{sync: 10, payload: "x"})
	close(leftCh)

	driver := NewBinaryDriver[string, string](union, pool)
	ctx := operator.NewContext(context.Background(), alloc, "late-right-test", "union")
	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx, leftCh, rightCh) }()

	time.Sleep(100 * time.Millisecond)
	rightCh <- fillBatch(pool, mergedRow{sync: 5, payload: "b"}, mergedRow{sync: 20, payload: "c"})
	close(rightCh)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("driver run failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not finish")
	}

	got := capturedRows(sink.batches)
	want := []mergedRow{
		{sync: 5, payload: "b"}, {sync: 10, payload: "x"}, {sync: 20, payload: "c"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	for _, b := range sink.batches {
		pool.Put(b)
	}
	union.DisposeState()
	pool.Close()
	alloc.AssertSize(t, 0)
}

func TestBinaryDriverReleasesOnCancel(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	pool := stream.NewColumnPool[string, string](alloc, 8)
	sink := &capture{}
	union := operators.NewUnion[string, string](pool, sink, "cancel test")

	leftCh := make(chan *stream.Batch[string, string], 1)
	rightCh := make(chan *stream.Batch[string, string], 1)
	leftCh <- fillBatch(pool, mergedRow{sync: 1, payload: "a"})

	runCtx, cancel := context.WithCancel(context.Background())
	ctx := operator.NewContext(runCtx, alloc, "cancel-test", "union")
	done := make(chan error, 1)
	driver := NewBinaryDriver[string, string](union, pool)
	go func() { done <- driver.Run(ctx, leftCh, rightCh) }()

	// Let the driver park the left batch waiting on right input.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop after cancellation")
	}

	if len(sink.batches) != 0 {
		t.Errorf("expected no output, got %d batches", len(sink.batches))
	}

	// The batch may have been released by the driver or still be in the
	// channel if cancellation won the race; reclaim either way.
	select {
	case b := <-leftCh:
		pool.Put(b)
	default:
	}
	union.DisposeState()
	pool.Close()
	alloc.AssertSize(t, 0)
}
