package main

import (
	"sync/atomic"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/sandboxws/chronon/pkg/stream"
)

func TestCountingSinkSkipsDeletedRows(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	pool := stream.NewColumnPool[int64, int64](alloc, 8)

	b := pool.Get()
	b.AddEvent(1, 2, 1, 10, 0)
	b.AddEvent(2, 3, 2, 20, 0)
	b.SetDeleted(1)
	// Forwarded punctuations carry the deletion bit; they still count.
	b.AddPunctuation(5)
	b.SetDeleted(2)
	b.Seal()

	var total atomic.Int64
	sink := &countingSink{total: &total}
	if err := sink.WriteBatch(b); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if got := total.Load(); got != 2 {
		t.Fatalf("expected 2 visible rows counted, got %d", got)
	}

	pool.Put(b)
	pool.Close()
	alloc.AssertSize(t, 0)
}
