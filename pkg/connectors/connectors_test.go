package connectors

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/sandboxws/chronon/pkg/operator"
	"github.com/sandboxws/chronon/pkg/stream"
)

// ── Generator ───────────────────────────────────────────────────────

func TestGeneratorOrderingAndPunctuations(t *testing.T) {
	pool := stream.NewHeapPool[string, int64](128)
	makeEvent := func(seq int64) (int64, string, int64) {
		// Two events per sync-time so the output carries ties.
		return seq / 2, fmt.Sprintf("key-%d", seq%4), seq
	}
	gen := NewGenerator(pool, makeEvent, 100_000, 40, 3)

	ctx := operator.NewContext(context.Background(), memory.DefaultAllocator, "", "generator")
	if err := gen.Open(ctx); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer gen.Close()

	out := make(chan *stream.Batch[string, int64], 16)
	done := make(chan error, 1)
	go func() { done <- gen.Run(ctx, out) }()

	var batches []*stream.Batch[string, int64]
	for b := range out {
		batches = append(batches, b)
	}
	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}

	hasher := stream.DefaultHasher[string]()
	events := 0
	lastSync := stream.MinSyncTime
	lastPunct := stream.MinSyncTime
	for _, b := range batches {
		if !b.Sealed() {
			t.Error("generator emitted an unsealed batch")
		}
		for i := 0; i < b.Count(); i++ {
			if b.SyncTime[i] < lastSync {
				t.Fatalf("sync-time regressed from %d to %d", lastSync, b.SyncTime[i])
			}
			if b.IsPunctuation(i) {
				if b.SyncTime[i] <= lastPunct {
					t.Fatalf("punctuation %d not past previous %d", b.SyncTime[i], lastPunct)
				}
				lastPunct = b.SyncTime[i]
				continue
			}
			// A punctuation promises no further data at or before its time.
			if b.SyncTime[i] <= lastPunct {
				t.Fatalf("event at %d arrived after punctuation %d", b.SyncTime[i], lastPunct)
			}
			lastSync = b.SyncTime[i]
			events++
			if b.Hash[i] != hasher(b.Key[i]) {
				t.Fatalf("row %d: hash column does not match key %q", i, b.Key[i])
			}
			if b.OtherTime[i] != b.SyncTime[i]+1 {
				t.Fatalf("row %d: unexpected other-time %d", i, b.OtherTime[i])
			}
		}
	}
	if events != 40 {
		t.Errorf("expected 40 events, got %d", events)
	}
	if lastPunct == stream.MinSyncTime {
		t.Error("expected at least one punctuation")
	}
}

func TestGeneratorStopsOnCancel(t *testing.T) {
	pool := stream.NewHeapPool[string, int64](32)
	gen := NewGenerator(pool, func(seq int64) (int64, string, int64) {
		return seq, "k", seq
	}, 10, 0, 0)

	runCtx, cancel := context.WithCancel(context.Background())
	ctx := operator.NewContext(runCtx, memory.DefaultAllocator, "", "generator")
	out := make(chan *stream.Batch[string, int64])
	done := make(chan error, 1)
	go func() { done <- gen.Run(ctx, out) }()

	cancel()
	for range out {
	}
	if err := <-done; err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}

// ── Console ─────────────────────────────────────────────────────────

func TestConsoleRendersBatch(t *testing.T) {
	sink := NewConsole[string, float64](0)
	var buf bytes.Buffer
	sink.SetWriter(&buf)

	ctx := operator.NewContext(context.Background(), memory.DefaultAllocator, "", "console")
	if err := sink.Open(ctx); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer sink.Close()

	b := stream.NewBatch[string, float64](nil, 8)
	b.AddEvent(1, 2, "alpha", 1.5, stream.HashString("alpha"))
	b.AddPunctuation(3)
	b.Seal()

	if err := sink.WriteBatch(b); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{"sync_time", "other_time", "key", "payload", "alpha", "1.5", "true", "null"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestConsoleTruncatesAtMaxRows(t *testing.T) {
	sink := NewConsole[string, float64](2)
	var buf bytes.Buffer
	sink.SetWriter(&buf)

	ctx := operator.NewContext(context.Background(), memory.DefaultAllocator, "", "console")
	if err := sink.Open(ctx); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	b := stream.NewBatch[string, float64](nil, 8)
	for i := int64(0); i < 5; i++ {
		b.AddEvent(i, i+1, fmt.Sprintf("k%d", i), float64(i), 0)
	}
	b.Seal()

	if err := sink.WriteBatch(b); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !strings.Contains(buf.String(), "(3 more rows)") {
		t.Errorf("expected truncation notice, got:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "k4") {
		t.Error("truncated row leaked into the output")
	}
}
