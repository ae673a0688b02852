// Command union-bench runs two generated streams through the temporal union
// directly, without the plan layer. Used for throughput measurement.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/sandboxws/chronon/pkg/connectors"
	"github.com/sandboxws/chronon/pkg/engine"
	"github.com/sandboxws/chronon/pkg/operator"
	"github.com/sandboxws/chronon/pkg/operators"
	"github.com/sandboxws/chronon/pkg/stream"
)

func main() {
	rps := flag.Int64("rps", 1_000_000, "rows per second per side")
	maxRows := flag.Int64("rows", 10_000_000, "rows per side (0 = unbounded)")
	deterministic := flag.Bool("deterministic", false, "deterministic tie ordering across batch boundaries")
	flag.Parse()

	stream.DeterministicWithinTimestamp = *deterministic

	alloc := memory.DefaultAllocator
	pool := stream.NewColumnPool[int64, int64](alloc, stream.BatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var totalMerged atomic.Int64

	// Throughput reporter.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		var last int64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur := totalMerged.Load()
				fmt.Printf("%d rows/s (total %d)\n", cur-last, cur)
				last = cur
			}
		}
	}()

	makeEvent := func(seq int64) (int64, int64, int64) {
		return seq, seq % 1024, seq
	}

	pipeline := &engine.UnionPipeline[int64, int64]{
		Name:  "union-bench",
		Pool:  pool,
		Alloc: alloc,
	}
	pipeline.Left = connectors.NewGenerator(pool, makeEvent, *rps, *maxRows, 10_000)
	pipeline.Right = connectors.NewGenerator(pool, makeEvent, *rps, *maxRows, 10_000)
	pipeline.Op = operators.NewUnion(pool, pipeline.NewDownstream(), "union-bench")
	pipeline.Sink = &countingSink{total: &totalMerged}

	start := time.Now()
	if err := pipeline.Run(ctx); err != nil {
		slog.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)
	fmt.Printf("merged %d rows in %s (%.0f rows/s)\n",
		totalMerged.Load(), elapsed, float64(totalMerged.Load())/elapsed.Seconds())
}

// countingSink counts visible merged rows and drops them.
type countingSink struct {
	total *atomic.Int64
}

func (s *countingSink) Open(_ *operator.Context) error { return nil }

func (s *countingSink) WriteBatch(batch *stream.Batch[int64, int64]) error {
	n := 0
	for i := 0; i < batch.Count(); i++ {
		if !batch.IsPunctuation(i) && batch.IsDeleted(i) {
			continue
		}
		n++
	}
	s.total.Add(int64(n))
	return nil
}

func (s *countingSink) Close() error { return nil }
