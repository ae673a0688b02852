// Package connectors implements source and sink connectors for the chronon
// runtime.
package connectors

import (
	"time"

	"github.com/sandboxws/chronon/pkg/operator"
	"github.com/sandboxws/chronon/pkg/stream"
)

// MakeEvent produces the seq-th synthetic event. Sync-times must be
// non-decreasing in seq; the generator does not reorder.
type MakeEvent[K comparable, P any] func(seq int64) (syncTime int64, key K, payload P)

// Generator produces synthetic, sync-time-ordered batches at a configurable
// rate, with a punctuation whenever sync-time advances by at least
// punctuationEvery since the last one.
type Generator[K comparable, P any] struct {
	pool             stream.Pool[K, P]
	make             MakeEvent[K, P]
	hasher           stream.Hasher[K]
	rowsPerSecond    int64
	maxRows          int64
	punctuationEvery int64

	lastPunctuation int64
	prevSync        int64
}

// NewGenerator creates a Generator source. punctuationEvery of 0 disables
// punctuations.
func NewGenerator[K comparable, P any](pool stream.Pool[K, P], makeEvent MakeEvent[K, P], rowsPerSecond, maxRows, punctuationEvery int64) *Generator[K, P] {
	return &Generator[K, P]{
		pool:             pool,
		make:             makeEvent,
		hasher:           stream.DefaultHasher[K](),
		rowsPerSecond:    rowsPerSecond,
		maxRows:          maxRows,
		punctuationEvery: punctuationEvery,
		lastPunctuation:  stream.MinSyncTime,
		prevSync:         stream.MinSyncTime,
	}
}

func (g *Generator[K, P]) Open(_ *operator.Context) error { return nil }

func (g *Generator[K, P]) Run(ctx *operator.Context, out chan<- *stream.Batch[K, P]) error {
	defer close(out)

	rps := g.rowsPerSecond
	if rps <= 0 {
		rps = 1000
	}

	batchSize := stream.BatchSize
	if int64(batchSize) > rps {
		batchSize = int(rps)
	}

	interval := time.Duration(float64(time.Second) * float64(batchSize) / float64(rps))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var totalEmitted int64
	var seq int64

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			remaining := int64(batchSize)
			if g.maxRows > 0 {
				left := g.maxRows - totalEmitted
				if left <= 0 {
					return nil
				}
				if remaining > left {
					remaining = left
				}
			}

			batch := g.fill(remaining, &seq)
			totalEmitted += int64(batch.Count())

			select {
			case out <- batch:
				ctx.Metrics.BatchesEmitted.Add(1)
				ctx.Metrics.RowsCopied.Add(int64(batch.Count()))
			case <-ctx.Done():
				g.pool.Put(batch)
				return nil
			}
		}
	}
}

// fill builds one sealed batch of up to n events plus any due punctuations.
func (g *Generator[K, P]) fill(n int64, seq *int64) *stream.Batch[K, P] {
	batch := g.pool.Get()
	for i := int64(0); i < n && batch.Count()+2 <= batch.Cap(); i++ {
		syncTime, key, payload := g.make(*seq)
		*seq++
		// A punctuation for time T asserts no further events at or before T,
		// so it is only placed once sync-time has moved strictly past T.
		if g.punctuationEvery > 0 && g.prevSync > stream.MinSyncTime &&
			syncTime > g.prevSync && g.prevSync >= g.lastPunctuation+g.punctuationEvery {
			batch.AddPunctuation(g.prevSync)
			g.lastPunctuation = g.prevSync
		}
		batch.AddEvent(syncTime, syncTime+1, key, payload, g.hasher(key))
		g.prevSync = syncTime
	}
	batch.Seal()
	return batch
}

func (g *Generator[K, P]) Close() error { return nil }
