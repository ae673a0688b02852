// Package engine implements the driving framework that feeds batches to
// binary operators and runs source/operator/sink pipelines as goroutines
// wired by channels.
package engine

import (
	"fmt"
	"time"

	"github.com/sandboxws/chronon/pkg/metrics"
	"github.com/sandboxws/chronon/pkg/operator"
	"github.com/sandboxws/chronon/pkg/stream"
)

// BinaryDriver pulls batches from two input channels and feeds them to a
// BinaryOperator: one batch from each side when both have pending data, a
// single batch when the other side is temporarily exhausted. It honors the
// operator's done/free results: done batches are dequeued, free ones are
// returned to the pool, not-free ones were forwarded downstream and are
// never touched again. Partially consumed batches stay queued with their
// cursor advanced for the next call.
type BinaryDriver[K comparable, P any] struct {
	op   operator.BinaryOperator[K, P]
	pool stream.Pool[K, P]

	left  []*stream.Batch[K, P]
	right []*stream.Batch[K, P]

	leftClosed, leftCompleted   bool
	rightClosed, rightCompleted bool

	// Last published values of the operator's atomic counters, used to emit
	// Prometheus deltas from the driver thread.
	lastEmitted  int64
	lastFast     int64
	lastRows     int64
	lastSuppress int64
}

// NewBinaryDriver creates a driver for the given operator and pool.
func NewBinaryDriver[K comparable, P any](op operator.BinaryOperator[K, P], pool stream.Pool[K, P]) *BinaryDriver[K, P] {
	return &BinaryDriver[K, P]{op: op, pool: pool}
}

// Run consumes both inputs until they close, then flushes the operator.
// Blocks until done or ctx is cancelled.
func (d *BinaryDriver[K, P]) Run(ctx *operator.Context, leftIn, rightIn <-chan *stream.Batch[K, P]) error {
	if err := d.op.Open(ctx); err != nil {
		return fmt.Errorf("driver: open operator: %w", err)
	}

	for leftIn != nil || rightIn != nil {
		select {
		case b, ok := <-leftIn:
			if !ok {
				leftIn = nil
				d.leftClosed = true
				break
			}
			d.left = append(d.left, b)
			metrics.BatchesReceived.WithLabelValues(ctx.OperatorID, "left").Inc()
		case b, ok := <-rightIn:
			if !ok {
				rightIn = nil
				d.rightClosed = true
				break
			}
			d.right = append(d.right, b)
			metrics.BatchesReceived.WithLabelValues(ctx.OperatorID, "right").Inc()
		case <-ctx.Done():
			d.release()
			return nil
		}
		start := time.Now()
		d.drain()
		metrics.MergeLatency.WithLabelValues(ctx.OperatorID).Observe(time.Since(start).Seconds())
		d.publish(ctx)
	}

	d.drain()
	d.op.Flush()
	d.publish(ctx)
	return nil
}

// publish converts the operator's atomic counters into Prometheus deltas.
func (d *BinaryDriver[K, P]) publish(ctx *operator.Context) {
	m := ctx.Metrics
	if v := m.FastPathForwards.Load(); v > d.lastFast {
		metrics.BatchesEmitted.WithLabelValues(ctx.OperatorID, "fastpath").Add(float64(v - d.lastFast))
		d.lastFast = v
	}
	if v := m.BatchesEmitted.Load() - m.FastPathForwards.Load(); v > d.lastEmitted {
		metrics.BatchesEmitted.WithLabelValues(ctx.OperatorID, "copy").Add(float64(v - d.lastEmitted))
		d.lastEmitted = v
	}
	if v := m.RowsCopied.Load(); v > d.lastRows {
		metrics.RowsMerged.WithLabelValues(ctx.OperatorID).Add(float64(v - d.lastRows))
		d.lastRows = v
	}
	if v := m.PunctuationsSuppressed.Load(); v > d.lastSuppress {
		metrics.PunctuationsSuppressed.WithLabelValues(ctx.OperatorID).Add(float64(v - d.lastSuppress))
		d.lastSuppress = v
	}
}

// completeSides tells the operator a side is finished once its channel has
// closed and every queued batch is retired. Firing earlier would let a still
// queued batch pull the side's frontier back down from infinity and hold up
// rows on the other side.
func (d *BinaryDriver[K, P]) completeSides() {
	if d.leftClosed && len(d.left) == 0 && !d.leftCompleted {
		d.op.OnLeftCompleted()
		d.leftCompleted = true
	}
	if d.rightClosed && len(d.right) == 0 && !d.rightCompleted {
		d.op.OnRightCompleted()
		d.rightCompleted = true
	}
}

// drain processes queued batches until the operator cannot make further
// progress without new input.
func (d *BinaryDriver[K, P]) drain() {
	for {
		d.completeSides()
		switch {
		case len(d.left) > 0 && len(d.right) > 0:
			leftDone, rightDone, leftFree, rightFree := d.op.ProcessBoth(d.left[0], d.right[0])
			d.retire(&d.left, leftDone, leftFree)
			d.retire(&d.right, rightDone, rightFree)
			if !leftDone && !rightDone {
				return
			}
		case len(d.left) > 0:
			done, free := d.op.ProcessLeftOnly(d.left[0])
			d.retire(&d.left, done, free)
			if !done {
				return
			}
		case len(d.right) > 0:
			done, free := d.op.ProcessRightOnly(d.right[0])
			d.retire(&d.right, done, free)
			if !done {
				return
			}
		default:
			return
		}
	}
}

// retire dequeues the head of a side's queue when the operator consumed it,
// returning it to the pool unless ownership moved downstream.
func (d *BinaryDriver[K, P]) retire(queue *[]*stream.Batch[K, P], done, free bool) {
	if !done {
		return
	}
	b := (*queue)[0]
	*queue = (*queue)[1:]
	if free {
		d.pool.Put(b)
	}
}

// release returns all queued batches to the pool on cancellation.
func (d *BinaryDriver[K, P]) release() {
	for _, b := range d.left {
		d.pool.Put(b)
	}
	for _, b := range d.right {
		d.pool.Put(b)
	}
	d.left, d.right = nil, nil
}
