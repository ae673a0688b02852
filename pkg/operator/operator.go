// Package operator defines the interfaces implemented by chronon's stream
// operators and the execution context they run in.
package operator

import (
	"github.com/sandboxws/chronon/pkg/stream"
)

// Consumer receives sealed batches from an operator. OnNext is invoked once
// per forwarded batch, in the sync-time order the producing operator
// guarantees. Ownership of the batch transfers with the call.
type Consumer[K comparable, P any] interface {
	OnNext(batch *stream.Batch[K, P])
}

// BinaryOperator is the surface the binary driver calls. The driver hands in
// one batch from each side when both have pending data, or a single batch
// when the other side is temporarily exhausted; the operator consumes as
// much as ordering permits and reports, per batch, whether it was fully
// consumed (done) and whether the caller may return it to the pool (free).
// A batch reported not-free was forwarded downstream and must never be
// touched or released by the caller again.
//
// Implementations are single-threaded: the driver invokes them
// synchronously and they never block or spawn work.
type BinaryOperator[K comparable, P any] interface {
	// Open initializes the operator. Called once before any Process call.
	Open(ctx *Context) error

	ProcessBoth(left, right *stream.Batch[K, P]) (leftDone, rightDone, leftFree, rightFree bool)
	ProcessLeftOnly(batch *stream.Batch[K, P]) (done, free bool)
	ProcessRightOnly(batch *stream.Batch[K, P]) (done, free bool)

	// OnLeftCompleted and OnRightCompleted signal that an input has ended and
	// no further batches will arrive on it.
	OnLeftCompleted()
	OnRightCompleted()

	// Flush seals and forwards any buffered output. Flushing with nothing
	// buffered is a no-op.
	Flush()

	// DisposeState returns operator-held batches to the pool at teardown.
	DisposeState()

	// Checkpoint serializes the operator's resumable state; Restore loads it
	// into a freshly constructed operator.
	Checkpoint() ([]byte, error)
	Restore(data []byte) error

	// PlanNode reports the operator's static shape for plan introspection.
	PlanNode() *PlanNode
}

// Source produces time-ordered batches into a channel. Sources run in their
// own goroutine; they must close the output channel when they stop.
type Source[K comparable, P any] interface {
	Open(ctx *Context) error
	Run(ctx *Context, out chan<- *stream.Batch[K, P]) error
	Close() error
}

// Sink consumes sealed batches and writes them to an external system.
type Sink[K comparable, P any] interface {
	Open(ctx *Context) error
	WriteBatch(batch *stream.Batch[K, P]) error
	Close() error
}
