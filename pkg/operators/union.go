// Package operators implements the built-in stream operators for the
// chronon runtime.
package operators

import (
	"fmt"
	"reflect"

	"github.com/goccy/go-json"

	"github.com/sandboxws/chronon/pkg/operator"
	"github.com/sandboxws/chronon/pkg/stream"
)

// Union merges two sync-time-ordered inputs into a single sync-time-ordered
// output, deduplicating punctuations so the watermark reported downstream is
// strictly increasing. When an entire input batch provably precedes
// everything remaining on the other side it is forwarded downstream
// unchanged instead of being copied row by row; otherwise rows are
// interleaved one at a time. Left wins exact sync-time ties.
//
// The operator assumes each input is already sync-time-ordered over its
// visible rows; that precondition is not checked.
type Union[K comparable, P any] struct {
	pool         stream.Pool[K, P]
	downstream   operator.Consumer[K, P]
	errorContext string
	upstreams    []*operator.PlanNode

	// Cross-call state. A batch on one side can be exhausted while the other
	// side's batch still has unconsumed rows, so the next call must resume
	// exactly where this one stopped.
	nextLeftTime  int64
	nextRightTime int64

	// lastPunctuationTime is the watermark: the highest punctuation time
	// emitted downstream. Punctuations at or below it are redundant.
	lastPunctuationTime int64

	output *stream.Batch[K, P]
	ctx    *operator.Context
}

// NewUnion creates a Union bound to a pool and a downstream consumer. The
// errorContext string is recorded for plan reporting.
func NewUnion[K comparable, P any](pool stream.Pool[K, P], downstream operator.Consumer[K, P], errorContext string) *Union[K, P] {
	return &Union[K, P]{
		pool:                pool,
		downstream:          downstream,
		errorContext:        errorContext,
		nextLeftTime:        stream.MinSyncTime,
		nextRightTime:       stream.MinSyncTime,
		lastPunctuationTime: stream.MinSyncTime,
	}
}

// AddUpstream records an upstream plan node for diagnostics.
func (u *Union[K, P]) AddUpstream(node *operator.PlanNode) {
	u.upstreams = append(u.upstreams, node)
}

// Open acquires the initial output batch.
func (u *Union[K, P]) Open(ctx *operator.Context) error {
	u.ctx = ctx
	if u.output == nil {
		u.output = u.pool.Get()
	}
	return nil
}

// ProcessBoth merges as much of the two batches as ordering permits. For
// each side it reports whether the batch was fully consumed and whether the
// caller may release it; a not-free batch was forwarded downstream whole.
func (u *Union[K, P]) ProcessBoth(left, right *stream.Batch[K, P]) (leftDone, rightDone, leftFree, rightFree bool) {
	leftFree, rightFree = true, true

	// Bounds are only meaningful on the first call for a batch; a resumed
	// call starts mid-batch and must interleave.
	leftFresh := left.Iter() == 0
	rightFresh := right.Iter() == 0

	leftVisible := left.NextVisible()
	rightVisible := right.NextVisible()
	if leftVisible {
		u.nextLeftTime = left.SyncTime[left.Iter()]
	}
	if rightVisible {
		u.nextRightTime = right.SyncTime[right.Iter()]
	}
	if !leftVisible || !rightVisible {
		// A batch with no visible rows left holds nothing mergeable, so
		// both sides can be retired in the same call when both are empty.
		leftDone = !leftVisible
		rightDone = !rightVisible
		return
	}

	if leftFresh && rightFresh {
		leftBound := left.MaxSyncTime()
		rightBound := right.MaxSyncTime()

		if leftBound <= u.nextRightTime {
			// Everything in the left batch precedes everything remaining on
			// the right: forward it whole.
			u.forward(left)
			u.nextLeftTime = leftBound
			leftDone = true
			leftFree = false
			return
		}

		rightWins := rightBound <= u.nextLeftTime
		if stream.DeterministicWithinTimestamp {
			// Strict comparison: a right event equal to the next left time
			// must wait so the left event is emitted first.
			rightWins = rightBound < u.nextLeftTime
		}
		if rightWins {
			u.forward(right)
			u.nextRightTime = rightBound
			rightDone = true
			rightFree = false
			return
		}
	}

	// Exact event-by-event interleave. Left wins ties.
	for {
		if u.nextLeftTime <= u.nextRightTime {
			u.copyRow(left)
			left.Advance()
			if !left.NextVisible() {
				leftDone = true
				return
			}
			u.nextLeftTime = left.SyncTime[left.Iter()]
		} else {
			u.copyRow(right)
			right.Advance()
			if !right.NextVisible() {
				rightDone = true
				return
			}
			u.nextRightTime = right.SyncTime[right.Iter()]
		}
	}
}

// ProcessLeftOnly consumes a left batch while the right side is temporarily
// exhausted. Rows are emitted only up to the known right-side next time; the
// cursor stays on the first row past it for the next paired call.
func (u *Union[K, P]) ProcessLeftOnly(batch *stream.Batch[K, P]) (done, free bool) {
	free = true
	fresh := batch.Iter() == 0

	if !batch.NextVisible() {
		return true, true
	}
	u.nextLeftTime = batch.SyncTime[batch.Iter()]

	if fresh {
		if bound := batch.MaxSyncTime(); bound <= u.nextRightTime {
			u.forward(batch)
			u.nextLeftTime = bound
			return true, false
		}
	}

	for u.nextLeftTime <= u.nextRightTime {
		u.copyRow(batch)
		batch.Advance()
		if !batch.NextVisible() {
			return true, true
		}
		u.nextLeftTime = batch.SyncTime[batch.Iter()]
	}
	return false, true
}

// ProcessRightOnly is the mirror of ProcessLeftOnly. The whole-batch check
// is strict under DeterministicWithinTimestamp, and the per-row loop always
// stops at equality: a right event never overtakes a pending left event with
// the same sync-time.
func (u *Union[K, P]) ProcessRightOnly(batch *stream.Batch[K, P]) (done, free bool) {
	free = true
	fresh := batch.Iter() == 0

	if !batch.NextVisible() {
		return true, true
	}
	u.nextRightTime = batch.SyncTime[batch.Iter()]

	if fresh {
		bound := batch.MaxSyncTime()
		forwardable := bound <= u.nextLeftTime
		if stream.DeterministicWithinTimestamp {
			forwardable = bound < u.nextLeftTime
		}
		if forwardable {
			u.forward(batch)
			u.nextRightTime = bound
			return true, false
		}
	}

	for u.nextRightTime < u.nextLeftTime {
		u.copyRow(batch)
		batch.Advance()
		if !batch.NextVisible() {
			return true, true
		}
		u.nextRightTime = batch.SyncTime[batch.Iter()]
	}
	return false, true
}

// OnLeftCompleted signals the end of the left input: remaining right batches
// can drain without waiting on the left side.
func (u *Union[K, P]) OnLeftCompleted() {
	u.nextLeftTime = stream.InfinitySyncTime
}

// OnRightCompleted signals the end of the right input.
func (u *Union[K, P]) OnRightCompleted() {
	u.nextRightTime = stream.InfinitySyncTime
}

// copyRow appends the row under the batch cursor to the output batch. A
// punctuation at or below the watermark is dropped; one above it raises the
// watermark.
func (u *Union[K, P]) copyRow(b *stream.Batch[K, P]) {
	i := b.Iter()
	if b.IsPunctuation(i) {
		t := b.SyncTime[i]
		if t <= u.lastPunctuationTime {
			if u.ctx != nil {
				u.ctx.Metrics.PunctuationsSuppressed.Add(1)
			}
			return
		}
		u.lastPunctuationTime = t
	}
	u.output.CopyRowFrom(b, i)
	if u.output.Count() == u.output.Cap() {
		u.Flush()
	}
}

// forward hands an entire input batch downstream. Buffered output is flushed
// first (its rows all precede the batch), then redundant punctuations are
// rewritten in place so a downstream consumer never observes a
// non-monotonic watermark.
func (u *Union[K, P]) forward(b *stream.Batch[K, P]) {
	u.Flush()
	u.suppressPunctuations(b)
	b.Seal()
	if u.ctx != nil {
		u.ctx.Metrics.FastPathForwards.Add(1)
		u.ctx.Metrics.BatchesEmitted.Add(1)
	}
	u.downstream.OnNext(b)
}

// suppressPunctuations rewrites every punctuation at or below the running
// watermark into a deleted placeholder row. The scan covers every physical
// row, deleted ones included, so the in-place rewrite stays consistent.
func (u *Union[K, P]) suppressPunctuations(b *stream.Batch[K, P]) {
	cti := u.lastPunctuationTime
	n := b.Count()
	for i := 0; i < n; i++ {
		if !b.IsPunctuation(i) {
			continue
		}
		if t := b.SyncTime[i]; t <= cti {
			b.OtherTime[i] = stream.FlatOtherTime
			b.SetDeleted(i)
			if u.ctx != nil {
				u.ctx.Metrics.PunctuationsSuppressed.Add(1)
			}
		} else {
			cti = t
		}
	}
	u.lastPunctuationTime = cti
}

// Flush seals and forwards the output batch if it holds any rows, then
// acquires a fresh one. Flushing an empty output is a no-op.
func (u *Union[K, P]) Flush() {
	if u.output == nil || u.output.Count() == 0 {
		return
	}
	u.output.Seal()
	if u.ctx != nil {
		u.ctx.Metrics.RowsCopied.Add(int64(u.output.Count()))
		u.ctx.Metrics.BatchesEmitted.Add(1)
	}
	u.downstream.OnNext(u.output)
	u.output = u.pool.Get()
}

// DisposeState returns the held output batch to the pool.
func (u *Union[K, P]) DisposeState() {
	if u.output != nil {
		u.pool.Put(u.output)
		u.output = nil
	}
}

// unionState is the serialized checkpoint form of a Union.
type unionState[K comparable, P any] struct {
	NextLeftTime        int64                    `json:"next_left_time"`
	NextRightTime       int64                    `json:"next_right_time"`
	LastPunctuationTime int64                    `json:"last_punctuation_time"`
	Output              *stream.BatchState[K, P] `json:"output,omitempty"`
}

// Checkpoint serializes the in-progress output batch, the per-side next
// times, and the watermark.
func (u *Union[K, P]) Checkpoint() ([]byte, error) {
	s := unionState[K, P]{
		NextLeftTime:        u.nextLeftTime,
		NextRightTime:       u.nextRightTime,
		LastPunctuationTime: u.lastPunctuationTime,
	}
	if u.output != nil && u.output.Count() > 0 {
		s.Output = u.output.State()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("union checkpoint: %w", err)
	}
	return data, nil
}

// Restore loads checkpointed state. Call after Open, before any Process call.
func (u *Union[K, P]) Restore(data []byte) error {
	var s unionState[K, P]
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("union restore: %w", err)
	}
	u.nextLeftTime = s.NextLeftTime
	u.nextRightTime = s.NextRightTime
	u.lastPunctuationTime = s.LastPunctuationTime
	if s.Output != nil {
		if u.output == nil {
			u.output = u.pool.Get()
		}
		if s.Output.Count > u.output.Cap() {
			return fmt.Errorf("union restore: checkpointed output has %d rows, pool capacity is %d",
				s.Output.Count, u.output.Cap())
		}
		u.output.RestoreState(s.Output)
	}
	return nil
}

// PlanNode reports the operator's static shape.
func (u *Union[K, P]) PlanNode() *operator.PlanNode {
	return &operator.PlanNode{
		Kind:         "union",
		KeyType:      reflect.TypeOf((*K)(nil)).Elem().String(),
		PayloadType:  reflect.TypeOf((*P)(nil)).Elem().String(),
		ErrorContext: u.errorContext,
		Upstreams:    u.upstreams,
	}
}
