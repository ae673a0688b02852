package stream

import (
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Batch is a fixed-capacity columnar container of stream rows. Each row is
// (sync-time, other-time, key, payload, hash, deletion-flag); rows with
// OtherTime == PunctuationOtherTime are punctuations and carry no payload
// semantics beyond their sync-time.
//
// Visible rows (punctuations, plus data events whose deletion bit is clear)
// are non-decreasing in sync-time within a batch and across successive
// batches of the same input. That precondition is assumed, not verified:
// feeding an unordered input silently produces unordered output.
//
// A Batch is owned by exactly one party at a time. Producers fill it, Seal
// it, and hand it downstream; consumers drain it via the iter cursor and
// return it to its pool. None of the methods lock.
type Batch[K comparable, P any] struct {
	SyncTime  []int64
	OtherTime []int64
	Key       []K
	Payload   []P
	Hash      []uint64

	// deleted is a bitmap with one bit per row; a set bit marks a retracted
	// data event. Punctuation rows ignore it.
	deleted []byte

	count  int
	iter   int
	sealed bool

	alloc memory.Allocator // owns the deleted bitmap; nil means Go-heap backed
}

// NewBatch allocates an empty batch with the given row capacity. When alloc
// is non-nil the deletion bitmap is carved from it and must be released with
// Dispose; otherwise the bitmap is garbage collected with the batch.
func NewBatch[K comparable, P any](alloc memory.Allocator, capacity int) *Batch[K, P] {
	nbytes := int(bitutil.BytesForBits(int64(capacity)))
	var bitmap []byte
	if alloc != nil {
		bitmap = alloc.Allocate(nbytes)
		memory.Set(bitmap, 0)
	} else {
		bitmap = make([]byte, nbytes)
	}
	return &Batch[K, P]{
		SyncTime:  make([]int64, capacity),
		OtherTime: make([]int64, capacity),
		Key:       make([]K, capacity),
		Payload:   make([]P, capacity),
		Hash:      make([]uint64, capacity),
		deleted:   bitmap,
		alloc:     alloc,
	}
}

// Cap returns the row capacity.
func (b *Batch[K, P]) Cap() int { return len(b.SyncTime) }

// Count returns the number of valid rows.
func (b *Batch[K, P]) Count() int { return b.count }

// Iter returns the consumption cursor: the index of the next unconsumed row.
func (b *Batch[K, P]) Iter() int { return b.iter }

// Advance moves the consumption cursor past the current row.
func (b *Batch[K, P]) Advance() { b.iter++ }

// Sealed reports whether the batch has been made immutable.
func (b *Batch[K, P]) Sealed() bool { return b.sealed }

// Seal marks the batch immutable. Sealing an already-sealed batch is a no-op.
func (b *Batch[K, P]) Seal() { b.sealed = true }

// IsPunctuation reports whether row i is a punctuation marker.
func (b *Batch[K, P]) IsPunctuation(i int) bool {
	return b.OtherTime[i] == PunctuationOtherTime
}

// IsDeleted reports whether row i carries the deletion bit. The bit is only
// meaningful for data events; callers must check IsPunctuation themselves.
func (b *Batch[K, P]) IsDeleted(i int) bool {
	return bitutil.BitIsSet(b.deleted, i)
}

// SetDeleted sets the deletion bit on row i.
func (b *Batch[K, P]) SetDeleted(i int) {
	bitutil.SetBit(b.deleted, i)
}

// AddEvent appends a data event. The caller maintains capacity: appending to
// a full or sealed batch is a programming error.
func (b *Batch[K, P]) AddEvent(syncTime, otherTime int64, key K, payload P, hash uint64) {
	i := b.count
	b.SyncTime[i] = syncTime
	b.OtherTime[i] = otherTime
	b.Key[i] = key
	b.Payload[i] = payload
	b.Hash[i] = hash
	b.count++
}

// AddPunctuation appends a punctuation marker with the given sync-time.
func (b *Batch[K, P]) AddPunctuation(syncTime int64) {
	var zeroK K
	var zeroP P
	b.AddEvent(syncTime, PunctuationOtherTime, zeroK, zeroP, 0)
}

// CopyRowFrom transplants row i of src into the next free slot, deletion bit
// included.
func (b *Batch[K, P]) CopyRowFrom(src *Batch[K, P], i int) {
	j := b.count
	b.SyncTime[j] = src.SyncTime[i]
	b.OtherTime[j] = src.OtherTime[i]
	b.Key[j] = src.Key[i]
	b.Payload[j] = src.Payload[i]
	b.Hash[j] = src.Hash[i]
	if bitutil.BitIsSet(src.deleted, i) {
		bitutil.SetBit(b.deleted, j)
	} else {
		bitutil.ClearBit(b.deleted, j)
	}
	b.count++
}

// NextVisible advances the cursor past deleted data events until it rests on
// a visible row or the batch is exhausted, and reports whether a visible row
// was found. Punctuations are never skipped, whatever their deletion bit.
// Safe to call when the cursor is already on a visible row.
func (b *Batch[K, P]) NextVisible() bool {
	for b.iter < b.count {
		if b.IsPunctuation(b.iter) || !b.IsDeleted(b.iter) {
			return true
		}
		b.iter++
	}
	return false
}

// MaxSyncTime computes a safe upper bound on the batch's sync-times for
// fast-path decisions. Punctuations are not guaranteed to be the physically
// last row even though they represent the furthest progress, so the walk
// goes backward: skip deleted data events, record the first surviving row,
// then keep folding in contiguous preceding punctuations. The scan stops at
// the first ordinary data row after that, folding its time in too: a batch
// may end in a punctuation below the last data event, and the data event
// still bounds the batch.
func (b *Batch[K, P]) MaxSyncTime() int64 {
	bound := MinSyncTime
	seen := false
	for i := b.count - 1; i >= 0; i-- {
		punctuation := b.IsPunctuation(i)
		if !punctuation && b.IsDeleted(i) {
			continue
		}
		if b.SyncTime[i] > bound {
			bound = b.SyncTime[i]
		}
		if !punctuation && seen {
			break
		}
		seen = true
	}
	return bound
}

// Reset clears the batch for reuse, keeping its storage.
func (b *Batch[K, P]) Reset() {
	memory.Set(b.deleted, 0)
	b.count = 0
	b.iter = 0
	b.sealed = false
}

// Dispose returns the bitmap storage to the batch's allocator. The batch
// must not be used afterwards.
func (b *Batch[K, P]) Dispose() {
	if b.alloc != nil && b.deleted != nil {
		b.alloc.Free(b.deleted)
	}
	b.deleted = nil
}

// BatchState is the serializable snapshot of a batch, used for
// checkpoint/restore of an in-progress output batch.
type BatchState[K comparable, P any] struct {
	SyncTime  []int64  `json:"sync_time"`
	OtherTime []int64  `json:"other_time"`
	Key       []K      `json:"key"`
	Payload   []P      `json:"payload"`
	Hash      []uint64 `json:"hash"`
	Deleted   []byte   `json:"deleted"`
	Count     int      `json:"count"`
	Iter      int      `json:"iter"`
}

// State snapshots the valid rows of the batch.
func (b *Batch[K, P]) State() *BatchState[K, P] {
	n := b.count
	s := &BatchState[K, P]{
		SyncTime:  append([]int64(nil), b.SyncTime[:n]...),
		OtherTime: append([]int64(nil), b.OtherTime[:n]...),
		Key:       append([]K(nil), b.Key[:n]...),
		Payload:   append([]P(nil), b.Payload[:n]...),
		Hash:      append([]uint64(nil), b.Hash[:n]...),
		Deleted:   append([]byte(nil), b.deleted[:bitutil.BytesForBits(int64(n))]...),
		Count:     n,
		Iter:      b.iter,
	}
	return s
}

// RestoreState loads a snapshot into the batch, which must have at least the
// snapshot's capacity.
func (b *Batch[K, P]) RestoreState(s *BatchState[K, P]) {
	b.Reset()
	copy(b.SyncTime, s.SyncTime)
	copy(b.OtherTime, s.OtherTime)
	copy(b.Key, s.Key)
	copy(b.Payload, s.Payload)
	copy(b.Hash, s.Hash)
	copy(b.deleted, s.Deleted)
	b.count = s.Count
	b.iter = s.Iter
}
