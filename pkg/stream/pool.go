package stream

import (
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Pool hands out empty batches and reclaims drained ones. A pool may be
// shared by independently scheduled operator instances, so implementations
// must tolerate concurrent Get/Put; any single batch is still owned by one
// party at a time.
type Pool[K comparable, P any] interface {
	Get() *Batch[K, P]
	Put(*Batch[K, P])
}

// ColumnPool recycles column storage for streams in columnar mode. The
// deletion bitmaps are carved from an Arrow allocator so tests can account
// for them with a CheckedAllocator; Close returns the bitmaps of all idle
// batches to the allocator.
type ColumnPool[K comparable, P any] struct {
	alloc    memory.Allocator
	capacity int

	mu   sync.Mutex
	free []*Batch[K, P]
}

// NewColumnPool creates a pool of batches with the given row capacity.
func NewColumnPool[K comparable, P any](alloc memory.Allocator, capacity int) *ColumnPool[K, P] {
	if capacity <= 0 {
		capacity = BatchSize
	}
	return &ColumnPool[K, P]{alloc: alloc, capacity: capacity}
}

// Get returns an empty batch, recycling a previously returned one if any.
func (p *ColumnPool[K, P]) Get() *Batch[K, P] {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return b
	}
	p.mu.Unlock()
	return NewBatch[K, P](p.alloc, p.capacity)
}

// Put reclaims a drained batch. The caller must not touch it afterwards.
func (p *ColumnPool[K, P]) Put(b *Batch[K, P]) {
	b.Reset()
	p.mu.Lock()
	p.free = append(p.free, b)
	p.mu.Unlock()
}

// Close releases the storage of all idle batches. Batches still outstanding
// are their owners' responsibility.
func (p *ColumnPool[K, P]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.free {
		b.Dispose()
	}
	p.free = nil
}

// HeapPool allocates plain Go-heap batches for streams in row-oriented mode,
// where batches are short-lived and the GC reclaims them.
type HeapPool[K comparable, P any] struct {
	capacity int
}

// NewHeapPool creates a non-recycling pool with the given row capacity.
func NewHeapPool[K comparable, P any](capacity int) *HeapPool[K, P] {
	if capacity <= 0 {
		capacity = BatchSize
	}
	return &HeapPool[K, P]{capacity: capacity}
}

// Get returns a fresh batch.
func (p *HeapPool[K, P]) Get() *Batch[K, P] {
	return NewBatch[K, P](nil, p.capacity)
}

// Put drops the batch for the GC to collect.
func (p *HeapPool[K, P]) Put(*Batch[K, P]) {}

// StorageMode selects how a stream's batches are laid out and pooled.
type StorageMode int

const (
	// Columnar streams recycle column storage through a ColumnPool.
	Columnar StorageMode = iota
	// RowOriented streams use plain heap allocation.
	RowOriented
)

// PoolFor returns the pool implementation for the given storage mode.
func PoolFor[K comparable, P any](mode StorageMode, alloc memory.Allocator, capacity int) Pool[K, P] {
	if mode == RowOriented {
		return NewHeapPool[K, P](capacity)
	}
	return NewColumnPool[K, P](alloc, capacity)
}
