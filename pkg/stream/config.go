// Package stream provides the columnar batch container, batch pools, and
// process-wide stream configuration shared by all chronon operators.
package stream

import "math"

const (
	// PunctuationOtherTime marks a row as a punctuation: an assertion that no
	// further data events at or before its sync-time will arrive on that input.
	PunctuationOtherTime int64 = math.MinInt64

	// FlatOtherTime is the ordinary-event sentinel a redundant punctuation is
	// rewritten to when a batch is forwarded wholesale.
	FlatOtherTime int64 = 0

	// InfinitySyncTime is past every representable event time. A completed
	// input reports it as its next time so the surviving side drains freely.
	InfinitySyncTime int64 = math.MaxInt64

	// MinSyncTime is before every representable event time.
	MinSyncTime int64 = math.MinInt64
)

// DefaultBatchSize is the default output batch capacity.
const DefaultBatchSize = 1024

// BatchSize is the output batch capacity used by operators when they acquire
// a fresh output batch. Set once at process startup, before any pipeline runs.
var BatchSize = DefaultBatchSize

// DeterministicWithinTimestamp trades a small amount of whole-batch
// forwarding throughput for a reproducible guarantee: when the two inputs
// carry events with equal sync-times, the left-side event is always emitted
// first, even across batch boundaries. Read at every fast-path decision.
var DeterministicWithinTimestamp = false
