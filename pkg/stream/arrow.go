package stream

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"
)

// ArrowSchema is the interop schema used when exporting batches to Arrow:
// fixed time/hash columns plus JSON-encoded key and payload columns.
var ArrowSchema = arrow.NewSchema([]arrow.Field{
	{Name: "sync_time", Type: arrow.PrimitiveTypes.Int64},
	{Name: "other_time", Type: arrow.PrimitiveTypes.Int64},
	{Name: "key", Type: arrow.BinaryTypes.String},
	{Name: "payload", Type: arrow.BinaryTypes.String},
	{Name: "hash", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "punctuation", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "deleted", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

// ToArrowRecord exports the valid rows of a batch as an Arrow RecordBatch
// for interop sinks. The caller is responsible for releasing the returned
// Record. Punctuation rows keep their sync-time and carry null key/payload.
func ToArrowRecord[K comparable, P any](alloc memory.Allocator, b *Batch[K, P]) (arrow.Record, error) {
	n := b.Count()

	syncB := array.NewInt64Builder(alloc)
	defer syncB.Release()
	otherB := array.NewInt64Builder(alloc)
	defer otherB.Release()
	keyB := array.NewStringBuilder(alloc)
	defer keyB.Release()
	payloadB := array.NewStringBuilder(alloc)
	defer payloadB.Release()
	hashB := array.NewUint64Builder(alloc)
	defer hashB.Release()
	punctB := array.NewBooleanBuilder(alloc)
	defer punctB.Release()
	deletedB := array.NewBooleanBuilder(alloc)
	defer deletedB.Release()

	for i := 0; i < n; i++ {
		syncB.Append(b.SyncTime[i])
		otherB.Append(b.OtherTime[i])
		hashB.Append(b.Hash[i])
		punct := b.IsPunctuation(i)
		punctB.Append(punct)
		deletedB.Append(!punct && b.IsDeleted(i))

		if punct {
			keyB.AppendNull()
			payloadB.AppendNull()
			continue
		}
		key, err := encodeColumnValue(b.Key[i])
		if err != nil {
			return nil, fmt.Errorf("arrow export: encode key at row %d: %w", i, err)
		}
		keyB.Append(key)
		payload, err := encodeColumnValue(b.Payload[i])
		if err != nil {
			return nil, fmt.Errorf("arrow export: encode payload at row %d: %w", i, err)
		}
		payloadB.Append(payload)
	}

	arrays := []arrow.Array{
		syncB.NewArray(), otherB.NewArray(), keyB.NewArray(), payloadB.NewArray(),
		hashB.NewArray(), punctB.NewArray(), deletedB.NewArray(),
	}
	rec := array.NewRecord(ArrowSchema, arrays, int64(n))
	// NewRecord retains each array; release our references.
	for _, a := range arrays {
		a.Release()
	}
	return rec, nil
}

// encodeColumnValue renders a key or payload for the string interop columns.
// Strings pass through untouched; everything else is JSON.
func encodeColumnValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
