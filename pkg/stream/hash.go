package stream

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// Hasher computes the hash column value for a key.
type Hasher[K any] func(K) uint64

// HashInt64 hashes an int64 key.
func HashInt64(k int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(k))
	return xxhash.Sum64(buf[:])
}

// HashString hashes a string key.
func HashString(k string) uint64 {
	return xxhash.Sum64String(k)
}

// HashAny hashes an arbitrary key through its JSON encoding. Slower than the
// typed hashers; used for composite key types.
func HashAny[K any](k K) uint64 {
	data, err := json.Marshal(k)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(data)
}

// DefaultHasher picks a hasher for K, with fast paths for int64 and string.
func DefaultHasher[K any]() Hasher[K] {
	var zero K
	switch any(zero).(type) {
	case int64:
		return func(k K) uint64 { return HashInt64(any(k).(int64)) }
	case string:
		return func(k K) uint64 { return HashString(any(k).(string)) }
	default:
		return HashAny[K]
	}
}
