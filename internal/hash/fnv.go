package hash

const (
	fnvOffset64 uint64 = 14695981039346656037
	fnvPrime64  uint64 = 1099511628211
)

// FNV1a64 returns the 64-bit FNV-1a hash of key.
func FNV1a64(key []byte) uint64 {
	h := fnvOffset64
	for _, b := range key {
		h ^= uint64(b)
		h *= fnvPrime64
	}
	return h
}

// ShardIndex maps key onto [0, n).
//
// It panics if n is zero.
func ShardIndex(key []byte, n uint64) uint64 {
	if n == 0 {
		panic("hash: shard count must be positive")
	}
	return FNV1a64(key) % n
}
