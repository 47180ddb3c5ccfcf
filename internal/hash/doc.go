// Package hash provides the hashing primitives used for shard routing and
// layout integrity.
//
// # Shard routing
//
// Keys are routed with 64-bit FNV-1a over the raw key bytes, reduced modulo
// the shard count:
//
//	idx := hash.ShardIndex(key, 128)
//
// The function is unseeded, so a key maps to the same shard across process
// restarts as long as the shard count does not change. The shard count of a
// directory-backed store is persisted for exactly this reason.
//
// # CRC32-Castagnoli (CRC32C)
//
// The layout manifest is guarded by a CRC32C checksum. Go's crc32 package
// uses hardware instructions when available (SSE4.2, ARM CRC).
//
//	checksum := hash.CRC32C(body)
package hash
