// Package layout persists the on-disk shape of a directory-backed store.
//
// A store directory contains:
//
//	kv-0 ... kv-<N-1>   one SQLite database per shard (plus -wal/-shm files)
//	KVLITE              layout manifest (JSON, CRC32C guarded)
//	LOCK                advisory lock held while the store is open
//
// The manifest records the properties that must not change for the lifetime
// of the data: shard count (routing depends on it), value mode and value
// compression.
package layout
