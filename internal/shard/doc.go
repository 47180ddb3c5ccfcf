// Package shard implements the per-shard storage unit and the fixed pool of
// shards behind a store.
//
// Each Shard owns one SQLite database (modernc.org/sqlite, pure Go) with a
// single table:
//
//	kv(id INTEGER PRIMARY KEY AUTOINCREMENT, key BLOB UNIQUE, value BLOB|TEXT)
//
// The database/sql pool of a shard is pinned to exactly one connection. All
// statements reaching a shard are therefore serialized in arrival order, and
// a transaction owns the shard's connection until it ends.
//
// # Value modes
//
// Binary shards store values as BLOBs, optionally compressed (see
// internal/compress). Document shards store JSON text; every written value
// passes through SQLite's json() so malformed documents are rejected.
//
// # Iteration
//
// Cursors page through a shard in id (insertion) order using keyset
// pagination (id > last ORDER BY id LIMIT n). A page is fully read before it
// is handed out, so no connection is held between pages and callers may
// write to the shard while iterating.
package shard
