// Package kvlite provides an embedded, sharded key-value and JSON document
// store for Go.
//
// A store spreads its records over a fixed number of shards (128 by default).
// Every shard is an independent SQLite database, so writes to different
// shards never contend. Keys are routed with FNV-1a, which keeps the
// placement stable across restarts.
//
// # Quick Start
//
// Binary values:
//
//	ctx := context.Background()
//	store, _ := kvlite.OpenBinary(ctx, kvlite.Local("./data"))
//	defer store.Close()
//
//	_ = store.Upsert(ctx, []byte("user:1"), []byte("alice"))
//	v, ok, _ := store.Get(ctx, []byte("user:1"))
//
// JSON documents:
//
//	docs, _ := kvlite.OpenDocument(ctx, kvlite.InMemory())
//	_ = docs.Add(ctx, []byte("todo:1"), `{"title":"buy milk","done":false}`)
//	_ = docs.Set(ctx, []byte("todo:1"), "$.done", true)
//
// # Value Modes
//
// [BinaryStore] holds opaque bytes (optionally LZ4 or ZSTD compressed).
// [DocumentStore] holds JSON text and adds JSON path mutation ([DocumentStore.Set]
// and friends), filtered scans ([DocumentStore.Find]) and transactions.
// Both implement [Store]. The mode of a directory is recorded on creation;
// opening it in the other mode fails with [ErrLayoutMismatch].
//
// # Semantics
//
//   - Add inserts only if the key is absent; Upsert always writes; Update
//     writes only if the key is present; Delete of an absent key is a no-op.
//   - Get reports absence through its bool result, never through an error.
//   - Bulk operations (AddMany, ...) group records by shard and write the
//     groups concurrently, each group in one shard-local transaction. A
//     failure in one group does not undo groups that already committed.
//     Bulk operations of a store run one at a time.
//   - GetAll drains shard after shard; GetAllFair interleaves shards. Both
//     are lazy iter.Seq2 sequences that read shards page by page.
//
// # Transactions
//
// A transaction binds to the shard owning its key and holds that shard's
// write permit until it ends:
//
//	err := docs.Transact(ctx, key, func(tx *kvlite.Tx) error {
//	    return tx.Set(ctx, key, "$.items[#]", item)
//	})
//
// Transactions on different shards run in parallel.
//
// # Persistence
//
// A Local directory holds one database file per shard (kv-0 ... kv-N-1,
// in WAL mode), a KVLITE manifest recording shard count, mode and
// compression, and a LOCK file preventing two stores from opening the same
// directory. The persisted shard count always wins over WithShardCount.
//
// # Observability
//
// Use [WithLogger] for structured logging (log/slog) and
// [WithMetricsCollector] to export metrics; see examples/observability for
// a Prometheus integration.
package kvlite
