// Package resource bounds the work a store pushes into its shards.
//
// The Controller governs two resources:
//
//   - Shard workers: a weighted semaphore capping how many shard groups of a
//     bulk operation execute at the same time.
//   - Write throughput: a token bucket limiting records written per second
//     by bulk operations.
//
// # Shard Worker Limits
//
//	rc := resource.NewController(resource.Config{
//	    MaxShardWorkers: 8,
//	})
//
//	if err := rc.AcquireWorker(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseWorker()
//
// # Write Rate Limiting
//
//	rc := resource.NewController(resource.Config{
//	    WritesPerSec: 50_000,
//	})
//
//	if err := rc.AcquireWrites(ctx, len(batch)); err != nil {
//	    return err
//	}
//
// Requests larger than the bucket are admitted in burst-sized chunks.
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
