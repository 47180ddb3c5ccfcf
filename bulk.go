package kvlite

import (
	"context"
	"time"

	"github.com/hupe1980/kvlite/internal/shard"
	"golang.org/x/sync/errgroup"
)

// fanOut groups n items by shard and runs one task per non-empty group.
//
// Only one fan-out runs at a time per store. Groups run concurrently,
// bounded by the shard worker limit; the first failure cancels the
// remaining groups, and fanOut returns it once every group has finished.
// Groups that committed before the failure stay applied.
func (c *coordinator[V]) fanOut(ctx context.Context, op string, n int, keyAt func(int) []byte,
	run func(ctx context.Context, s *shard.Shard[V], idx []int) error,
) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	// TODO: gate per shard group instead of per store so bulk calls on
	// disjoint shards can overlap.
	if err := c.bulkGate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.bulkGate.Release(1)

	start := time.Now()

	groups := make([][]int, c.pool.Len())
	for i := range n {
		si := c.pool.Index(keyAt(i))
		groups[si] = append(groups[si], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	used := 0
	for si, idx := range groups {
		if len(idx) == 0 {
			continue
		}
		used++
		s := c.pool.At(si)
		g.Go(func() error {
			if err := c.rc.AcquireWorker(gctx); err != nil {
				return err
			}
			defer c.rc.ReleaseWorker()
			c.logger.LogBulkGroup(gctx, op, si, len(idx), c.rc.InFlight(), c.rc.MaxWorkers())

			if err := c.rc.AcquireWrites(gctx, len(idx)); err != nil {
				return err
			}
			return run(gctx, s, idx)
		})
	}

	err := translateError(g.Wait())
	elapsed := time.Since(start)
	c.logger.LogBulk(ctx, op, n, used, elapsed, err)
	c.metrics.RecordBulk(op, n, used, elapsed, err)
	return err
}

func (c *coordinator[V]) fanOutRecords(ctx context.Context, op string, records []Record[V],
	apply func(s *shard.Shard[V], ctx context.Context, entries []shard.Entry[V]) error,
) error {
	return c.fanOut(ctx, op, len(records),
		func(i int) []byte { return records[i].Key },
		func(ctx context.Context, s *shard.Shard[V], idx []int) error {
			entries := make([]shard.Entry[V], len(idx))
			for j, i := range idx {
				entries[j] = shard.Entry[V](records[i])
			}
			return apply(s, ctx, entries)
		})
}

// AddMany adds every record whose key is absent, fanning out across shards.
func (c *coordinator[V]) AddMany(ctx context.Context, records []Record[V]) error {
	return c.fanOutRecords(ctx, "add", records, (*shard.Shard[V]).AddMany)
}

// UpsertMany inserts or overwrites every record, fanning out across shards.
func (c *coordinator[V]) UpsertMany(ctx context.Context, records []Record[V]) error {
	return c.fanOutRecords(ctx, "upsert", records, (*shard.Shard[V]).UpsertMany)
}

// UpdateMany overwrites every record whose key is present, fanning out
// across shards.
func (c *coordinator[V]) UpdateMany(ctx context.Context, records []Record[V]) error {
	return c.fanOutRecords(ctx, "update", records, (*shard.Shard[V]).UpdateMany)
}

// DeleteMany removes every key, fanning out across shards.
func (c *coordinator[V]) DeleteMany(ctx context.Context, keys [][]byte) error {
	return c.fanOut(ctx, "delete", len(keys),
		func(i int) []byte { return keys[i] },
		func(ctx context.Context, s *shard.Shard[V], idx []int) error {
			batch := make([][]byte, len(idx))
			for j, i := range idx {
				batch[j] = keys[i]
			}
			return s.DeleteMany(ctx, batch)
		})
}
