package kvlite

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/hupe1980/kvlite/internal/shard"
)

// ScanOption configures GetAll, GetAllFair, Find and FindFair.
type ScanOption func(*scanConfig)

type scanConfig struct {
	truncateWAL bool
	pageSize    int
}

// WithTruncateWAL checkpoints and truncates every shard's write-ahead log
// once the scan has run to completion. A scan stopped early by the caller
// skips the truncation.
func WithTruncateWAL() ScanOption {
	return func(c *scanConfig) {
		c.truncateWAL = true
	}
}

// WithPageSize sets how many records are fetched from a shard at a time
// (default 512).
func WithPageSize(n int) ScanOption {
	return func(c *scanConfig) {
		c.pageSize = n
	}
}

func applyScanOptions(opts []ScanOption) scanConfig {
	cfg := scanConfig{pageSize: shard.DefaultPageSize}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// GetAll yields every record, draining shard 0 first, then shard 1, and so
// on. Within a shard records come in insertion order.
//
// The sequence is lazy and may be ranged over more than once; each range
// starts a new scan. A failure is yielded as the final element.
func (c *coordinator[V]) GetAll(ctx context.Context, opts ...ScanOption) iter.Seq2[Record[V], error] {
	return c.scan(ctx, false, nil, opts)
}

// GetAllFair yields every record, interleaving shards. Shards are split into
// consecutive groups of max(1, N/8); the shards of a group are polled in
// rotation, one record each, until the whole group is exhausted.
func (c *coordinator[V]) GetAllFair(ctx context.Context, opts ...ScanOption) iter.Seq2[Record[V], error] {
	return c.scan(ctx, true, nil, opts)
}

type nextFunc[V Value] func(ctx context.Context) (shard.Entry[V], bool, error)

func (c *coordinator[V]) scan(ctx context.Context, fair bool, f *shard.Filter, opts []ScanOption) iter.Seq2[Record[V], error] {
	cfg := applyScanOptions(opts)

	return func(yield func(Record[V], error) bool) {
		if err := c.checkOpen(); err != nil {
			yield(Record[V]{}, err)
			return
		}
		if cfg.pageSize <= 0 {
			yield(Record[V]{}, fmt.Errorf("%w: page size must be positive, got %d", ErrInvalidArgument, cfg.pageSize))
			return
		}

		var (
			start   = time.Now()
			yielded int
			scanErr error
		)
		defer func() {
			c.metrics.RecordScan(yielded, time.Since(start), scanErr)
		}()

		next := c.sequential(f, cfg.pageSize)
		if fair {
			next = c.roundRobin(f, cfg.pageSize)
		}

		for {
			if err := c.checkOpen(); err != nil {
				scanErr = err
				yield(Record[V]{}, err)
				return
			}
			e, ok, err := next(ctx)
			if err != nil {
				scanErr = translateError(err)
				yield(Record[V]{}, scanErr)
				return
			}
			if !ok {
				break
			}
			yielded++
			if !yield(Record[V](e), nil) {
				return
			}
		}

		if cfg.truncateWAL {
			if err := c.Clean(ctx); err != nil {
				scanErr = err
				yield(Record[V]{}, err)
			}
		}
	}
}

func (c *coordinator[V]) sequential(f *shard.Filter, pageSize int) nextFunc[V] {
	shards := c.pool.All()
	i := 0
	var cur *shard.Cursor[V]

	return func(ctx context.Context) (shard.Entry[V], bool, error) {
		for i < len(shards) {
			if cur == nil {
				cur = shards[i].Cursor(f, pageSize)
			}
			e, ok, err := cur.Next(ctx)
			if err != nil || ok {
				return e, ok, err
			}
			cur = nil
			i++
		}
		return shard.Entry[V]{}, false, nil
	}
}

func (c *coordinator[V]) roundRobin(f *shard.Filter, pageSize int) nextFunc[V] {
	shards := c.pool.All()
	groupSize := max(1, len(shards)/8)

	var (
		next   int // first shard of the next group
		active []*shard.Cursor[V]
		pos    int
	)

	return func(ctx context.Context) (shard.Entry[V], bool, error) {
		for {
			if len(active) == 0 {
				if next >= len(shards) {
					return shard.Entry[V]{}, false, nil
				}
				end := min(next+groupSize, len(shards))
				for _, s := range shards[next:end] {
					active = append(active, s.Cursor(f, pageSize))
				}
				next, pos = end, 0
			}
			if pos >= len(active) {
				pos = 0
			}

			e, ok, err := active[pos].Next(ctx)
			if err != nil {
				return e, false, err
			}
			if !ok {
				// The following cursor slides into pos.
				active = slices.Delete(active, pos, pos+1)
				continue
			}
			pos++
			return e, true, nil
		}
	}
}
