package resource

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxShardWorkers is the maximum number of shard groups processed
	// concurrently by bulk operations.
	// If 0, defaults to GOMAXPROCS.
	MaxShardWorkers int64

	// WritesPerSec is the maximum number of records written per second by
	// bulk operations.
	// If 0, unlimited.
	WritesPerSec int64
}

// Controller manages store-wide execution limits.
type Controller struct {
	cfg Config

	workers  *semaphore.Weighted
	inFlight atomic.Int64

	writeLimiter *rate.Limiter // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxShardWorkers <= 0 {
		cfg.MaxShardWorkers = int64(runtime.GOMAXPROCS(0))
	}

	c := &Controller{
		cfg:     cfg,
		workers: semaphore.NewWeighted(cfg.MaxShardWorkers),
	}

	if cfg.WritesPerSec > 0 {
		c.writeLimiter = rate.NewLimiter(rate.Limit(cfg.WritesPerSec), int(cfg.WritesPerSec))
	}

	return c
}

// MaxWorkers returns the configured shard worker limit (0 for a nil Controller).
func (c *Controller) MaxWorkers() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MaxShardWorkers
}

// InFlight returns the number of worker slots currently held.
func (c *Controller) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inFlight.Load()
}

// AcquireWorker reserves a shard worker slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.workers.Acquire(ctx, 1); err != nil {
		return err
	}
	c.inFlight.Add(1)
	return nil
}

// ReleaseWorker releases a shard worker slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.inFlight.Add(-1)
	c.workers.Release(1)
}

// AcquireWrites waits until the write limit admits n records.
func (c *Controller) AcquireWrites(ctx context.Context, n int) error {
	if c == nil || c.writeLimiter == nil || n <= 0 {
		return nil
	}
	burst := c.writeLimiter.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := c.writeLimiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
