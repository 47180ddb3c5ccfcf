package kvlite

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/kvlite/internal/compress"
	"github.com/hupe1980/kvlite/internal/fs"
	"github.com/hupe1980/kvlite/internal/layout"
	"github.com/hupe1980/kvlite/internal/resource"
	"github.com/hupe1980/kvlite/internal/shard"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Value is the set of value types a store can hold: []byte for binary
// stores and string (JSON text) for document stores.
type Value interface {
	[]byte | string
}

// Record is a key/value pair.
type Record[V Value] struct {
	Key   []byte
	Value V
}

// Store is the capability set shared by binary and document stores.
type Store[V Value] interface {
	Add(ctx context.Context, key []byte, value V) error
	Upsert(ctx context.Context, key []byte, value V) error
	Update(ctx context.Context, key []byte, value V) error
	Delete(ctx context.Context, key []byte) error
	Get(ctx context.Context, key []byte) (V, bool, error)

	AddMany(ctx context.Context, records []Record[V]) error
	UpsertMany(ctx context.Context, records []Record[V]) error
	UpdateMany(ctx context.Context, records []Record[V]) error
	DeleteMany(ctx context.Context, keys [][]byte) error

	GetAll(ctx context.Context, opts ...ScanOption) iter.Seq2[Record[V], error]
	GetAllFair(ctx context.Context, opts ...ScanOption) iter.Seq2[Record[V], error]

	Count(ctx context.Context) (int64, error)
	Clean(ctx context.Context) error

	Mode() Mode
	ShardCount() int
	ShardOf(key []byte) int
	Close() error
}

// Open opens a store whose mode follows from V: []byte opens a binary
// store, string a document store.
func Open[V Value](ctx context.Context, backend Backend, optFns ...Option) (Store[V], error) {
	var zero V
	switch any(zero).(type) {
	case []byte:
		s, err := OpenBinary(ctx, backend, optFns...)
		if err != nil {
			return nil, err
		}
		return any(s).(Store[V]), nil
	default:
		s, err := OpenDocument(ctx, backend, optFns...)
		if err != nil {
			return nil, err
		}
		return any(s).(Store[V]), nil
	}
}

// coordinator routes operations to the shards of one store.
type coordinator[V Value] struct {
	mode    Mode
	dir     string
	storeID string
	pool    *shard.Pool[V]
	lock    *layout.Lock

	opts    options
	logger  *Logger
	metrics MetricsCollector
	rc      *resource.Controller

	// Admits one bulk operation at a time.
	bulkGate *semaphore.Weighted

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func open[V Value](ctx context.Context, backend Backend, mode Mode, optFns []Option) (*coordinator[V], error) {
	o := applyOptions(optFns)
	if err := o.validate(mode); err != nil {
		return nil, err
	}
	if backend.persistent && backend.dir == "" {
		return nil, fmt.Errorf("%w: empty directory", ErrInvalidArgument)
	}

	c := &coordinator[V]{
		mode:     mode,
		dir:      backend.dir,
		opts:     o,
		logger:   o.logger,
		metrics:  o.metricsCollector,
		bulkGate: semaphore.NewWeighted(1),
		rc: resource.NewController(resource.Config{
			MaxShardWorkers: int64(o.maxShardWorkers),
			WritesPerSec:    int64(o.writeRateLimit),
		}),
	}

	shards, compression := o.shardCount, o.compression
	var fresh *layout.Manifest
	if backend.persistent {
		m, lock, created, err := c.loadLayout(ctx)
		if err != nil {
			c.logger.LogOpen(ctx, mode, shards, c.dir, err)
			return nil, err
		}
		c.lock = lock
		if created {
			fresh = m
		}
		c.storeID = m.StoreID.String()
		shards = m.Shards
		alg, _ := compress.ParseAlgorithm(m.Compression)
		compression = Compression(alg)
	}
	if c.storeID != "" {
		c.logger = c.logger.WithStore(c.storeID)
	}

	pool, err := shard.OpenPool[V](ctx, c.dir, shards, shard.Config{
		Document:    mode == ModeDocument,
		Compression: compress.Algorithm(compression),
		BusyTimeout: o.busyTimeout,
		Synchronous: string(o.synchronous),
	})
	if err != nil {
		err = translateError(err)
		c.logger.LogOpen(ctx, mode, shards, c.dir, err)
		return nil, errors.Join(err, c.lock.Release())
	}
	c.pool = pool

	// A fresh layout is only recorded once every shard opened, so a failed
	// open does not pin the directory to options that never took effect.
	if fresh != nil {
		if err := layout.Save(fs.Default, c.dir, fresh); err != nil {
			c.logger.LogOpen(ctx, mode, shards, c.dir, err)
			return nil, errors.Join(err, pool.Close(), c.lock.Release())
		}
	}

	c.logger.LogOpen(ctx, mode, shards, c.dir, nil)
	return c, nil
}

// loadLayout locks the directory and reads its manifest. For a fresh
// directory it returns a new, not yet saved manifest and created == true.
func (c *coordinator[V]) loadLayout(ctx context.Context) (m *layout.Manifest, lock *layout.Lock, created bool, err error) {
	if err := fs.Default.MkdirAll(c.dir, 0o755); err != nil {
		return nil, nil, false, err
	}
	lock, err = layout.AcquireLock(fs.Default, c.dir)
	if err != nil {
		return nil, nil, false, translateError(err)
	}

	m, err = layout.Load(fs.Default, c.dir)
	switch {
	case errors.Is(err, layout.ErrNotFound):
		return layout.New(c.mode.String(), c.opts.shardCount, c.opts.compression.String()), lock, true, nil
	case err != nil:
		return nil, nil, false, errors.Join(err, lock.Release())
	}

	if err := c.reconcile(ctx, m); err != nil {
		return nil, nil, false, errors.Join(err, lock.Release())
	}
	return m, lock, false, nil
}

// reconcile checks a persisted manifest against the requested options.
func (c *coordinator[V]) reconcile(ctx context.Context, m *layout.Manifest) error {
	mode, err := ParseMode(m.Mode)
	if err != nil {
		return err
	}
	if mode != c.mode {
		return fmt.Errorf("%w: directory holds a %s store, opened as %s", ErrLayoutMismatch, mode, c.mode)
	}
	alg, err := compress.ParseAlgorithm(m.Compression)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLayoutMismatch, err)
	}

	if c.opts.shardCountSet && c.opts.shardCount != m.Shards {
		c.logger.LogLayoutOverride(ctx, "shards", c.opts.shardCount, m.Shards)
	}
	if c.opts.compressionSet && c.opts.compression != Compression(alg) {
		c.logger.LogLayoutOverride(ctx, "compression", c.opts.compression.String(), alg.String())
	}
	return nil
}

// Mode returns the value mode of the store.
func (c *coordinator[V]) Mode() Mode { return c.mode }

// ShardCount returns the number of shards.
func (c *coordinator[V]) ShardCount() int { return c.pool.Len() }

// ShardOf returns the index of the shard key is routed to.
func (c *coordinator[V]) ShardOf(key []byte) int { return c.pool.Index(key) }

func (c *coordinator[V]) checkOpen() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (c *coordinator[V]) write(ctx context.Context, op string, key []byte, fn func(*shard.Shard[V]) error) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	start := time.Now()
	err := translateError(fn(c.pool.For(key)))
	c.metrics.RecordWrite(op, time.Since(start), err)
	return err
}

// Add inserts value under key if the key is absent. An existing value is kept.
func (c *coordinator[V]) Add(ctx context.Context, key []byte, value V) error {
	return c.write(ctx, "add", key, func(s *shard.Shard[V]) error {
		return s.Add(ctx, key, value)
	})
}

// Upsert inserts value under key or overwrites the existing value.
func (c *coordinator[V]) Upsert(ctx context.Context, key []byte, value V) error {
	return c.write(ctx, "upsert", key, func(s *shard.Shard[V]) error {
		return s.Upsert(ctx, key, value)
	})
}

// Update overwrites the value under key. Absent keys are left absent.
func (c *coordinator[V]) Update(ctx context.Context, key []byte, value V) error {
	return c.write(ctx, "update", key, func(s *shard.Shard[V]) error {
		return s.Update(ctx, key, value)
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (c *coordinator[V]) Delete(ctx context.Context, key []byte) error {
	return c.write(ctx, "delete", key, func(s *shard.Shard[V]) error {
		return s.Delete(ctx, key)
	})
}

// Get returns the value stored under key. ok is false if the key is absent;
// absence is never reported as an error.
func (c *coordinator[V]) Get(ctx context.Context, key []byte) (value V, ok bool, err error) {
	if err := c.checkOpen(); err != nil {
		return value, false, err
	}
	start := time.Now()
	value, ok, err = c.pool.For(key).Get(ctx, key)
	err = translateError(err)
	c.metrics.RecordGet(ok, time.Since(start), err)
	return value, ok, err
}

// Count returns the number of records across all shards.
func (c *coordinator[V]) Count(ctx context.Context) (int64, error) {
	return c.count(ctx, nil)
}

func (c *coordinator[V]) count(ctx context.Context, f *shard.Filter) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}

	counts := make([]int64, c.pool.Len())
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range c.pool.All() {
		g.Go(func() error {
			n, err := s.Count(gctx, f)
			counts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, translateError(err)
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// Clean checkpoints and truncates the write-ahead log of every shard.
// All shards are visited even if some fail; the failures are joined.
// A shard with an open transaction is checkpointed once it ends.
func (c *coordinator[V]) Clean(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	var errs []error
	for _, s := range c.pool.All() {
		if err := s.Checkpoint(ctx); err != nil {
			errs = append(errs, translateError(err))
		}
	}
	err := errors.Join(errs...)
	c.logger.LogClean(ctx, c.pool.Len(), err)
	return err
}
