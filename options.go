package kvlite

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/kvlite/codec"
	"github.com/hupe1980/kvlite/internal/compress"
)

// DefaultShardCount is the number of shards of a new store.
const DefaultShardCount = 128

// Compression selects how binary values are compressed at rest.
type Compression uint8

const (
	// CompressionNone stores values verbatim.
	CompressionNone Compression = Compression(compress.None)
	// CompressionLZ4 favors speed.
	CompressionLZ4 Compression = Compression(compress.LZ4)
	// CompressionZSTD favors ratio.
	CompressionZSTD Compression = Compression(compress.ZSTD)
)

func (c Compression) String() string { return compress.Algorithm(c).String() }

// Synchronous is the SQLite durability level of every shard.
type Synchronous string

const (
	SynchronousOff    Synchronous = "OFF"
	SynchronousNormal Synchronous = "NORMAL"
	SynchronousFull   Synchronous = "FULL"
)

type options struct {
	shardCount       int
	shardCountSet    bool
	compression      Compression
	compressionSet   bool
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	maxShardWorkers  int
	writeRateLimit   int
	busyTimeout      time.Duration
	synchronous      Synchronous
}

// Option configures store construction.
type Option func(*options)

// WithShardCount sets the number of shards of a new store (default 128).
//
// The shard count of a directory-backed store is fixed when the directory is
// created; reopening it with a different count logs a warning and keeps the
// persisted count, because key routing depends on it.
func WithShardCount(n int) Option {
	return func(o *options) {
		o.shardCount = n
		o.shardCountSet = true
	}
}

// WithCompression compresses binary values at rest. Document stores reject
// any value other than CompressionNone. Like the shard count, the setting
// is persisted with a directory-backed store.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
		o.compressionSet = true
	}
}

// WithCodec configures the codec used to encode values passed to document
// path operations and to decode GetInto results.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &kvlite.BasicMetricsCollector{}
//	store, _ := kvlite.OpenBinary(ctx, kvlite.InMemory(), kvlite.WithMetricsCollector(metrics))
//	// ... use store ...
//	stats := metrics.GetStats()
//	fmt.Printf("Writes: %d, Avg latency: %dns\n", stats.WriteCount, stats.WriteAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMaxShardWorkers caps how many shard groups of a bulk operation are
// written concurrently. Zero means GOMAXPROCS.
func WithMaxShardWorkers(n int) Option {
	return func(o *options) {
		o.maxShardWorkers = n
	}
}

// WithWriteRateLimit limits bulk operations to n records per second.
// Zero disables the limit.
func WithWriteRateLimit(n int) Option {
	return func(o *options) {
		o.writeRateLimit = n
	}
}

// WithBusyTimeout sets how long a shard waits on a locked database file.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.busyTimeout = d
	}
}

// WithSynchronous sets the durability level of every shard (default NORMAL).
func WithSynchronous(s Synchronous) Option {
	return func(o *options) {
		o.synchronous = s
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		shardCount:       DefaultShardCount,
		compression:      CompressionNone,
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		synchronous:      SynchronousNormal,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}

func (o *options) validate(mode Mode) error {
	if o.shardCount <= 0 {
		return fmt.Errorf("%w: shard count must be positive, got %d", ErrInvalidArgument, o.shardCount)
	}
	if !compress.Algorithm(o.compression).Valid() {
		return fmt.Errorf("%w: unknown compression %d", ErrInvalidArgument, o.compression)
	}
	if mode == ModeDocument && o.compression != CompressionNone {
		return fmt.Errorf("%w: compression is only supported in binary mode", ErrInvalidArgument)
	}
	if o.maxShardWorkers < 0 {
		return fmt.Errorf("%w: max shard workers must not be negative", ErrInvalidArgument)
	}
	if o.writeRateLimit < 0 {
		return fmt.Errorf("%w: write rate limit must not be negative", ErrInvalidArgument)
	}
	if o.busyTimeout < 0 {
		return fmt.Errorf("%w: busy timeout must not be negative", ErrInvalidArgument)
	}
	switch o.synchronous {
	case SynchronousOff, SynchronousNormal, SynchronousFull:
	default:
		return fmt.Errorf("%w: synchronous level %q", ErrInvalidArgument, string(o.synchronous))
	}
	return nil
}
