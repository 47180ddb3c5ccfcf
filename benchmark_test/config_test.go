package benchmark_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/hupe1980/kvlite"
	"github.com/hupe1980/kvlite/testutil"
)

// Standard value sizes.
const (
	valueSmall  = 64
	valueMedium = 1 << 10
	valueLarge  = 16 << 10
)

// Standard dataset sizes.
const (
	sizeSmall  = 1_000
	sizeMedium = 10_000
)

// Seed for deterministic benchmarks - enables reproducible comparisons.
const benchSeed = 42

// ============================================================================
// Benchmark Helpers
// ============================================================================

// OpenBenchBinary opens a directory-backed binary store for benchmarks.
func OpenBenchBinary(b *testing.B, opts ...kvlite.Option) *kvlite.BinaryStore {
	b.Helper()
	defaultOpts := []kvlite.Option{
		kvlite.WithShardCount(16),
		kvlite.WithSynchronous(kvlite.SynchronousOff),
	}
	s, err := kvlite.OpenBinary(context.Background(), kvlite.Local(b.TempDir()), append(defaultOpts, opts...)...)
	if err != nil {
		b.Fatalf("failed to open store: %v", err)
	}
	b.Cleanup(func() { _ = s.Close() })
	return s
}

// OpenBenchDocument opens a directory-backed document store for benchmarks.
func OpenBenchDocument(b *testing.B, opts ...kvlite.Option) *kvlite.DocumentStore {
	b.Helper()
	defaultOpts := []kvlite.Option{
		kvlite.WithShardCount(16),
		kvlite.WithSynchronous(kvlite.SynchronousOff),
	}
	s, err := kvlite.OpenDocument(context.Background(), kvlite.Local(b.TempDir()), append(defaultOpts, opts...)...)
	if err != nil {
		b.Fatalf("failed to open store: %v", err)
	}
	b.Cleanup(func() { _ = s.Close() })
	return s
}

// binaryRecords returns n records with random values of size bytes.
func binaryRecords(prefix string, n, size int) []kvlite.Record[[]byte] {
	rng := testutil.NewRNG(benchSeed)
	keys := testutil.Keys(prefix, n)
	values := rng.Values(n, size)

	out := make([]kvlite.Record[[]byte], n)
	for i := range out {
		out[i] = kvlite.Record[[]byte]{Key: keys[i], Value: values[i]}
	}
	return out
}

// todoRecords returns n todo documents keyed "todo-<i>".
func todoRecords(n int) []kvlite.Record[string] {
	rng := testutil.NewRNG(benchSeed)
	docs := rng.TodoDocuments(n)

	out := make([]kvlite.Record[string], n)
	for i, d := range docs {
		out[i] = kvlite.Record[string]{Key: fmt.Appendf(nil, "todo-%d", i), Value: d}
	}
	return out
}
