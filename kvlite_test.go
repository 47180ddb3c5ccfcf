package kvlite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/kvlite/internal/layout"
	"github.com/hupe1980/kvlite/internal/shard"
	"github.com/hupe1980/kvlite/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBinary(t *testing.T, optFns ...Option) *BinaryStore {
	t.Helper()
	optFns = append([]Option{WithShardCount(8)}, optFns...)
	s, err := OpenBinary(t.Context(), InMemory(), optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newDocument(t *testing.T, optFns ...Option) *DocumentStore {
	t.Helper()
	optFns = append([]Option{WithShardCount(8)}, optFns...)
	s, err := OpenDocument(t.Context(), InMemory(), optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func collect[V Value](t *testing.T, seq iter.Seq2[Record[V], error]) []Record[V] {
	t.Helper()
	var out []Record[V]
	for rec, err := range seq {
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func keySet[V Value](records []Record[V]) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = string(r.Key)
	}
	slices.Sort(out)
	return out
}

// keysOnShard returns n distinct keys that route to shard.
func keysOnShard[V Value](t *testing.T, s Store[V], shard, n int) [][]byte {
	t.Helper()
	var out [][]byte
	for i := 0; len(out) < n; i++ {
		require.Less(t, i, 1_000_000, "no key routes to shard %d", shard)
		k := fmt.Appendf(nil, "s%d-k%d", shard, i)
		if s.ShardOf(k) == shard {
			out = append(out, k)
		}
	}
	return out
}

func TestBinaryStore_SingleKey(t *testing.T) {
	ctx := t.Context()
	s := newBinary(t)
	key := []byte("user:1")

	t.Run("add keeps existing", func(t *testing.T) {
		require.NoError(t, s.Add(ctx, key, []byte("v1")))
		require.NoError(t, s.Add(ctx, key, []byte("v2")))

		v, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("v1"), v)
	})

	t.Run("upsert overwrites", func(t *testing.T) {
		require.NoError(t, s.Upsert(ctx, key, []byte("v3")))
		require.NoError(t, s.Upsert(ctx, key, []byte("v4")))

		v, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("v4"), v)
	})

	t.Run("update", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, key, []byte("v5")))
		v, _, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("v5"), v)

		missing := []byte("user:missing")
		require.NoError(t, s.Update(ctx, missing, []byte("x")))
		_, ok, err := s.Get(ctx, missing)
		require.NoError(t, err)
		assert.False(t, ok, "update must not create a key")
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, key))
		require.NoError(t, s.Delete(ctx, key), "deleting an absent key is not an error")

		_, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestBinaryStore_EmptyKey(t *testing.T) {
	ctx := t.Context()
	s := newBinary(t)

	require.NoError(t, s.Add(ctx, nil, []byte("empty")))

	v, ok, err := s.Get(ctx, []byte{})
	require.NoError(t, err)
	require.True(t, ok, "nil and empty keys are the same key")
	assert.Equal(t, []byte("empty"), v)
	assert.Equal(t, s.ShardOf(nil), s.ShardOf([]byte{}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBinaryStore_BinaryValues(t *testing.T) {
	ctx := t.Context()
	s := newBinary(t)
	rng := testutil.NewRNG(1)

	key := []byte{0x00, 0xff, 0x10}
	value := rng.Bytes(4096)
	require.NoError(t, s.Upsert(ctx, key, value))

	got, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value, got)
}

func TestBinaryStore_Compression(t *testing.T) {
	for _, c := range []Compression{CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			ctx := t.Context()
			s := newBinary(t, WithCompression(c))
			rng := testutil.NewRNG(7)

			records := []Record[[]byte]{
				{Key: []byte("text"), Value: bytes.Repeat([]byte("kvlite "), 512)},
				{Key: []byte("noise"), Value: rng.Bytes(1024)},
				{Key: []byte("tiny"), Value: []byte("x")},
				{Key: []byte("empty"), Value: []byte{}},
			}
			require.NoError(t, s.UpsertMany(ctx, records))

			for _, r := range records {
				got, ok, err := s.Get(ctx, r.Key)
				require.NoError(t, err)
				require.True(t, ok, "key %q", r.Key)
				assert.Equal(t, len(r.Value), len(got))
				assert.True(t, bytes.Equal(r.Value, got), "key %q", r.Key)
			}

			all := collect(t, s.GetAll(ctx))
			assert.Len(t, all, len(records))
		})
	}
}

func TestOpen_Generic(t *testing.T) {
	ctx := t.Context()

	bin, err := Open[[]byte](ctx, InMemory(), WithShardCount(2))
	require.NoError(t, err)
	defer bin.Close()
	assert.Equal(t, ModeBinary, bin.Mode())
	assert.IsType(t, &BinaryStore{}, bin)

	doc, err := Open[string](ctx, InMemory(), WithShardCount(2))
	require.NoError(t, err)
	defer doc.Close()
	assert.Equal(t, ModeDocument, doc.Mode())
	assert.IsType(t, &DocumentStore{}, doc)
	assert.Equal(t, 2, doc.ShardCount())
}

func TestOpen_InvalidOptions(t *testing.T) {
	ctx := t.Context()

	tests := []struct {
		name   string
		mode   Mode
		optFns []Option
	}{
		{"zero shards", ModeBinary, []Option{WithShardCount(0)}},
		{"negative shards", ModeBinary, []Option{WithShardCount(-1)}},
		{"unknown compression", ModeBinary, []Option{WithCompression(Compression(42))}},
		{"compressed documents", ModeDocument, []Option{WithCompression(CompressionLZ4)}},
		{"negative workers", ModeBinary, []Option{WithMaxShardWorkers(-1)}},
		{"negative rate", ModeBinary, []Option{WithWriteRateLimit(-5)}},
		{"negative busy timeout", ModeBinary, []Option{WithBusyTimeout(-1)}},
		{"bad synchronous", ModeDocument, []Option{WithSynchronous("SOMETIMES")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.mode == ModeBinary {
				_, err = OpenBinary(ctx, InMemory(), tt.optFns...)
			} else {
				_, err = OpenDocument(ctx, InMemory(), tt.optFns...)
			}
			require.ErrorIs(t, err, ErrInvalidArgument)
		})
	}

	t.Run("empty directory", func(t *testing.T) {
		_, err := OpenBinary(ctx, Local(""))
		require.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("nil options are ignored", func(t *testing.T) {
		s, err := OpenBinary(ctx, InMemory(), nil, WithShardCount(1), WithLogger(nil), WithMetricsCollector(nil))
		require.NoError(t, err)
		require.NoError(t, s.Close())
	})
}

func TestBinaryStore_ConcurrentAddMany(t *testing.T) {
	ctx := t.Context()
	s := newBinary(t, WithShardCount(16))

	const (
		workers = 10
		perCall = 100
	)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys := testutil.Keys(fmt.Sprintf("w%d", w), perCall)
			records := make([]Record[[]byte], len(keys))
			for i, k := range keys {
				records[i] = Record[[]byte]{Key: k, Value: k}
			}
			errs <- s.AddMany(ctx, records)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perCall), n)

	var keys [][]byte
	for w := range workers {
		keys = append(keys, testutil.Keys(fmt.Sprintf("w%d", w), perCall)...)
	}
	for _, k := range keys {
		v, ok, err := s.Get(ctx, k)
		require.NoError(t, err)
		require.True(t, ok, "key %q lost", k)
		assert.Equal(t, k, v)
	}
	require.NoError(t, s.DeleteMany(ctx, keys))

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBinaryStore_BulkSemantics(t *testing.T) {
	ctx := t.Context()
	s := newBinary(t)
	keys := testutil.Keys("bulk", 50)

	records := func(val string) []Record[[]byte] {
		out := make([]Record[[]byte], len(keys))
		for i, k := range keys {
			out[i] = Record[[]byte]{Key: k, Value: []byte(val)}
		}
		return out
	}

	require.NoError(t, s.AddMany(ctx, nil))
	require.NoError(t, s.DeleteMany(ctx, [][]byte{}))

	require.NoError(t, s.AddMany(ctx, records("first")))
	require.NoError(t, s.AddMany(ctx, records("second")))
	v, _, err := s.Get(ctx, keys[7])
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), v)

	require.NoError(t, s.UpdateMany(ctx, records("third")))
	v, _, err = s.Get(ctx, keys[7])
	require.NoError(t, err)
	assert.Equal(t, []byte("third"), v)

	extra := []Record[[]byte]{{Key: []byte("not-there"), Value: []byte("x")}}
	require.NoError(t, s.UpdateMany(ctx, extra))
	_, ok, err := s.Get(ctx, []byte("not-there"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.UpsertMany(ctx, append(records("fourth"), extra...)))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(keys)+1), n)
	v, _, err = s.Get(ctx, keys[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("fourth"), v)
}

func TestBinaryStore_BulkCanceled(t *testing.T) {
	s := newBinary(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := s.AddMany(ctx, []Record[[]byte]{{Key: []byte("a"), Value: []byte("b")}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBinaryStore_BulkWithLimits(t *testing.T) {
	ctx := t.Context()
	s := newBinary(t, WithShardCount(4), WithMaxShardWorkers(1), WithWriteRateLimit(100_000))

	keys := testutil.Keys("limited", 200)
	records := make([]Record[[]byte], len(keys))
	for i, k := range keys {
		records[i] = Record[[]byte]{Key: k, Value: k}
	}
	require.NoError(t, s.UpsertMany(ctx, records))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(keys)), n)
}

func TestBinaryStore_BulkGate(t *testing.T) {
	ctx := t.Context()
	// 20 records admitted at once, the next 20 a second later.
	s := newBinary(t, WithWriteRateLimit(20))

	slow := keysOnShard[[]byte](t, s, 0, 40)
	records := make([]Record[[]byte], len(slow))
	for i, k := range slow {
		records[i] = Record[[]byte]{Key: k, Value: k}
	}

	gateHeld := func() bool {
		if s.bulkGate.TryAcquire(1) {
			s.bulkGate.Release(1)
			return false
		}
		return true
	}

	done := make(chan error, 1)
	go func() { done <- s.AddMany(ctx, records) }()
	require.Eventually(t, gateHeld, time.Second, time.Millisecond)

	// A second bulk call waits for the first.
	other := keysOnShard[[]byte](t, s, 1, 2)
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := s.UpsertMany(waitCtx, []Record[[]byte]{{Key: other[0], Value: []byte("bulk")}})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Single-key operations do not take the gate.
	require.NoError(t, s.Upsert(ctx, other[1], []byte("single")))
	v, ok, err := s.Get(ctx, other[1])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("single"), v)
	assert.True(t, gateHeld(), "first bulk call still running")

	require.NoError(t, <-done)
	require.NoError(t, s.UpsertMany(ctx, []Record[[]byte]{{Key: other[0], Value: []byte("bulk")}}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestBinaryStore_GetAll(t *testing.T) {
	ctx := t.Context()
	s := newBinary(t, WithShardCount(16))

	keys := testutil.Keys("scan", 300)
	records := make([]Record[[]byte], len(keys))
	for i, k := range keys {
		records[i] = Record[[]byte]{Key: k, Value: k}
	}
	require.NoError(t, s.AddMany(ctx, records))

	seq := collect(t, s.GetAll(ctx, WithPageSize(7)))
	fair := collect(t, s.GetAllFair(ctx, WithPageSize(7)))
	require.Len(t, seq, len(keys))
	require.Len(t, fair, len(keys))
	assert.Equal(t, keySet(seq), keySet(fair))

	for _, r := range seq {
		assert.Equal(t, r.Key, r.Value)
	}

	t.Run("sequential drains shards in order", func(t *testing.T) {
		last := 0
		for _, r := range seq {
			si := s.ShardOf(r.Key)
			require.GreaterOrEqual(t, si, last)
			last = si
		}
	})

	t.Run("restartable", func(t *testing.T) {
		again := collect(t, s.GetAll(ctx))
		assert.Equal(t, keySet(seq), keySet(again))
	})

	t.Run("early break", func(t *testing.T) {
		seen := 0
		for _, err := range s.GetAllFair(ctx) {
			require.NoError(t, err)
			seen++
			if seen == 10 {
				break
			}
		}
		assert.Equal(t, 10, seen)
	})

	t.Run("invalid page size", func(t *testing.T) {
		var errs []error
		for _, err := range s.GetAll(ctx, WithPageSize(0)) {
			errs = append(errs, err)
		}
		require.Len(t, errs, 1)
		require.ErrorIs(t, errs[0], ErrInvalidArgument)
	})
}

func TestBinaryStore_GetAllFairOrder(t *testing.T) {
	ctx := t.Context()
	s := newBinary(t, WithShardCount(16)) // groups of two shards

	const perShard = 3
	for si := range s.ShardCount() {
		for _, k := range keysOnShard[[]byte](t, s, si, perShard) {
			require.NoError(t, s.Add(ctx, k, []byte("v")))
		}
	}

	var got []int
	for r, err := range s.GetAllFair(ctx) {
		require.NoError(t, err)
		got = append(got, s.ShardOf(r.Key))
	}

	var want []int
	for g := 0; g < s.ShardCount(); g += 2 {
		for range perShard {
			want = append(want, g, g+1)
		}
	}
	assert.Equal(t, want, got)
}

func TestBinaryStore_GetAllFairUnevenShards(t *testing.T) {
	ctx := t.Context()
	s := newBinary(t, WithShardCount(2)) // one group of one shard each

	for _, k := range keysOnShard[[]byte](t, s, 0, 1) {
		require.NoError(t, s.Add(ctx, k, []byte("v")))
	}
	for _, k := range keysOnShard[[]byte](t, s, 1, 4) {
		require.NoError(t, s.Add(ctx, k, []byte("v")))
	}

	var got []int
	for r, err := range s.GetAllFair(ctx) {
		require.NoError(t, err)
		got = append(got, s.ShardOf(r.Key))
	}
	assert.Equal(t, []int{0, 1, 1, 1, 1}, got)
}

func TestBinaryStore_WriteDuringScan(t *testing.T) {
	ctx := t.Context()
	s := newBinary(t, WithShardCount(4))

	keys := testutil.Keys("live", 40)
	for _, k := range keys {
		require.NoError(t, s.Add(ctx, k, []byte("old")))
	}

	for r, err := range s.GetAll(ctx, WithPageSize(5)) {
		require.NoError(t, err)
		require.NoError(t, s.Upsert(ctx, r.Key, []byte("new")))
	}

	for _, k := range keys {
		v, ok, err := s.Get(ctx, k)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("new"), v)
	}
}

func TestBinaryStore_Clean(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()

	s, err := OpenBinary(ctx, Local(dir), WithShardCount(4))
	require.NoError(t, err)
	defer s.Close()

	for _, k := range testutil.Keys("wal", 100) {
		require.NoError(t, s.Upsert(ctx, k, k))
	}
	require.NoError(t, s.Clean(ctx))

	all := collect(t, s.GetAll(ctx, WithTruncateWAL()))
	assert.Len(t, all, 100)
}

func TestBinaryStore_Reopen(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()

	s, err := OpenBinary(ctx, Local(dir), WithShardCount(4), WithCompression(CompressionZSTD))
	require.NoError(t, err)
	keys := testutil.Keys("persist", 64)
	for _, k := range keys {
		require.NoError(t, s.Add(ctx, k, k))
	}
	require.NoError(t, s.Close())

	// The persisted layout wins over the requested one.
	s, err = OpenBinary(ctx, Local(dir), WithShardCount(32), WithCompression(CompressionNone))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 4, s.ShardCount())

	for _, k := range keys {
		v, ok, err := s.Get(ctx, k)
		require.NoError(t, err)
		require.True(t, ok, "key %q", k)
		assert.Equal(t, k, v)
	}
}

func TestOpen_LayoutMismatch(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()

	s, err := OpenDocument(ctx, Local(dir), WithShardCount(2))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = OpenBinary(ctx, Local(dir))
	require.ErrorIs(t, err, ErrLayoutMismatch)

	// The failed open must not leave the directory locked.
	s, err = OpenDocument(ctx, Local(dir))
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpen_FailedOpenKeepsDirectoryFresh(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()

	// A directory where shard 2's database file belongs.
	blocker := filepath.Join(dir, shard.FileName(2))
	require.NoError(t, os.Mkdir(blocker, 0o755))

	_, err := OpenBinary(ctx, Local(dir), WithShardCount(4))
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(dir, layout.ManifestFileName))
	require.ErrorIs(t, err, os.ErrNotExist, "a failed open must not persist a layout")

	require.NoError(t, os.Remove(blocker))
	s, err := OpenDocument(ctx, Local(dir), WithShardCount(2))
	require.NoError(t, err)
	assert.Equal(t, 2, s.ShardCount())
	require.NoError(t, s.Close())

	_, err = os.Stat(filepath.Join(dir, layout.ManifestFileName))
	require.NoError(t, err)
}

func TestStore_Closed(t *testing.T) {
	ctx := t.Context()
	s, err := OpenDocument(ctx, InMemory(), WithShardCount(2))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	require.ErrorIs(t, s.Add(ctx, []byte("k"), `{}`), ErrClosed)
	_, _, err = s.Get(ctx, []byte("k"))
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, s.UpsertMany(ctx, []Record[string]{{Key: []byte("k"), Value: `{}`}}), ErrClosed)
	_, err = s.Count(ctx)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, s.Clean(ctx), ErrClosed)
	_, err = s.BeginTransaction(ctx, []byte("k"))
	require.ErrorIs(t, err, ErrClosed)

	for _, err := range s.GetAll(ctx) {
		require.ErrorIs(t, err, ErrClosed)
	}
}

func TestStore_Metrics(t *testing.T) {
	ctx := t.Context()
	metrics := &BasicMetricsCollector{}
	s := newBinary(t, WithMetricsCollector(metrics))

	require.NoError(t, s.Add(ctx, []byte("a"), []byte("1")))
	_, _, err := s.Get(ctx, []byte("a"))
	require.NoError(t, err)
	_, _, err = s.Get(ctx, []byte("b"))
	require.NoError(t, err)

	records := make([]Record[[]byte], 10)
	for i, k := range testutil.Keys("m", 10) {
		records[i] = Record[[]byte]{Key: k, Value: k}
	}
	require.NoError(t, s.AddMany(ctx, records))
	_ = collect(t, s.GetAll(ctx))

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.WriteCount)
	assert.Equal(t, int64(2), stats.GetCount)
	assert.Equal(t, int64(1), stats.GetHits)
	assert.Equal(t, int64(1), stats.BulkCount)
	assert.Equal(t, int64(10), stats.BulkRecords)
	assert.Equal(t, int64(1), stats.ScanCount)
	assert.Equal(t, int64(11), stats.ScanRecords)
	assert.Zero(t, stats.WriteErrors+stats.GetErrors+stats.BulkErrors+stats.ScanErrors)
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil))
	assert.ErrorIs(t, translateError(context.Canceled), context.Canceled)

	plain := errors.New("boom")
	assert.Equal(t, plain, translateError(plain))
}

func TestModeParse(t *testing.T) {
	for _, m := range []Mode{ModeBinary, ModeDocument} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("columnar")
	require.ErrorIs(t, err, ErrUnsupportedMode)
	assert.Equal(t, "Mode(9)", Mode(9).String())
}
