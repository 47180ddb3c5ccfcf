package kvlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/kvlite/internal/shard"
)

// Tx is a transaction on the shard owning the key it was begun with.
//
// While a Tx is open it holds that shard's write permit and other
// transactions on the shard wait. Store operations on keys of that shard
// (Add, Set, Get, AddMany, scans, ...) run inside the open transaction and
// are committed or rolled back with it. The Tx methods are the same
// operations restricted to the shard: keys routed elsewhere are rejected with
// ErrKeyNotInTransaction.
//
// The permit is released by Commit, Rollback or Close, and when the context
// passed to BeginTransaction is done. Close rolls back an uncommitted Tx, so
//
//	tx, err := store.BeginTransaction(ctx, key)
//	if err != nil {
//	    return err
//	}
//	defer tx.Close()
//
// is always safe.
type Tx struct {
	store *DocumentStore
	tx    *shard.Tx[string]
	id    uuid.UUID
	start time.Time

	stopAfter  func() bool
	finishOnce sync.Once
}

// BeginTransaction waits for the write permit of the shard owning key and
// starts a transaction on it. The wait honors ctx.
func (s *DocumentStore) BeginTransaction(ctx context.Context, key []byte) (*Tx, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	stx, err := s.pool.For(key).Begin(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	return s.newTx(ctx, stx), nil
}

// TryBeginTransaction is like BeginTransaction but fails with
// ErrTransactionBusy instead of waiting for the permit.
func (s *DocumentStore) TryBeginTransaction(ctx context.Context, key []byte) (*Tx, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	stx, err := s.pool.For(key).TryBegin(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	return s.newTx(ctx, stx), nil
}

// Transact runs fn inside a transaction on the shard owning key. The
// transaction commits if fn returns nil and rolls back otherwise, including
// when fn panics.
func (s *DocumentStore) Transact(ctx context.Context, key []byte, fn func(tx *Tx) error) (err error) {
	tx, err := s.BeginTransaction(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, tx.Close())
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *DocumentStore) newTx(ctx context.Context, stx *shard.Tx[string]) *Tx {
	t := &Tx{
		store: s,
		tx:    stx,
		id:    uuid.New(),
		start: time.Now(),
	}
	t.stopAfter = context.AfterFunc(ctx, t.abandon)
	s.logger.WithShard(stx.Shard()).DebugContext(ctx, "transaction started", "tx", t.id.String())
	return t
}

// abandon rolls back a transaction whose context ended.
func (t *Tx) abandon() {
	err := t.tx.Rollback()
	if errors.Is(err, shard.ErrTxDone) {
		return
	}
	t.finish(false, "abandoned", translateError(err))
}

func (t *Tx) finish(committed bool, outcome string, err error) {
	t.finishOnce.Do(func() {
		t.stopAfter()
		t.store.logger.LogTransaction(context.Background(), t.id.String(), t.tx.Shard(), outcome, err)
		t.store.metrics.RecordTransaction(committed, time.Since(t.start), err)
	})
}

// ID returns the transaction id used in log records.
func (t *Tx) ID() string { return t.id.String() }

// Shard returns the index of the shard the transaction is bound to.
func (t *Tx) Shard() int { return t.tx.Shard() }

func (t *Tx) route(key []byte) error {
	if err := t.store.checkOpen(); err != nil {
		return err
	}
	if got := t.store.ShardOf(key); got != t.tx.Shard() {
		return fmt.Errorf("%w: key routes to shard %d, transaction holds shard %d",
			ErrKeyNotInTransaction, got, t.tx.Shard())
	}
	return nil
}

// Add inserts value under key if the key is absent.
func (t *Tx) Add(ctx context.Context, key []byte, value string) error {
	if err := t.route(key); err != nil {
		return err
	}
	return translateError(t.tx.Add(ctx, key, value))
}

// Upsert inserts or overwrites the value under key.
func (t *Tx) Upsert(ctx context.Context, key []byte, value string) error {
	if err := t.route(key); err != nil {
		return err
	}
	return translateError(t.tx.Upsert(ctx, key, value))
}

// Update overwrites the value under key if present.
func (t *Tx) Update(ctx context.Context, key []byte, value string) error {
	if err := t.route(key); err != nil {
		return err
	}
	return translateError(t.tx.Update(ctx, key, value))
}

// Delete removes key.
func (t *Tx) Delete(ctx context.Context, key []byte) error {
	if err := t.route(key); err != nil {
		return err
	}
	return translateError(t.tx.Delete(ctx, key))
}

// Get reads key, observing the transaction's own writes.
func (t *Tx) Get(ctx context.Context, key []byte) (string, bool, error) {
	if err := t.route(key); err != nil {
		return "", false, err
	}
	v, ok, err := t.tx.Get(ctx, key)
	return v, ok, translateError(err)
}

type txMutateFunc func(t *shard.Tx[string], ctx context.Context, key []byte, path, doc string) error

func (t *Tx) mutate(ctx context.Context, fn txMutateFunc, key []byte, path string, value any) error {
	if err := t.route(key); err != nil {
		return err
	}
	if err := validatePath(path); err != nil {
		return err
	}
	doc, err := t.store.encodeJSON(value)
	if err != nil {
		return err
	}
	return translateError(fn(t.tx, ctx, key, path, doc))
}

// Insert is DocumentStore.Insert inside the transaction.
func (t *Tx) Insert(ctx context.Context, key []byte, path string, value any) error {
	return t.mutate(ctx, (*shard.Tx[string]).Insert, key, path, value)
}

// Replace is DocumentStore.Replace inside the transaction.
func (t *Tx) Replace(ctx context.Context, key []byte, path string, value any) error {
	return t.mutate(ctx, (*shard.Tx[string]).Replace, key, path, value)
}

// Set is DocumentStore.Set inside the transaction.
func (t *Tx) Set(ctx context.Context, key []byte, path string, value any) error {
	return t.mutate(ctx, (*shard.Tx[string]).Set, key, path, value)
}

// Remove is DocumentStore.Remove inside the transaction.
func (t *Tx) Remove(ctx context.Context, key []byte, paths ...string) error {
	if err := t.route(key); err != nil {
		return err
	}
	for _, p := range paths {
		if err := validatePath(p); err != nil {
			return err
		}
	}
	return translateError(t.tx.Remove(ctx, key, paths...))
}

// Commit makes the transaction's writes visible and releases the permit.
func (t *Tx) Commit() error {
	err := t.tx.Commit()
	if errors.Is(err, shard.ErrTxDone) {
		return translateError(err)
	}
	err = translateError(err)
	t.finish(err == nil, "commit", err)
	return err
}

// Rollback discards the transaction's writes and releases the permit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, shard.ErrTxDone) {
		return translateError(err)
	}
	err = translateError(err)
	t.finish(false, "rollback", err)
	return err
}

// Close rolls back the transaction unless it already ended, and releases
// the permit. It is safe to call more than once.
func (t *Tx) Close() error {
	err := t.Rollback()
	if errors.Is(err, ErrTransactionDone) {
		return nil
	}
	return err
}
