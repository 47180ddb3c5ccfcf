package shard

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
)

// Tx is a transaction holding the shard's write permit. While it is open,
// statements issued through the Shard run inside it as well.
//
// The permit is released exactly once, by whichever of Commit, Rollback or
// Close runs first.
type Tx[V Value] struct {
	shard *Shard[V]
	tx    *sql.Tx

	done        atomic.Bool
	releaseOnce sync.Once
}

// Begin waits for the shard's write permit and opens a transaction.
func (s *Shard[V]) Begin(ctx context.Context) (*Tx[V], error) {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return s.begin(ctx)
}

// TryBegin is like Begin but fails with ErrBusy instead of waiting.
func (s *Shard[V]) TryBegin(ctx context.Context) (*Tx[V], error) {
	if !s.gate.TryAcquire(1) {
		return nil, ErrBusy
	}
	return s.begin(ctx)
}

func (s *Shard[V]) begin(ctx context.Context) (*Tx[V], error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.gate.Release(1)
		return nil, s.wrap("begin", err)
	}
	s.txMu.Lock()
	s.openTx = tx
	s.txMu.Unlock()
	return &Tx[V]{shard: s, tx: tx}, nil
}

// detach stops routing shard statements into t. It waits for statements
// already running inside t.
func (t *Tx[V]) detach() {
	t.shard.txMu.Lock()
	if t.shard.openTx == t.tx {
		t.shard.openTx = nil
	}
	t.shard.txMu.Unlock()
}

func (t *Tx[V]) release() {
	t.releaseOnce.Do(func() { t.shard.gate.Release(1) })
}

func (t *Tx[V]) active() error {
	if t.done.Load() {
		return ErrTxDone
	}
	return nil
}

// Shard returns the shard the transaction is bound to.
func (t *Tx[V]) Shard() int { return t.shard.id }

// Commit commits the transaction and releases the permit.
func (t *Tx[V]) Commit() error {
	if !t.done.CompareAndSwap(false, true) {
		return ErrTxDone
	}
	defer t.release()
	t.detach()
	return t.shard.wrap("commit", t.tx.Commit())
}

// Rollback discards the transaction and releases the permit.
func (t *Tx[V]) Rollback() error {
	if !t.done.CompareAndSwap(false, true) {
		return ErrTxDone
	}
	defer t.release()
	t.detach()
	return t.shard.wrap("rollback", rollback(t.tx))
}

// Close rolls back if the transaction is still open. It always releases
// the permit and is safe to call more than once.
func (t *Tx[V]) Close() error {
	err := t.Rollback()
	if errors.Is(err, ErrTxDone) {
		err = nil
	}
	t.release()
	return err
}

func (t *Tx[V]) Add(ctx context.Context, key []byte, value V) error {
	if err := t.active(); err != nil {
		return err
	}
	return t.shard.add(ctx, t.tx, key, value)
}

func (t *Tx[V]) Upsert(ctx context.Context, key []byte, value V) error {
	if err := t.active(); err != nil {
		return err
	}
	return t.shard.upsert(ctx, t.tx, key, value)
}

func (t *Tx[V]) Update(ctx context.Context, key []byte, value V) error {
	if err := t.active(); err != nil {
		return err
	}
	return t.shard.update(ctx, t.tx, key, value)
}

func (t *Tx[V]) Delete(ctx context.Context, key []byte) error {
	if err := t.active(); err != nil {
		return err
	}
	return t.shard.delete(ctx, t.tx, key)
}

func (t *Tx[V]) Get(ctx context.Context, key []byte) (V, bool, error) {
	if err := t.active(); err != nil {
		var zero V
		return zero, false, err
	}
	return t.shard.get(ctx, t.tx, key)
}

func (t *Tx[V]) Insert(ctx context.Context, key []byte, path, doc string) error {
	if err := t.active(); err != nil {
		return err
	}
	return t.shard.mutate(ctx, t.tx, jsonInsert, key, path, doc)
}

func (t *Tx[V]) Replace(ctx context.Context, key []byte, path, doc string) error {
	if err := t.active(); err != nil {
		return err
	}
	return t.shard.mutate(ctx, t.tx, jsonReplace, key, path, doc)
}

func (t *Tx[V]) Set(ctx context.Context, key []byte, path, doc string) error {
	if err := t.active(); err != nil {
		return err
	}
	return t.shard.mutate(ctx, t.tx, jsonSet, key, path, doc)
}

func (t *Tx[V]) Remove(ctx context.Context, key []byte, paths ...string) error {
	if err := t.active(); err != nil {
		return err
	}
	return t.shard.remove(ctx, t.tx, key, paths)
}
