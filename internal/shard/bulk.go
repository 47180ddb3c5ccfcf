package shard

import (
	"context"
	"database/sql"
	"errors"
)

// apply executes query once per item as one atomic batch. Outside a
// transaction the batch gets its own; inside the open transaction it runs
// under a savepoint, so a failing batch leaves earlier statements intact.
// No other statement joins the transaction while the savepoint is open.
func (s *Shard[V]) apply(ctx context.Context, op, query string, n int, args func(i int) ([]any, error)) error {
	if n == 0 {
		return nil
	}

	s.txMu.Lock()
	if open := s.openTx; open != nil {
		defer s.txMu.Unlock()
		return s.wrap(op, applySavepoint(ctx, open, query, n, args))
	}
	s.txMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap(op, err)
	}
	if err := execAll(ctx, tx, query, n, args); err != nil {
		return s.wrap(op, errors.Join(err, rollback(tx)))
	}
	return s.wrap(op, tx.Commit())
}

func applySavepoint(ctx context.Context, tx *sql.Tx, query string, n int, args func(i int) ([]any, error)) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT kv_batch"); err != nil {
		return err
	}
	if err := execAll(ctx, tx, query, n, args); err != nil {
		cleanup := context.WithoutCancel(ctx)
		_, rbErr := tx.ExecContext(cleanup, "ROLLBACK TO kv_batch")
		_, relErr := tx.ExecContext(cleanup, "RELEASE kv_batch")
		return errors.Join(err, rbErr, relErr)
	}
	_, err := tx.ExecContext(ctx, "RELEASE kv_batch")
	return err
}

func execAll(ctx context.Context, tx *sql.Tx, query string, n int, args func(i int) ([]any, error)) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	for i := range n {
		a, err := args(i)
		if err == nil {
			_, err = stmt.ExecContext(ctx, a...)
		}
		if err != nil {
			return errors.Join(err, stmt.Close())
		}
	}
	return stmt.Close()
}

func rollback(tx *sql.Tx) error {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (s *Shard[V]) entryArgs(entries []Entry[V], valueFirst bool) func(int) ([]any, error) {
	return func(i int) ([]any, error) {
		v, err := s.encode(entries[i].Value)
		if err != nil {
			return nil, err
		}
		if valueFirst {
			return []any{v, normalizeKey(entries[i].Key)}, nil
		}
		return []any{normalizeKey(entries[i].Key), v}, nil
	}
}

// AddMany adds every entry in one transaction.
func (s *Shard[V]) AddMany(ctx context.Context, entries []Entry[V]) error {
	return s.apply(ctx, "add", s.addQuery(), len(entries), s.entryArgs(entries, false))
}

// UpsertMany upserts every entry in one transaction.
func (s *Shard[V]) UpsertMany(ctx context.Context, entries []Entry[V]) error {
	return s.apply(ctx, "upsert", s.upsertQuery(), len(entries), s.entryArgs(entries, false))
}

// UpdateMany updates every entry in one transaction.
func (s *Shard[V]) UpdateMany(ctx context.Context, entries []Entry[V]) error {
	return s.apply(ctx, "update", s.updateQuery(), len(entries), s.entryArgs(entries, true))
}

// DeleteMany deletes every key in one transaction.
func (s *Shard[V]) DeleteMany(ctx context.Context, keys [][]byte) error {
	return s.apply(ctx, "delete", deleteQuery, len(keys), func(i int) ([]any, error) {
		return []any{normalizeKey(keys[i])}, nil
	})
}
