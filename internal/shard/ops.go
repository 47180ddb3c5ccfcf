package shard

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/hupe1980/kvlite/internal/compress"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func normalizeKey(key []byte) []byte {
	if key == nil {
		return []byte{}
	}
	return key
}

func (s *Shard[V]) encode(v V) (any, error) {
	switch x := any(v).(type) {
	case []byte:
		if x == nil {
			x = []byte{}
		}
		return compress.Encode(s.cfg.Compression, x)
	default:
		return x, nil
	}
}

func (s *Shard[V]) decode(raw V) (V, error) {
	b, ok := any(raw).([]byte)
	if !ok || s.cfg.Compression == compress.None {
		return raw, nil
	}
	out, err := compress.Decode(s.cfg.Compression, b)
	if err != nil {
		return raw, err
	}
	return any(out).(V), nil
}

func (s *Shard[V]) addQuery() string {
	return "INSERT INTO kv(key, value) VALUES (?, " + s.valueExpr + ") ON CONFLICT(key) DO NOTHING"
}

func (s *Shard[V]) upsertQuery() string {
	return "INSERT INTO kv(key, value) VALUES (?, " + s.valueExpr + ") ON CONFLICT(key) DO UPDATE SET value = excluded.value"
}

func (s *Shard[V]) updateQuery() string {
	return "UPDATE kv SET value = " + s.valueExpr + " WHERE key = ?"
}

const (
	deleteQuery = "DELETE FROM kv WHERE key = ?"
	getQuery    = "SELECT value FROM kv WHERE key = ?"
)

func (s *Shard[V]) add(ctx context.Context, q querier, key []byte, value V) error {
	v, err := s.encode(value)
	if err != nil {
		return s.wrap("add", err)
	}
	_, err = q.ExecContext(ctx, s.addQuery(), normalizeKey(key), v)
	return s.wrap("add", err)
}

func (s *Shard[V]) upsert(ctx context.Context, q querier, key []byte, value V) error {
	v, err := s.encode(value)
	if err != nil {
		return s.wrap("upsert", err)
	}
	_, err = q.ExecContext(ctx, s.upsertQuery(), normalizeKey(key), v)
	return s.wrap("upsert", err)
}

func (s *Shard[V]) update(ctx context.Context, q querier, key []byte, value V) error {
	v, err := s.encode(value)
	if err != nil {
		return s.wrap("update", err)
	}
	_, err = q.ExecContext(ctx, s.updateQuery(), v, normalizeKey(key))
	return s.wrap("update", err)
}

func (s *Shard[V]) delete(ctx context.Context, q querier, key []byte) error {
	_, err := q.ExecContext(ctx, deleteQuery, normalizeKey(key))
	return s.wrap("delete", err)
}

func (s *Shard[V]) get(ctx context.Context, q querier, key []byte) (V, bool, error) {
	var raw V
	err := q.QueryRowContext(ctx, getQuery, normalizeKey(key)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return raw, false, nil
	}
	if err != nil {
		return raw, false, s.wrap("get", err)
	}
	v, err := s.decode(raw)
	if err != nil {
		return v, false, s.wrap("get", err)
	}
	return v, true, nil
}

// JSON mutation functions understood by SQLite.
const (
	jsonInsert  = "json_insert"
	jsonReplace = "json_replace"
	jsonSet     = "json_set"
)

func (s *Shard[V]) mutate(ctx context.Context, q querier, fn string, key []byte, path, doc string) error {
	_, err := q.ExecContext(ctx,
		"UPDATE kv SET value = "+fn+"(value, ?, json(?)) WHERE key = ?",
		path, doc, normalizeKey(key))
	return s.wrap(fn, err)
}

func (s *Shard[V]) remove(ctx context.Context, q querier, key []byte, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := make([]any, 0, len(paths)+1)
	for _, p := range paths {
		args = append(args, p)
	}
	args = append(args, normalizeKey(key))

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(paths)), ", ")
	_, err := q.ExecContext(ctx, "UPDATE kv SET value = json_remove(value, "+placeholders+") WHERE key = ?", args...)
	return s.wrap("json_remove", err)
}

// Add inserts the value if key is absent. It is a no-op otherwise.
func (s *Shard[V]) Add(ctx context.Context, key []byte, value V) error {
	q, done := s.conn()
	defer done()
	return s.add(ctx, q, key, value)
}

// Upsert inserts or overwrites the value for key.
func (s *Shard[V]) Upsert(ctx context.Context, key []byte, value V) error {
	q, done := s.conn()
	defer done()
	return s.upsert(ctx, q, key, value)
}

// Update overwrites the value if key is present. It is a no-op otherwise.
func (s *Shard[V]) Update(ctx context.Context, key []byte, value V) error {
	q, done := s.conn()
	defer done()
	return s.update(ctx, q, key, value)
}

// Delete removes key if present.
func (s *Shard[V]) Delete(ctx context.Context, key []byte) error {
	q, done := s.conn()
	defer done()
	return s.delete(ctx, q, key)
}

// Get returns the value for key and whether it was found.
func (s *Shard[V]) Get(ctx context.Context, key []byte) (V, bool, error) {
	q, done := s.conn()
	defer done()
	return s.get(ctx, q, key)
}

// Insert sets path in the document at key only if path does not exist yet.
func (s *Shard[V]) Insert(ctx context.Context, key []byte, path, doc string) error {
	q, done := s.conn()
	defer done()
	return s.mutate(ctx, q, jsonInsert, key, path, doc)
}

// Replace sets path in the document at key only if path already exists.
func (s *Shard[V]) Replace(ctx context.Context, key []byte, path, doc string) error {
	q, done := s.conn()
	defer done()
	return s.mutate(ctx, q, jsonReplace, key, path, doc)
}

// Set sets path in the document at key, creating or overwriting it.
func (s *Shard[V]) Set(ctx context.Context, key []byte, path, doc string) error {
	q, done := s.conn()
	defer done()
	return s.mutate(ctx, q, jsonSet, key, path, doc)
}

// Remove deletes every path from the document at key.
func (s *Shard[V]) Remove(ctx context.Context, key []byte, paths ...string) error {
	q, done := s.conn()
	defer done()
	return s.remove(ctx, q, key, paths)
}
