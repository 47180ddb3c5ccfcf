package shard

import (
	"context"
	"fmt"
	"strings"
)

// Op is a SQL comparison operator usable in a Filter.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "<>"
	OpGt Op = ">"
	OpLt Op = "<"
	OpGe Op = ">="
	OpLe Op = "<="
)

// Valid reports whether o is one of the supported operators.
func (o Op) Valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpLt, OpGe, OpLe:
		return true
	default:
		return false
	}
}

// Filter restricts a scan or count to documents whose value at Path
// compares to Value with Op. Value must be a SQLite scalar
// (int64, float64, string, bool).
type Filter struct {
	Path  string
	Op    Op
	Value any
}

func (f *Filter) validate() error {
	if f == nil {
		return nil
	}
	if strings.TrimSpace(f.Path) == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidFilter)
	}
	if !f.Op.Valid() {
		return fmt.Errorf("%w: operator %q", ErrInvalidFilter, string(f.Op))
	}
	return nil
}

func (f *Filter) clause() string {
	return " AND json_extract(value, ?) " + string(f.Op) + " ?"
}

// Page reads up to limit entries with an id greater than after, in id order.
// It returns the entries and the id of the last one.
func (s *Shard[V]) Page(ctx context.Context, after int64, limit int, f *Filter) ([]Entry[V], int64, error) {
	if err := f.validate(); err != nil {
		return nil, after, err
	}

	query := "SELECT id, key, value FROM kv WHERE id > ?"
	args := []any{after}
	if f != nil {
		query += f.clause()
		args = append(args, f.Path, f.Value)
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	q, done := s.conn()
	defer done()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, after, s.wrap("scan", err)
	}
	defer rows.Close()

	entries := make([]Entry[V], 0, limit)
	last := after
	for rows.Next() {
		var (
			id  int64
			key []byte
			raw V
		)
		if err := rows.Scan(&id, &key, &raw); err != nil {
			return nil, after, s.wrap("scan", err)
		}
		v, err := s.decode(raw)
		if err != nil {
			return nil, after, s.wrap("scan", err)
		}
		entries = append(entries, Entry[V]{Key: key, Value: v})
		last = id
	}
	if err := rows.Err(); err != nil {
		return nil, after, s.wrap("scan", err)
	}
	return entries, last, nil
}

// Count returns the number of records matching f (all records if f is nil).
func (s *Shard[V]) Count(ctx context.Context, f *Filter) (int64, error) {
	if err := f.validate(); err != nil {
		return 0, err
	}

	query := "SELECT COUNT(*) FROM kv WHERE 1 = 1"
	var args []any
	if f != nil {
		query += f.clause()
		args = append(args, f.Path, f.Value)
	}

	q, done := s.conn()
	defer done()
	var n int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, s.wrap("count", err)
	}
	return n, nil
}

// Cursor iterates over a shard page by page.
type Cursor[V Value] struct {
	shard    *Shard[V]
	filter   *Filter
	pageSize int

	after int64
	buf   []Entry[V]
	pos   int
	done  bool
}

// Cursor returns a cursor positioned before the first record.
func (s *Shard[V]) Cursor(f *Filter, pageSize int) *Cursor[V] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Cursor[V]{shard: s, filter: f, pageSize: pageSize}
}

// DefaultPageSize is the number of rows fetched per page.
const DefaultPageSize = 512

// Next returns the next entry. ok is false once the shard is exhausted.
func (c *Cursor[V]) Next(ctx context.Context) (e Entry[V], ok bool, err error) {
	if c.pos >= len(c.buf) {
		if c.done {
			return e, false, nil
		}
		entries, last, err := c.shard.Page(ctx, c.after, c.pageSize, c.filter)
		if err != nil {
			return e, false, err
		}
		c.buf, c.pos, c.after = entries, 0, last
		if len(entries) < c.pageSize {
			c.done = true
		}
		if len(entries) == 0 {
			return e, false, nil
		}
	}
	e = c.buf[c.pos]
	c.buf[c.pos] = Entry[V]{}
	c.pos++
	return e, true, nil
}
