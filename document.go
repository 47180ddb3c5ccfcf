package kvlite

import (
	"context"
	"fmt"
	"iter"

	"github.com/hupe1980/kvlite/codec"
	"github.com/hupe1980/kvlite/internal/shard"
)

// DocumentStore is a sharded store of JSON documents.
//
// Every written value must be valid JSON text; malformed documents are
// rejected by the shard. On top of whole-document operations it supports
// JSON path mutation, filtered scans and counts, and single-shard
// transactions.
type DocumentStore struct {
	*coordinator[string]
}

var _ Store[string] = (*DocumentStore)(nil)

// OpenDocument opens a document store on backend.
func OpenDocument(ctx context.Context, backend Backend, optFns ...Option) (*DocumentStore, error) {
	c, err := open[string](ctx, backend, ModeDocument, optFns)
	if err != nil {
		return nil, err
	}
	return &DocumentStore{coordinator: c}, nil
}

// encodeJSON renders a path operation operand as JSON text.
func (s *DocumentStore) encodeJSON(value any) (string, error) {
	doc, err := codec.Operand(s.opts.codec, value)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return doc, nil
}

type mutateFunc func(s *shard.Shard[string], ctx context.Context, key []byte, path, doc string) error

func (s *DocumentStore) mutate(ctx context.Context, op string, fn mutateFunc, key []byte, path string, value any) error {
	if err := validatePath(path); err != nil {
		return err
	}
	doc, err := s.encodeJSON(value)
	if err != nil {
		return err
	}
	return s.write(ctx, op, key, func(sh *shard.Shard[string]) error {
		return fn(sh, ctx, key, path, doc)
	})
}

// Insert sets path in the document at key if nothing is there yet.
// Existing values are left alone, as are absent keys.
func (s *DocumentStore) Insert(ctx context.Context, key []byte, path string, value any) error {
	return s.mutate(ctx, "insert", (*shard.Shard[string]).Insert, key, path, value)
}

// Replace overwrites path in the document at key if it exists.
func (s *DocumentStore) Replace(ctx context.Context, key []byte, path string, value any) error {
	return s.mutate(ctx, "replace", (*shard.Shard[string]).Replace, key, path, value)
}

// Set writes path in the document at key, creating or overwriting it.
//
//	store.Set(ctx, key, "$.tags", json.RawMessage(`["a"]`))
//	store.Set(ctx, key, "$.tags[#]", "b") // append
func (s *DocumentStore) Set(ctx context.Context, key []byte, path string, value any) error {
	return s.mutate(ctx, "set", (*shard.Shard[string]).Set, key, path, value)
}

// Remove deletes every given path from the document at key.
func (s *DocumentStore) Remove(ctx context.Context, key []byte, paths ...string) error {
	for _, p := range paths {
		if err := validatePath(p); err != nil {
			return err
		}
	}
	return s.write(ctx, "remove", key, func(sh *shard.Shard[string]) error {
		return sh.Remove(ctx, key, paths...)
	})
}

// GetInto decodes the document at key into v using the store codec.
// It reports false, leaving v untouched, if the key is absent.
func (s *DocumentStore) GetInto(ctx context.Context, key []byte, v any) (bool, error) {
	doc, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return true, s.opts.codec.Unmarshal([]byte(doc), v)
}

// Find yields the documents matching filter in GetAll order.
func (s *DocumentStore) Find(ctx context.Context, filter Filter, opts ...ScanOption) iter.Seq2[Record[string], error] {
	return s.find(ctx, false, filter, opts)
}

// FindFair yields the documents matching filter in GetAllFair order.
func (s *DocumentStore) FindFair(ctx context.Context, filter Filter, opts ...ScanOption) iter.Seq2[Record[string], error] {
	return s.find(ctx, true, filter, opts)
}

func (s *DocumentStore) find(ctx context.Context, fair bool, filter Filter, opts []ScanOption) iter.Seq2[Record[string], error] {
	f, err := filter.compile()
	if err != nil {
		return func(yield func(Record[string], error) bool) {
			yield(Record[string]{}, err)
		}
	}
	return s.scan(ctx, fair, f, opts)
}

// CountWhere returns the number of documents matching filter across all shards.
func (s *DocumentStore) CountWhere(ctx context.Context, filter Filter) (int64, error) {
	f, err := filter.compile()
	if err != nil {
		return 0, err
	}
	return s.count(ctx, f)
}
