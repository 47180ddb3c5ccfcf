package shard

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hupe1980/kvlite/internal/hash"
)

// FileName returns the database file name of shard i.
func FileName(i int) string {
	return fmt.Sprintf("kv-%d", i)
}

// Pool is a fixed-size set of shards addressed by key hash.
type Pool[V Value] struct {
	shards []*Shard[V]
}

// OpenPool opens n shards eagerly. If dir is empty the shards are in-memory,
// otherwise shard i lives at dir/kv-i. If any shard fails to open, the ones
// already opened are closed again.
func OpenPool[V Value](ctx context.Context, dir string, n int, cfg Config) (*Pool[V], error) {
	if n <= 0 {
		return nil, fmt.Errorf("shard: pool size must be positive, got %d", n)
	}

	p := &Pool[V]{shards: make([]*Shard[V], 0, n)}
	for i := range n {
		c := cfg
		if dir != "" {
			c.Path = filepath.Join(dir, FileName(i))
		}
		s, err := Open[V](ctx, i, c)
		if err != nil {
			return nil, errors.Join(err, p.Close())
		}
		p.shards = append(p.shards, s)
	}
	return p, nil
}

// Len returns the number of shards.
func (p *Pool[V]) Len() int { return len(p.shards) }

// Index returns the shard index key routes to.
func (p *Pool[V]) Index(key []byte) int {
	// Pool sizes are bounded by int, so the result fits.
	return int(hash.ShardIndex(key, uint64(len(p.shards))))
}

// For returns the shard key routes to.
func (p *Pool[V]) For(key []byte) *Shard[V] {
	return p.shards[p.Index(key)]
}

// At returns shard i.
func (p *Pool[V]) At(i int) *Shard[V] {
	return p.shards[i]
}

// All returns every shard in index order.
func (p *Pool[V]) All() []*Shard[V] {
	return p.shards
}

// Close closes every shard, continuing past failures.
func (p *Pool[V]) Close() error {
	var errs []error
	for _, s := range p.shards {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
