// Package codec encodes the Go values callers pass into document operations.
//
// Documents are stored as JSON text inside each shard, so every codec must
// produce JSON. The codec choice only affects encoding speed, never the
// persisted bytes' format.
package codec

import "fmt"

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// MustMarshal is a helper for tests and benchmarks.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
