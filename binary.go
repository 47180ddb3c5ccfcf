package kvlite

import "context"

// BinaryStore is a sharded store of opaque byte values.
type BinaryStore struct {
	*coordinator[[]byte]
}

var _ Store[[]byte] = (*BinaryStore)(nil)

// OpenBinary opens a binary store on backend.
//
// For a Local backend the directory is created if needed and locked for the
// lifetime of the store; a directory previously created by OpenDocument is
// rejected with ErrLayoutMismatch.
func OpenBinary(ctx context.Context, backend Backend, optFns ...Option) (*BinaryStore, error) {
	c, err := open[[]byte](ctx, backend, ModeBinary, optFns)
	if err != nil {
		return nil, err
	}
	return &BinaryStore{coordinator: c}, nil
}
