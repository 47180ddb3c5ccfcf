package kvlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/kvlite/internal/layout"
	"github.com/hupe1980/kvlite/internal/shard"
)

var (
	// ErrClosed is returned by every operation on a closed store.
	ErrClosed = errors.New("kvlite: store is closed")

	// ErrInvalidArgument is returned for invalid options, filters or paths.
	ErrInvalidArgument = errors.New("kvlite: invalid argument")

	// ErrUnsupportedMode is returned when a directory was created with a
	// value mode this version does not know.
	ErrUnsupportedMode = errors.New("kvlite: unsupported mode")

	// ErrLayoutMismatch is returned when a directory was created with a
	// different value mode than the one it is opened with.
	ErrLayoutMismatch = errors.New("kvlite: layout mismatch")

	// ErrLocked is returned when the directory is held by another open store.
	ErrLocked = errors.New("kvlite: directory locked")

	// ErrTransactionDone is returned by operations on a committed,
	// rolled back or closed transaction.
	ErrTransactionDone = errors.New("kvlite: transaction already finished")

	// ErrTransactionBusy is returned by TryBeginTransaction when the
	// shard's write permit is held by another transaction.
	ErrTransactionBusy = errors.New("kvlite: shard busy")

	// ErrKeyNotInTransaction is returned when a transaction is used with a
	// key that routes to a different shard.
	ErrKeyNotInTransaction = errors.New("kvlite: key belongs to another shard")
)

// ShardError reports a storage failure in a single shard.
//
// The original underlying error can be accessed via errors.Unwrap.
type ShardError struct {
	Shard int
	Op    string
	cause error
}

func (e *ShardError) Error() string {
	return fmt.Sprintf("kvlite: shard %d: %s: %v", e.Shard, e.Op, e.cause)
}

func (e *ShardError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Cancellation passes through untouched.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch {
	case errors.Is(err, shard.ErrTxDone):
		return fmt.Errorf("%w: %w", ErrTransactionDone, err)
	case errors.Is(err, shard.ErrBusy):
		return fmt.Errorf("%w: %w", ErrTransactionBusy, err)
	case errors.Is(err, shard.ErrInvalidFilter):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, layout.ErrLocked):
		return fmt.Errorf("%w: %w", ErrLocked, err)
	}

	var se *shard.Error
	if errors.As(err, &se) {
		return &ShardError{Shard: se.Shard, Op: se.Op, cause: se.Err}
	}

	return err
}
