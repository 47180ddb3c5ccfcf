package shard

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned by TryBegin when another transaction holds the shard.
	ErrBusy = errors.New("shard: transaction in progress")
	// ErrTxDone is returned by operations on a finished transaction.
	ErrTxDone = errors.New("shard: transaction already finished")
	// ErrInvalidFilter is returned for filters with an unknown operator or empty path.
	ErrInvalidFilter = errors.New("shard: invalid filter")
)

// Error annotates a failure with the shard and operation it happened in.
type Error struct {
	Shard int
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("shard %d: %s: %v", e.Shard, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (s *Shard[V]) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Shard: s.id, Op: op, Err: err}
}
