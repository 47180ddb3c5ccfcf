package conv

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverflow is returned when a value does not fit the target type.
var ErrOverflow = errors.New("conv: integer overflow")

// BlockLen converts a buffer length into the uint32 stored in a block header.
func BlockLen(n int) (uint32, error) {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: length %d does not fit a block header", ErrOverflow, n)
	}
	return uint32(n), nil
}

// HeaderLen converts a length read back from a block header into an int.
func HeaderLen(v uint32) (int, error) {
	if uint64(v) > uint64(math.MaxInt) {
		return 0, fmt.Errorf("%w: header length %d exceeds int", ErrOverflow, v)
	}
	return int(v), nil
}

// SQLInteger converts v into a SQLite INTEGER, which is a signed 64-bit value.
func SQLInteger(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d exceeds the SQLite INTEGER range", ErrOverflow, v)
	}
	return int64(v), nil
}
