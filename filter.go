package kvlite

import (
	"fmt"
	"strings"

	"github.com/hupe1980/kvlite/internal/conv"
	"github.com/hupe1980/kvlite/internal/shard"
)

// Comparison is the operator of a Filter.
type Comparison uint8

const (
	Eq Comparison = iota + 1 // equal
	Ne                       // not equal
	Gt                       // greater than
	Lt                       // less than
	Ge                       // greater than or equal
	Le                       // less than or equal
)

var comparisonOps = map[Comparison]shard.Op{
	Eq: shard.OpEq,
	Ne: shard.OpNe,
	Gt: shard.OpGt,
	Lt: shard.OpLt,
	Ge: shard.OpGe,
	Le: shard.OpLe,
}

func (c Comparison) String() string {
	if op, ok := comparisonOps[c]; ok {
		return string(op)
	}
	return fmt.Sprintf("Comparison(%d)", uint8(c))
}

// Filter selects documents whose value at Path compares to Value with Op.
//
// Value must be a bool, an integer, a float or a string. Documents without
// a value at Path never match, whatever the operator.
type Filter struct {
	Path  string
	Op    Comparison
	Value any
}

// Where builds a Filter.
//
//	kvlite.Where("$.done", kvlite.Eq, true)
func Where(path string, op Comparison, value any) Filter {
	return Filter{Path: path, Op: op, Value: value}
}

func (f Filter) compile() (*shard.Filter, error) {
	if err := validatePath(f.Path); err != nil {
		return nil, err
	}
	op, ok := comparisonOps[f.Op]
	if !ok {
		return nil, fmt.Errorf("%w: unknown comparison %d", ErrInvalidArgument, uint8(f.Op))
	}
	v, err := sqlScalar(f.Value)
	if err != nil {
		return nil, err
	}
	return &shard.Filter{Path: f.Path, Op: op, Value: v}, nil
}

// sqlScalar maps a Go value onto the SQLite scalar json_extract compares with.
// JSON booleans extract as the integers 1 and 0.
func sqlScalar(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintScalar(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintScalar(x)
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		return x, nil
	default:
		return nil, fmt.Errorf("%w: filter value of type %T is not a scalar", ErrInvalidArgument, v)
	}
}

func uintScalar(v uint64) (any, error) {
	n, err := conv.SQLInteger(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return n, nil
}

func validatePath(path string) error {
	if !strings.HasPrefix(path, "$") {
		return fmt.Errorf("%w: JSON path %q must start with '$'", ErrInvalidArgument, path)
	}
	return nil
}
