package kvlite

import "fmt"

// Mode is the value representation of a store, fixed at creation.
type Mode uint8

const (
	// ModeBinary stores opaque byte values.
	ModeBinary Mode = iota + 1
	// ModeDocument stores JSON documents.
	ModeDocument
)

func (m Mode) String() string {
	switch m {
	case ModeBinary:
		return "binary"
	case ModeDocument:
		return "document"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "binary":
		return ModeBinary, nil
	case "document":
		return ModeDocument, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
	}
}

// Backend selects where a store keeps its shards.
type Backend struct {
	dir        string
	persistent bool
}

// InMemory returns a backend whose shards are private in-memory databases.
// All data is lost on Close.
func InMemory() Backend { return Backend{} }

// Local returns a backend keeping one database file per shard in dir.
// The directory is created if needed.
func Local(dir string) Backend { return Backend{dir: dir, persistent: true} }

// Dir returns the backing directory ("" for in-memory).
func (b Backend) Dir() string { return b.dir }
