package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/kvlite/codec"
	"github.com/hupe1980/kvlite/internal/fs"
	"github.com/hupe1980/kvlite/internal/hash"
)

const (
	// ManifestFileName is the name of the layout manifest inside a store directory.
	ManifestFileName = "KVLITE"
	// CurrentVersion is the version of the manifest format.
	CurrentVersion = 1
)

var (
	// ErrNotFound is returned by Load when the directory has no manifest.
	ErrNotFound = errors.New("layout: manifest not found")
	// ErrCorrupt is returned when the manifest fails validation.
	ErrCorrupt = errors.New("layout: manifest corrupt")
)

// Manifest describes the immutable layout of a store directory.
type Manifest struct {
	Version     int       `json:"version"`
	StoreID     uuid.UUID `json:"store_id"`
	CreatedAt   time.Time `json:"created_at"`
	Mode        string    `json:"mode"`
	Shards      int       `json:"shards"`
	Compression string    `json:"compression"`
}

// New creates a manifest for a fresh store.
func New(mode string, shards int, compression string) *Manifest {
	return &Manifest{
		Version:     CurrentVersion,
		StoreID:     uuid.New(),
		CreatedAt:   time.Now().UTC(),
		Mode:        mode,
		Shards:      shards,
		Compression: compression,
	}
}

// Validate checks the manifest for values no store can be opened with.
func (m *Manifest) Validate() error {
	if m.Version < 1 || m.Version > CurrentVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, m.Version)
	}
	if m.Shards <= 0 {
		return fmt.Errorf("%w: shard count %d", ErrCorrupt, m.Shards)
	}
	if m.StoreID == uuid.Nil {
		return fmt.Errorf("%w: missing store id", ErrCorrupt)
	}
	return nil
}

type envelope struct {
	Checksum uint32          `json:"checksum"`
	Manifest json.RawMessage `json:"manifest"`
}

// The manifest is meant to be readable with standard tooling, so it always
// uses the standard library codec regardless of the store codec.
var manifestCodec codec.Codec = codec.JSON{}

// Load reads and verifies the manifest stored in dir.
func Load(fsys fs.FileSystem, dir string) (*Manifest, error) {
	data, err := fsys.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var env envelope
	if err := manifestCodec.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if got := hash.CRC32C(env.Manifest); got != env.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch (stored %08x, computed %08x)", ErrCorrupt, env.Checksum, got)
	}

	m := &Manifest{}
	if err := manifestCodec.Unmarshal(env.Manifest, m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Save atomically writes m into dir.
func Save(fsys fs.FileSystem, dir string, m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}

	body, err := manifestCodec.Marshal(m)
	if err != nil {
		return err
	}
	data, err := manifestCodec.Marshal(envelope{
		Checksum: hash.CRC32C(body),
		Manifest: body,
	})
	if err != nil {
		return err
	}

	return fs.WriteFileAtomic(fsys, filepath.Join(dir, ManifestFileName), data, 0o644)
}
