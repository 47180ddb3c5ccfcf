package shard

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/kvlite/internal/compress"
	"golang.org/x/sync/semaphore"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// Value is the set of value representations a shard can hold.
type Value interface {
	[]byte | string
}

// Entry is a key/value pair read from or written to a shard.
type Entry[V Value] struct {
	Key   []byte
	Value V
}

// Config describes how a shard database is opened.
type Config struct {
	// Path is the database file. Empty means a private in-memory database.
	Path string

	// Document selects JSON text values instead of binary values.
	Document bool

	// Compression applies to binary values only.
	Compression compress.Algorithm

	// BusyTimeout is how long SQLite waits on a locked database file.
	BusyTimeout time.Duration

	// Synchronous is the PRAGMA synchronous level ("OFF", "NORMAL", "FULL").
	// Empty means NORMAL.
	Synchronous string
}

// Shard is one independent storage unit.
type Shard[V Value] struct {
	id  int
	cfg Config
	db  *sql.DB

	// Write permit for transactions.
	gate *semaphore.Weighted

	// Transaction holding the permit, if any. Statements issued through the
	// Shard itself run inside it.
	txMu   sync.RWMutex
	openTx *sql.Tx

	// value expression used on writes: "?" or "json(?)".
	valueExpr string

	closeOnce sync.Once
	closeErr  error
}

// Open opens (or creates) a shard database and ensures its schema.
func Open[V Value](ctx context.Context, id int, cfg Config) (*Shard[V], error) {
	s := &Shard[V]{
		id:        id,
		cfg:       cfg,
		gate:      semaphore.NewWeighted(1),
		valueExpr: "?",
	}
	if cfg.Document {
		s.valueExpr = "json(?)"
	}

	dsn := cfg.Path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, s.wrap("open", err)
	}
	// One connection per shard: SQLite serializes writers anyway, and an
	// in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	s.db = db

	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, s.wrap("open", err)
	}
	return s, nil
}

func (s *Shard[V]) init(ctx context.Context) error {
	busy := s.cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds())); err != nil {
		return err
	}

	if s.cfg.Path != "" {
		var mode string
		if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode = WAL").Scan(&mode); err != nil {
			return err
		}
		if !strings.EqualFold(mode, "wal") {
			return fmt.Errorf("journal mode %q, want wal", mode)
		}
	}

	level, err := synchronousLevel(s.cfg.Synchronous)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA synchronous = "+level); err != nil {
		return err
	}

	valueType := "BLOB"
	if s.cfg.Document {
		valueType = "TEXT"
	}
	_, err = s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	key   BLOB NOT NULL UNIQUE,
	value `+valueType+` NOT NULL
)`)
	return err
}

func synchronousLevel(level string) (string, error) {
	switch strings.ToUpper(level) {
	case "":
		return "NORMAL", nil
	case "OFF", "NORMAL", "FULL", "EXTRA":
		return strings.ToUpper(level), nil
	default:
		return "", fmt.Errorf("unknown synchronous level %q", level)
	}
}

// ID returns the shard's index in its pool.
func (s *Shard[V]) ID() int { return s.id }

// conn returns where a statement runs: the open transaction while one holds
// the permit, the database otherwise. done must be called once the statement
// has finished.
func (s *Shard[V]) conn() (q querier, done func()) {
	s.txMu.RLock()
	if s.openTx != nil {
		return s.openTx, s.txMu.RUnlock
	}
	s.txMu.RUnlock()
	return s.db, func() {}
}

// Checkpoint flushes the write-ahead log into the database file and truncates it.
// It waits for an open transaction to finish.
func (s *Shard[V]) Checkpoint(ctx context.Context) error {
	var busy, logFrames, checkpointed int64
	err := s.db.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &logFrames, &checkpointed)
	if err != nil {
		return s.wrap("checkpoint", err)
	}
	if busy != 0 {
		return s.wrap("checkpoint", fmt.Errorf("checkpoint blocked (%d of %d frames)", checkpointed, logFrames))
	}
	return nil
}

// Close closes the shard database. It is safe to call more than once.
func (s *Shard[V]) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.wrap("close", s.db.Close())
	})
	return s.closeErr
}
