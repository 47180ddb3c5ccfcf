package layout

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/hupe1980/kvlite/internal/fs"
)

// LockFileName is the name of the lock file inside a store directory.
const LockFileName = "LOCK"

// ErrLocked is returned when another handle holds the directory lock.
var ErrLocked = errors.New("layout: directory is locked by another store")

// Lock is an exclusive advisory lock on a store directory.
type Lock struct {
	f fs.File
}

// AcquireLock takes the exclusive lock on dir without blocking.
func AcquireLock(fsys fs.FileSystem, dir string) (*Lock, error) {
	f, err := fsys.OpenFile(filepath.Join(dir, LockFileName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	return errors.Join(unlockFile(f), f.Close())
}
