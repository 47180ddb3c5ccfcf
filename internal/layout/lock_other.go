//go:build !unix

package layout

import "github.com/hupe1980/kvlite/internal/fs"

// Advisory locking is only enforced on unix platforms.
func lockFile(fs.File) error   { return nil }
func unlockFile(fs.File) error { return nil }
