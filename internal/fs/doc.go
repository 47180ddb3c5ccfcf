// Package fs provides the filesystem seam used for store layout files.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with write and sync capabilities
//   - [FileSystem]: the directory operations the layout needs
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility for fault injection (simulate I/O errors)
//
// Shard databases are opened by the SQLite driver directly and never pass
// through this package.
package fs
