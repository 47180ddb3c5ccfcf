// Package testutil provides testing utilities for kvlite.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, goroutine-safe RNG plus generators for keys, binary
// values and JSON documents.
//
//	rng := testutil.NewRNG(seed)
//	keys := testutil.Keys("user", 1000)     // user-000000 ... user-000999
//	vals := rng.Values(1000, 64)             // 1000 random 64-byte values
//	docs := rng.TodoDocuments(1000)          // {"id":..,"title":..,"done":..}
package testutil
