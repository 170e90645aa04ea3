// Package storage persists crawl artifacts in SQLite: the append-only
// dataset of output records, the handled-key set that lets a later run
// resume against the same queue, and a small key-value store for
// extraction routines.
//
// Design decision: One database file per data directory holding all
// three stores rather than a file per store. Named stores are rows
// qualified by a store column, which keeps resume queries and cleanup
// in one place.
package storage
