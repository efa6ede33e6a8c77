// Package bytestore implements EntiDB's byte-store backend: the minimal,
// synchronous, blocking byte interface the WAL and segment store are built
// on (ReadAt/Append/Flush/Sync/Truncate/Size over an arbitrary append-only
// byte stream), with a file-backed implementation for production and an
// in-memory one for tests.
package bytestore

import "errors"

// ErrOutOfRange is returned by ReadAt when the requested range extends past
// the current size of the backend.
var ErrOutOfRange = errors.New("bytestore: read out of range")

// ByteStore is the append-only file-like abstraction every durable component
// (WAL, segments) is built on top of.
type ByteStore interface {
	// ReadAt returns exactly len bytes starting at offset, or ErrOutOfRange.
	ReadAt(offset int64, length int) ([]byte, error)
	// Append writes p at the current end and returns the pre-append offset.
	Append(p []byte) (int64, error)
	// Flush pushes buffered writes to the OS.
	Flush() error
	// Sync durably persists to the storage medium; stronger than Flush.
	Sync() error
	// Truncate shrinks the backend to newSize.
	Truncate(newSize int64) error
	// Size returns the current byte length.
	Size() int64
	// Close releases any underlying resources.
	Close() error
}
