package entidb

import (
	"errors"

	"github.com/entidb/entidb/internal/codec"
	"github.com/entidb/entidb/internal/txn"
	"github.com/entidb/entidb/internal/wal"
)

// Exit conditions / surfaced errors at the façade level. ErrChecksumMismatch,
// ErrSizeLimitExceeded, and ErrInvalidOperation share identity with the
// internal sentinels they originate from, so errors.Is matches regardless of
// which layer produced the error. ErrWalCorruption and ErrSegmentCorruption
// wrap the underlying cause; both are matchable with errors.Is.
var (
	ErrDatabaseClosed    = errors.New("entidb: database closed")
	ErrInvalidFormat     = errors.New("entidb: invalid format")
	ErrInvalidArgument   = errors.New("entidb: invalid argument")
	ErrWalCorruption     = errors.New("entidb: wal corruption")
	ErrSegmentCorruption = errors.New("entidb: segment corruption")
	ErrIO                = errors.New("entidb: i/o error")

	ErrInvalidOperation  = txn.ErrInvalidOperation
	ErrChecksumMismatch  = wal.ErrChecksumMismatch
	ErrSizeLimitExceeded = codec.ErrSizeLimitExceeded
)
