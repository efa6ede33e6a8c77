package codec

import (
	"errors"
	"fmt"
)

// Sentinel error kinds a caller can match with errors.Is, one per rejection
// class the decoder enforces.
var (
	ErrFloatForbidden         = errors.New("codec: floating-point major type is forbidden")
	ErrIndefiniteLength       = errors.New("codec: indefinite-length containers are forbidden")
	ErrNonCanonical           = errors.New("codec: non-canonical encoding")
	ErrMapKeyOrder            = errors.New("codec: map keys not in strictly increasing canonical order")
	ErrReservedAdditionalInfo = errors.New("codec: reserved additional-info value")
	ErrInvalidUTF8            = errors.New("codec: invalid UTF-8 in text value")
	ErrSizeLimitExceeded      = errors.New("codec: size limit exceeded")
	ErrTruncated              = errors.New("codec: truncated input")
	ErrTrailingBytes          = errors.New("codec: trailing bytes after value")
	ErrIntegerOutOfRange      = errors.New("codec: integer magnitude out of int64 range")
)

// SizeLimitError carries the claimed and maximum sizes for ErrSizeLimitExceeded.
type SizeLimitError struct {
	Claimed uint64
	Max     uint64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("codec: size limit exceeded: claimed %d, max %d", e.Claimed, e.Max)
}

func (e *SizeLimitError) Unwrap() error { return ErrSizeLimitExceeded }

func sizeLimit(claimed, max uint64) error {
	return &SizeLimitError{Claimed: claimed, Max: max}
}
