package segment

import "errors"

var (
	// ErrMalformedRecord indicates a segment record whose length-prefix or
	// internal field lengths are inconsistent: fatal corruption, not a
	// tolerated truncation (those are handled by scanBackend's tail check).
	ErrMalformedRecord = errors.New("segment: malformed record")

	// ErrNoActiveSegment indicates an append was attempted before any
	// segment was opened or created.
	ErrNoActiveSegment = errors.New("segment: no active segment")

	// ErrUnknownSegment is returned by ReadAt/ScanSegment for an id that has
	// no corresponding in-memory handle.
	ErrUnknownSegment = errors.New("segment: unknown segment id")
)
