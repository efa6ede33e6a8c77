package wal

import (
	"encoding/binary"

	"github.com/entidb/entidb/internal/bytestore"
)

// ForEachStreaming is a synchronous pull iterator: it walks well-formed
// envelopes starting at startOffset and calls fn for each. Two outcomes are
// distinguished:
//
//   - Tolerated truncation (a crash mid-fsync): a header or payload that
//     runs past the available bytes. The iterator stops cleanly and
//     ForEachStreaming returns nil.
//   - Fatal corruption: CRC mismatch, invalid magic, unknown record type,
//     unsupported version, or a malformed payload. ForEachStreaming returns
//     a non-nil error and the caller (database open) must refuse to proceed.
func ForEachStreaming(backend bytestore.ByteStore, startOffset int64, fn func(offset int64, r Record) (cont bool, err error)) error {
	pos := startOffset
	size := backend.Size()

	for pos < size {
		remaining := size - pos
		headerWant := int64(envelopeHeaderSize)
		if remaining < headerWant {
			// Tolerated: a torn header at the very end of the log.
			return nil
		}
		header, err := backend.ReadAt(pos, envelopeHeaderSize)
		if err != nil {
			return err
		}
		payloadLen := binary.LittleEndian.Uint32(header[7:11])
		total := int64(envelopeFixedSize) + int64(payloadLen)
		if total > remaining {
			// Tolerated: header landed but payload+crc were never fully
			// written before the crash.
			return nil
		}
		full, err := backend.ReadAt(pos, int(total))
		if err != nil {
			return err
		}
		dec, err := decodeEnvelope(full)
		if err != nil {
			// decodeEnvelope only returns truncation errors when the slice
			// is short, which cannot happen here (we sized it exactly), so
			// anything returned at this point is fatal corruption.
			return err
		}
		rec, err := decodePayload(dec.recType, dec.payload)
		if err != nil {
			return err
		}

		cont, err := fn(pos, rec)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
		pos += total
	}
	return nil
}
