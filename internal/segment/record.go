// Package segment implements EntiDB's segment store: immutable,
// sealed, size-bounded segment files holding versioned entity records, with
// an in-memory latest-version index and background-triggered compaction.
// Each on-disk record is a length-prefixed (collection, entity, sequence,
// payload-or-tombstone) entity record, and a torn trailing record is
// recovered by scanning from the start of the segment.
package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/entidb/entidb/internal/wal"
)

// Kind distinguishes a live record from a tombstone.
type Kind byte

const (
	KindPut Kind = iota
	KindDelete
)

// EntityID re-exports wal.EntityID so callers need not import both packages
// to build a Record.
type EntityID = wal.EntityID

// Sequence re-exports wal.Sequence.
type Sequence = wal.Sequence

// Record is one on-disk segment record: a versioned entity write or
// tombstone. Tombstones (Kind == KindDelete) carry an empty Payload.
type Record struct {
	Kind       Kind
	Collection uint32
	Entity     EntityID
	Sequence   Sequence
	Payload    []byte
}

// recordHeaderSize is everything in a segment record except record_len
// itself and the payload: kind(1) + collection(4) + entity(16) + sequence(8)
// + payload_len(4).
const recordHeaderSize = 1 + 4 + 16 + 8 + 4

// encodeRecord renders r in the segment wire format:
//
//	record_len(4 LE) | kind(1) | collection(4 LE) | entity(16) | sequence(8 LE) | payload_len(4 LE) | payload
func encodeRecord(r Record) []byte {
	body := make([]byte, 0, recordHeaderSize+len(r.Payload))
	body = append(body, byte(r.Kind))
	body = appendU32(body, r.Collection)
	body = append(body, r.Entity[:]...)
	body = appendU64(body, uint64(r.Sequence))
	body = appendU32(body, uint32(len(r.Payload)))
	body = append(body, r.Payload...)

	frame := make([]byte, 0, 4+len(body))
	frame = appendU32(frame, uint32(len(body)))
	frame = append(frame, body...)
	return frame
}

// decodeRecord parses a full frame (including the record_len prefix) back
// into a Record. It requires the slice to contain exactly one frame.
func decodeRecord(frame []byte) (Record, error) {
	if len(frame) < 4 {
		return Record{}, fmt.Errorf("%w: frame shorter than length prefix", ErrMalformedRecord)
	}
	recLen := binary.LittleEndian.Uint32(frame[0:4])
	body := frame[4:]
	if uint32(len(body)) != recLen {
		return Record{}, fmt.Errorf("%w: record_len %d does not match body length %d", ErrMalformedRecord, recLen, len(body))
	}
	if len(body) < recordHeaderSize {
		return Record{}, fmt.Errorf("%w: body shorter than fixed header", ErrMalformedRecord)
	}

	off := 0
	kind := Kind(body[off])
	if kind != KindPut && kind != KindDelete {
		return Record{}, fmt.Errorf("%w: unknown kind %d", ErrMalformedRecord, kind)
	}
	off++
	collection := binary.LittleEndian.Uint32(body[off : off+4])
	off += 4
	var entity EntityID
	copy(entity[:], body[off:off+16])
	off += 16
	seq := Sequence(binary.LittleEndian.Uint64(body[off : off+8]))
	off += 8
	payloadLen := binary.LittleEndian.Uint32(body[off : off+4])
	off += 4
	if off+int(payloadLen) != len(body) {
		return Record{}, fmt.Errorf("%w: payload_len %d inconsistent with body length", ErrMalformedRecord, payloadLen)
	}
	payload := append([]byte(nil), body[off:off+int(payloadLen)]...)

	return Record{Kind: kind, Collection: collection, Entity: entity, Sequence: seq, Payload: payload}, nil
}

// frameLen returns the total on-disk byte length of frame, given its first 4
// bytes (the record_len prefix) are already known to be present.
func frameLen(header [4]byte) int64 {
	return 4 + int64(binary.LittleEndian.Uint32(header[:]))
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
