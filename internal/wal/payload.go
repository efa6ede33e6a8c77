package wal

import (
	"encoding/binary"
	"fmt"
)

// Payload layouts (all little-endian):
//
//	BEGIN:      txid(8)
//	PUT:        txid(8) collection(4) entity(16) before_present(1) [before_len(4) before] after_len(4) after
//	DELETE:     txid(8) collection(4) entity(16) before_present(1) [before_len(4) before]
//	COMMIT:     txid(8) sequence(8)
//	ABORT:      txid(8)
//	CHECKPOINT: sequence(8)

func encodePayload(r Record) []byte {
	switch r.Type {
	case RecordBegin:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(r.TxID))
		return buf

	case RecordPut:
		buf := make([]byte, 0, 8+4+16+1+4+len(r.After))
		buf = appendU64(buf, uint64(r.TxID))
		buf = appendU32(buf, r.Collection)
		buf = append(buf, r.Entity[:]...)
		buf = appendBeforeHash(buf, r.BeforeHash)
		buf = appendU32(buf, uint32(len(r.After)))
		buf = append(buf, r.After...)
		return buf

	case RecordDelete:
		buf := make([]byte, 0, 8+4+16+1)
		buf = appendU64(buf, uint64(r.TxID))
		buf = appendU32(buf, r.Collection)
		buf = append(buf, r.Entity[:]...)
		buf = appendBeforeHash(buf, r.BeforeHash)
		return buf

	case RecordCommit:
		buf := make([]byte, 16)
		binary.LittleEndian.PutUint64(buf[0:8], uint64(r.TxID))
		binary.LittleEndian.PutUint64(buf[8:16], uint64(r.Sequence))
		return buf

	case RecordAbort:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(r.TxID))
		return buf

	case RecordCheckpoint:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(r.Sequence))
		return buf

	default:
		return nil
	}
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBeforeHash(buf []byte, h []byte) []byte {
	if h == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = appendU32(buf, uint32(len(h)))
	return append(buf, h...)
}

// decodePayload parses a record's payload given its type. Decoders reject
// trailing bytes inside a record's payload region.
func decodePayload(recType RecordType, payload []byte) (Record, error) {
	switch recType {
	case RecordBegin:
		if len(payload) != 8 {
			return Record{}, fmt.Errorf("%w: BEGIN wants 8 bytes, got %d", ErrMalformedPayload, len(payload))
		}
		return Record{Type: RecordBegin, TxID: TxID(binary.LittleEndian.Uint64(payload))}, nil

	case RecordPut:
		off := 0
		if len(payload) < 8+4+16+1 {
			return Record{}, fmt.Errorf("%w: PUT too short", ErrMalformedPayload)
		}
		txid := TxID(binary.LittleEndian.Uint64(payload[off : off+8]))
		off += 8
		collection := binary.LittleEndian.Uint32(payload[off : off+4])
		off += 4
		var entity EntityID
		copy(entity[:], payload[off:off+16])
		off += 16
		beforeHash, off, err := readBeforeHash(payload, off)
		if err != nil {
			return Record{}, err
		}
		if off+4 > len(payload) {
			return Record{}, fmt.Errorf("%w: PUT missing after_len", ErrMalformedPayload)
		}
		afterLen := int(binary.LittleEndian.Uint32(payload[off : off+4]))
		off += 4
		if off+afterLen != len(payload) {
			return Record{}, fmt.Errorf("%w: PUT trailing/short after bytes", ErrMalformedPayload)
		}
		after := append([]byte(nil), payload[off:off+afterLen]...)
		return Record{Type: RecordPut, TxID: txid, Collection: collection, Entity: entity, BeforeHash: beforeHash, After: after}, nil

	case RecordDelete:
		off := 0
		if len(payload) < 8+4+16+1 {
			return Record{}, fmt.Errorf("%w: DELETE too short", ErrMalformedPayload)
		}
		txid := TxID(binary.LittleEndian.Uint64(payload[off : off+8]))
		off += 8
		collection := binary.LittleEndian.Uint32(payload[off : off+4])
		off += 4
		var entity EntityID
		copy(entity[:], payload[off:off+16])
		off += 16
		beforeHash, off, err := readBeforeHash(payload, off)
		if err != nil {
			return Record{}, err
		}
		if off != len(payload) {
			return Record{}, fmt.Errorf("%w: DELETE trailing bytes", ErrMalformedPayload)
		}
		return Record{Type: RecordDelete, TxID: txid, Collection: collection, Entity: entity, BeforeHash: beforeHash}, nil

	case RecordCommit:
		if len(payload) != 16 {
			return Record{}, fmt.Errorf("%w: COMMIT wants 16 bytes, got %d", ErrMalformedPayload, len(payload))
		}
		return Record{
			Type:     RecordCommit,
			TxID:     TxID(binary.LittleEndian.Uint64(payload[0:8])),
			Sequence: Sequence(binary.LittleEndian.Uint64(payload[8:16])),
		}, nil

	case RecordAbort:
		if len(payload) != 8 {
			return Record{}, fmt.Errorf("%w: ABORT wants 8 bytes, got %d", ErrMalformedPayload, len(payload))
		}
		return Record{Type: RecordAbort, TxID: TxID(binary.LittleEndian.Uint64(payload))}, nil

	case RecordCheckpoint:
		if len(payload) != 8 {
			return Record{}, fmt.Errorf("%w: CHECKPOINT wants 8 bytes, got %d", ErrMalformedPayload, len(payload))
		}
		return Record{Type: RecordCheckpoint, Sequence: Sequence(binary.LittleEndian.Uint64(payload))}, nil

	default:
		return Record{}, fmt.Errorf("%w: %d", ErrUnknownRecordType, recType)
	}
}

func readBeforeHash(payload []byte, off int) ([]byte, int, error) {
	if off+1 > len(payload) {
		return nil, 0, fmt.Errorf("%w: missing before_hash presence flag", ErrMalformedPayload)
	}
	present := payload[off]
	off++
	if present == 0 {
		return nil, off, nil
	}
	if off+4 > len(payload) {
		return nil, 0, fmt.Errorf("%w: missing before_hash length", ErrMalformedPayload)
	}
	n := int(binary.LittleEndian.Uint32(payload[off : off+4]))
	off += 4
	if off+n > len(payload) {
		return nil, 0, fmt.Errorf("%w: truncated before_hash", ErrMalformedPayload)
	}
	h := append([]byte(nil), payload[off:off+n]...)
	off += n
	return h, off, nil
}
