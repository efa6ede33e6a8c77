package codec

import "encoding/binary"

// appendHead writes the major-type byte and, if needed, the shortest
// big-endian argument encoding for arg. This is the one place width choice
// happens, so "shortest width" is enforced by construction
// on the encode side.
func appendHead(buf []byte, major byte, arg uint64) []byte {
	switch {
	case arg < aiOneByte:
		return append(buf, major<<5|byte(arg))
	case arg <= 0xFF:
		buf = append(buf, major<<5|aiOneByte, byte(arg))
		return buf
	case arg <= 0xFFFF:
		buf = append(buf, major<<5|aiTwoByte)
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], uint16(arg))
		return append(buf, tmp[:]...)
	case arg <= 0xFFFFFFFF:
		buf = append(buf, major<<5|aiFourByte)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(arg))
		return append(buf, tmp[:]...)
	default:
		buf = append(buf, major<<5|aiEightByte)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], arg)
		return append(buf, tmp[:]...)
	}
}

// head is a decoded major/additional-info/argument triple.
type head struct {
	major    byte
	ai       byte
	arg      uint64
	consumed int
}

// decodeHead parses one header from data, rejecting non-shortest encodings,
// reserved additional-info values, indefinite-length markers, and floats.
// Float rejection happens here rather than in Decode because for major 7
// the additional-info values 25..27 are float markers, not argument widths,
// and must not fall through to the shortest-width checks below.
func decodeHead(data []byte) (head, error) {
	if len(data) < 1 {
		return head{}, ErrTruncated
	}
	b := data[0]
	major := b >> 5
	ai := b & 0x1F

	if major == majorSimple {
		switch ai {
		case simpleFloat16, simpleFloat32, simpleFloat64:
			return head{}, ErrFloatForbidden
		}
	}

	switch {
	case ai < aiOneByte:
		return head{major: major, ai: ai, arg: uint64(ai), consumed: 1}, nil
	case ai == aiOneByte:
		if len(data) < 2 {
			return head{}, ErrTruncated
		}
		arg := uint64(data[1])
		if arg < aiOneByte {
			return head{}, ErrNonCanonical
		}
		return head{major: major, ai: ai, arg: arg, consumed: 2}, nil
	case ai == aiTwoByte:
		if len(data) < 3 {
			return head{}, ErrTruncated
		}
		arg := uint64(binary.BigEndian.Uint16(data[1:3]))
		if arg <= 0xFF {
			return head{}, ErrNonCanonical
		}
		return head{major: major, ai: ai, arg: arg, consumed: 3}, nil
	case ai == aiFourByte:
		if len(data) < 5 {
			return head{}, ErrTruncated
		}
		arg := uint64(binary.BigEndian.Uint32(data[1:5]))
		if arg <= 0xFFFF {
			return head{}, ErrNonCanonical
		}
		return head{major: major, ai: ai, arg: arg, consumed: 5}, nil
	case ai == aiEightByte:
		if len(data) < 9 {
			return head{}, ErrTruncated
		}
		arg := binary.BigEndian.Uint64(data[1:9])
		if arg <= 0xFFFFFFFF {
			return head{}, ErrNonCanonical
		}
		return head{major: major, ai: ai, arg: arg, consumed: 9}, nil
	case ai == aiIndefinite:
		return head{}, ErrIndefiniteLength
	default: // 28, 29, 30
		return head{}, ErrReservedAdditionalInfo
	}
}
