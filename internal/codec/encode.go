package codec

import (
	"bytes"
	"sort"
)

// Encode serializes v to its canonical byte representation. Encoding never
// fails for a well-formed Value tree (floats simply have no constructor), so
// the error return exists only to keep the codec/decoder symmetric and to
// surface a future size-limit check on the encode side.
func Encode(v Value) ([]byte, error) {
	return appendValue(nil, v)
}

func appendValue(buf []byte, v Value) ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return append(buf, majorSimple<<5|simpleNull), nil
	case KindBool:
		if v.Bool {
			return append(buf, majorSimple<<5|simpleTrue), nil
		}
		return append(buf, majorSimple<<5|simpleFalse), nil
	case KindInt:
		if v.Int >= 0 {
			return appendHead(buf, majorUnsigned, uint64(v.Int)), nil
		}
		// encode -(n+1) as the magnitude.
		mag := uint64(-(v.Int + 1))
		return appendHead(buf, majorNegative, mag), nil
	case KindBytes:
		buf = appendHead(buf, majorBytes, uint64(len(v.Bytes)))
		return append(buf, v.Bytes...), nil
	case KindText:
		buf = appendHead(buf, majorText, uint64(len(v.Text)))
		return append(buf, v.Text...), nil
	case KindArray:
		buf = appendHead(buf, majorArray, uint64(len(v.Array)))
		for _, elem := range v.Array {
			var err error
			buf, err = appendValue(buf, elem)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case KindMap:
		encoded := make([][]byte, 0, len(v.Map))
		for _, entry := range v.Map {
			keyBytes, err := Encode(entry.Key)
			if err != nil {
				return nil, err
			}
			valBytes, err := Encode(entry.Value)
			if err != nil {
				return nil, err
			}
			pair := make([]byte, 0, len(keyBytes)+len(valBytes))
			pair = append(pair, keyBytes...)
			pair = append(pair, valBytes...)
			encoded = append(encoded, pair)
		}
		sortMapEntries(v.Map, encoded)
		buf = appendHead(buf, majorMap, uint64(len(v.Map)))
		for _, pair := range encoded {
			buf = append(buf, pair...)
		}
		return buf, nil
	default:
		return nil, ErrNonCanonical
	}
}

// sortMapEntries reorders encodedPairs in place by the encoded *key* bytes,
// using length-first-then-lexicographic order. Each pair
// already interleaves key+value bytes, so the key is re-derived from entries
// to know where to compare.
func sortMapEntries(entries []MapEntry, encodedPairs [][]byte) {
	type indexed struct {
		key  []byte
		pair []byte
	}
	tmp := make([]indexed, len(entries))
	for i, e := range entries {
		k, _ := Encode(e.Key)
		tmp[i] = indexed{key: k, pair: encodedPairs[i]}
	}
	sort.SliceStable(tmp, func(i, j int) bool {
		return compareKeyBytes(tmp[i].key, tmp[j].key) < 0
	})
	for i := range tmp {
		encodedPairs[i] = tmp[i].pair
	}
}

// compareKeyBytes implements "length-first, then lexicographic bytewise"
// ordering for encoded map keys.
func compareKeyBytes(a, b []byte) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return bytes.Compare(a, b)
}
