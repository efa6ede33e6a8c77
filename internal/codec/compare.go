package codec

import "bytes"

// Compare returns -1, 0, or 1 comparing the canonical encodings of a and b
// directly as byte strings. Because canonical encoding always picks the
// shortest header for a given argument, a shorter header byte is always
// numerically smaller than a longer one for the same major type, so raw
// lexicographic byte comparison already agrees with "sort by major type,
// then by canonical order within type". This is
// what makes the codec usable directly as an index-key comparator.
func Compare(a, b Value) (int, error) {
	ea, err := Encode(a)
	if err != nil {
		return 0, err
	}
	eb, err := Encode(b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ea, eb), nil
}

// CompareEncoded compares two already-encoded canonical byte strings without
// decoding them, for use on index keys stored as raw bytes.
func CompareEncoded(a, b []byte) int {
	return bytes.Compare(a, b)
}
