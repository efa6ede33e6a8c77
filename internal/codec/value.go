// Package codec implements EntiDB's canonical value encoding: a closed,
// deterministic value universe used for payloads, index keys, and the
// on-disk manifest. Encoding is byte-exact for logically-equal values, so
// encoded bytes can stand in for hashing, equality, and ordering.
package codec

import "fmt"

// Kind identifies the type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindBytes
	KindText
	KindArray
	KindMap
)

// Value is a single node in the canonical value universe. Exactly one of the
// fields matching Kind is meaningful; the rest are zero. Floats have no
// representation here and are rejected at the wire level.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Bytes []byte
	Text  string
	Array []Value
	Map   []MapEntry
}

// MapEntry is one key/value pair of a canonical Map. Entries are stored (and
// must be supplied) in any order; Encode sorts them by their encoded key
// bytes before writing, per the canonical map-ordering rule.
type MapEntry struct {
	Key   Value
	Value Value
}

// Null is the canonical null value.
func Null() Value { return Value{Kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Int wraps a signed 64-bit integer.
func Int(n int64) Value { return Value{Kind: KindInt, Int: n} }

// Bytes wraps a byte string. The slice is not copied.
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// Text wraps a UTF-8 string.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Array wraps a sequence of values.
func Array(vs []Value) Value { return Value{Kind: KindArray, Array: vs} }

// Map wraps a set of key/value entries. Order does not matter; Encode
// sorts deterministically by encoded key.
func Map(entries []MapEntry) Value { return Value{Kind: KindMap, Map: entries} }

// String renders a Value for diagnostics; it is not part of the wire format.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.Bytes))
	case KindText:
		return fmt.Sprintf("%q", v.Text)
	case KindArray:
		return fmt.Sprintf("array(%d)", len(v.Array))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.Map))
	default:
		return "invalid"
	}
}

// Equal reports canonical equality: same logical value, independent of map
// key construction order.
func Equal(a, b Value) bool {
	ea, err1 := Encode(a)
	eb, err2 := Encode(b)
	if err1 != nil || err2 != nil {
		return false
	}
	if len(ea) != len(eb) {
		return false
	}
	for i := range ea {
		if ea[i] != eb[i] {
			return false
		}
	}
	return true
}
