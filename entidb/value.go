package entidb

import "github.com/entidb/entidb/internal/codec"

// Value mirrors internal/codec.Value's closed value universe so callers
// can build structured payloads without importing the internal package
// directly. It is a convenience re-export, not a new component:
// Encode/Decode round-trip through the same canonical codec everything else
// in EntiDB uses for manifests and payloads.
type Value = codec.Value

// Constructors mirroring internal/codec's.
var (
	Null  = codec.Null
	Bool  = codec.Bool
	Int   = codec.Int
	Bytes = codec.Bytes
	Text  = codec.Text
	Array = codec.Array
	Map   = codec.Map
)

// MapEntry mirrors internal/codec.MapEntry.
type MapEntry = codec.MapEntry

// Equal reports canonical equality between two Values.
var Equal = codec.Equal

// EncodeValue serializes v with the canonical codec, for use as a
// Transaction.Put payload.
func EncodeValue(v Value) ([]byte, error) {
	return codec.Encode(v)
}

// DecodeValue parses bytes previously produced by EncodeValue (or a
// Transaction.Get result that was written with it).
func DecodeValue(data []byte) (Value, error) {
	return codec.DecodeExact(data)
}
