package codec

// Wire-level limits. These guard against allocation DoS from a hostile or
// corrupt encoding.
const (
	MaxElementCount = 16 * 1024 * 1024  // 16 Mi array/map entries
	MaxByteLength   = 256 * 1024 * 1024 // 256 MiB bytes/text payloads
)

// Major types, matching a CBOR-style major-type layout over a full closed
// value universe rather than CBOR's complete type system.
const (
	majorUnsigned = 0
	majorNegative = 1
	majorBytes    = 2
	majorText     = 3
	majorArray    = 4
	majorMap      = 5
	majorSimple   = 7
)

// Additional-info values for major 7 (simple/float).
const (
	simpleFalse      = 20
	simpleTrue       = 21
	simpleNull       = 22
	simpleReserved23 = 23
	simpleFloat16    = 25
	simpleFloat32    = 26
	simpleFloat64    = 27
)

const (
	aiOneByte    = 24
	aiTwoByte    = 25
	aiFourByte   = 26
	aiEightByte  = 27
	aiIndefinite = 31
)
