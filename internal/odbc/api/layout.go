package api

import (
	"encoding/binary"
	"math"
)

// Fixed C layouts. Each struct is read and written field by field at its
// native offsets; a byte buffer is never reinterpreted as a Go struct.

// Sizes of the fixed layouts in bytes.
const (
	DateSize      = 6
	TimeSize      = 6
	TimestampSize = 16
	NumericSize   = 19
	GUIDSize      = 16
	NumericDigits = 16
)

// Numeric sign bytes. Readers accept both negative encodings; writers emit
// SignNegative.
const (
	SignNegative       byte = 0
	SignPositive       byte = 1
	SignNegativeLegacy byte = 2
)

var ne = binary.NativeEndian

// DateStruct is SQL_DATE_STRUCT.
type DateStruct struct {
	Year  int16
	Month uint16
	Day   uint16
}

func DecodeDate(b []byte) DateStruct {
	return DateStruct{
		Year:  int16(ne.Uint16(b[0:])),
		Month: ne.Uint16(b[2:]),
		Day:   ne.Uint16(b[4:]),
	}
}

func (d DateStruct) Encode(b []byte) {
	ne.PutUint16(b[0:], uint16(d.Year))
	ne.PutUint16(b[2:], d.Month)
	ne.PutUint16(b[4:], d.Day)
}

// TimeStruct is SQL_TIME_STRUCT.
type TimeStruct struct {
	Hour   uint16
	Minute uint16
	Second uint16
}

func DecodeTime(b []byte) TimeStruct {
	return TimeStruct{
		Hour:   ne.Uint16(b[0:]),
		Minute: ne.Uint16(b[2:]),
		Second: ne.Uint16(b[4:]),
	}
}

func (t TimeStruct) Encode(b []byte) {
	ne.PutUint16(b[0:], t.Hour)
	ne.PutUint16(b[2:], t.Minute)
	ne.PutUint16(b[4:], t.Second)
}

// TimestampStruct is SQL_TIMESTAMP_STRUCT. Fraction is in nanoseconds and
// sits at offset 12 after the six 16-bit fields.
type TimestampStruct struct {
	Year     int16
	Month    uint16
	Day      uint16
	Hour     uint16
	Minute   uint16
	Second   uint16
	Fraction uint32
}

func DecodeTimestamp(b []byte) TimestampStruct {
	return TimestampStruct{
		Year:     int16(ne.Uint16(b[0:])),
		Month:    ne.Uint16(b[2:]),
		Day:      ne.Uint16(b[4:]),
		Hour:     ne.Uint16(b[6:]),
		Minute:   ne.Uint16(b[8:]),
		Second:   ne.Uint16(b[10:]),
		Fraction: ne.Uint32(b[12:]),
	}
}

func (t TimestampStruct) Encode(b []byte) {
	ne.PutUint16(b[0:], uint16(t.Year))
	ne.PutUint16(b[2:], t.Month)
	ne.PutUint16(b[4:], t.Day)
	ne.PutUint16(b[6:], t.Hour)
	ne.PutUint16(b[8:], t.Minute)
	ne.PutUint16(b[10:], t.Second)
	ne.PutUint32(b[12:], t.Fraction)
}

// NumericStruct is SQL_NUMERIC_STRUCT: the magnitude is a little-endian
// base-256 integer in Val, scaled by 10^-Scale.
type NumericStruct struct {
	Precision uint8
	Scale     int8
	Sign      byte
	Val       [NumericDigits]byte
}

func DecodeNumeric(b []byte) NumericStruct {
	n := NumericStruct{
		Precision: b[0],
		Scale:     int8(b[1]),
		Sign:      b[2],
	}
	copy(n.Val[:], b[3:3+NumericDigits])
	return n
}

func (n NumericStruct) Encode(b []byte) {
	b[0] = n.Precision
	b[1] = byte(n.Scale)
	b[2] = n.Sign
	copy(b[3:3+NumericDigits], n.Val[:])
}

// Negative reports whether the sign byte encodes a negative value.
func (n NumericStruct) Negative() bool {
	return n.Sign == SignNegative || n.Sign == SignNegativeLegacy
}

// GUIDStruct is SQLGUID. Data1..Data3 are native-endian integers.
type GUIDStruct struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

func DecodeGUID(b []byte) GUIDStruct {
	g := GUIDStruct{
		Data1: ne.Uint32(b[0:]),
		Data2: ne.Uint16(b[4:]),
		Data3: ne.Uint16(b[6:]),
	}
	copy(g.Data4[:], b[8:16])
	return g
}

func (g GUIDStruct) Encode(b []byte) {
	ne.PutUint32(b[0:], g.Data1)
	ne.PutUint16(b[4:], g.Data2)
	ne.PutUint16(b[6:], g.Data3)
	copy(b[8:16], g.Data4[:])
}

// Bytes returns the RFC 4122 byte order of g.
func (g GUIDStruct) Bytes() [16]byte {
	var out [16]byte
	binary.BigEndian.PutUint32(out[0:], g.Data1)
	binary.BigEndian.PutUint16(out[4:], g.Data2)
	binary.BigEndian.PutUint16(out[6:], g.Data3)
	copy(out[8:], g.Data4[:])
	return out
}

// GUIDFromBytes is the inverse of GUIDStruct.Bytes.
func GUIDFromBytes(b [16]byte) GUIDStruct {
	g := GUIDStruct{
		Data1: binary.BigEndian.Uint32(b[0:]),
		Data2: binary.BigEndian.Uint16(b[4:]),
		Data3: binary.BigEndian.Uint16(b[6:]),
	}
	copy(g.Data4[:], b[8:])
	return g
}

// Integer cells.

func GetInt(b []byte, width int) int64 {
	switch width {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(ne.Uint16(b)))
	case 4:
		return int64(int32(ne.Uint32(b)))
	default:
		return int64(ne.Uint64(b))
	}
}

func GetUint(b []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(ne.Uint16(b))
	case 4:
		return uint64(ne.Uint32(b))
	default:
		return ne.Uint64(b)
	}
}

func PutUint(b []byte, width int, v uint64) {
	switch width {
	case 1:
		b[0] = byte(v)
	case 2:
		ne.PutUint16(b, uint16(v))
	case 4:
		ne.PutUint32(b, uint32(v))
	default:
		ne.PutUint64(b, v)
	}
}

func GetFloat32(b []byte) float32 { return math.Float32frombits(ne.Uint32(b)) }
func GetFloat64(b []byte) float64 { return math.Float64frombits(ne.Uint64(b)) }

func PutFloat32(b []byte, v float32) { ne.PutUint32(b, math.Float32bits(v)) }
func PutFloat64(b []byte, v float64) { ne.PutUint64(b, math.Float64bits(v)) }

// CTypeWidth returns the buffer size of a fixed-width C type and false for
// variable-length types.
func CTypeWidth(cType int16) (int, bool) {
	switch cType {
	case CSTinyint, CUTinyint, CBit:
		return 1, true
	case CSShort, CUShort:
		return 2, true
	case CSLong, CULong, CFloat:
		return 4, true
	case CSBigint, CUBigint, CDouble:
		return 8, true
	case CDate:
		return DateSize, true
	case CTime:
		return TimeSize, true
	case CTimestamp:
		return TimestampSize, true
	case CNumeric:
		return NumericSize, true
	case CGUID:
		return GUIDSize, true
	}
	return 0, false
}
