package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Value is the normalized value of one column in one row. It is a tagged
// union: tag selects which payload field is meaningful. Backends build
// Values with the constructors below and never touch the payload directly.
type Value struct {
	tag  TypeTag
	null bool

	i     int64
	u     uint64
	f     float64
	b     bool
	s     string
	raw   []byte
	dec   decimal.Decimal
	date  Date
	clock Clock
	ts    time.Time
	guid  uuid.UUID
}

// Null returns the NULL value of the given type.
func Null(tag TypeTag) Value { return Value{tag: tag, null: true} }

// Int returns a signed integer value. tag must be a signed integer tag.
func Int(tag TypeTag, v int64) Value { return Value{tag: tag, i: v} }

// Uint returns an unsigned integer value. tag must be an unsigned integer tag.
func Uint(tag TypeTag, v uint64) Value { return Value{tag: tag, u: v} }

// Float returns a floating point value of tag TypeFloat32 or TypeFloat64.
func Float(tag TypeTag, v float64) Value { return Value{tag: tag, f: v} }

func Bool(v bool) Value { return Value{tag: TypeBool, b: v} }

func Decimal(d decimal.Decimal) Value { return Value{tag: TypeDecimal, dec: d} }

func DateValue(d Date) Value { return Value{tag: TypeDate, date: d} }

func TimeValue(c Clock) Value { return Value{tag: TypeTime, clock: c} }

func Timestamp(t time.Time) Value { return Value{tag: TypeTimestamp, ts: t} }

// String returns a character value; tag must be a character tag.
func String(tag TypeTag, s string) Value { return Value{tag: tag, s: s} }

// Bytes returns a binary value; tag must be a binary tag. b is not copied.
func Bytes(tag TypeTag, b []byte) Value { return Value{tag: tag, raw: b} }

func GUID(id uuid.UUID) Value { return Value{tag: TypeGUID, guid: id} }

// Tag returns the value's type tag.
func (v Value) Tag() TypeTag { return v.tag }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.null }

// Interface returns the Go representation of v: nil, int64, uint64,
// float64, bool, string, []byte, decimal.Decimal, Date, Clock, time.Time
// or uuid.UUID.
func (v Value) Interface() any {
	if v.null {
		return nil
	}
	switch {
	case v.tag.IsInteger() && v.tag.IsUnsigned():
		return v.u
	case v.tag.IsInteger():
		return v.i
	case v.tag.IsFloat():
		return v.f
	case v.tag.IsCharacter():
		return v.s
	case v.tag.IsBinary():
		return v.raw
	}
	switch v.tag {
	case TypeBool:
		return v.b
	case TypeDecimal:
		return v.dec
	case TypeDate:
		return v.date
	case TypeTime:
		return v.clock
	case TypeTimestamp:
		return v.ts
	case TypeGUID:
		return v.guid
	}
	return nil
}

// JSON returns a representation suitable for encoding/json: decimals become
// strings so no precision is lost, dates and times use ISO formats.
func (v Value) JSON() any {
	if v.null {
		return nil
	}
	switch v.tag {
	case TypeDecimal:
		return v.dec.StringFixed(-v.dec.Exponent())
	case TypeDate:
		return v.date.String()
	case TypeTime:
		return v.clock.String()
	case TypeTimestamp:
		return v.ts.Format(time.RFC3339Nano)
	case TypeGUID:
		return v.guid.String()
	}
	return v.Interface()
}
