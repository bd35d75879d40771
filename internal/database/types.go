package database

import (
	"fmt"
	"time"
)

// TypeTag is the backend-independent classification of a column's wire type.
// Every backend maps its native type codes onto exactly one tag; a code with
// no tag is a hard error, never a silent fallback to text.
//
// The numeric values are persisted in JSON responses; DO NOT renumber.
type TypeTag uint8

const (
	TypeInvalid    TypeTag = 0
	TypeInt8       TypeTag = 1
	TypeUint8      TypeTag = 2
	TypeInt16      TypeTag = 3
	TypeUint16     TypeTag = 4
	TypeInt32      TypeTag = 5
	TypeUint32     TypeTag = 6
	TypeInt64      TypeTag = 7
	TypeUint64     TypeTag = 8
	TypeFloat32    TypeTag = 10
	TypeFloat64    TypeTag = 11
	TypeDecimal    TypeTag = 12
	TypeBool       TypeTag = 13
	TypeDate       TypeTag = 20
	TypeTime       TypeTag = 21
	TypeTimestamp  TypeTag = 22
	TypeChar       TypeTag = 30
	TypeVarChar    TypeTag = 31
	TypeLongChar   TypeTag = 32
	TypeBinary     TypeTag = 40
	TypeVarBinary  TypeTag = 41
	TypeLongBinary TypeTag = 42
	TypeGUID       TypeTag = 50
)

var typeNames = map[TypeTag]string{
	TypeInt8:       "int8",
	TypeUint8:      "uint8",
	TypeInt16:      "int16",
	TypeUint16:     "uint16",
	TypeInt32:      "int32",
	TypeUint32:     "uint32",
	TypeInt64:      "int64",
	TypeUint64:     "uint64",
	TypeFloat32:    "float32",
	TypeFloat64:    "float64",
	TypeDecimal:    "decimal",
	TypeBool:       "bool",
	TypeDate:       "date",
	TypeTime:       "time",
	TypeTimestamp:  "timestamp",
	TypeChar:       "char",
	TypeVarChar:    "varchar",
	TypeLongChar:   "longchar",
	TypeBinary:     "binary",
	TypeVarBinary:  "varbinary",
	TypeLongBinary: "longbinary",
	TypeGUID:       "guid",
}

func (t TypeTag) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("invalid(%d)", uint8(t))
}

// MarshalText renders the tag by name in JSON and YAML.
func (t TypeTag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Valid reports whether t is one of the declared tags.
func (t TypeTag) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// IsInteger reports whether t is one of the eight integer tags.
func (t TypeTag) IsInteger() bool {
	return t >= TypeInt8 && t <= TypeUint64
}

// IsUnsigned reports whether t is an unsigned integer tag.
func (t TypeTag) IsUnsigned() bool {
	switch t {
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return true
	}
	return false
}

func (t TypeTag) IsFloat() bool { return t == TypeFloat32 || t == TypeFloat64 }

// IsCharacter reports whether t carries text.
func (t TypeTag) IsCharacter() bool {
	return t == TypeChar || t == TypeVarChar || t == TypeLongChar
}

// IsBinary reports whether t carries raw bytes.
func (t TypeTag) IsBinary() bool {
	return t == TypeBinary || t == TypeVarBinary || t == TypeLongBinary
}

// IsUnbounded reports whether values of t have no meaningful maximum size
// and must be streamed rather than bound eagerly.
func (t TypeTag) IsUnbounded() bool {
	return t == TypeLongChar || t == TypeLongBinary
}

// IntegerTag returns the integer tag for the given width in bytes.
func IntegerTag(width int, unsigned bool) TypeTag {
	var tag TypeTag
	switch width {
	case 1:
		tag = TypeInt8
	case 2:
		tag = TypeInt16
	case 4:
		tag = TypeInt32
	case 8:
		tag = TypeInt64
	default:
		return TypeInvalid
	}
	if unsigned {
		tag++
	}
	return tag
}

// Nullability is the tri-state nullability reported by native metadata.
type Nullability uint8

const (
	NullableUnknown Nullability = iota
	NotNullable
	Nullable
)

func (n Nullability) String() string {
	switch n {
	case NotNullable:
		return "not_null"
	case Nullable:
		return "nullable"
	default:
		return "unknown"
	}
}

func (n Nullability) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// ColumnDescriptor is the immutable-per-open metadata for one result column.
// It is the only view of a column the catalog and server layers may use.
type ColumnDescriptor struct {
	Ordinal   int         `json:"ordinal"` // 1-based; 0 is the bookmark column
	Name      string      `json:"name"`
	Type      TypeTag     `json:"type"`
	Size      int64       `json:"size"` // declared size in characters or bytes
	Precision int         `json:"precision"`
	Scale     int         `json:"scale"`
	Nullable  Nullability `json:"nullable"`
	Unsigned  bool        `json:"unsigned,omitempty"`
}

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Clock is a time of day without a date or zone.
type Clock struct {
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

// ClockOf returns the time of day of t.
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanosecond: t.Nanosecond()}
}

// On combines c with date d in loc.
func (c Clock) On(d Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, c.Second, c.Nanosecond, loc)
}

func (c Clock) String() string {
	if c.Nanosecond == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%09d", c.Hour, c.Minute, c.Second, c.Nanosecond)
}
