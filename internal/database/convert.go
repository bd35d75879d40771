package database

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/shopspring/decimal"
)

// Each getter below is the complete conversion table for its target type:
// every source tag is either listed or rejected with ErrKindUnsupportedConversion.

func errNull(target string) *errs.Error {
	return errs.Newf(errs.ErrKindNullValue, "cannot read NULL as %s", target)
}

func errConvert(from TypeTag, target string) *errs.Error {
	return errs.Newf(errs.ErrKindUnsupportedConversion, "conversion from %s to %s not supported", from, target)
}

func errRange(from TypeTag, target string) *errs.Error {
	return errs.Newf(errs.ErrKindUnsupportedConversion, "%s value out of range for %s", from, target)
}

func errParse(from TypeTag, target string, cause error) *errs.Error {
	return errs.Wrap(errs.ErrKindUnsupportedConversion, "cannot convert "+from.String()+" to "+target, cause)
}

// AsInt64 converts v to int64. Floats and decimals are truncated toward zero.
func (v Value) AsInt64() (int64, error) {
	const target = "int64"
	if v.null {
		return 0, errNull(target)
	}
	switch v.tag {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return v.i, nil
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		if v.u > math.MaxInt64 {
			return 0, errRange(v.tag, target)
		}
		return int64(v.u), nil
	case TypeFloat32, TypeFloat64:
		if math.IsNaN(v.f) || v.f >= math.MaxInt64 || v.f < math.MinInt64 {
			return 0, errRange(v.tag, target)
		}
		return int64(v.f), nil
	case TypeDecimal:
		bi := v.dec.Truncate(0).BigInt()
		if !bi.IsInt64() {
			return 0, errRange(v.tag, target)
		}
		return bi.Int64(), nil
	case TypeBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case TypeChar, TypeVarChar, TypeLongChar:
		n, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
		if err != nil {
			return 0, errParse(v.tag, target, err)
		}
		return n, nil
	case TypeDate, TypeTime, TypeTimestamp, TypeBinary, TypeVarBinary, TypeLongBinary, TypeGUID:
		return 0, errConvert(v.tag, target)
	}
	return 0, errConvert(v.tag, target)
}

// AsUint64 converts v to uint64; negative sources are rejected.
func (v Value) AsUint64() (uint64, error) {
	const target = "uint64"
	if v.null {
		return 0, errNull(target)
	}
	switch v.tag {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		if v.i < 0 {
			return 0, errRange(v.tag, target)
		}
		return uint64(v.i), nil
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return v.u, nil
	case TypeFloat32, TypeFloat64:
		if math.IsNaN(v.f) || v.f < 0 || v.f >= math.MaxUint64 {
			return 0, errRange(v.tag, target)
		}
		return uint64(v.f), nil
	case TypeDecimal:
		bi := v.dec.Truncate(0).BigInt()
		if bi.Sign() < 0 || !bi.IsUint64() {
			return 0, errRange(v.tag, target)
		}
		return bi.Uint64(), nil
	case TypeBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case TypeChar, TypeVarChar, TypeLongChar:
		n, err := strconv.ParseUint(strings.TrimSpace(v.s), 10, 64)
		if err != nil {
			return 0, errParse(v.tag, target, err)
		}
		return n, nil
	case TypeDate, TypeTime, TypeTimestamp, TypeBinary, TypeVarBinary, TypeLongBinary, TypeGUID:
		return 0, errConvert(v.tag, target)
	}
	return 0, errConvert(v.tag, target)
}

// AsFloat64 converts v to float64. Large integers and decimals may lose precision.
func (v Value) AsFloat64() (float64, error) {
	const target = "float64"
	if v.null {
		return 0, errNull(target)
	}
	switch v.tag {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return float64(v.i), nil
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return float64(v.u), nil
	case TypeFloat32, TypeFloat64:
		return v.f, nil
	case TypeDecimal:
		return v.dec.InexactFloat64(), nil
	case TypeBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case TypeChar, TypeVarChar, TypeLongChar:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return 0, errParse(v.tag, target, err)
		}
		return f, nil
	case TypeDate, TypeTime, TypeTimestamp, TypeBinary, TypeVarBinary, TypeLongBinary, TypeGUID:
		return 0, errConvert(v.tag, target)
	}
	return 0, errConvert(v.tag, target)
}

// AsBool converts v to bool. Integers are true when non-zero.
func (v Value) AsBool() (bool, error) {
	const target = "bool"
	if v.null {
		return false, errNull(target)
	}
	switch v.tag {
	case TypeBool:
		return v.b, nil
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return v.i != 0, nil
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return v.u != 0, nil
	case TypeChar, TypeVarChar, TypeLongChar:
		b, err := strconv.ParseBool(strings.TrimSpace(v.s))
		if err != nil {
			return false, errParse(v.tag, target, err)
		}
		return b, nil
	case TypeFloat32, TypeFloat64, TypeDecimal, TypeDate, TypeTime, TypeTimestamp,
		TypeBinary, TypeVarBinary, TypeLongBinary, TypeGUID:
		return false, errConvert(v.tag, target)
	}
	return false, errConvert(v.tag, target)
}

// AsString renders v as text. Binary data has no textual form.
func (v Value) AsString() (string, error) {
	const target = "string"
	if v.null {
		return "", errNull(target)
	}
	switch v.tag {
	case TypeChar, TypeVarChar, TypeLongChar:
		return v.s, nil
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return strconv.FormatInt(v.i, 10), nil
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return strconv.FormatUint(v.u, 10), nil
	case TypeFloat32:
		return strconv.FormatFloat(v.f, 'g', -1, 32), nil
	case TypeFloat64:
		return strconv.FormatFloat(v.f, 'g', -1, 64), nil
	case TypeDecimal:
		return v.dec.StringFixed(-v.dec.Exponent()), nil
	case TypeBool:
		return strconv.FormatBool(v.b), nil
	case TypeDate:
		return v.date.String(), nil
	case TypeTime:
		return v.clock.String(), nil
	case TypeTimestamp:
		return v.ts.Format("2006-01-02 15:04:05.999999999"), nil
	case TypeGUID:
		return v.guid.String(), nil
	case TypeBinary, TypeVarBinary, TypeLongBinary:
		return "", errConvert(v.tag, target)
	}
	return "", errConvert(v.tag, target)
}

// AsDecimal converts v to an arbitrary-precision decimal. Decimal sources
// keep their scale.
func (v Value) AsDecimal() (decimal.Decimal, error) {
	const target = "decimal"
	if v.null {
		return decimal.Decimal{}, errNull(target)
	}
	switch v.tag {
	case TypeDecimal:
		return v.dec, nil
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return decimal.NewFromInt(v.i), nil
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(v.u), 0), nil
	case TypeFloat32:
		return decimal.NewFromFloat32(float32(v.f)), nil
	case TypeFloat64:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return decimal.Decimal{}, errRange(v.tag, target)
		}
		return decimal.NewFromFloat(v.f), nil
	case TypeChar, TypeVarChar, TypeLongChar:
		d, err := decimal.NewFromString(strings.TrimSpace(v.s))
		if err != nil {
			return decimal.Decimal{}, errParse(v.tag, target, err)
		}
		return d, nil
	case TypeBool, TypeDate, TypeTime, TypeTimestamp, TypeBinary, TypeVarBinary, TypeLongBinary, TypeGUID:
		return decimal.Decimal{}, errConvert(v.tag, target)
	}
	return decimal.Decimal{}, errConvert(v.tag, target)
}

// AsDate converts v to a calendar date. Timestamps drop their time of day.
func (v Value) AsDate() (Date, error) {
	const target = "date"
	if v.null {
		return Date{}, errNull(target)
	}
	switch v.tag {
	case TypeDate:
		return v.date, nil
	case TypeTimestamp:
		return DateOf(v.ts), nil
	case TypeChar, TypeVarChar, TypeLongChar:
		t, err := dateparse.ParseIn(strings.TrimSpace(v.s), time.UTC)
		if err != nil {
			return Date{}, errParse(v.tag, target, err)
		}
		return DateOf(t), nil
	case TypeInt8, TypeUint8, TypeInt16, TypeUint16, TypeInt32, TypeUint32, TypeInt64, TypeUint64,
		TypeFloat32, TypeFloat64, TypeDecimal, TypeBool, TypeTime,
		TypeBinary, TypeVarBinary, TypeLongBinary, TypeGUID:
		return Date{}, errConvert(v.tag, target)
	}
	return Date{}, errConvert(v.tag, target)
}

var clockLayouts = []string{"15:04:05.999999999", "15:04:05", "15:04"}

// AsTime converts v to a time of day.
func (v Value) AsTime() (Clock, error) {
	const target = "time"
	if v.null {
		return Clock{}, errNull(target)
	}
	switch v.tag {
	case TypeTime:
		return v.clock, nil
	case TypeTimestamp:
		return ClockOf(v.ts), nil
	case TypeChar, TypeVarChar, TypeLongChar:
		s := strings.TrimSpace(v.s)
		for _, layout := range clockLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return ClockOf(t), nil
			}
		}
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return Clock{}, errParse(v.tag, target, err)
		}
		return ClockOf(t), nil
	case TypeInt8, TypeUint8, TypeInt16, TypeUint16, TypeInt32, TypeUint32, TypeInt64, TypeUint64,
		TypeFloat32, TypeFloat64, TypeDecimal, TypeBool, TypeDate,
		TypeBinary, TypeVarBinary, TypeLongBinary, TypeGUID:
		return Clock{}, errConvert(v.tag, target)
	}
	return Clock{}, errConvert(v.tag, target)
}

// AsTimestamp converts v to a time.Time. Dates become midnight UTC.
func (v Value) AsTimestamp() (time.Time, error) {
	const target = "timestamp"
	if v.null {
		return time.Time{}, errNull(target)
	}
	switch v.tag {
	case TypeTimestamp:
		return v.ts, nil
	case TypeDate:
		return v.date.In(time.UTC), nil
	case TypeChar, TypeVarChar, TypeLongChar:
		t, err := dateparse.ParseIn(strings.TrimSpace(v.s), time.UTC)
		if err != nil {
			return time.Time{}, errParse(v.tag, target, err)
		}
		return t, nil
	case TypeInt8, TypeUint8, TypeInt16, TypeUint16, TypeInt32, TypeUint32, TypeInt64, TypeUint64,
		TypeFloat32, TypeFloat64, TypeDecimal, TypeBool, TypeTime,
		TypeBinary, TypeVarBinary, TypeLongBinary, TypeGUID:
		return time.Time{}, errConvert(v.tag, target)
	}
	return time.Time{}, errConvert(v.tag, target)
}

// AsBytes returns the raw bytes of binary values, the text of character
// values, and the 16 bytes of a GUID. The result must not be modified.
func (v Value) AsBytes() ([]byte, error) {
	const target = "bytes"
	if v.null {
		return nil, errNull(target)
	}
	switch v.tag {
	case TypeBinary, TypeVarBinary, TypeLongBinary:
		return v.raw, nil
	case TypeChar, TypeVarChar, TypeLongChar:
		return []byte(v.s), nil
	case TypeGUID:
		b := v.guid
		return b[:], nil
	case TypeInt8, TypeUint8, TypeInt16, TypeUint16, TypeInt32, TypeUint32, TypeInt64, TypeUint64,
		TypeFloat32, TypeFloat64, TypeDecimal, TypeBool, TypeDate, TypeTime, TypeTimestamp:
		return nil, errConvert(v.tag, target)
	}
	return nil, errConvert(v.tag, target)
}

// AsGUID converts v to a UUID. Binary sources must be exactly 16 bytes.
func (v Value) AsGUID() (uuid.UUID, error) {
	const target = "guid"
	if v.null {
		return uuid.Nil, errNull(target)
	}
	switch v.tag {
	case TypeGUID:
		return v.guid, nil
	case TypeChar, TypeVarChar, TypeLongChar:
		id, err := uuid.Parse(strings.TrimSpace(v.s))
		if err != nil {
			return uuid.Nil, errParse(v.tag, target, err)
		}
		return id, nil
	case TypeBinary, TypeVarBinary, TypeLongBinary:
		id, err := uuid.FromBytes(v.raw)
		if err != nil {
			return uuid.Nil, errParse(v.tag, target, err)
		}
		return id, nil
	case TypeInt8, TypeUint8, TypeInt16, TypeUint16, TypeInt32, TypeUint32, TypeInt64, TypeUint64,
		TypeFloat32, TypeFloat64, TypeDecimal, TypeBool, TypeDate, TypeTime, TypeTimestamp:
		return uuid.Nil, errConvert(v.tag, target)
	}
	return uuid.Nil, errConvert(v.tag, target)
}
