package odbc

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/odbc/api"
	"github.com/shopspring/decimal"
)

// value decodes the bound buffer of an eager column for the current row.
func (b *binding) value(c *codec) (database.Value, error) {
	tag := b.desc.Type
	if b.buf.IsNull() {
		return database.Null(tag), nil
	}
	data := b.buf.Data

	switch tag {
	case database.TypeInt8, database.TypeInt16, database.TypeInt32, database.TypeInt64:
		return database.Int(tag, api.GetInt(data, b.width)), nil
	case database.TypeUint8, database.TypeUint16, database.TypeUint32, database.TypeUint64:
		return database.Uint(tag, api.GetUint(data, b.width)), nil
	case database.TypeFloat32:
		return database.Float(tag, float64(api.GetFloat32(data))), nil
	case database.TypeFloat64:
		return database.Float(tag, api.GetFloat64(data)), nil
	case database.TypeDecimal:
		return database.Decimal(numericToDecimal(api.DecodeNumeric(data))), nil
	case database.TypeBool:
		return database.Bool(data[0] != 0), nil
	case database.TypeDate:
		return database.DateValue(dateOf(api.DecodeDate(data))), nil
	case database.TypeTime:
		return database.TimeValue(clockOf(api.DecodeTime(data))), nil
	case database.TypeTimestamp:
		return database.Timestamp(timestampOf(api.DecodeTimestamp(data))), nil
	case database.TypeGUID:
		return database.GUID(uuid.UUID(api.DecodeGUID(data).Bytes())), nil
	case database.TypeChar, database.TypeVarChar, database.TypeLongChar,
		database.TypeBinary, database.TypeVarBinary, database.TypeLongBinary:
		n, err := b.length()
		if err != nil {
			return database.Value{}, err
		}
		return decodeVariable(tag, data[:n], c)
	}
	return database.Value{}, errs.Newf(errs.ErrKindUnsupportedConversion, "no decoder for %s", tag)
}

// length returns the byte length of the current variable-length value,
// failing when the driver truncated it to fit the bound buffer.
func (b *binding) length() (int, error) {
	capacity := len(b.buf.Data) - b.term
	ind := b.buf.Indicator
	switch {
	case ind == api.NoTotal || ind > int64(capacity):
		return 0, errs.Newf(errs.ErrKindTruncation,
			"column %d (%s) truncated: value does not fit %d byte buffer", b.desc.Ordinal, b.desc.Name, capacity)
	case ind < 0:
		return 0, errs.Newf(errs.ErrKindUnclassifiedNative,
			"column %d (%s): invalid length indicator %d", b.desc.Ordinal, b.desc.Name, ind)
	}
	return int(ind), nil
}

// decodeVariable builds a character or binary value from raw driver bytes.
// Binary data is copied; the source buffer is overwritten on the next fetch.
func decodeVariable(tag database.TypeTag, raw []byte, c *codec) (database.Value, error) {
	if tag.IsCharacter() {
		s, err := c.decode(raw)
		if err != nil {
			return database.Value{}, err
		}
		return database.String(tag, s), nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return database.Bytes(tag, out), nil
}

// numericToDecimal expands the little-endian base-256 magnitude and applies
// the sign and scale carried in the struct.
func numericToDecimal(n api.NumericStruct) decimal.Decimal {
	var be [api.NumericDigits]byte
	for i, v := range n.Val {
		be[api.NumericDigits-1-i] = v
	}
	mag := new(big.Int).SetBytes(be[:])
	if n.Negative() {
		mag.Neg(mag)
	}
	return decimal.NewFromBigInt(mag, -int32(n.Scale))
}

// decimalToNumeric is the inverse of numericToDecimal. Negative values are
// written with SignNegative.
func decimalToNumeric(d decimal.Decimal) (api.NumericStruct, error) {
	var (
		coef  *big.Int
		scale int32
	)
	if d.Exponent() >= 0 {
		coef = d.BigInt()
	} else {
		coef = d.Coefficient()
		scale = -d.Exponent()
	}
	if scale > maxNumericPrecision {
		return api.NumericStruct{}, errs.Newf(errs.ErrKindInvalidInput, "decimal %s: scale %d exceeds %d", d, scale, maxNumericPrecision)
	}

	n := api.NumericStruct{Scale: int8(scale), Sign: api.SignPositive}
	if coef.Sign() < 0 {
		n.Sign = api.SignNegative
		coef = new(big.Int).Neg(coef)
	}
	be := coef.Bytes()
	if len(be) > api.NumericDigits {
		return api.NumericStruct{}, errs.Newf(errs.ErrKindInvalidInput, "decimal %s does not fit a numeric struct", d)
	}
	for i, v := range be {
		n.Val[len(be)-1-i] = v
	}

	digits := len(coef.String())
	if coef.Sign() == 0 {
		digits = 1
	}
	if int(scale) > digits {
		digits = int(scale)
	}
	if digits > maxNumericPrecision {
		return api.NumericStruct{}, errs.Newf(errs.ErrKindInvalidInput, "decimal %s exceeds precision %d", d, maxNumericPrecision)
	}
	n.Precision = uint8(digits)
	return n, nil
}

func dateOf(d api.DateStruct) database.Date {
	return database.Date{Year: int(d.Year), Month: time.Month(d.Month), Day: int(d.Day)}
}

func clockOf(t api.TimeStruct) database.Clock {
	return database.Clock{Hour: int(t.Hour), Minute: int(t.Minute), Second: int(t.Second)}
}

// timestampOf interprets the struct as UTC wall time; the driver reports no zone.
func timestampOf(t api.TimestampStruct) time.Time {
	return time.Date(int(t.Year), time.Month(t.Month), int(t.Day),
		int(t.Hour), int(t.Minute), int(t.Second), int(t.Fraction), time.UTC)
}

func dateStruct(d database.Date) api.DateStruct {
	return api.DateStruct{Year: int16(d.Year), Month: uint16(d.Month), Day: uint16(d.Day)}
}

func timeStruct(c database.Clock) api.TimeStruct {
	return api.TimeStruct{Hour: uint16(c.Hour), Minute: uint16(c.Minute), Second: uint16(c.Second)}
}

func timestampStruct(t time.Time) api.TimestampStruct {
	return api.TimestampStruct{
		Year:     int16(t.Year()),
		Month:    uint16(t.Month()),
		Day:      uint16(t.Day()),
		Hour:     uint16(t.Hour()),
		Minute:   uint16(t.Minute()),
		Second:   uint16(t.Second()),
		Fraction: uint32(t.Nanosecond()),
	}
}
