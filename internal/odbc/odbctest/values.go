package odbctest

import (
	"fmt"
	"math/big"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/odbc/api"
	"github.com/shopspring/decimal"
)

// terminator is the number of NUL bytes a driver appends to data of cType.
func terminator(cType int16) int {
	switch cType {
	case api.CChar:
		return 1
	case api.CWChar:
		return 2
	}
	return 0
}

// encodeVar renders v as character or binary data of cType.
func (d *Driver) encodeVar(cType int16, v any) []byte {
	if cType == api.CBinary {
		if b, ok := v.([]byte); ok {
			return b
		}
		return []byte(textOf(v))
	}
	s := textOf(v)
	switch {
	case cType == api.CWChar:
		units := utf16.Encode([]rune(s))
		out := make([]byte, 2*len(units))
		for i, u := range units {
			out[2*i] = byte(u)
			out[2*i+1] = byte(u >> 8)
		}
		return out
	case d.Charset != nil:
		out, err := d.Charset.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return []byte(s)
		}
		return out
	}
	return []byte(s)
}

// decodeText is the inverse of encodeVar for character C types.
func (d *Driver) decodeText(cType int16, b []byte) (string, error) {
	switch {
	case cType == api.CWChar:
		units := make([]uint16, len(b)/2)
		for i := range units {
			units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
		}
		return string(utf16.Decode(units)), nil
	case d.Charset != nil:
		out, err := d.Charset.NewDecoder().Bytes(b)
		return string(out), err
	}
	return string(b), nil
}

func textOf(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format("2006-01-02 15:04:05.999999999")
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

// writeFixed stores v in the C layout of cType. scale applies to numerics.
func writeFixed(cType int16, b []byte, v any, scale int16) {
	switch cType {
	case api.CSTinyint, api.CUTinyint, api.CSShort, api.CUShort,
		api.CSLong, api.CULong, api.CSBigint, api.CUBigint:
		api.PutUint(b, len(b), uintOf(v))
	case api.CFloat:
		api.PutFloat32(b, float32(floatOf(v)))
	case api.CDouble:
		api.PutFloat64(b, floatOf(v))
	case api.CBit:
		b[0] = 0
		if bv, ok := v.(bool); ok && bv || !ok && uintOf(v) != 0 {
			b[0] = 1
		}
	case api.CNumeric:
		numericOf(v, scale).Encode(b)
	case api.CDate:
		switch v := v.(type) {
		case api.DateStruct:
			v.Encode(b)
		case database.Date:
			api.DateStruct{Year: int16(v.Year), Month: uint16(v.Month), Day: uint16(v.Day)}.Encode(b)
		case time.Time:
			api.DateStruct{Year: int16(v.Year()), Month: uint16(v.Month()), Day: uint16(v.Day())}.Encode(b)
		}
	case api.CTime:
		switch v := v.(type) {
		case api.TimeStruct:
			v.Encode(b)
		case database.Clock:
			api.TimeStruct{Hour: uint16(v.Hour), Minute: uint16(v.Minute), Second: uint16(v.Second)}.Encode(b)
		}
	case api.CTimestamp:
		switch v := v.(type) {
		case api.TimestampStruct:
			v.Encode(b)
		case time.Time:
			api.TimestampStruct{
				Year: int16(v.Year()), Month: uint16(v.Month()), Day: uint16(v.Day()),
				Hour: uint16(v.Hour()), Minute: uint16(v.Minute()), Second: uint16(v.Second()),
				Fraction: uint32(v.Nanosecond()),
			}.Encode(b)
		}
	case api.CGUID:
		switch v := v.(type) {
		case uuid.UUID:
			api.GUIDFromBytes(v).Encode(b)
		case api.GUIDStruct:
			v.Encode(b)
		}
	}
}

func uintOf(v any) uint64 {
	switch v := v.(type) {
	case int:
		return uint64(v)
	case int8:
		return uint64(v)
	case int16:
		return uint64(v)
	case int32:
		return uint64(v)
	case int64:
		return uint64(v)
	case uint:
		return uint64(v)
	case uint8:
		return uint64(v)
	case uint16:
		return uint64(v)
	case uint32:
		return uint64(v)
	case uint64:
		return v
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

func floatOf(v any) float64 {
	switch v := v.(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	case decimal.Decimal:
		f, _ := v.Float64()
		return f
	}
	return float64(int64(uintOf(v)))
}

// numericOf scales v to the bound scale. Raw structs pass through so tests
// can supply either negative sign encoding.
func numericOf(v any, scale int16) api.NumericStruct {
	if n, ok := v.(api.NumericStruct); ok {
		return n
	}
	var d decimal.Decimal
	switch v := v.(type) {
	case decimal.Decimal:
		d = v
	case string:
		d = decimal.RequireFromString(v)
	case float64:
		d = decimal.NewFromFloat(v)
	default:
		d = decimal.NewFromInt(int64(uintOf(v)))
	}
	coef := d.Shift(int32(scale)).BigInt()
	n := api.NumericStruct{Precision: 38, Scale: int8(scale), Sign: api.SignPositive}
	if coef.Sign() < 0 {
		n.Sign = api.SignNegative
		coef.Neg(coef)
	}
	be := coef.Bytes()
	for i, c := range be {
		n.Val[len(be)-1-i] = c
	}
	return n
}

// paramValue decodes a bound parameter. Data-at-execution parameters take
// their bytes from dae.
func (d *Driver) paramValue(p *api.Param, dae []byte) (any, error) {
	if p == nil || p.Buf.Indicator == api.NullData {
		return nil, nil
	}
	data := p.Buf.Data
	if api.IsDataAtExec(p.Buf.Indicator) {
		data = dae
	} else if p.Buf.Indicator >= 0 && int(p.Buf.Indicator) <= len(data) {
		data = data[:p.Buf.Indicator]
	}

	switch p.CType {
	case api.CSTinyint, api.CSShort, api.CSLong, api.CSBigint:
		return api.GetInt(data, len(data)), nil
	case api.CUTinyint, api.CUShort, api.CULong, api.CUBigint:
		return api.GetUint(data, len(data)), nil
	case api.CFloat:
		return float64(api.GetFloat32(data)), nil
	case api.CDouble:
		return api.GetFloat64(data), nil
	case api.CBit:
		return data[0] != 0, nil
	case api.CNumeric:
		n := api.DecodeNumeric(data)
		var be [api.NumericDigits]byte
		for i, c := range n.Val {
			be[api.NumericDigits-1-i] = c
		}
		mag := new(big.Int).SetBytes(be[:])
		if n.Negative() {
			mag.Neg(mag)
		}
		return decimal.NewFromBigInt(mag, -int32(n.Scale)), nil
	case api.CDate:
		s := api.DecodeDate(data)
		return database.Date{Year: int(s.Year), Month: time.Month(s.Month), Day: int(s.Day)}, nil
	case api.CTime:
		s := api.DecodeTime(data)
		return database.Clock{Hour: int(s.Hour), Minute: int(s.Minute), Second: int(s.Second)}, nil
	case api.CTimestamp:
		s := api.DecodeTimestamp(data)
		return time.Date(int(s.Year), time.Month(s.Month), int(s.Day),
			int(s.Hour), int(s.Minute), int(s.Second), int(s.Fraction), time.UTC), nil
	case api.CGUID:
		return uuid.UUID(api.DecodeGUID(data).Bytes()), nil
	case api.CChar, api.CWChar:
		return d.decodeText(p.CType, data)
	case api.CBinary:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	return nil, fmt.Errorf("unsupported C type %d", p.CType)
}
