package sqlcursor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/shopspring/decimal"
)

// Decode converts a value scanned into *any from a database/sql driver
// into a Value of desc.Type. Drivers deliver int64, uint64, float32,
// float64, bool, []byte, string, time.Time or nil; textual forms go
// through the conversion matrix of the character tags.
func Decode(desc database.ColumnDescriptor, src any) (database.Value, error) {
	tag := desc.Type
	if src == nil {
		return database.Null(tag), nil
	}
	if b, ok := src.([]byte); ok && !tag.IsBinary() && tag != database.TypeGUID {
		src = string(b)
	}

	switch {
	case tag.IsInteger() && tag.IsUnsigned():
		switch v := src.(type) {
		case int64:
			if v < 0 {
				return database.Value{}, errDecode(desc, src)
			}
			return database.Uint(tag, uint64(v)), nil
		case uint64:
			return database.Uint(tag, v), nil
		case string:
			n, err := database.String(database.TypeVarChar, v).AsUint64()
			if err != nil {
				return database.Value{}, err
			}
			return database.Uint(tag, n), nil
		}
	case tag.IsInteger():
		switch v := src.(type) {
		case int64:
			return database.Int(tag, v), nil
		case uint64:
			return database.Int(tag, int64(v)), nil
		case bool:
			return database.Int(tag, boolInt(v)), nil
		case string:
			n, err := database.String(database.TypeVarChar, v).AsInt64()
			if err != nil {
				return database.Value{}, err
			}
			return database.Int(tag, n), nil
		}
	case tag.IsFloat():
		switch v := src.(type) {
		case float64:
			return database.Float(tag, v), nil
		case float32:
			return database.Float(tag, float64(v)), nil
		case int64:
			return database.Float(tag, float64(v)), nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return database.Value{}, errs.Wrap(errs.ErrKindUnsupportedConversion, "column "+desc.Name, err)
			}
			return database.Float(tag, f), nil
		}
	case tag.IsCharacter():
		switch v := src.(type) {
		case string:
			return database.String(tag, v), nil
		case time.Time:
			return database.String(tag, v.Format(time.RFC3339Nano)), nil
		default:
			return database.String(tag, fmt.Sprint(v)), nil
		}
	case tag.IsBinary():
		switch v := src.(type) {
		case []byte:
			return database.Bytes(tag, v), nil
		case string:
			return database.Bytes(tag, []byte(v)), nil
		}
	}

	switch tag {
	case database.TypeDecimal:
		switch v := src.(type) {
		case string:
			d, err := decimal.NewFromString(v)
			if err != nil {
				return database.Value{}, errs.Wrap(errs.ErrKindUnsupportedConversion, "column "+desc.Name, err)
			}
			return database.Decimal(d), nil
		case int64:
			return database.Decimal(decimal.NewFromInt(v)), nil
		case float64:
			return database.Decimal(decimal.NewFromFloat(v)), nil
		}
	case database.TypeBool:
		switch v := src.(type) {
		case bool:
			return database.Bool(v), nil
		case int64:
			return database.Bool(v != 0), nil
		case string:
			b, err := database.String(database.TypeVarChar, v).AsBool()
			if err != nil {
				return database.Value{}, err
			}
			return database.Bool(b), nil
		}
	case database.TypeDate:
		switch v := src.(type) {
		case time.Time:
			return database.DateValue(database.DateOf(v)), nil
		case string:
			d, err := database.String(database.TypeVarChar, v).AsDate()
			if err != nil {
				return database.Value{}, err
			}
			return database.DateValue(d), nil
		}
	case database.TypeTime:
		switch v := src.(type) {
		case time.Time:
			return database.TimeValue(database.ClockOf(v)), nil
		case time.Duration:
			return database.TimeValue(clockOfDuration(v)), nil
		case string:
			c, err := database.String(database.TypeVarChar, v).AsTime()
			if err != nil {
				return database.Value{}, err
			}
			return database.TimeValue(c), nil
		}
	case database.TypeTimestamp:
		switch v := src.(type) {
		case time.Time:
			return database.Timestamp(v), nil
		case string:
			t, err := database.String(database.TypeVarChar, v).AsTimestamp()
			if err != nil {
				return database.Value{}, err
			}
			return database.Timestamp(t), nil
		}
	case database.TypeGUID:
		switch v := src.(type) {
		case []byte:
			if len(v) == 16 {
				id, err := uuid.FromBytes(v)
				if err == nil {
					return database.GUID(id), nil
				}
			}
			return decodeGUIDText(desc, string(v))
		case string:
			return decodeGUIDText(desc, v)
		}
	}
	return database.Value{}, errDecode(desc, src)
}

func decodeGUIDText(desc database.ColumnDescriptor, s string) (database.Value, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return database.Value{}, errs.Wrap(errs.ErrKindUnsupportedConversion, "column "+desc.Name, err)
	}
	return database.GUID(id), nil
}

func clockOfDuration(d time.Duration) database.Clock {
	d %= 24 * time.Hour
	return database.Clock{
		Hour:       int(d / time.Hour),
		Minute:     int(d % time.Hour / time.Minute),
		Second:     int(d % time.Minute / time.Second),
		Nanosecond: int(d % time.Second),
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func errDecode(desc database.ColumnDescriptor, src any) error {
	return errs.Newf(errs.ErrKindUnsupportedConversion,
		"column %d (%s): cannot decode %T as %s", desc.Ordinal, desc.Name, src, desc.Type)
}
