package sqlcursor

import (
	"database/sql/driver"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/shopspring/decimal"
)

// Args converts statement arguments into values database/sql drivers
// accept. Readers are drained into memory; these drivers have no
// data-at-execution protocol.
func Args(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := arg(a)
		if err != nil {
			return nil, errs.Wrap(errs.KindOf(err), "parameter "+strconv.Itoa(i+1), err)
		}
		out[i] = v
	}
	return out, nil
}

func arg(a any) (any, error) {
	switch v := a.(type) {
	case nil:
		return nil, nil
	case database.Value:
		if v.IsNull() {
			return nil, nil
		}
		return arg(v.Interface())
	case decimal.Decimal:
		return v.String(), nil
	case uuid.UUID:
		return v.String(), nil
	case database.Date:
		return v.String(), nil
	case database.Clock:
		return v.String(), nil
	case time.Time, string, []byte, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, driver.Valuer:
		return v, nil
	case database.StreamParam:
		return streamArg(v)
	case *database.StreamParam:
		if v == nil {
			return nil, nil
		}
		return streamArg(*v)
	case io.Reader:
		return streamArg(database.StreamParam{R: v, Type: database.TypeLongBinary})
	}
	return nil, errs.Newf(errs.ErrKindUnsupportedConversion, "unsupported type %T", a)
}

// streamArg drains a stream parameter. Character streams bind as text.
func streamArg(sp database.StreamParam) (any, error) {
	if sp.R == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "stream has no reader")
	}
	b, err := io.ReadAll(sp.R)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read stream", err)
	}
	if sp.Type.IsCharacter() {
		return string(b), nil
	}
	return b, nil
}
