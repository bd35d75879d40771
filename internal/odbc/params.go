package odbc

import (
	"context"
	"errors"
	"io"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/odbc/api"
	"github.com/shopspring/decimal"
)

// StreamParam data is supplied in chunks while the driver asks for it.
type StreamParam = database.StreamParam

// NullParam is a NULL parameter of a known type. A bare nil argument is
// typed from the driver's parameter description when available.
type NullParam struct {
	Type database.TypeTag
}

// Wire sizes of the fixed-format parameter types.
const (
	timestampColumnSize = 29 // yyyy-mm-dd hh:mm:ss.fffffffff
	dateColumnSize      = 10
	timeColumnSize      = 8
	guidColumnSize      = 36
)

// bindParams converts and binds every argument. The argument count must
// match the number of markers in the prepared text.
func (s *Statement) bindParams(args []any) error {
	n, ret := s.h.api.NumParams(s.h.h)
	if err := s.h.check(api.FnNumParams, ret); err != nil {
		return err
	}
	if int(n) != len(args) {
		return errs.Newf(errs.ErrKindInvalidInput, "statement expects %d parameters, got %d", n, len(args))
	}

	s.params = make([]*api.Param, 0, len(args))
	s.streams = map[uintptr]io.Reader{}
	for i, arg := range args {
		pos := uint16(i + 1)
		p, stream, err := s.param(pos, arg)
		if err != nil {
			return err
		}
		if stream != nil {
			p.Token = uintptr(pos)
			s.streams[p.Token] = stream
		}
		if err := s.h.check(api.FnBindParameter, s.h.api.BindParameter(s.h.h, pos, p)); err != nil {
			return err
		}
		s.params = append(s.params, p)
	}
	return nil
}

// param converts one argument into its binding. A non-nil reader means the
// value is sent at execution time.
func (s *Statement) param(pos uint16, arg any) (*api.Param, io.Reader, error) {
	c := s.conn.codec
	switch v := arg.(type) {
	case nil:
		return s.nullParam(pos, database.TypeInvalid)
	case NullParam:
		return s.nullParam(pos, v.Type)
	case database.Value:
		if v.IsNull() {
			return s.nullParam(pos, v.Tag())
		}
		return s.param(pos, v.Interface())

	case bool:
		p := fixedParam(api.CBit, api.TypeBit, 1)
		if v {
			p.Buf.Data[0] = 1
		}
		return p, nil, nil
	case int:
		return intParam(8, int64(v)), nil, nil
	case int8:
		return intParam(1, int64(v)), nil, nil
	case int16:
		return intParam(2, int64(v)), nil, nil
	case int32:
		return intParam(4, int64(v)), nil, nil
	case int64:
		return intParam(8, v), nil, nil
	case uint:
		return uintParam(8, uint64(v)), nil, nil
	case uint8:
		return uintParam(1, uint64(v)), nil, nil
	case uint16:
		return uintParam(2, uint64(v)), nil, nil
	case uint32:
		return uintParam(4, uint64(v)), nil, nil
	case uint64:
		return uintParam(8, v), nil, nil
	case float32:
		p := fixedParam(api.CFloat, api.TypeReal, 4)
		api.PutFloat32(p.Buf.Data, v)
		return p, nil, nil
	case float64:
		p := fixedParam(api.CDouble, api.TypeDouble, 8)
		api.PutFloat64(p.Buf.Data, v)
		return p, nil, nil

	case decimal.Decimal:
		n, err := decimalToNumeric(v)
		if err != nil {
			return nil, nil, errs.Newf(errs.ErrKindInvalidInput, "parameter %d: %s", pos, errMessage(err))
		}
		p := fixedParam(api.CNumeric, api.TypeNumeric, api.NumericSize)
		p.ColumnSize = uint64(n.Precision)
		p.DecimalDigits = int16(n.Scale)
		n.Encode(p.Buf.Data)
		return p, nil, nil
	case time.Time:
		p := fixedParam(api.CTimestamp, api.TypeTimestamp, api.TimestampSize)
		p.ColumnSize, p.DecimalDigits = timestampColumnSize, 9
		timestampStruct(v.UTC()).Encode(p.Buf.Data)
		return p, nil, nil
	case database.Date:
		p := fixedParam(api.CDate, api.TypeDate, api.DateSize)
		p.ColumnSize = dateColumnSize
		dateStruct(v).Encode(p.Buf.Data)
		return p, nil, nil
	case database.Clock:
		p := fixedParam(api.CTime, api.TypeTime, api.TimeSize)
		p.ColumnSize = timeColumnSize
		timeStruct(v).Encode(p.Buf.Data)
		return p, nil, nil
	case uuid.UUID:
		p := fixedParam(api.CGUID, api.TypeGUID, api.GUIDSize)
		p.ColumnSize = guidColumnSize
		api.GUIDFromBytes(v).Encode(p.Buf.Data)
		return p, nil, nil

	case string:
		raw, err := c.encode(v)
		if err != nil {
			return nil, nil, errs.Newf(errs.ErrKindInvalidInput, "parameter %d: %s", pos, errMessage(err))
		}
		chars := utf8.RuneCountInString(v)
		p := &api.Param{
			CType:      c.cType(),
			SQLType:    c.sqlType(len(raw) > s.conn.opts.MaxFieldSize),
			ColumnSize: uint64(max(chars, 1)),
			Buf:        api.Buffer{Data: append(raw, make([]byte, c.unit)...), Indicator: int64(len(raw))},
		}
		return p, nil, nil
	case []byte:
		if v == nil {
			return s.nullParam(pos, database.TypeVarBinary)
		}
		sqlType := api.TypeVarbinary
		if len(v) > s.conn.opts.MaxFieldSize {
			sqlType = api.TypeLongVarbinary
		}
		data := make([]byte, len(v), len(v)+1)
		copy(data, v)
		p := &api.Param{
			CType:      api.CBinary,
			SQLType:    sqlType,
			ColumnSize: uint64(max(len(v), 1)),
			Buf:        api.Buffer{Data: data, Indicator: int64(len(v))},
		}
		return p, nil, nil

	case *StreamParam:
		if v == nil {
			return s.nullParam(pos, database.TypeLongBinary)
		}
		return s.streamParam(pos, *v)
	case StreamParam:
		return s.streamParam(pos, v)
	case io.Reader:
		return s.streamParam(pos, StreamParam{R: v, Type: database.TypeLongBinary})
	}
	return nil, nil, errs.Newf(errs.ErrKindUnsupportedConversion, "parameter %d: unsupported type %T", pos, arg)
}

// nullParam binds NULL. Without a type hint the parameter is described by
// the driver, falling back to varchar.
func (s *Statement) nullParam(pos uint16, tag database.TypeTag) (*api.Param, io.Reader, error) {
	sqlType := sqlTypeOf(tag, s.conn.codec)
	var size uint64 = 1
	var digits int16
	if tag == database.TypeInvalid && s.h.api.Has(api.FnDescribeParam) {
		d, ret := s.h.api.DescribeParam(s.h.h, pos)
		if err := s.h.check(api.FnDescribeParam, ret); err != nil {
			return nil, nil, err
		}
		sqlType, digits = d.SQLType, d.DecimalDigits
		if d.Size > 0 {
			size = d.Size
		}
	}
	cType := s.conn.codec.cType()
	if _, ct, ok := resolveType(sqlType, false, s.conn.codec); ok {
		cType = ct
	}
	p := &api.Param{
		CType:         cType,
		SQLType:       sqlType,
		ColumnSize:    size,
		DecimalDigits: digits,
		Buf:           api.Buffer{Data: make([]byte, 1), Indicator: api.NullData},
	}
	return p, nil, nil
}

// streamParam binds a data-at-execution parameter.
func (s *Statement) streamParam(pos uint16, sp StreamParam) (*api.Param, io.Reader, error) {
	if sp.R == nil {
		return nil, nil, errs.Newf(errs.ErrKindInvalidInput, "parameter %d: stream has no reader", pos)
	}
	c := s.conn.codec
	p := &api.Param{Buf: api.Buffer{Indicator: api.DataAtExec}}
	r := sp.R
	if sp.Type.IsCharacter() {
		p.CType, p.SQLType = c.cType(), c.sqlType(true)
		r = c.encodeReader(sp.R)
		if sp.Size > 0 && c.utf8 {
			p.Buf.Indicator = api.LenDataAtExec(sp.Size)
		}
	} else {
		p.CType, p.SQLType = api.CBinary, api.TypeLongVarbinary
		if sp.Size > 0 {
			p.Buf.Indicator = api.LenDataAtExec(sp.Size)
		}
	}
	if sp.Size > 0 {
		p.ColumnSize = uint64(sp.Size)
	}
	return p, r, nil
}

// execute runs SQLExecute and, while the driver answers NEED_DATA, supplies
// the requested data-at-execution parameter. The returned status is the
// final status of the execution.
func (s *Statement) execute(ctx context.Context) (api.Return, error) {
	if ret := s.h.api.Execute(s.h.h); ret != api.NeedData {
		return ret, nil
	}
	for {
		token, ret := s.h.api.ParamData(s.h.h)
		if ret != api.NeedData {
			return ret, nil
		}
		src, ok := s.streams[token]
		if !ok {
			return ret, errs.Newf(errs.ErrKindUnclassifiedNative, "driver asked for data of unknown parameter %d", token)
		}
		if err := s.supply(ctx, src); err != nil {
			return ret, err
		}
	}
}

// supply copies one stream into the driver in chunks of the session size.
func (s *Statement) supply(ctx context.Context, src io.Reader) error {
	buf := make([]byte, s.conn.opts.ChunkSize)
	sent := false
	for {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if err := s.h.check(api.FnPutData, s.h.api.PutData(s.h.h, buf[:n])); err != nil {
				return err
			}
			sent = true
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "reading parameter stream", err)
		}
	}
	if !sent {
		return s.h.check(api.FnPutData, s.h.api.PutData(s.h.h, nil))
	}
	return nil
}

func fixedParam(cType, sqlType int16, width int) *api.Param {
	return &api.Param{
		CType:      cType,
		SQLType:    sqlType,
		ColumnSize: uint64(width),
		Buf:        api.Buffer{Data: make([]byte, width), Indicator: int64(width)},
	}
}

var intSQLType = map[int]int16{1: api.TypeTinyint, 2: api.TypeSmallint, 4: api.TypeInteger, 8: api.TypeBigint}

func intParam(width int, v int64) *api.Param {
	p := fixedParam(signedC[width], intSQLType[width], width)
	api.PutUint(p.Buf.Data, width, uint64(v))
	return p
}

func uintParam(width int, v uint64) *api.Param {
	p := fixedParam(unsignedC[width], intSQLType[width], width)
	api.PutUint(p.Buf.Data, width, v)
	return p
}

// sqlTypeOf is the wire type used for a NULL of the given tag.
func sqlTypeOf(tag database.TypeTag, c *codec) int16 {
	switch tag {
	case database.TypeInt8, database.TypeUint8:
		return api.TypeTinyint
	case database.TypeInt16, database.TypeUint16:
		return api.TypeSmallint
	case database.TypeInt32, database.TypeUint32:
		return api.TypeInteger
	case database.TypeInt64, database.TypeUint64:
		return api.TypeBigint
	case database.TypeFloat32:
		return api.TypeReal
	case database.TypeFloat64:
		return api.TypeDouble
	case database.TypeDecimal:
		return api.TypeNumeric
	case database.TypeBool:
		return api.TypeBit
	case database.TypeDate:
		return api.TypeDate
	case database.TypeTime:
		return api.TypeTime
	case database.TypeTimestamp:
		return api.TypeTimestamp
	case database.TypeLongChar:
		return c.sqlType(true)
	case database.TypeBinary, database.TypeVarBinary:
		return api.TypeVarbinary
	case database.TypeLongBinary:
		return api.TypeLongVarbinary
	case database.TypeGUID:
		return api.TypeGUID
	}
	return c.sqlType(false)
}

func errMessage(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
