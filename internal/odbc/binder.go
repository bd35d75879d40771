package odbc

import (
	"math"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/odbc/api"
)

// strategy is how a column's data reaches the host.
type strategy uint8

const (
	// eager columns are bound once; every fetch overwrites the buffer.
	eager strategy = iota
	// deferred columns get a zero-length placeholder binding that only
	// carries the indicator; data is pulled with SQLGetData on access.
	deferred
)

func (s strategy) String() string {
	if s == deferred {
		return "deferred"
	}
	return "eager"
}

// maxNumericPrecision is the widest precision SQL_NUMERIC_STRUCT can carry.
const maxNumericPrecision = 38

// binding is the resolved plan and live storage for one result column.
// It belongs to exactly one result set and is dropped when the set closes.
type binding struct {
	desc    database.ColumnDescriptor
	sqlType int16
	cType   int16
	strat   strategy
	width   int // fixed cell size; 0 for variable-length data
	term    int // terminator bytes the driver appends to character data
	buf     *api.Buffer

	// Per-row state of a deferred column, reset on every fetch.
	lob      []byte
	lobReady bool
	consumed bool
}

func (b *binding) reset() {
	b.lob = nil
	b.lobReady = false
	b.consumed = false
}

func (b *binding) ordinal() uint16 { return uint16(b.desc.Ordinal) }

// signedC and unsignedC are the C integer types by byte width.
var (
	signedC   = map[int]int16{1: api.CSTinyint, 2: api.CSShort, 4: api.CSLong, 8: api.CSBigint}
	unsignedC = map[int]int16{1: api.CUTinyint, 2: api.CUShort, 4: api.CULong, 8: api.CUBigint}
)

// resolveType maps a wire type to its normalized tag and host C type. The
// switch is the complete table: ok is false for anything not listed.
func resolveType(sqlType int16, unsigned bool, c *codec) (tag database.TypeTag, cType int16, ok bool) {
	integer := func(width int) (database.TypeTag, int16, bool) {
		if unsigned {
			return database.IntegerTag(width, true), unsignedC[width], true
		}
		return database.IntegerTag(width, false), signedC[width], true
	}

	switch sqlType {
	case api.TypeTinyint:
		return integer(1)
	case api.TypeSmallint:
		return integer(2)
	case api.TypeInteger:
		return integer(4)
	case api.TypeBigint:
		return integer(8)
	case api.TypeReal:
		return database.TypeFloat32, api.CFloat, true
	case api.TypeFloat, api.TypeDouble:
		return database.TypeFloat64, api.CDouble, true
	case api.TypeNumeric, api.TypeDecimal:
		return database.TypeDecimal, api.CNumeric, true
	case api.TypeBit, api.TypeBoolean:
		return database.TypeBool, api.CBit, true
	case api.TypeDate, api.TypeDatetime:
		return database.TypeDate, api.CDate, true
	case api.TypeTime, api.TypeTimeV2:
		return database.TypeTime, api.CTime, true
	case api.TypeTimestamp, api.TypeTimestampV2:
		return database.TypeTimestamp, api.CTimestamp, true
	case api.TypeChar, api.TypeWChar:
		return database.TypeChar, c.cType(), true
	case api.TypeVarchar, api.TypeWVarchar:
		return database.TypeVarChar, c.cType(), true
	case api.TypeLongVarchar, api.TypeWLongVarchar:
		return database.TypeLongChar, c.cType(), true
	case api.TypeBinary:
		return database.TypeBinary, api.CBinary, true
	case api.TypeVarbinary:
		return database.TypeVarBinary, api.CBinary, true
	case api.TypeLongVarbinary:
		return database.TypeLongBinary, api.CBinary, true
	case api.TypeGUID:
		return database.TypeGUID, api.CGUID, true
	}
	return database.TypeInvalid, 0, false
}

// resolveColumn builds the binding plan for one described column.
func resolveColumn(ordinal int, d api.ColumnDesc, unsigned bool, opts database.Options, c *codec) (*binding, error) {
	tag, cType, ok := resolveType(d.SQLType, unsigned, c)
	if !ok {
		return nil, errs.Newf(errs.ErrKindUnsupportedConversion,
			"column %d (%s): unsupported wire type %d", ordinal, d.Name, d.SQLType)
	}

	// Sizes past MaxInt64 are driver sentinels for "unknown".
	size := int64(0)
	if d.Size <= math.MaxInt64 {
		size = int64(d.Size)
	}
	desc := database.ColumnDescriptor{
		Ordinal:  ordinal,
		Name:     d.Name,
		Type:     tag,
		Size:     size,
		Scale:    int(d.DecimalDigits),
		Nullable: nullability(d.Nullable),
		Unsigned: tag.IsUnsigned(),
	}
	if tag == database.TypeDecimal || tag.IsInteger() || tag.IsFloat() {
		desc.Precision = int(size)
	}

	b := &binding{desc: desc, sqlType: d.SQLType, cType: cType}

	if width, fixed := api.CTypeWidth(cType); fixed {
		b.width = width
		b.buf = api.NewBuffer(width)
		return b, nil
	}

	if tag.IsCharacter() {
		b.term = c.unit
	}
	// Every character takes at least one byte, so a declared size over the
	// ceiling is deferred before any signed arithmetic can overflow.
	if tag.IsUnbounded() || d.Size == 0 || d.Size > uint64(opts.MaxFieldSize) {
		return b.asDeferred(), nil
	}
	need := size
	if tag.IsCharacter() {
		need = c.bufferSize(size)
	}
	if need > int64(opts.MaxFieldSize)+int64(b.term) {
		return b.asDeferred(), nil
	}
	b.buf = api.NewBuffer(int(need))
	return b, nil
}

func (b *binding) asDeferred() *binding {
	b.strat = deferred
	b.buf = &api.Buffer{}
	return b
}

func bookmarkColumn() *binding {
	return &binding{
		desc: database.ColumnDescriptor{
			Ordinal:  0,
			Name:     "bookmark",
			Type:     database.TypeUint64,
			Size:     8,
			Nullable: database.NotNullable,
			Unsigned: true,
		},
		cType: api.CBookmark,
		width: 8,
		buf:   api.NewBuffer(8),
	}
}

func nullability(n int16) database.Nullability {
	switch n {
	case api.NoNulls:
		return database.NotNullable
	case api.Nullable:
		return database.Nullable
	default:
		return database.NullableUnknown
	}
}

// describe runs the resolver over every result column. Position 0 holds the
// bookmark column when bookmarks are enabled and is nil otherwise.
func (s *Statement) describe(ncols int) ([]*binding, error) {
	opts := s.conn.opts
	plan := make([]*binding, ncols+1)
	if opts.Bookmarks {
		plan[0] = bookmarkColumn()
	}
	for i := 1; i <= ncols; i++ {
		d, ret := s.h.api.DescribeCol(s.h.h, uint16(i))
		if err := s.h.check(api.FnDescribeCol, ret); err != nil {
			return nil, err
		}
		unsigned := false
		v, ret := s.h.api.ColAttribute(s.h.h, uint16(i), api.DescUnsigned)
		if err := s.h.check(api.FnColAttribute, ret); err != nil {
			return nil, err
		}
		if ret.Succeeded() {
			unsigned = v == api.DescUnsignedTrue
		}
		b, err := resolveColumn(i, d, unsigned, opts, s.conn.codec)
		if err != nil {
			return nil, err
		}
		plan[i] = b
	}
	return plan, nil
}

// bind attaches every planned buffer to the statement.
func (s *Statement) bind(plan []*binding) error {
	for _, b := range plan {
		if b == nil {
			continue
		}
		var ret api.Return
		if b.cType == api.CNumeric {
			precision, scale := numericShape(b.desc.Precision, b.desc.Scale)
			ret = s.h.api.BindNumericCol(s.h.h, b.ordinal(), precision, scale, b.buf)
		} else {
			ret = s.h.api.BindCol(s.h.h, b.ordinal(), b.cType, b.buf)
		}
		if err := s.h.check(api.FnBindCol, ret); err != nil {
			return err
		}
		s.h.log.With().Int("column", b.desc.Ordinal).Str("type", b.desc.Type.String()).
			Str("strategy", b.strat.String()).Int("buffer", len(b.buf.Data)).Logger().Debug("column bound")
	}
	return nil
}

// numericShape clamps a declared precision and scale to what the numeric
// struct can represent.
func numericShape(precision, scale int) (int16, int16) {
	if precision < 1 || precision > maxNumericPrecision {
		precision = maxNumericPrecision
	}
	if scale < 0 {
		scale = 0
	}
	if scale > precision {
		scale = precision
	}
	return int16(precision), int16(scale)
}
