package odbc

import (
	"math"
	"testing"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/odbc/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func narrowCodec(t *testing.T) *codec {
	t.Helper()
	c, err := newCodec(database.DefaultOptions())
	require.NoError(t, err)
	return c
}

func TestResolveType(t *testing.T) {
	c := narrowCodec(t)
	tests := []struct {
		sqlType  int16
		unsigned bool
		tag      database.TypeTag
		cType    int16
	}{
		{api.TypeTinyint, false, database.TypeInt8, api.CSTinyint},
		{api.TypeTinyint, true, database.TypeUint8, api.CUTinyint},
		{api.TypeSmallint, false, database.TypeInt16, api.CSShort},
		{api.TypeSmallint, true, database.TypeUint16, api.CUShort},
		{api.TypeInteger, false, database.TypeInt32, api.CSLong},
		{api.TypeInteger, true, database.TypeUint32, api.CULong},
		{api.TypeBigint, false, database.TypeInt64, api.CSBigint},
		{api.TypeBigint, true, database.TypeUint64, api.CUBigint},
		{api.TypeReal, false, database.TypeFloat32, api.CFloat},
		{api.TypeFloat, false, database.TypeFloat64, api.CDouble},
		{api.TypeDouble, false, database.TypeFloat64, api.CDouble},
		{api.TypeNumeric, false, database.TypeDecimal, api.CNumeric},
		{api.TypeDecimal, false, database.TypeDecimal, api.CNumeric},
		{api.TypeBit, false, database.TypeBool, api.CBit},
		{api.TypeDate, false, database.TypeDate, api.CDate},
		{api.TypeTime, false, database.TypeTime, api.CTime},
		{api.TypeTimestamp, false, database.TypeTimestamp, api.CTimestamp},
		{api.TypeChar, false, database.TypeChar, api.CChar},
		{api.TypeWVarchar, false, database.TypeVarChar, api.CChar},
		{api.TypeLongVarchar, false, database.TypeLongChar, api.CChar},
		{api.TypeBinary, false, database.TypeBinary, api.CBinary},
		{api.TypeVarbinary, false, database.TypeVarBinary, api.CBinary},
		{api.TypeLongVarbinary, false, database.TypeLongBinary, api.CBinary},
		{api.TypeGUID, false, database.TypeGUID, api.CGUID},
	}

	for _, tt := range tests {
		t.Run(tt.tag.String(), func(t *testing.T) {
			tag, cType, ok := resolveType(tt.sqlType, tt.unsigned, c)
			require.True(t, ok)
			assert.Equal(t, tt.tag, tag)
			assert.Equal(t, tt.cType, cType)
		})
	}

	_, _, ok := resolveType(-151, false, c)
	assert.False(t, ok, "unlisted wire types are rejected")
}

func TestResolveTypeWide(t *testing.T) {
	opts := database.DefaultOptions()
	opts.Protocol = database.ProtocolWide
	c, err := newCodec(opts)
	require.NoError(t, err)

	for _, sqlType := range []int16{api.TypeChar, api.TypeVarchar, api.TypeWLongVarchar} {
		_, cType, ok := resolveType(sqlType, false, c)
		require.True(t, ok)
		assert.Equal(t, api.CWChar, cType)
	}
}

func TestResolveColumnStrategy(t *testing.T) {
	c := narrowCodec(t)
	opts := database.DefaultOptions()
	opts.MaxFieldSize = 100

	tests := []struct {
		name   string
		desc   api.ColumnDesc
		strat  strategy
		buffer int
	}{
		{"integer is fixed", api.ColumnDesc{Name: "i", SQLType: api.TypeInteger, Size: 10}, eager, 4},
		{"decimal is fixed", api.ColumnDesc{Name: "d", SQLType: api.TypeDecimal, Size: 10, DecimalDigits: 2}, eager, api.NumericSize},
		{"short varchar", api.ColumnDesc{Name: "s", SQLType: api.TypeVarchar, Size: 20}, eager, 20*4 + 1},
		{"varchar at the limit", api.ColumnDesc{Name: "s", SQLType: api.TypeVarchar, Size: 25}, eager, 25*4 + 1},
		{"varchar over the limit", api.ColumnDesc{Name: "s", SQLType: api.TypeVarchar, Size: 26}, deferred, 0},
		{"varchar of unknown size", api.ColumnDesc{Name: "s", SQLType: api.TypeVarchar, Size: 0}, deferred, 0},
		{"short varbinary", api.ColumnDesc{Name: "b", SQLType: api.TypeVarbinary, Size: 100}, eager, 100},
		{"long varbinary", api.ColumnDesc{Name: "b", SQLType: api.TypeLongVarbinary, Size: 10}, deferred, 0},
		{"long varchar", api.ColumnDesc{Name: "s", SQLType: api.TypeLongVarchar, Size: 10}, deferred, 0},
		{"varchar with no total", api.ColumnDesc{Name: "s", SQLType: api.TypeVarchar, Size: math.MaxUint64}, deferred, 0},
		{"varchar past int64", api.ColumnDesc{Name: "s", SQLType: api.TypeVarchar, Size: 1 << 63}, deferred, 0},
		{"varchar that would overflow bytes", api.ColumnDesc{Name: "s", SQLType: api.TypeVarchar, Size: 1 << 62}, deferred, 0},
		{"varbinary with no total", api.ColumnDesc{Name: "b", SQLType: api.TypeVarbinary, Size: math.MaxUint64}, deferred, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := resolveColumn(1, tt.desc, false, opts, c)
			require.NoError(t, err)
			assert.Equal(t, tt.strat, b.strat)
			assert.Len(t, b.buf.Data, tt.buffer)
			assert.Equal(t, tt.desc.Name, b.desc.Name)
			assert.Equal(t, 1, b.desc.Ordinal)
		})
	}
}

func TestResolveColumnDescriptor(t *testing.T) {
	c := narrowCodec(t)
	b, err := resolveColumn(3, api.ColumnDesc{
		Name: "amount", SQLType: api.TypeNumeric, Size: 12, DecimalDigits: 4, Nullable: api.NoNulls,
	}, false, database.DefaultOptions(), c)
	require.NoError(t, err)
	assert.Equal(t, database.ColumnDescriptor{
		Ordinal:   3,
		Name:      "amount",
		Type:      database.TypeDecimal,
		Size:      12,
		Precision: 12,
		Scale:     4,
		Nullable:  database.NotNullable,
	}, b.desc)

	b, err = resolveColumn(1, api.ColumnDesc{Name: "u", SQLType: api.TypeSmallint, Size: 5, Nullable: api.NullableUnknown}, true, database.DefaultOptions(), c)
	require.NoError(t, err)
	assert.True(t, b.desc.Unsigned)
	assert.Equal(t, database.NullableUnknown, b.desc.Nullable)

	b, err = resolveColumn(4, api.ColumnDesc{Name: "notes", SQLType: api.TypeVarchar, Size: math.MaxUint64}, false, database.DefaultOptions(), c)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.desc.Size)

	_, err = resolveColumn(2, api.ColumnDesc{Name: "shape", SQLType: -151}, false, database.DefaultOptions(), c)
	assert.True(t, errs.IsUnsupportedConversion(err))
}

func TestNumericShape(t *testing.T) {
	tests := []struct {
		precision, scale int
		wantP, wantS     int16
	}{
		{10, 2, 10, 2},
		{0, 0, 38, 0},
		{60, 4, 38, 4},
		{5, -1, 5, 0},
		{3, 7, 3, 3},
	}
	for _, tt := range tests {
		p, s := numericShape(tt.precision, tt.scale)
		assert.Equal(t, tt.wantP, p, "precision of (%d,%d)", tt.precision, tt.scale)
		assert.Equal(t, tt.wantS, s, "scale of (%d,%d)", tt.precision, tt.scale)
	}
}

func TestNumericSignEncodings(t *testing.T) {
	mag := [api.NumericDigits]byte{0x39, 0x30}
	for _, sign := range []byte{api.SignNegative, api.SignNegativeLegacy} {
		d := numericToDecimal(api.NumericStruct{Precision: 5, Scale: 2, Sign: sign, Val: mag})
		assert.Equal(t, "-123.45", d.String(), "sign byte %d", sign)
	}
	d := numericToDecimal(api.NumericStruct{Precision: 5, Scale: 2, Sign: api.SignPositive, Val: mag})
	assert.Equal(t, "123.45", d.String())
}

func TestBindingLength(t *testing.T) {
	b := &binding{
		desc: database.ColumnDescriptor{Ordinal: 1, Name: "s", Type: database.TypeVarChar},
		term: 1,
		buf:  api.NewBuffer(9),
	}

	b.buf.Indicator = 8
	n, err := b.length()
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	b.buf.Indicator = 9
	_, err = b.length()
	assert.True(t, errs.IsTruncation(err))

	b.buf.Indicator = api.NoTotal
	_, err = b.length()
	assert.True(t, errs.IsTruncation(err))

	b.buf.Indicator = -7
	_, err = b.length()
	assert.True(t, errs.IsUnclassifiedNative(err))
}
