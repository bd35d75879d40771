package sqlcursor

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	id := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	tests := []struct {
		name string
		tag  database.TypeTag
		src  any
		want any
	}{
		{"null", database.TypeInt32, nil, nil},
		{"int64", database.TypeInt32, int64(-5), int64(-5)},
		{"int from text", database.TypeInt64, []byte("42"), int64(42)},
		{"int from bool", database.TypeInt8, true, int64(1)},
		{"unsigned", database.TypeUint64, uint64(1 << 63), uint64(1 << 63)},
		{"unsigned from int64", database.TypeUint32, int64(7), uint64(7)},
		{"float32", database.TypeFloat32, float32(1.5), 1.5},
		{"float from text", database.TypeFloat64, "2.25", 2.25},
		{"decimal from text", database.TypeDecimal, []byte("12.50"), decimal.RequireFromString("12.50")},
		{"bool from int", database.TypeBool, int64(0), false},
		{"bool from text", database.TypeBool, []byte("1"), true},
		{"date from time", database.TypeDate, ts, database.Date{Year: 2024, Month: time.May, Day: 6}},
		{"date from text", database.TypeDate, "2024-05-06", database.Date{Year: 2024, Month: time.May, Day: 6}},
		{"time from text", database.TypeTime, []byte("07:08:09"), database.Clock{Hour: 7, Minute: 8, Second: 9}},
		{"time from duration", database.TypeTime, 26*time.Hour + 30*time.Second, database.Clock{Hour: 2, Second: 30}},
		{"timestamp", database.TypeTimestamp, ts, ts},
		{"timestamp from text", database.TypeTimestamp, "2024-05-06 07:08:09", ts},
		{"varchar", database.TypeVarChar, []byte("héllo"), "héllo"},
		{"char from int", database.TypeChar, int64(9), "9"},
		{"binary", database.TypeVarBinary, []byte{0, 1}, []byte{0, 1}},
		{"guid bytes", database.TypeGUID, id[:], id},
		{"guid text", database.TypeGUID, []byte(id.String()), id},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := database.ColumnDescriptor{Ordinal: 1, Name: "c", Type: tt.tag}
			v, err := Decode(desc, tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.tag, v.Tag())
			got := v.Interface()
			if d, ok := tt.want.(decimal.Decimal); ok {
				assert.True(t, d.Equal(got.(decimal.Decimal)))
				return
			}
			if want, ok := tt.want.(time.Time); ok {
				assert.True(t, want.Equal(got.(time.Time)), "got %v", got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		tag  database.TypeTag
		src  any
	}{
		{"negative unsigned", database.TypeUint16, int64(-1)},
		{"bad integer text", database.TypeInt32, "x"},
		{"time into int", database.TypeInt64, time.Now()},
		{"bad decimal", database.TypeDecimal, "1.2.3"},
		{"float into date", database.TypeDate, 1.5},
		{"bad guid", database.TypeGUID, "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(database.ColumnDescriptor{Ordinal: 1, Name: "c", Type: tt.tag}, tt.src)
			require.Error(t, err)
			assert.True(t, errs.IsUnsupportedConversion(err), "got %v", err)
		})
	}
}

func TestArgs(t *testing.T) {
	id := uuid.New()
	got, err := Args([]any{
		nil,
		database.Null(database.TypeInt32),
		database.Int(database.TypeInt32, 4),
		decimal.RequireFromString("1.10"),
		id,
		database.Date{Year: 2020, Month: time.January, Day: 2},
		database.Clock{Hour: 3, Minute: 4, Second: 5},
		bytes.NewReader([]byte("blob")),
		"text",
	})
	require.NoError(t, err)
	assert.Equal(t, []any{nil, nil, int64(4), "1.1", id.String(), "2020-01-02", "03:04:05", []byte("blob"), "text"}, got)

	_, err = Args([]any{struct{}{}})
	assert.True(t, errs.IsUnsupportedConversion(err))

	got, err = Args([]any{
		database.StreamParam{R: strings.NewReader("clob"), Type: database.TypeLongChar, Size: 4},
		&database.StreamParam{R: bytes.NewReader([]byte{0, 1}), Type: database.TypeLongBinary},
		(*database.StreamParam)(nil),
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"clob", []byte{0, 1}, nil}, got)

	_, err = Args([]any{database.StreamParam{Type: database.TypeLongChar}})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestReturnsRows(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"SELECT 1", true},
		{"  select * from t", true},
		{"-- leading comment\nSELECT 1", true},
		{"/* c */ WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"(SELECT 1) UNION (SELECT 2)", true},
		{"PRAGMA table_info(t)", true},
		{"INSERT INTO t VALUES (1)", false},
		{"insert into t values (1) returning id", true},
		{"UPDATE t SET a = 1", false},
		{"CREATE TABLE t (id INTEGER)", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReturnsRows(tt.text), tt.text)
	}
}
