package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeField(t *testing.T) {
	m := pgtype.NewMap()
	tests := []struct {
		name string
		fd   pgconn.FieldDescription
		want database.ColumnDescriptor
	}{
		{
			name: "numeric with precision",
			fd:   pgconn.FieldDescription{Name: "total", DataTypeOID: pgtype.NumericOID, DataTypeSize: -1, TypeModifier: (10<<16 | 2) + 4},
			want: database.ColumnDescriptor{Ordinal: 1, Name: "total", Type: database.TypeDecimal, Size: 10, Precision: 10, Scale: 2},
		},
		{
			name: "unconstrained numeric",
			fd:   pgconn.FieldDescription{Name: "n", DataTypeOID: pgtype.NumericOID, DataTypeSize: -1, TypeModifier: -1},
			want: database.ColumnDescriptor{Ordinal: 1, Name: "n", Type: database.TypeDecimal},
		},
		{
			name: "varchar length",
			fd:   pgconn.FieldDescription{Name: "code", DataTypeOID: pgtype.VarcharOID, DataTypeSize: -1, TypeModifier: 36},
			want: database.ColumnDescriptor{Ordinal: 1, Name: "code", Type: database.TypeVarChar, Size: 32},
		},
		{
			name: "bpchar length",
			fd:   pgconn.FieldDescription{Name: "flag", DataTypeOID: pgtype.BPCharOID, DataTypeSize: -1, TypeModifier: 5},
			want: database.ColumnDescriptor{Ordinal: 1, Name: "flag", Type: database.TypeChar, Size: 1},
		},
		{
			name: "fixed width int",
			fd:   pgconn.FieldDescription{Name: "id", DataTypeOID: pgtype.Int8OID, DataTypeSize: 8, TypeModifier: -1},
			want: database.ColumnDescriptor{Ordinal: 1, Name: "id", Type: database.TypeInt64, Size: 8},
		},
		{
			name: "oid is unsigned",
			fd:   pgconn.FieldDescription{Name: "relid", DataTypeOID: pgtype.OIDOID, DataTypeSize: 4, TypeModifier: -1},
			want: database.ColumnDescriptor{Ordinal: 1, Name: "relid", Type: database.TypeUint32, Size: 4, Unsigned: true},
		},
		{
			name: "jsonb is text",
			fd:   pgconn.FieldDescription{Name: "doc", DataTypeOID: pgtype.JSONBOID, DataTypeSize: -1, TypeModifier: -1},
			want: database.ColumnDescriptor{Ordinal: 1, Name: "doc", Type: database.TypeLongChar},
		},
		{
			name: "enum arrives as text",
			fd:   pgconn.FieldDescription{Name: "mood", DataTypeOID: 90210, DataTypeSize: 4, TypeModifier: -1},
			want: database.ColumnDescriptor{Ordinal: 1, Name: "mood", Type: database.TypeVarChar},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := describeField(1, tt.fd, m)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := describeField(3, pgconn.FieldDescription{Name: "span", DataTypeOID: pgtype.IntervalOID}, m)
	assert.True(t, errs.IsUnsupportedConversion(err))
}

func TestDecodeValue(t *testing.T) {
	id := uuid.MustParse("3f2504e0-4f89-11d3-9a0c-0305e82c3301")
	ts := time.Date(2024, 2, 29, 13, 45, 0, 0, time.UTC)

	desc := func(tag database.TypeTag) database.ColumnDescriptor {
		return database.ColumnDescriptor{Ordinal: 1, Name: "c", Type: tag}
	}

	tests := []struct {
		name string
		tag  database.TypeTag
		src  any
		want any
	}{
		{"int2", database.TypeInt16, int16(-7), int64(-7)},
		{"int4", database.TypeInt32, int32(42), int64(42)},
		{"oid", database.TypeUint32, uint32(1259), uint64(1259)},
		{"float4", database.TypeFloat32, float32(0.5), 0.5},
		{"uuid", database.TypeGUID, [16]byte(id), id},
		{"numeric", database.TypeDecimal, pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true}, "123.45"},
		{"time", database.TypeTime, pgtype.Time{Microseconds: int64((13*time.Hour + 5*time.Minute + 1500*time.Millisecond) / time.Microsecond), Valid: true}, database.Clock{Hour: 13, Minute: 5, Second: 1, Nanosecond: 500000000}},
		{"timestamp", database.TypeTimestamp, ts, ts},
		{"date", database.TypeDate, ts, database.Date{Year: 2024, Month: 2, Day: 29}},
		{"text", database.TypeLongChar, "hello", "hello"},
		{"bytea", database.TypeLongBinary, []byte{0xde, 0xad}, []byte{0xde, 0xad}},
		{"null", database.TypeInt32, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := decodeValue(desc(tt.tag), tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.tag, v.Tag())
			got := v.Interface()
			if d, ok := got.(interface{ String() string }); ok && tt.tag == database.TypeDecimal {
				got = d.String()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNumericDecimalRejects(t *testing.T) {
	_, err := numericDecimal(pgtype.Numeric{NaN: true, Valid: true})
	assert.True(t, errs.IsUnsupportedConversion(err))

	_, err = numericDecimal(pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true})
	assert.True(t, errs.IsUnsupportedConversion(err))

	_, err = decodeValue(database.ColumnDescriptor{Name: "n", Type: database.TypeDecimal},
		pgtype.Numeric{NaN: true, Valid: true})
	assert.True(t, errs.IsUnsupportedConversion(err))

	d, err := numericDecimal(pgtype.Numeric{Valid: true})
	require.NoError(t, err)
	assert.True(t, d.IsZero())
}

func TestJSONText(t *testing.T) {
	binary := pgconn.FieldDescription{DataTypeOID: pgtype.JSONBOID, Format: pgtype.BinaryFormatCode}
	assert.Equal(t, `{"a":1}`, jsonText(binary, append([]byte{1}, `{"a":1}`...)))

	text := pgconn.FieldDescription{DataTypeOID: pgtype.JSONOID, Format: pgtype.TextFormatCode}
	assert.Equal(t, `{"a": 1}`, jsonText(text, []byte(`{"a": 1}`)))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		want  errs.ErrKind
		state string
	}{
		{"undefined table", &pgconn.PgError{Code: "42P01", Message: `relation "nope" does not exist`}, errs.ErrKindNotFound, "42P01"},
		{"undefined column", &pgconn.PgError{Code: "42703", Message: "column does not exist"}, errs.ErrKindColumnNotFound, "42703"},
		{"unique violation", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, errs.ErrKindInvalidInput, "23505"},
		{"read only", &pgconn.PgError{Code: "25006", Message: "read-only transaction"}, errs.ErrKindReadOnlyViolation, "25006"},
		{"bad password", &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}, errs.ErrKindAuthenticationFailed, "28P01"},
		{"cancelled", &pgconn.PgError{Code: "57014", Message: "canceling statement"}, errs.ErrKindTimeout, "57014"},
		{"syntax", &pgconn.PgError{Code: "42601", Message: "syntax error"}, errs.ErrKindQueryFailed, "42601"},
		{"unknown state", &pgconn.PgError{Code: "ZZ999", Message: "?"}, errs.ErrKindQueryFailed, "ZZ999"},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), errs.ErrKindTimeout, ""},
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound, ""},
		{"tx closed", pgx.ErrTxClosed, errs.ErrKindInvalidInput, ""},
		{"other", errors.New("boom"), errs.ErrKindQueryFailed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mapError(tt.err, "query failed")
			require.NotNil(t, e)
			assert.Equal(t, tt.want, e.Kind)
			assert.Equal(t, tt.state, e.SQLState)
			assert.ErrorIs(t, e, tt.err)
		})
	}
	assert.Nil(t, mapError(nil, "unused"))
}

func TestMapErrorDetail(t *testing.T) {
	e := mapError(&pgconn.PgError{Code: "23505", Message: "duplicate key", Detail: "Key (id)=(1) already exists."}, "insert failed")
	require.Len(t, e.Records, 2)
	assert.Equal(t, "duplicate key", e.Records[0].Message)
	assert.Equal(t, "Key (id)=(1) already exists.", e.Secondary()[0].Message)
}

func TestBuildPoolConfig(t *testing.T) {
	cfg := database.DefaultConfig(database.BackendPostgres, "postgres://report:secret@db:5432/shop")
	cfg.MaxConns, cfg.MinConns = 8, 1

	opts := database.DefaultOptions()
	pc, err := buildPoolConfig(cfg, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(8), pc.MaxConns)
	assert.Equal(t, int32(1), pc.MinConns)
	assert.Equal(t, cfg.ConnectTimeout, pc.ConnConfig.ConnectTimeout)
	assert.Equal(t, "shop", pc.ConnConfig.Database)
	assert.NotContains(t, pc.ConnConfig.RuntimeParams, "default_transaction_read_only")

	opts.ReadOnly = true
	opts.LoginTimeout = 2 * time.Second
	pc, err = buildPoolConfig(cfg, opts)
	require.NoError(t, err)
	assert.Equal(t, "on", pc.ConnConfig.RuntimeParams["default_transaction_read_only"])
	assert.Equal(t, 2*time.Second, pc.ConnConfig.ConnectTimeout)

	cfg.DSN = "postgres://%zz"
	_, err = buildPoolConfig(cfg, database.DefaultOptions())
	assert.True(t, errs.IsInvalidInput(err))
}

func TestOpenRegistered(t *testing.T) {
	assert.Contains(t, database.Backends(), database.BackendPostgres)
}
