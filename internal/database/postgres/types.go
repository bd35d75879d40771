package postgres

import (
	"context"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/database/sqlcursor"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/shopspring/decimal"
)

// oidTags maps the built-in type OIDs the engine understands.
var oidTags = map[uint32]database.TypeTag{
	pgtype.BoolOID:        database.TypeBool,
	pgtype.Int2OID:        database.TypeInt16,
	pgtype.Int4OID:        database.TypeInt32,
	pgtype.Int8OID:        database.TypeInt64,
	pgtype.OIDOID:         database.TypeUint32,
	pgtype.Float4OID:      database.TypeFloat32,
	pgtype.Float8OID:      database.TypeFloat64,
	pgtype.NumericOID:     database.TypeDecimal,
	pgtype.DateOID:        database.TypeDate,
	pgtype.TimeOID:        database.TypeTime,
	pgtype.TimestampOID:   database.TypeTimestamp,
	pgtype.TimestamptzOID: database.TypeTimestamp,
	pgtype.BPCharOID:      database.TypeChar,
	pgtype.VarcharOID:     database.TypeVarChar,
	pgtype.NameOID:        database.TypeVarChar,
	pgtype.TextOID:        database.TypeLongChar,
	pgtype.JSONOID:        database.TypeLongChar,
	pgtype.JSONBOID:       database.TypeLongChar,
	pgtype.ByteaOID:       database.TypeLongBinary,
	pgtype.UUIDOID:        database.TypeGUID,
}

// varHeader is the length of the varlena header folded into type modifiers.
const varHeader = 4

// describeField builds a descriptor from a result field. OIDs the type map
// does not know (enums, domains over unknown types) arrive as text and are
// described as VarChar; known types without a tag are rejected.
func describeField(ordinal int, fd pgconn.FieldDescription, m *pgtype.Map) (database.ColumnDescriptor, error) {
	desc := database.ColumnDescriptor{
		Ordinal:  ordinal,
		Name:     fd.Name,
		Nullable: database.NullableUnknown,
	}
	tag, ok := oidTags[fd.DataTypeOID]
	if !ok {
		if _, known := m.TypeForOID(fd.DataTypeOID); known {
			return desc, errs.Newf(errs.ErrKindUnsupportedConversion,
				"column %d (%s): unsupported postgres type oid %d", ordinal, fd.Name, fd.DataTypeOID)
		}
		tag = database.TypeVarChar
	}
	desc.Type = tag
	desc.Unsigned = tag.IsUnsigned()

	mod := fd.TypeModifier
	switch {
	case tag == database.TypeDecimal:
		if mod >= varHeader {
			mod -= varHeader
			desc.Precision = int(mod>>16) & 0xffff
			desc.Scale = int(mod) & 0xffff
			desc.Size = int64(desc.Precision)
		}
	case tag == database.TypeChar || tag == database.TypeVarChar:
		if mod >= varHeader {
			desc.Size = int64(mod - varHeader)
		}
	case fd.DataTypeSize > 0:
		desc.Size = int64(fd.DataTypeSize)
	}
	return desc, nil
}

// rowsSource reads a pgx result through the connection's type map.
type rowsSource struct {
	rows  pgx.Rows
	descs []database.ColumnDescriptor
}

func newRowsSource(rows pgx.Rows) (*rowsSource, error) {
	m := rows.Conn().TypeMap()
	fields := rows.FieldDescriptions()
	descs := make([]database.ColumnDescriptor, len(fields))
	for i, fd := range fields {
		d, err := describeField(i+1, fd, m)
		if err != nil {
			return nil, err
		}
		descs[i] = d
	}
	return &rowsSource{rows: rows, descs: descs}, nil
}

func (r *rowsSource) Columns() []database.ColumnDescriptor { return r.descs }

func (r *rowsSource) Next(context.Context) (bool, error) {
	if r.rows.Next() {
		return true, nil
	}
	if err := r.rows.Err(); err != nil {
		return false, mapError(err, "fetch failed")
	}
	return false, nil
}

func (r *rowsSource) Scan(dst []database.Value) error {
	values, err := r.rows.Values()
	if err != nil {
		return mapError(err, "scan failed")
	}
	raw := r.rows.RawValues()
	fields := r.rows.FieldDescriptions()
	for i, src := range values {
		if src != nil && isJSON(fields[i].DataTypeOID) {
			src = jsonText(fields[i], raw[i])
		}
		v, err := decodeValue(r.descs[i], src)
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

// NextResultSet reports false: the extended protocol yields one result
// per execution.
func (r *rowsSource) NextResultSet(context.Context) (bool, error) {
	return false, nil
}

func (r *rowsSource) Close() error {
	r.rows.Close()
	if err := r.rows.Err(); err != nil {
		return mapError(err, "failed to close rows")
	}
	return nil
}

func isJSON(oid uint32) bool {
	return oid == pgtype.JSONOID || oid == pgtype.JSONBOID
}

// jsonText returns the document as the server sent it. Binary jsonb is
// prefixed with a one-byte format version.
func jsonText(fd pgconn.FieldDescription, raw []byte) string {
	if fd.Format == pgtype.BinaryFormatCode && fd.DataTypeOID == pgtype.JSONBOID && len(raw) > 0 {
		raw = raw[1:]
	}
	return string(raw)
}

// decodeValue converts a value produced by pgx's type map into a Value of
// desc.Type, unwrapping the pgtype forms sqlcursor does not know.
func decodeValue(desc database.ColumnDescriptor, src any) (database.Value, error) {
	switch v := src.(type) {
	case int16:
		src = int64(v)
	case int32:
		src = int64(v)
	case uint32:
		src = uint64(v)
	case [16]byte:
		src = v[:]
	case pgtype.Numeric:
		d, err := numericDecimal(v)
		if err != nil {
			return database.Value{}, errs.Wrap(errs.ErrKindUnsupportedConversion, "column "+desc.Name, err)
		}
		if desc.Type == database.TypeDecimal {
			return database.Decimal(d), nil
		}
		src = d.String()
	case pgtype.Time:
		if !v.Valid {
			return database.Null(desc.Type), nil
		}
		src = time.Duration(v.Microseconds) * time.Microsecond
	}
	return sqlcursor.Decode(desc, src)
}

// numericDecimal converts a finite numeric. NaN and infinities have no
// decimal form.
func numericDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	switch {
	case !n.Valid:
		return decimal.Decimal{}, errs.New(errs.ErrKindNullValue, "numeric is NULL")
	case n.NaN:
		return decimal.Decimal{}, errs.New(errs.ErrKindUnsupportedConversion, "numeric NaN has no decimal value")
	case n.InfinityModifier != pgtype.Finite:
		return decimal.Decimal{}, errs.New(errs.ErrKindUnsupportedConversion, "numeric infinity has no decimal value")
	}
	i := n.Int
	if i == nil {
		i = new(big.Int)
	}
	return decimal.NewFromBigInt(i, n.Exp), nil
}
