package mysql

import (
	"database/sql"
	"strings"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/database/sqlcursor"
	"github.com/koustreak/unisql/internal/errs"
)

// Driver maps go-sql-driver/mysql column metadata and errors for sqlcursor.
type Driver struct{}

func (Driver) Backend() database.Backend { return database.BackendMySQL }

// Describe classifies a column by the server type name the driver reports.
func (Driver) Describe(ordinal int, ct *sql.ColumnType) (database.ColumnDescriptor, error) {
	desc := database.ColumnDescriptor{
		Ordinal:  ordinal,
		Name:     ct.Name(),
		Nullable: database.NullableUnknown,
	}
	if nullable, ok := ct.Nullable(); ok {
		desc.Nullable = database.NotNullable
		if nullable {
			desc.Nullable = database.Nullable
		}
	}

	tag, ok := typeTag(ct.DatabaseTypeName())
	if !ok {
		return desc, errs.Newf(errs.ErrKindUnsupportedConversion,
			"column %d (%s): unsupported mysql type %q", ordinal, desc.Name, ct.DatabaseTypeName())
	}
	desc.Type = tag
	desc.Unsigned = tag.IsUnsigned()

	switch {
	case tag == database.TypeDecimal:
		if p, s, ok := ct.DecimalSize(); ok {
			desc.Precision, desc.Scale = int(p), int(s)
			desc.Size = p
		}
	case tag.IsCharacter(), tag.IsBinary():
		if n, ok := ct.Length(); ok {
			desc.Size = n
		}
	}
	return desc, nil
}

// typeTag maps DatabaseTypeName values. Unsigned integer types carry an
// "UNSIGNED " prefix.
func typeTag(name string) (database.TypeTag, bool) {
	unsigned := false
	if rest, ok := strings.CutPrefix(name, "UNSIGNED "); ok {
		name, unsigned = rest, true
	}

	switch name {
	case "TINYINT":
		return pick(unsigned, database.TypeUint8, database.TypeInt8), true
	case "SMALLINT", "YEAR":
		return pick(unsigned, database.TypeUint16, database.TypeInt16), true
	case "MEDIUMINT", "INT":
		return pick(unsigned, database.TypeUint32, database.TypeInt32), true
	case "BIGINT":
		return pick(unsigned, database.TypeUint64, database.TypeInt64), true
	case "FLOAT":
		return database.TypeFloat32, true
	case "DOUBLE":
		return database.TypeFloat64, true
	case "DECIMAL":
		return database.TypeDecimal, true
	case "DATE":
		return database.TypeDate, true
	case "TIME":
		return database.TypeTime, true
	case "DATETIME", "TIMESTAMP":
		return database.TypeTimestamp, true
	case "CHAR":
		return database.TypeChar, true
	case "VARCHAR", "ENUM", "SET":
		return database.TypeVarChar, true
	case "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "JSON":
		return database.TypeLongChar, true
	case "BINARY", "BIT":
		return database.TypeBinary, true
	case "VARBINARY":
		return database.TypeVarBinary, true
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "GEOMETRY":
		return database.TypeLongBinary, true
	case "NULL":
		return database.TypeVarChar, true
	}
	return database.TypeInvalid, false
}

func pick(unsigned bool, u, s database.TypeTag) database.TypeTag {
	if unsigned {
		return u
	}
	return s
}

// Decode converts a go-sql-driver/mysql value. BIT columns are returned
// as their raw big-endian bytes.
func (Driver) Decode(desc database.ColumnDescriptor, src any) (database.Value, error) {
	return sqlcursor.Decode(desc, src)
}

var _ sqlcursor.Driver = Driver{}
