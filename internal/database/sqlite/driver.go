package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/database/sqlcursor"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/mattn/go-sqlite3"
)

// Driver maps SQLite declared types and errors for sqlcursor.
type Driver struct{}

func (Driver) Backend() database.Backend { return database.BackendSQLite }

// Describe classifies a column by its declared type. Result columns
// without one (expressions, aggregates) are described as text.
func (Driver) Describe(ordinal int, ct *sql.ColumnType) (database.ColumnDescriptor, error) {
	desc := database.ColumnDescriptor{
		Ordinal:  ordinal,
		Name:     ct.Name(),
		Nullable: database.NullableUnknown,
	}
	if nullable, ok := ct.Nullable(); ok && !nullable {
		desc.Nullable = database.NotNullable
	}

	tag, size, scale := declType(ct.DatabaseTypeName())
	desc.Type = tag
	desc.Size = int64(size)
	if tag == database.TypeDecimal {
		desc.Precision, desc.Scale = size, scale
	}
	return desc, nil
}

// declType applies SQLite's affinity rules, refined by the common type
// names applications declare.
func declType(decl string) (tag database.TypeTag, size, scale int) {
	name, args := splitDecl(strings.ToUpper(strings.TrimSpace(decl)))
	if len(args) > 0 {
		size = args[0]
	}
	if len(args) > 1 {
		scale = args[1]
	}

	switch name {
	case "":
		return database.TypeVarChar, 0, 0
	case "BOOLEAN", "BOOL":
		return database.TypeBool, 0, 0
	case "DATE":
		return database.TypeDate, 0, 0
	case "TIME":
		return database.TypeTime, 0, 0
	case "DATETIME", "TIMESTAMP":
		return database.TypeTimestamp, 0, 0
	case "UUID", "GUID", "UNIQUEIDENTIFIER":
		return database.TypeGUID, 0, 0
	case "CHAR", "CHARACTER", "NCHAR":
		return database.TypeChar, size, 0
	case "VARCHAR", "NVARCHAR", "VARYING CHARACTER", "NATIVE CHARACTER":
		if size > 0 {
			return database.TypeVarChar, size, 0
		}
		return database.TypeLongChar, 0, 0
	case "BINARY":
		return database.TypeBinary, size, 0
	case "VARBINARY":
		return database.TypeVarBinary, size, 0
	case "TINYINT":
		return database.TypeInt8, 0, 0
	case "SMALLINT":
		return database.TypeInt16, 0, 0
	case "INT", "MEDIUMINT":
		return database.TypeInt32, 0, 0
	}

	switch {
	case strings.Contains(name, "INT"):
		return database.TypeInt64, 0, 0
	case strings.Contains(name, "CHAR"), strings.Contains(name, "CLOB"), strings.Contains(name, "TEXT"):
		return database.TypeLongChar, 0, 0
	case strings.Contains(name, "BLOB"):
		return database.TypeLongBinary, 0, 0
	case strings.Contains(name, "REAL"), strings.Contains(name, "FLOA"), strings.Contains(name, "DOUB"):
		return database.TypeFloat64, 0, 0
	}
	return database.TypeDecimal, size, scale
}

// splitDecl splits "DECIMAL(10, 2)" into "DECIMAL" and [10 2].
func splitDecl(decl string) (string, []int) {
	open := strings.IndexByte(decl, '(')
	if open < 0 {
		return decl, nil
	}
	name := strings.TrimSpace(decl[:open])
	rest := strings.TrimSuffix(strings.TrimSpace(decl[open+1:]), ")")
	var args []int
	for _, part := range strings.Split(rest, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			break
		}
		args = append(args, n)
	}
	return name, args
}

// Decode converts a go-sqlite3 value. SQLite stores any value in any
// column, so text-described columns render whatever they hold as text.
func (Driver) Decode(desc database.ColumnDescriptor, src any) (database.Value, error) {
	if desc.Type == database.TypeDecimal {
		if f, ok := src.(float64); ok {
			return sqlcursor.Decode(desc, strconv.FormatFloat(f, 'f', -1, 64))
		}
	}
	if desc.Type.IsCharacter() {
		if f, ok := src.(float64); ok {
			return database.String(desc.Type, strconv.FormatFloat(f, 'g', -1, 64)), nil
		}
	}
	return sqlcursor.Decode(desc, src)
}

// MapError translates go-sqlite3 errors into *errs.Error.
func (Driver) MapError(err error, msg string) error {
	return mapError(err, msg)
}

func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return errs.Wrap(errs.ErrKindNotConnected, msg, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		e := errs.Wrap(classifyCode(sqliteErr), msg+": "+sqliteErr.Error(), err)
		e.NativeCode = int32(sqliteErr.ExtendedCode)
		e.Records = []errs.Record{{NativeCode: e.NativeCode, Message: sqliteErr.Error()}}
		return e
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// classifyCode maps SQLite result codes to ErrKind.
func classifyCode(e sqlite3.Error) errs.ErrKind {
	switch e.Code {
	case sqlite3.ErrConstraint:
		return errs.ErrKindInvalidInput
	case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrInterrupt:
		return errs.ErrKindTimeout
	case sqlite3.ErrReadonly:
		return errs.ErrKindReadOnlyViolation
	case sqlite3.ErrPerm:
		return errs.ErrKindPermissionDenied
	case sqlite3.ErrAuth:
		return errs.ErrKindAuthenticationFailed
	case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrCorrupt:
		return errs.ErrKindConnectionFailed
	case sqlite3.ErrNomem, sqlite3.ErrFull, sqlite3.ErrTooBig:
		return errs.ErrKindResourceExhausted
	case sqlite3.ErrMismatch:
		return errs.ErrKindUnsupportedConversion
	case sqlite3.ErrRange:
		return errs.ErrKindInvalidInput
	}
	text := e.Error()
	switch {
	case strings.Contains(text, "no such table"):
		return errs.ErrKindNotFound
	case strings.Contains(text, "no such column"):
		return errs.ErrKindColumnNotFound
	}
	return errs.ErrKindQueryFailed
}

var _ sqlcursor.Driver = Driver{}
