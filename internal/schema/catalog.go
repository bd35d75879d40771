package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
)

// Catalog implements Reader over an open session. It is not safe for
// concurrent use; it shares the session's constraints.
type Catalog struct {
	conn database.Connectable
	d    dialect
}

// New returns a Catalog for a session of the given backend. ODBC sources
// expose their catalog through driver-specific functions the engine does
// not bind, so they report ErrKindCapabilityMissing.
func New(backend database.Backend, conn database.Connectable) (*Catalog, error) {
	var d dialect
	switch backend {
	case database.BackendPostgres:
		d = pgDialect
	case database.BackendMySQL:
		d = mysqlDialect
	case database.BackendSQLite:
		d = sqliteDialect
	default:
		return nil, errs.Newf(errs.ErrKindCapabilityMissing, "schema: no catalog queries for backend %q", backend)
	}
	return &Catalog{conn: conn, d: d}, nil
}

// ListTables returns all user-defined table names in the given schema
func (c *Catalog) ListTables(ctx context.Context, schema string) ([]string, error) {
	var tables []string
	err := c.query(ctx, c.d.listTables, c.args(schema), func(cur database.Cursor) error {
		var name string
		if err := scanRow(cur, &name); err != nil {
			return err
		}
		tables = append(tables, name)
		return nil
	})
	if err != nil {
		return nil, wrap(err, "list tables")
	}
	return tables, nil
}

// TableExists checks whether a specific table exists
func (c *Catalog) TableExists(ctx context.Context, schema, table string) (bool, error) {
	var exists bool
	err := c.query(ctx, c.d.tableExists, c.args(schema, table), func(cur database.Cursor) error {
		return scanRow(cur, &exists)
	})
	if err != nil {
		return false, wrap(err, "table exists check")
	}
	return exists, nil
}

// InspectTable returns column details for a single table
func (c *Catalog) InspectTable(ctx context.Context, schema, table string) (*TableInfo, error) {
	info := &TableInfo{Schema: schema, Name: table}
	err := c.query(ctx, c.d.columns, c.args(schema, table), func(cur database.Cursor) error {
		var col ColumnInfo
		if err := scanRow(cur,
			&col.Name,
			&col.DataType,
			&col.IsNullable,
			&col.DefaultValue,
			&col.MaxLength,
			&col.IsPrimaryKey,
			&col.IsUnique,
		); err != nil {
			return err
		}
		if col.MaxLength == nil {
			col.MaxLength = declLength(col.DataType)
		}
		info.Columns = append(info.Columns, col)
		return nil
	})
	if err != nil {
		return nil, wrap(err, fmt.Sprintf("inspect table %s", table))
	}
	if len(info.Columns) == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s not found or has no columns", table)
	}
	return info, nil
}

// InspectSchema returns all tables and foreign keys in the schema
func (c *Catalog) InspectSchema(ctx context.Context, schema string) (*SchemaInfo, error) {
	tables, err := c.ListTables(ctx, schema)
	if err != nil {
		return nil, err
	}

	info := &SchemaInfo{}
	for _, table := range tables {
		ti, err := c.InspectTable(ctx, schema, table)
		if err != nil {
			return nil, err
		}
		info.Tables = append(info.Tables, *ti)
	}

	fks, err := c.listForeignKeys(ctx, schema)
	if err != nil {
		return nil, err
	}
	info.ForeignKeys = fks

	return info, nil
}

func (c *Catalog) listForeignKeys(ctx context.Context, schema string) ([]ForeignKey, error) {
	var fks []ForeignKey
	err := c.query(ctx, c.d.foreignKeys, c.args(schema), func(cur database.Cursor) error {
		var fk ForeignKey
		if err := scanRow(cur, &fk.Name, &fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn); err != nil {
			return err
		}
		fks = append(fks, fk)
		return nil
	})
	if err != nil {
		return nil, wrap(err, "list foreign keys")
	}
	return fks, nil
}

// args drops the leading schema for schemaless backends.
func (c *Catalog) args(schema string, rest ...string) []any {
	out := make([]any, 0, len(rest)+1)
	if !c.d.schemaless {
		out = append(out, schema)
	}
	for _, s := range rest {
		out = append(out, s)
	}
	return out
}

// query prepares text, executes it and calls fn once per row.
func (c *Catalog) query(ctx context.Context, text string, args []any, fn func(database.Cursor) error) error {
	st, err := c.conn.Prepare(ctx, text)
	if err != nil {
		return err
	}
	defer st.Close()

	cur, err := st.Execute(ctx, args...)
	if err != nil {
		return err
	}
	defer cur.Close()

	for {
		ok, err := cur.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(cur); err != nil {
			return err
		}
	}
}

// scanRow reads the current row into dst by ordinal. Supported targets are
// *string, **string, *bool, *int64 and **int64; pointer-to-pointer targets
// are set to nil for NULL.
func scanRow(cur database.Cursor, dst ...any) error {
	for i, d := range dst {
		col, err := cur.Column(i + 1)
		if err != nil {
			return err
		}
		null, err := col.IsNull()
		if err != nil {
			return err
		}
		switch p := d.(type) {
		case **string:
			*p = nil
			if !null {
				s, err := col.AsString()
				if err != nil {
					return err
				}
				*p = &s
			}
		case **int64:
			*p = nil
			if !null {
				n, err := col.AsInt64()
				if err != nil {
					return err
				}
				*p = &n
			}
		case *string:
			if null {
				*p = ""
				continue
			}
			if *p, err = col.AsString(); err != nil {
				return err
			}
		case *bool:
			if null {
				*p = false
				continue
			}
			if *p, err = col.AsBool(); err != nil {
				return err
			}
		case *int64:
			if *p, err = col.AsInt64(); err != nil {
				return err
			}
		default:
			return errs.Newf(errs.ErrKindInvalidInput, "schema: unsupported scan target %T", d)
		}
	}
	return nil
}

// declLength extracts n from declared types such as VARCHAR(n).
func declLength(decl string) *int64 {
	upper := strings.ToUpper(decl)
	if !strings.Contains(upper, "CHAR") && !strings.Contains(upper, "BINARY") {
		return nil
	}
	open, end := strings.IndexByte(upper, '('), strings.IndexByte(upper, ')')
	if open < 0 || end < open {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(upper[open+1:end]), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// wrap keeps the kind of engine errors and adds context.
func wrap(err error, msg string) error {
	return errs.Wrap(errs.KindOf(err), msg, err)
}

var _ Reader = (*Catalog)(nil)
