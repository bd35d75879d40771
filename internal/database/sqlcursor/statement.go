package sqlcursor

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/logger"
)

// Statement is a prepared database/sql statement owned by a Session.
type Statement struct {
	sess     *Session
	text     string
	stmt     *sqlx.Stmt
	query    bool
	cur      *Cursor
	executed bool
	affected int64
	closed   bool
	log      *logger.Logger
}

func (st *Statement) Text() string { return st.text }

// Execute runs the statement. Row-returning text is run as a query and
// described through the session's Driver; anything else is run as a
// command with an empty cursor.
func (st *Statement) Execute(ctx context.Context, args ...any) (database.Cursor, error) {
	if st.closed || st.sess.closed {
		return nil, errs.New(errs.ErrKindInvalidCursorState, "statement is closed")
	}
	st.closeCursor()

	params, err := Args(args)
	if err != nil {
		return nil, err
	}
	stmt := st.stmt
	if st.sess.tx != nil {
		stmt = st.sess.tx.StmtxContext(ctx, st.stmt)
	}

	drv := st.sess.drv
	if !st.query {
		res, err := stmt.ExecContext(ctx, params...)
		if err != nil {
			return nil, drv.MapError(err, "execute failed")
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = -1
		}
		st.executed, st.affected = true, n
		st.cur = Empty(st.log)
		st.log.Debug("command executed")
		return st.cur, nil
	}

	rows, err := stmt.QueryxContext(ctx, params...)
	if err != nil {
		return nil, drv.MapError(err, "query failed")
	}
	src, err := newRowsSource(rows, drv)
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	st.executed, st.affected = true, -1
	st.cur = New(src, st.release, st.log)
	st.log.Debug("result set opened")
	return st.cur, nil
}

func (st *Statement) release(c *Cursor) {
	if st.cur == c {
		st.cur = nil
	}
}

// RowsAffected reports the row count of the last command. Queries report -1.
func (st *Statement) RowsAffected() (int64, error) {
	if !st.executed {
		return 0, errs.New(errs.ErrKindInvalidCursorState, "statement has not been executed")
	}
	return st.affected, nil
}

// Close closes the cursor and the prepared statement. Closing twice is a no-op.
func (st *Statement) Close() error {
	if st.closed {
		return nil
	}
	err := st.free()
	delete(st.sess.stmts, st)
	return err
}

func (st *Statement) free() error {
	st.closeCursor()
	st.closed = true
	if err := st.stmt.Close(); err != nil {
		return st.sess.drv.MapError(err, "failed to close statement")
	}
	return nil
}

func (st *Statement) closeCursor() {
	if st.cur != nil {
		_ = st.cur.Close()
		st.cur = nil
	}
}

// rowsSource reads a database/sql result through a Driver.
type rowsSource struct {
	rows    *sqlx.Rows
	drv     Driver
	descs   []database.ColumnDescriptor
	scratch []any
	ptrs    []any
}

func newRowsSource(rows *sqlx.Rows, drv Driver) (*rowsSource, error) {
	r := &rowsSource{rows: rows, drv: drv}
	if err := r.describe(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rowsSource) describe() error {
	types, err := r.rows.ColumnTypes()
	if err != nil {
		return r.drv.MapError(err, "failed to describe result")
	}
	r.descs = make([]database.ColumnDescriptor, len(types))
	for i, ct := range types {
		d, err := r.drv.Describe(i+1, ct)
		if err != nil {
			return err
		}
		r.descs[i] = d
	}
	r.scratch = make([]any, len(types))
	r.ptrs = make([]any, len(types))
	for i := range r.scratch {
		r.ptrs[i] = &r.scratch[i]
	}
	return nil
}

func (r *rowsSource) Columns() []database.ColumnDescriptor { return r.descs }

func (r *rowsSource) Next(context.Context) (bool, error) {
	if r.rows.Next() {
		return true, nil
	}
	if err := r.rows.Err(); err != nil {
		return false, r.drv.MapError(err, "fetch failed")
	}
	return false, nil
}

func (r *rowsSource) Scan(dst []database.Value) error {
	if err := r.rows.Scan(r.ptrs...); err != nil {
		return r.drv.MapError(err, "scan failed")
	}
	for i, src := range r.scratch {
		v, err := r.drv.Decode(r.descs[i], src)
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func (r *rowsSource) NextResultSet(context.Context) (bool, error) {
	if !r.rows.NextResultSet() {
		if err := r.rows.Err(); err != nil {
			return false, r.drv.MapError(err, "next result failed")
		}
		return false, nil
	}
	if err := r.describe(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *rowsSource) Close() error {
	if err := r.rows.Close(); err != nil {
		return r.drv.MapError(err, "failed to close rows")
	}
	return nil
}

// rowKeywords start statements that produce a result set.
var rowKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"VALUES":   true,
	"TABLE":    true,
	"SHOW":     true,
	"PRAGMA":   true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
	"DESC":     true,
}

// ReturnsRows reports whether text produces a result set: it starts with
// a row-returning keyword or carries a RETURNING clause.
func ReturnsRows(text string) bool {
	s := skipNoise(text)
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		end = len(s)
	}
	if rowKeywords[strings.ToUpper(s[:end])] {
		return true
	}
	return strings.Contains(strings.ToUpper(s), "RETURNING")
}

// skipNoise drops leading whitespace, parentheses and SQL comments.
func skipNoise(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n(")
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s, "*/")
			if i < 0 {
				return ""
			}
			s = s[i+2:]
		default:
			return s
		}
	}
}

var (
	_ database.Statement = (*Statement)(nil)
	_ Source             = (*rowsSource)(nil)
)
