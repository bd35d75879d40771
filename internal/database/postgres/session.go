package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/database/sqlcursor"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/logger"
)

// querier is satisfied by both *pgxpool.Conn and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Session is one acquired pgx connection implementing database.Connectable.
// A pgx connection streams one result at a time, so executing any
// statement closes the cursors of the others.
type Session struct {
	conn    *pgxpool.Conn
	tx      pgx.Tx
	inTx    bool // explicit Begin
	opts    database.Options
	stmts   map[*Statement]struct{}
	closed  bool
	release func()
	log     *logger.Logger
}

func (s *Session) Ping(ctx context.Context) error {
	if s.closed {
		return errNotConnected()
	}
	if err := s.conn.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Prepare creates a named server-side prepared statement.
func (s *Session) Prepare(ctx context.Context, text string) (database.Statement, error) {
	return s.PrepareStatement(ctx, text)
}

// PrepareStatement is Prepare returning the concrete statement.
func (s *Session) PrepareStatement(ctx context.Context, text string) (*Statement, error) {
	if s.closed {
		return nil, errNotConnected()
	}
	s.closeCursors()
	name := "unisql_" + uuid.NewString()
	sd, err := s.conn.Conn().Prepare(ctx, name, text)
	if err != nil {
		return nil, mapError(err, "prepare failed")
	}
	st := &Statement{
		sess:     s,
		name:     name,
		text:     text,
		sd:       sd,
		affected: -1,
		log:      s.log.With().Str("statement", text).Logger(),
	}
	s.stmts[st] = struct{}{}
	return st, nil
}

func (s *Session) Begin(ctx context.Context) error {
	if s.closed {
		return errNotConnected()
	}
	if s.inTx {
		return errs.New(errs.ErrKindInvalidInput, "transaction already open")
	}
	if s.tx == nil {
		if err := s.begin(ctx); err != nil {
			return err
		}
	}
	s.inTx = true
	s.log.Debug("transaction started")
	return nil
}

func (s *Session) Commit(ctx context.Context) error {
	return s.end(ctx, true)
}

func (s *Session) Rollback(ctx context.Context) error {
	return s.end(ctx, false)
}

func (s *Session) begin(ctx context.Context) error {
	txOpts := pgx.TxOptions{}
	if s.opts.ReadOnly {
		txOpts.AccessMode = pgx.ReadOnly
	}
	tx, err := s.conn.BeginTx(ctx, txOpts)
	if err != nil {
		return mapError(err, "failed to begin transaction")
	}
	s.tx = tx
	return nil
}

func (s *Session) end(ctx context.Context, commit bool) error {
	if s.closed {
		return errNotConnected()
	}
	if !s.inTx && s.opts.Autocommit {
		return errs.New(errs.ErrKindInvalidInput, "no transaction open")
	}
	if err := s.finish(ctx, commit); err != nil {
		return err
	}
	if !s.opts.Autocommit {
		return s.begin(ctx)
	}
	return nil
}

func (s *Session) finish(ctx context.Context, commit bool) error {
	s.closeCursors()
	tx := s.tx
	s.tx, s.inTx = nil, false
	if tx == nil {
		return nil
	}
	if commit {
		if err := tx.Commit(ctx); err != nil {
			return mapError(err, "commit failed")
		}
		s.log.Debug("transaction committed")
		return nil
	}
	if err := tx.Rollback(ctx); err != nil {
		return mapError(err, "rollback failed")
	}
	s.log.Debug("transaction rolled back")
	return nil
}

// querier returns the open transaction, or the connection itself.
func (s *Session) querier() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

func (s *Session) closeCursors() {
	for st := range s.stmts {
		st.closeCursor()
	}
}

// Close deallocates every statement, rolls back an open transaction and
// returns the connection to the pool. Closing twice is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	ctx := context.Background()
	keep(s.finish(ctx, false))
	for st := range s.stmts {
		keep(st.free(ctx))
	}
	s.conn.Release()
	s.closed = true
	if s.release != nil {
		s.release()
	}
	s.log.Debug("session closed")
	return first
}

func errNotConnected() error {
	return errs.New(errs.ErrKindNotConnected, "session is closed")
}

// Statement is a named prepared statement on a Session's connection.
type Statement struct {
	sess     *Session
	name     string
	text     string
	sd       *pgconn.StatementDescription
	cur      *sqlcursor.Cursor
	executed bool
	affected int64
	closed   bool
	log      *logger.Logger
}

func (st *Statement) Text() string { return st.text }

// Execute binds args and runs the statement. Statements whose description
// has no result fields run as commands and return an empty cursor.
func (st *Statement) Execute(ctx context.Context, args ...any) (database.Cursor, error) {
	if st.closed || st.sess.closed {
		return nil, errs.New(errs.ErrKindInvalidCursorState, "statement is closed")
	}
	if len(args) != len(st.sd.ParamOIDs) {
		return nil, errs.Newf(errs.ErrKindInvalidInput,
			"statement takes %d parameters, got %d", len(st.sd.ParamOIDs), len(args))
	}
	st.sess.closeCursors()

	params, err := sqlcursor.Args(args)
	if err != nil {
		return nil, err
	}

	q := st.sess.querier()
	if len(st.sd.Fields) == 0 {
		tag, err := q.Exec(ctx, st.name, params...)
		if err != nil {
			return nil, mapError(err, "execute failed")
		}
		st.executed, st.affected = true, tag.RowsAffected()
		st.cur = sqlcursor.Empty(st.log)
		st.log.Debug("command executed")
		return st.cur, nil
	}

	rows, err := q.Query(ctx, st.name, params...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	src, err := newRowsSource(rows)
	if err != nil {
		rows.Close()
		return nil, err
	}
	st.executed, st.affected = true, -1
	st.cur = sqlcursor.New(src, st.release, st.log)
	st.log.Debug("result set opened")
	return st.cur, nil
}

func (st *Statement) release(c *sqlcursor.Cursor) {
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

// Close closes the cursor and deallocates the statement. Closing twice is a no-op.
func (st *Statement) Close() error {
	if st.closed {
		return nil
	}
	err := st.free(context.Background())
	delete(st.sess.stmts, st)
	return err
}

func (st *Statement) free(ctx context.Context) error {
	st.closeCursor()
	st.closed = true
	if err := st.sess.conn.Conn().Deallocate(ctx, st.name); err != nil {
		return mapError(err, "failed to deallocate statement")
	}
	return nil
}

func (st *Statement) closeCursor() {
	if st.cur != nil {
		_ = st.cur.Close()
		st.cur = nil
	}
}

var (
	_ database.Connectable = (*Session)(nil)
	_ database.Statement   = (*Statement)(nil)
)
