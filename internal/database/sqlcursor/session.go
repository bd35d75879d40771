package sqlcursor

import (
	"context"
	"database/sql"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/logger"
)

// Driver supplies the backend-specific parts of a database/sql backend.
type Driver interface {
	Backend() database.Backend

	// Describe maps a driver column type to a descriptor. Types without a
	// tag fail with ErrKindUnsupportedConversion.
	Describe(ordinal int, ct *sql.ColumnType) (database.ColumnDescriptor, error)

	// Decode converts a scanned driver value into a Value of desc.Type.
	Decode(desc database.ColumnDescriptor, src any) (database.Value, error)

	// MapError classifies a driver error into *errs.Error.
	MapError(err error, msg string) error
}

// Connector hands out sessions on dedicated connections of a sqlx pool.
type Connector struct {
	db   *sqlx.DB
	drv  Driver
	opts database.Options
	log  *logger.Logger

	mu   sync.Mutex
	open int
}

// NewConnector wraps db. The connector owns db and closes it on Close.
func NewConnector(db *sqlx.DB, drv Driver, opts database.Options, log *logger.Logger) *Connector {
	if log == nil {
		log = logger.Nop()
	}
	return &Connector{db: db, drv: drv, opts: opts, log: log}
}

func (c *Connector) Backend() database.Backend { return c.drv.Backend() }

// DB exposes the pool for catalog queries.
func (c *Connector) DB() *sqlx.DB { return c.db }

// Connect reserves one pooled connection for a new session.
func (c *Connector) Connect(ctx context.Context) (database.Connectable, error) {
	return c.Session(ctx)
}

// Session is Connect returning the concrete session.
func (c *Connector) Session(ctx context.Context) (*Session, error) {
	conn, err := c.db.Connx(ctx)
	if err != nil {
		return nil, c.drv.MapError(err, "failed to open session")
	}
	s := &Session{
		conn:  conn,
		drv:   c.drv,
		opts:  c.opts,
		stmts: map[*Statement]struct{}{},
		log:   c.log,
	}
	if !c.opts.Autocommit {
		if err := s.begin(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	c.mu.Lock()
	c.open++
	c.mu.Unlock()
	s.release = func() {
		c.mu.Lock()
		c.open--
		c.mu.Unlock()
	}
	c.log.Debug("session opened")
	return s, nil
}

// Close closes the pool. It fails while sessions remain open.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open > 0 {
		return errs.Newf(errs.ErrKindInvalidCursorState, "%d sessions still open", c.open)
	}
	if err := c.db.Close(); err != nil {
		return c.drv.MapError(err, "failed to close pool")
	}
	return nil
}

// Session is one database/sql connection implementing database.Connectable.
// With autocommit off the session always has a transaction open; Commit
// and Rollback start the next one.
type Session struct {
	conn    *sqlx.Conn
	tx      *sqlx.Tx
	inTx    bool // explicit Begin
	drv     Driver
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
	if err := s.conn.PingContext(ctx); err != nil {
		return s.drv.MapError(err, "ping failed")
	}
	return nil
}

// Prepare compiles text on the session's connection.
func (s *Session) Prepare(ctx context.Context, text string) (database.Statement, error) {
	return s.PrepareStatement(ctx, text)
}

// PrepareStatement is Prepare returning the concrete statement.
func (s *Session) PrepareStatement(ctx context.Context, text string) (*Statement, error) {
	if s.closed {
		return nil, errNotConnected()
	}
	stmt, err := s.conn.PreparexContext(ctx, text)
	if err != nil {
		return nil, s.drv.MapError(err, "prepare failed")
	}
	st := &Statement{
		sess:     s,
		text:     text,
		stmt:     stmt,
		query:    ReturnsRows(text),
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
	tx, err := s.conn.BeginTxx(ctx, &sql.TxOptions{ReadOnly: s.opts.ReadOnly})
	if err != nil {
		return s.drv.MapError(err, "failed to begin transaction")
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
	if err := s.finish(commit); err != nil {
		return err
	}
	if !s.opts.Autocommit {
		return s.begin(ctx)
	}
	return nil
}

// finish ends the open transaction. Cursors read through it are closed
// first, as database/sql requires.
func (s *Session) finish(commit bool) error {
	for st := range s.stmts {
		st.closeCursor()
	}
	tx := s.tx
	s.tx, s.inTx = nil, false
	if tx == nil {
		return nil
	}
	if commit {
		if err := tx.Commit(); err != nil {
			return s.drv.MapError(err, "commit failed")
		}
		s.log.Debug("transaction committed")
		return nil
	}
	if err := tx.Rollback(); err != nil {
		return s.drv.MapError(err, "rollback failed")
	}
	s.log.Debug("transaction rolled back")
	return nil
}

// Close releases every statement, rolls back an open transaction and
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
	for st := range s.stmts {
		keep(st.free())
	}
	keep(s.finish(false))
	if err := s.conn.Close(); err != nil {
		keep(s.drv.MapError(err, "failed to release connection"))
	}
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

var (
	_ database.Connector   = (*Connector)(nil)
	_ database.Connectable = (*Session)(nil)
)
