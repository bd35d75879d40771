package odbc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/logger"
	"github.com/koustreak/unisql/internal/odbc/api"
)

// Connection is one session opened through an Environment. Every operation
// on the connection, its statements and their cursors holds mu, so misuse
// from several goroutines cannot corrupt native state.
type Connection struct {
	mu     sync.Mutex
	env    *Environment
	h      handle
	opts   database.Options
	codec  *codec
	stmts  map[*Statement]struct{}
	inTx   bool
	closed bool
	log    *logger.Logger

	// running is the statement blocked in a native call, if any.
	running atomic.Pointer[Statement]
}

// Options returns the session options the connection was opened with.
func (c *Connection) Options() database.Options { return c.opts }

// Diagnostics returns the records collected on the connection handle.
func (c *Connection) Diagnostics() []errs.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.h.Diagnostics()
}

// Ping asks the driver whether the session is still alive.
func (c *Connection) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errNotConnected()
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	v, ret := c.h.api.GetConnectAttr(c.h.h, api.AttrConnectionDead)
	if err := c.h.expect(api.FnGetConnectAttr, ret); err != nil {
		return err
	}
	if v == api.ConnectionDead {
		return errs.New(errs.ErrKindConnectionFailed, "connection is dead")
	}
	return nil
}

// NewStatement allocates an unprepared statement.
func (c *Connection) NewStatement(ctx context.Context) (*Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errNotConnected()
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	h, err := c.allocStmt()
	if err != nil {
		return nil, err
	}
	s := &Statement{
		conn:  c,
		h:     handle{api: c.h.api, typ: api.HandleStmt, h: h, log: c.log.Component("statement")},
		state: database.StateUnprepared,
	}
	c.stmts[s] = struct{}{}
	return s, nil
}

// PrepareStatement allocates a statement and prepares text on it.
func (c *Connection) PrepareStatement(ctx context.Context, text string) (*Statement, error) {
	s, err := c.NewStatement(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Prepare(ctx, text); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Prepare implements database.Connectable.
func (c *Connection) Prepare(ctx context.Context, text string) (database.Statement, error) {
	s, err := c.PrepareStatement(ctx, text)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// allocStmt allocates a statement handle and applies per-statement session
// options. Called with mu held.
func (c *Connection) allocStmt() (api.Handle, error) {
	h, ret := c.h.api.AllocHandle(api.HandleStmt, c.h.h)
	if err := c.h.expect(api.FnAllocHandle, ret); err != nil {
		return 0, err
	}
	if c.opts.Bookmarks {
		sh := handle{api: c.h.api, typ: api.HandleStmt, h: h, log: c.log}
		if err := sh.expect(api.FnSetStmtAttr, c.h.api.SetStmtAttr(h, api.AttrUseBookmarks, api.UseBookmarksOn)); err != nil {
			c.h.api.FreeHandle(api.HandleStmt, h)
			return 0, err
		}
	}
	return h, nil
}

// --- transactions ---

// Begin turns autocommit off until Commit or Rollback. On a session opened
// with autocommit off it only marks the start of the unit of work; Commit and
// Rollback work there without it.
func (c *Connection) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errNotConnected()
	}
	if c.inTx {
		return errs.New(errs.ErrKindInvalidInput, "transaction already open")
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if c.opts.Autocommit {
		ret := c.h.api.SetConnectAttr(c.h.h, api.AttrAutocommit, api.AutocommitOff)
		if err := c.h.expect(api.FnSetConnectAttr, ret); err != nil {
			return err
		}
	}
	c.inTx = true
	c.log.Debug("transaction started")
	return nil
}

func (c *Connection) Commit(ctx context.Context) error {
	return c.endTran(ctx, api.Commit)
}

func (c *Connection) Rollback(ctx context.Context) error {
	return c.endTran(ctx, api.Rollback)
}

func (c *Connection) endTran(ctx context.Context, completion int16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errNotConnected()
	}
	if !c.inTransaction() {
		return errs.New(errs.ErrKindInvalidInput, "no transaction open")
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return c.finishTran(completion)
}

// inTransaction reports whether the driver holds an open transaction. With
// autocommit off for the whole session one is always open.
func (c *Connection) inTransaction() bool {
	return c.inTx || !c.opts.Autocommit
}

// finishTran ends the open transaction and restores the session's
// autocommit mode. Called with mu held.
func (c *Connection) finishTran(completion int16) error {
	ret := c.h.api.EndTran(api.HandleDbc, c.h.h, completion)
	if err := c.h.expect(api.FnEndTran, ret); err != nil {
		return err
	}
	c.inTx = false
	if c.opts.Autocommit {
		ret := c.h.api.SetConnectAttr(c.h.h, api.AttrAutocommit, api.AutocommitOn)
		if err := c.h.expect(api.FnSetConnectAttr, ret); err != nil {
			return err
		}
	}
	if completion == api.Commit {
		c.log.Debug("transaction committed")
	} else {
		c.log.Debug("transaction rolled back")
	}
	return nil
}

// --- cancellation and teardown ---

// Cancel cancels the statement currently blocked in a native call. When no
// call is in flight, every open cursor is cancelled instead. Cancelled
// cursors are Bad.
func (c *Connection) Cancel() error {
	if s := c.running.Load(); s != nil {
		return s.Cancel()
	}
	if !c.h.api.Has(api.FnCancel) {
		return errs.New(errs.ErrKindCapabilityMissing, "driver does not export "+api.FnCancel)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for s := range c.stmts {
		if isOpen(s.state) {
			s.h.api.Cancel(s.h.h)
			s.markBad(errs.New(errs.ErrKindTimeout, "statement cancelled"))
		}
	}
	return nil
}

// Close releases every statement, rolls back an open transaction and ends
// the session. Closing twice is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	for s := range c.stmts {
		keep(s.free())
	}
	if c.inTransaction() {
		keep(c.finishTran(api.Rollback))
	}
	keep(c.h.check(api.FnDisconnect, c.h.api.Disconnect(c.h.h)))
	keep(c.h.check(api.FnFreeHandle, c.h.api.FreeHandle(api.HandleDbc, c.h.h)))
	c.closed = true
	c.env.release(c)
	c.log.Info("connection closed")
	return first
}

var _ database.Connectable = (*Connection)(nil)
