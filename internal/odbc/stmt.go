package odbc

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/odbc/api"
)

// Statement is one prepared command on a Connection. It carries the state
// machine shared with its Cursor:
//
//	Unprepared → Prepared → Open → Positioned ⇄ EndOfData → Closed
//
// with Bad reachable from any state on an unrecoverable native failure.
type Statement struct {
	conn  *Connection
	h     handle
	text  string
	state database.CursorState
	cur   *Cursor
	epoch uint64

	// Parameter bindings for the current execution.
	params  []*api.Param
	streams map[uintptr]io.Reader

	rowCount int64
	executed bool
	freed    bool

	// cancelled is set by Cancel, which runs without the connection lock.
	cancelled atomic.Bool
}

// Text returns the prepared command text.
func (s *Statement) Text() string {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.text
}

// State returns the statement's position in the state machine.
func (s *Statement) State() database.CursorState {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	s.observeCancel()
	return s.state
}

// Diagnostics returns the records collected on the statement handle.
func (s *Statement) Diagnostics() []errs.Record {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.h.Diagnostics()
}

// Prepare compiles text. It is valid from StateUnprepared and StateClosed;
// on failure the state is unchanged and Prepare may be retried.
func (s *Statement) Prepare(ctx context.Context, text string) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	if s.conn.closed {
		return errNotConnected()
	}
	s.observeCancel()
	if s.state != database.StateUnprepared && s.state != database.StateClosed {
		return errState("prepare", s.state)
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}

	reopened := false
	if s.freed {
		h, err := s.conn.allocStmt()
		if err != nil {
			return err
		}
		s.h.h, s.h.diags, s.freed, reopened = h, nil, false, true
	}

	if err := s.h.check(api.FnPrepare, s.h.api.Prepare(s.h.h, text)); err != nil {
		if reopened {
			s.h.api.FreeHandle(api.HandleStmt, s.h.h)
			s.freed = true
		}
		return err
	}

	s.text = text
	s.state = database.StatePrepared
	s.executed = false
	s.conn.stmts[s] = struct{}{}
	s.h.log.Debug("statement prepared")
	return nil
}

// Execute binds args and runs the command. It is valid from StatePrepared
// and from any open state; re-executing closes the previous cursor and
// resets every binding. Data-at-execution parameters are supplied from
// their readers while the driver asks for them.
func (s *Statement) Execute(ctx context.Context, args ...any) (database.Cursor, error) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	if s.conn.closed {
		return nil, errNotConnected()
	}
	s.observeCancel()
	if s.state != database.StatePrepared && !isOpen(s.state) {
		return nil, errState("execute", s.state)
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	if s.cur != nil {
		if err := s.closeCursor(); err != nil {
			return nil, s.markBad(err)
		}
	} else {
		s.resetParams()
	}

	if err := s.bindParams(args); err != nil {
		s.resetParams()
		return nil, s.fail(err)
	}

	var loopErr error
	ret, cancelled := s.call(ctx, func() api.Return {
		r, err := s.execute(ctx)
		loopErr = err
		return r
	})
	if cancelled || s.cancelled.Swap(false) {
		s.resetParams()
		return nil, s.markBad(errs.Wrap(errs.ErrKindTimeout, "execution cancelled", ctx.Err()))
	}
	if loopErr != nil {
		s.abandonExecution()
		return nil, s.fail(loopErr)
	}

	switch ret {
	case api.Success, api.SuccessWithInfo, api.NoData:
		if err := s.h.check(api.FnExecute, ret); err != nil {
			return nil, s.markBad(err)
		}
	default:
		err := s.h.fatal(api.FnExecute, ret)
		s.resetParams()
		return nil, s.fail(err)
	}
	s.executed = true

	s.epoch++
	cur := &Cursor{stmt: s, epoch: s.epoch}
	s.cur = cur
	if err := s.openResult(cur); err != nil {
		_ = s.closeCursor()
		return nil, s.fail(err)
	}
	s.h.log.With().Int("columns", len(cur.descs)).Logger().Debug("statement executed")
	return cur, nil
}

// openResult runs the resolver over the current result set and binds it.
// A command without a result set goes straight to StateEndOfData.
func (s *Statement) openResult(c *Cursor) error {
	if n, ret := s.h.api.RowCount(s.h.h); ret.Succeeded() {
		s.rowCount = n
	} else {
		s.rowCount = -1
	}

	n, ret := s.h.api.NumResultCols(s.h.h)
	if err := s.h.check(api.FnNumResultCols, ret); err != nil {
		return err
	}
	c.epoch = s.epoch
	if n == 0 {
		c.load(nil)
		s.state = database.StateEndOfData
		return nil
	}

	plan, err := s.describe(int(n))
	if err != nil {
		return err
	}
	if err := s.bind(plan); err != nil {
		return err
	}
	c.load(plan)
	s.state = database.StateOpen
	return nil
}

// RowsAffected reports the row count of the last execution, or -1 when the
// driver could not tell.
func (s *Statement) RowsAffected() (int64, error) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if !s.executed {
		return 0, errs.New(errs.ErrKindInvalidCursorState, "statement has not been executed")
	}
	return s.rowCount, nil
}

// Cancel asks the driver to stop the statement's current operation. It may
// be called from another goroutine while an operation is in flight, but not
// concurrently with Prepare or Close. The statement is Bad afterwards.
func (s *Statement) Cancel() error {
	if !s.h.api.Has(api.FnCancel) {
		return errs.New(errs.ErrKindCapabilityMissing, "driver does not export "+api.FnCancel)
	}
	ret := s.h.api.Cancel(s.h.h)
	s.cancelled.Store(true)
	if !ret.Succeeded() {
		return errs.Newf(errs.ErrKindQueryFailed, "%s returned %s", api.FnCancel, ret)
	}
	return nil
}

// Close releases the cursor and the native handle. It always succeeds in
// leaving the statement Closed, even from StateBad; closing twice is a no-op.
func (s *Statement) Close() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.free()
}

func (s *Statement) free() error {
	if s.freed {
		return nil
	}
	var first error
	if s.cur != nil {
		first = s.closeCursor()
	}
	if err := s.h.check(api.FnFreeHandle, s.h.api.FreeHandle(api.HandleStmt, s.h.h)); err != nil && first == nil {
		first = err
	}
	s.freed = true
	s.state = database.StateClosed
	s.params, s.streams = nil, nil
	delete(s.conn.stmts, s)
	s.h.log.Debug("statement closed")
	return first
}

// closeCursor releases the native cursor, every column binding and every
// parameter binding. The statement returns to StatePrepared unless Bad.
func (s *Statement) closeCursor() error {
	var first error
	for _, opt := range []uint16{api.Close, api.Unbind, api.ResetParams} {
		if err := s.h.check(api.FnFreeStmt, s.h.api.FreeStmt(s.h.h, opt)); err != nil && first == nil {
			first = err
		}
	}
	if c := s.cur; c != nil {
		c.closed = true
		c.plan, c.cols = nil, nil
		s.cur = nil
	}
	s.params, s.streams = nil, nil
	if s.state != database.StateBad {
		s.state = database.StatePrepared
	}
	return first
}

func (s *Statement) resetParams() {
	if len(s.params) > 0 {
		_ = s.h.check(api.FnFreeStmt, s.h.api.FreeStmt(s.h.h, api.ResetParams))
	}
	s.params, s.streams = nil, nil
}

// abandonExecution leaves the need-data state after a failed data-at-execution
// loop.
func (s *Statement) abandonExecution() {
	if s.h.api.Has(api.FnCancel) {
		s.h.api.Cancel(s.h.h)
	}
	_ = s.h.check(api.FnFreeStmt, s.h.api.FreeStmt(s.h.h, api.Close))
	s.resetParams()
}

// call runs a blocking native call. When ctx is cancelled while the call is
// in flight, the advisory SQLCancel is issued and cancelled is true.
func (s *Statement) call(ctx context.Context, fn func() api.Return) (ret api.Return, cancelled bool) {
	s.conn.running.Store(s)
	defer s.conn.running.Store(nil)
	if ctx.Done() == nil || !s.h.api.Has(api.FnCancel) {
		return fn(), false
	}
	h := s.h.h
	stop := context.AfterFunc(ctx, func() { s.h.api.Cancel(h) })
	ret = fn()
	return ret, !stop()
}

// observeCancel applies a Cancel issued since the last operation.
func (s *Statement) observeCancel() bool {
	if !s.cancelled.Swap(false) {
		return false
	}
	if isOpen(s.state) {
		s.markBad(errs.New(errs.ErrKindTimeout, "statement cancelled"))
	}
	return true
}

// markBad moves the statement to StateBad and returns err.
func (s *Statement) markBad(err error) error {
	if err == nil {
		return nil
	}
	if s.state != database.StateBad {
		s.h.log.With().Err(err).Str("from", s.state.String()).Logger().Error("statement entered bad state")
	}
	s.state = database.StateBad
	return err
}

// fail returns err, moving the statement to StateBad first when err is an
// unclassified native failure.
func (s *Statement) fail(err error) error {
	if errs.Is(err, errs.ErrKindUnclassifiedNative) {
		return s.markBad(err)
	}
	return err
}

func isOpen(st database.CursorState) bool {
	return st == database.StateOpen || st == database.StatePositioned || st == database.StateEndOfData
}

func errState(op string, st database.CursorState) error {
	return errs.Newf(errs.ErrKindInvalidCursorState, "cannot %s in state %s", op, st)
}

func errNotConnected() error {
	return errs.New(errs.ErrKindNotConnected, "connection is closed")
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "context done before native call", err)
	}
	return nil
}

var _ database.Statement = (*Statement)(nil)
