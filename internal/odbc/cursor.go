package odbc

import (
	"context"
	"strings"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/odbc/api"
)

// Cursor is the open result of one execution. It owns the binding plan and
// the accessor arena of the current result set; both are dropped when the
// set closes or the statement moves to the next result.
type Cursor struct {
	stmt   *Statement
	epoch  uint64
	plan   []*binding
	descs  []database.ColumnDescriptor
	cols   map[int]*Column
	gen    uint64 // bumps on every fetched row
	row    int64
	closed bool
}

// load installs a result set's plan and clears the accessor arena.
func (c *Cursor) load(plan []*binding) {
	c.plan = plan
	c.cols = map[int]*Column{}
	c.descs = c.descs[:0]
	for _, b := range plan {
		if b != nil {
			c.descs = append(c.descs, b.desc)
		}
	}
	c.row = 0
}

// Columns describes the current result set. The bookmark column is listed
// first when bookmarks are enabled.
func (c *Cursor) Columns() []database.ColumnDescriptor {
	c.stmt.conn.mu.Lock()
	defer c.stmt.conn.mu.Unlock()
	out := make([]database.ColumnDescriptor, len(c.descs))
	copy(out, c.descs)
	return out
}

// Row returns the 1-based number of the current row, 0 before the first fetch.
func (c *Cursor) Row() int64 {
	c.stmt.conn.mu.Lock()
	defer c.stmt.conn.mu.Unlock()
	return c.row
}

// State reports the statement state as seen through this cursor. A cursor
// that was closed or superseded by a newer execution reports StateClosed.
func (c *Cursor) State() database.CursorState {
	s := c.stmt
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if c.closed || s.cur != c {
		return database.StateClosed
	}
	s.observeCancel()
	return s.state
}

// Next fetches the next row. At the end of the result set it returns false
// and moves the statement to StateEndOfData; later calls keep returning false.
func (c *Cursor) Next(ctx context.Context) (bool, error) {
	s := c.stmt
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	if err := c.live(); err != nil {
		return false, err
	}
	s.observeCancel()
	switch s.state {
	case database.StateOpen, database.StatePositioned:
	case database.StateEndOfData:
		return false, nil
	default:
		return false, errState("fetch", s.state)
	}
	if err := ctxErr(ctx); err != nil {
		return false, err
	}

	ret, cancelled := s.call(ctx, func() api.Return { return s.h.api.Fetch(s.h.h) })
	switch {
	case cancelled:
		return false, s.markBad(errs.Wrap(errs.ErrKindTimeout, "fetch cancelled", ctx.Err()))
	case ret.Succeeded():
		if ret == api.SuccessWithInfo {
			// Truncation here is expected for deferred placeholders.
			for _, r := range s.h.collect() {
				if r.SQLState != errs.StateStringTruncated {
					s.h.log.Diagnostic(r.SQLState, r.NativeCode, r.Message)
				}
			}
		}
		c.advance()
		if s.conn.opts.LOBPrefetch {
			if err := c.prefetch(); err != nil {
				return false, err
			}
		}
		return true, nil
	case ret == api.NoData:
		s.state = database.StateEndOfData
		return false, nil
	default:
		return false, s.markBad(s.h.fatal(api.FnFetch, ret))
	}
}

// advance is refresh: new row generation, per-row deferred state reset and
// every live accessor told to drop what it read from the previous row.
func (c *Cursor) advance() {
	c.gen++
	c.row++
	c.stmt.state = database.StatePositioned
	for _, b := range c.plan {
		if b != nil {
			b.reset()
		}
	}
	for _, col := range c.cols {
		col.hasCache = false
	}
}

// prefetch pulls every non-null deferred column of the new row into memory.
// Called with the connection lock held.
func (c *Cursor) prefetch() error {
	for _, b := range c.plan {
		if b == nil || b.strat != deferred || b.buf.IsNull() {
			continue
		}
		r := newChunkReader(c, b, c.stmt.conn.opts.ChunkSize)
		r.locked = true
		raw, err := readAll(r)
		if err != nil {
			return err
		}
		b.lob, b.lobReady, b.consumed = raw, true, true
	}
	return nil
}

// Column returns the accessor for ordinal. Ordinal 0 is the bookmark column
// and exists only when bookmarks are enabled.
func (c *Cursor) Column(ordinal int) (database.Column, error) {
	c.stmt.conn.mu.Lock()
	defer c.stmt.conn.mu.Unlock()
	if err := c.checkPositioned(c.epoch); err != nil {
		return nil, err
	}
	return c.column(ordinal)
}

// ColumnByName returns the accessor of the first column named name,
// matching exactly first and case-insensitively second.
func (c *Cursor) ColumnByName(name string) (database.Column, error) {
	c.stmt.conn.mu.Lock()
	defer c.stmt.conn.mu.Unlock()
	if err := c.checkPositioned(c.epoch); err != nil {
		return nil, err
	}
	for _, d := range c.descs {
		if d.Name == name {
			return c.column(d.Ordinal)
		}
	}
	for _, d := range c.descs {
		if strings.EqualFold(d.Name, name) {
			return c.column(d.Ordinal)
		}
	}
	return nil, errs.Newf(errs.ErrKindColumnNotFound, "no column named %q", name)
}

func (c *Cursor) column(ordinal int) (*Column, error) {
	if ordinal < 0 || ordinal >= len(c.plan) || c.plan[ordinal] == nil {
		return nil, errs.Newf(errs.ErrKindColumnNotFound, "no column at ordinal %d", ordinal)
	}
	if col, ok := c.cols[ordinal]; ok {
		return col, nil
	}
	col := &Column{cur: c, b: c.plan[ordinal], epoch: c.epoch}
	c.cols[ordinal] = col
	return col, nil
}

// NextResult moves to the next result set produced by the command.
func (c *Cursor) NextResult(ctx context.Context) (bool, error) {
	s := c.stmt
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	if err := c.live(); err != nil {
		return false, err
	}
	s.observeCancel()
	if !isOpen(s.state) {
		return false, errState("move to the next result", s.state)
	}
	if !s.h.api.Has(api.FnMoreResults) {
		return false, errs.New(errs.ErrKindCapabilityMissing, "driver does not export "+api.FnMoreResults)
	}
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	if err := s.h.check(api.FnFreeStmt, s.h.api.FreeStmt(s.h.h, api.Unbind)); err != nil {
		return false, s.markBad(err)
	}

	s.epoch++
	c.epoch = s.epoch
	c.load(nil)

	ret, cancelled := s.call(ctx, func() api.Return { return s.h.api.MoreResults(s.h.h) })
	switch {
	case cancelled:
		return false, s.markBad(errs.Wrap(errs.ErrKindTimeout, "next result cancelled", ctx.Err()))
	case ret == api.NoData:
		s.state = database.StateEndOfData
		return false, nil
	case ret.Succeeded():
		if err := s.h.check(api.FnMoreResults, ret); err != nil {
			return false, s.markBad(err)
		}
		if err := s.openResult(c); err != nil {
			return false, s.markBad(err)
		}
		return true, nil
	default:
		return false, s.markBad(s.h.fatal(api.FnMoreResults, ret))
	}
}

// Close releases the result set and returns the statement to StatePrepared.
// Closing twice, or closing a cursor superseded by a newer execution, is a
// no-op. A Bad cursor cannot be closed; close its statement instead.
func (c *Cursor) Close() error {
	s := c.stmt
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if c.closed || s.cur != c {
		return nil
	}
	s.observeCancel()
	if s.state == database.StateBad {
		return errs.New(errs.ErrKindInvalidCursorState, "cannot close a cursor in the bad state; close the statement")
	}
	return s.closeCursor()
}

// live rejects use of a cursor that was closed or superseded.
func (c *Cursor) live() error {
	if c.closed || c.stmt.cur != c {
		return errs.New(errs.ErrKindInvalidCursorState, "cursor is closed")
	}
	return nil
}

// checkPositioned verifies the cursor sits on a fetched row of result set
// epoch. Called with the connection lock held.
func (c *Cursor) checkPositioned(epoch uint64) error {
	if err := c.live(); err != nil {
		return err
	}
	s := c.stmt
	s.observeCancel()
	if epoch != c.epoch {
		return errs.New(errs.ErrKindInvalidCursorState, "result set has been replaced")
	}
	if s.state != database.StatePositioned {
		return errState("read a column", s.state)
	}
	return nil
}

// checkRow is checkPositioned plus a check that the row has not advanced.
func (c *Cursor) checkRow(gen uint64) error {
	if err := c.checkPositioned(c.epoch); err != nil {
		return err
	}
	if gen != c.gen {
		return errs.New(errs.ErrKindInvalidCursorState, "stream belongs to a previous row")
	}
	return nil
}

var _ database.Cursor = (*Cursor)(nil)
