// Package sqlcursor adapts row-at-a-time result streams into
// database.Cursor. Backends that decode whole rows into database.Value
// (database/sql drivers, pgx) share the state machine and accessors here.
package sqlcursor

import (
	"context"
	"strings"
	"sync"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/logger"
)

// Source is one open result stream. Columns describes the current result
// set; Scan decodes the current row into dst, one Value per column.
type Source interface {
	Columns() []database.ColumnDescriptor
	Next(ctx context.Context) (bool, error)
	Scan(dst []database.Value) error
	NextResultSet(ctx context.Context) (bool, error)
	Close() error
}

// Cursor is a database.Cursor over a Source. Rows are decoded eagerly on
// fetch, so accessors and streams are served from memory.
type Cursor struct {
	mu    sync.Mutex
	src   Source
	state database.CursorState
	descs []database.ColumnDescriptor
	row   []database.Value
	cols  map[int]*Column
	epoch uint64
	gen   uint64

	onClose func(*Cursor)
	log     *logger.Logger
}

// New opens a cursor over src in StateOpen. onClose, when set, runs once
// after the cursor closes.
func New(src Source, onClose func(*Cursor), log *logger.Logger) *Cursor {
	if log == nil {
		log = logger.Nop()
	}
	c := &Cursor{src: src, state: database.StateOpen, onClose: onClose, log: log}
	c.load()
	return c
}

// Empty returns a cursor with no columns, used for commands that produce
// no result set.
func Empty(log *logger.Logger) *Cursor {
	return New(emptySource{}, nil, log)
}

func (c *Cursor) load() {
	c.descs = c.src.Columns()
	c.row = make([]database.Value, len(c.descs))
	c.cols = map[int]*Column{}
	c.epoch++
}

// Columns describes the current result set.
func (c *Cursor) Columns() []database.ColumnDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]database.ColumnDescriptor, len(c.descs))
	copy(out, c.descs)
	return out
}

func (c *Cursor) State() database.CursorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Next fetches and decodes the next row. At the end of the result set it
// returns false; later calls keep returning false.
func (c *Cursor) Next(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case database.StateOpen, database.StatePositioned:
	case database.StateEndOfData:
		return false, nil
	default:
		return false, errState("fetch", c.state)
	}
	if err := ctx.Err(); err != nil {
		return false, errs.Wrap(errs.ErrKindTimeout, "fetch cancelled", err)
	}

	ok, err := c.src.Next(ctx)
	if err != nil {
		return false, c.markBad(err)
	}
	if !ok {
		c.state = database.StateEndOfData
		return false, nil
	}
	if err := c.src.Scan(c.row); err != nil {
		return false, c.markBad(err)
	}
	c.gen++
	c.state = database.StatePositioned
	return true, nil
}

// Column returns the accessor for the 1-based ordinal.
func (c *Cursor) Column(ordinal int) (database.Column, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkPositioned(c.epoch); err != nil {
		return nil, err
	}
	return c.column(ordinal)
}

// ColumnByName matches exactly first and case-insensitively second.
func (c *Cursor) ColumnByName(name string) (database.Column, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
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
	if ordinal < 1 || ordinal > len(c.descs) {
		return nil, errs.Newf(errs.ErrKindColumnNotFound, "no column at ordinal %d", ordinal)
	}
	if col, ok := c.cols[ordinal]; ok {
		return col, nil
	}
	col := &Column{cur: c, idx: ordinal - 1, epoch: c.epoch}
	c.cols[ordinal] = col
	return col, nil
}

// NextResult moves to the next result set.
func (c *Cursor) NextResult(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case database.StateOpen, database.StatePositioned, database.StateEndOfData:
	default:
		return false, errState("move to the next result", c.state)
	}
	ok, err := c.src.NextResultSet(ctx)
	if err != nil {
		return false, c.markBad(err)
	}
	if !ok {
		c.state = database.StateEndOfData
		return false, nil
	}
	c.load()
	c.state = database.StateOpen
	return true, nil
}

// Close releases the source. Closing twice is a no-op.
func (c *Cursor) Close() error {
	c.mu.Lock()
	if c.state == database.StateClosed {
		c.mu.Unlock()
		return nil
	}
	err := c.src.Close()
	c.state = database.StateClosed
	onClose := c.onClose
	c.onClose = nil
	c.mu.Unlock()

	if onClose != nil {
		onClose(c)
	}
	if err != nil {
		return errs.Wrap(errs.KindOf(err), "failed to close result set", err)
	}
	return nil
}

func (c *Cursor) markBad(err error) error {
	c.state = database.StateBad
	c.log.With().Err(err).Logger().Error("cursor failed")
	return err
}

func (c *Cursor) checkPositioned(epoch uint64) error {
	if epoch != c.epoch {
		return errs.New(errs.ErrKindInvalidCursorState, "result set has been replaced")
	}
	if c.state != database.StatePositioned {
		return errState("read a column", c.state)
	}
	return nil
}

func errState(op string, st database.CursorState) error {
	return errs.Newf(errs.ErrKindInvalidCursorState, "cannot %s in state %s", op, st)
}

type emptySource struct{}

func (emptySource) Columns() []database.ColumnDescriptor        { return nil }
func (emptySource) Next(context.Context) (bool, error)          { return false, nil }
func (emptySource) Scan([]database.Value) error                 { return nil }
func (emptySource) NextResultSet(context.Context) (bool, error) { return false, nil }
func (emptySource) Close() error                                { return nil }

var _ database.Cursor = (*Cursor)(nil)
