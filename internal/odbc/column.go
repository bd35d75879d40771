package odbc

import (
	"bytes"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/shopspring/decimal"
)

// Column is the accessor for one column of a cursor's current row. An
// accessor stays usable across fetches and always reads the row the cursor
// is positioned on; it is invalidated when its result set closes.
type Column struct {
	cur   *Cursor
	b     *binding
	epoch uint64

	cached    database.Value
	cachedGen uint64
	hasCache  bool
}

func (c *Column) Descriptor() database.ColumnDescriptor { return c.b.desc }

// IsNull reports whether the driver stored the NULL indicator for the
// current row. Deferred columns answer from their placeholder binding.
func (c *Column) IsNull() (bool, error) {
	s := c.cur.stmt
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if err := c.cur.checkPositioned(c.epoch); err != nil {
		return false, err
	}
	return c.b.buf.IsNull(), nil
}

// Value decodes the current row's value. Deferred columns are read fully
// unless a stream has already consumed them.
func (c *Column) Value() (database.Value, error) {
	s := c.cur.stmt
	s.conn.mu.Lock()
	if err := c.cur.checkPositioned(c.epoch); err != nil {
		s.conn.mu.Unlock()
		return database.Value{}, err
	}
	if c.hasCache && c.cachedGen == c.cur.gen {
		v := c.cached
		s.conn.mu.Unlock()
		return v, nil
	}

	b := c.b
	if b.strat == eager || b.buf.IsNull() {
		v, err := b.value(s.conn.codec)
		if err == nil {
			c.remember(v)
		}
		s.conn.mu.Unlock()
		return v, err
	}
	if b.lobReady {
		v, err := decodeVariable(b.desc.Type, b.lob, s.conn.codec)
		if err == nil {
			c.remember(v)
		}
		s.conn.mu.Unlock()
		return v, err
	}
	if b.consumed {
		s.conn.mu.Unlock()
		return database.Value{}, errConsumed(b)
	}
	b.consumed = true
	r := newChunkReader(c.cur, b, s.conn.opts.ChunkSize)
	gen := c.cur.gen
	s.conn.mu.Unlock()

	// chunkReader takes the connection lock per chunk.
	raw, err := readAll(r)
	if err != nil {
		return database.Value{}, err
	}

	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if err := c.cur.checkRow(gen); err != nil {
		return database.Value{}, err
	}
	b.lob, b.lobReady = raw, true
	v, err := decodeVariable(b.desc.Type, raw, s.conn.codec)
	if err == nil {
		c.remember(v)
	}
	return v, err
}

func (c *Column) remember(v database.Value) {
	c.cached, c.cachedGen, c.hasCache = v, c.cur.gen, true
}

func errConsumed(b *binding) error {
	return errs.Newf(errs.ErrKindInvalidCursorState,
		"column %d (%s): data already consumed by a stream on this row", b.desc.Ordinal, b.desc.Name)
}

// AsInt64 reads the current value as int64. Floats and decimals are
// truncated toward zero; values out of range fail with a range error.
func (c *Column) AsInt64() (int64, error) {
	v, err := c.Value()
	if err != nil {
		return 0, err
	}
	return v.AsInt64()
}

// AsUint64 reads the current value as uint64. Negative values are rejected.
func (c *Column) AsUint64() (uint64, error) {
	v, err := c.Value()
	if err != nil {
		return 0, err
	}
	return v.AsUint64()
}

// AsFloat64 reads the current value as float64. Large integers and decimals
// may lose precision.
func (c *Column) AsFloat64() (float64, error) {
	v, err := c.Value()
	if err != nil {
		return 0, err
	}
	return v.AsFloat64()
}

// AsBool reads the current value as bool; numbers are true when non-zero.
func (c *Column) AsBool() (bool, error) {
	v, err := c.Value()
	if err != nil {
		return false, err
	}
	return v.AsBool()
}

// AsString returns the text form of the current value.
func (c *Column) AsString() (string, error) {
	v, err := c.Value()
	if err != nil {
		return "", err
	}
	return v.AsString()
}

// AsDecimal reads the current value as an arbitrary-precision decimal.
func (c *Column) AsDecimal() (decimal.Decimal, error) {
	v, err := c.Value()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return v.AsDecimal()
}

// AsDate reads the current value as a date. Timestamps lose their time of day.
func (c *Column) AsDate() (database.Date, error) {
	v, err := c.Value()
	if err != nil {
		return database.Date{}, err
	}
	return v.AsDate()
}

// AsTime reads the current value as a time of day.
func (c *Column) AsTime() (database.Clock, error) {
	v, err := c.Value()
	if err != nil {
		return database.Clock{}, err
	}
	return v.AsTime()
}

// AsTimestamp reads the current value as a time.Time.
func (c *Column) AsTimestamp() (time.Time, error) {
	v, err := c.Value()
	if err != nil {
		return time.Time{}, err
	}
	return v.AsTimestamp()
}

// AsBytes returns the raw bytes of the current value. Deferred columns are
// read to the end.
func (c *Column) AsBytes() ([]byte, error) {
	v, err := c.Value()
	if err != nil {
		return nil, err
	}
	return v.AsBytes()
}

// AsGUID reads the current value as a UUID.
func (c *Column) AsGUID() (uuid.UUID, error) {
	v, err := c.Value()
	if err != nil {
		return uuid.UUID{}, err
	}
	return v.AsGUID()
}

// CharStream opens a character stream over the value. Deferred character
// columns stream straight from the driver; anything else is converted to
// its string form first.
func (c *Column) CharStream() (database.RuneStream, error) {
	raw, err := c.open(true)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		return charStream(raw, c.cur.stmt.conn.codec, c.cur.stmt.conn.opts.ChunkSize), nil
	}
	s, err := c.AsString()
	if err != nil {
		return nil, err
	}
	return stringStream(s), nil
}

// BinaryStream opens a byte stream over a binary value.
func (c *Column) BinaryStream() (io.Reader, error) {
	if !c.b.desc.Type.IsBinary() {
		return nil, errs.Newf(errs.ErrKindUnsupportedConversion,
			"conversion from %s to binary stream not supported", c.b.desc.Type)
	}
	raw, err := c.open(false)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		return raw, nil
	}
	b, err := c.AsBytes()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

// open returns a raw reader over a deferred column's driver bytes, or nil
// when the value should be served from the decoded Value instead.
func (c *Column) open(char bool) (io.Reader, error) {
	s := c.cur.stmt
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if err := c.cur.checkPositioned(c.epoch); err != nil {
		return nil, err
	}
	b := c.b
	if b.buf.IsNull() {
		return nil, errs.Newf(errs.ErrKindNullValue, "cannot stream NULL column %d (%s)", b.desc.Ordinal, b.desc.Name)
	}
	if b.strat != deferred || char != b.desc.Type.IsCharacter() {
		return nil, nil
	}
	if b.lobReady {
		return bytes.NewReader(b.lob), nil
	}
	if b.consumed {
		return nil, errConsumed(b)
	}
	b.consumed = true
	return newChunkReader(c.cur, b, s.conn.opts.ChunkSize), nil
}

var _ database.Column = (*Column)(nil)
