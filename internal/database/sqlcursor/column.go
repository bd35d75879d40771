package sqlcursor

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/shopspring/decimal"
)

// Column reads one column of the cursor's current row. It follows the
// cursor across fetches and is invalidated when the result set changes.
type Column struct {
	cur   *Cursor
	idx   int
	epoch uint64
}

func (c *Column) Descriptor() database.ColumnDescriptor {
	c.cur.mu.Lock()
	defer c.cur.mu.Unlock()
	if c.epoch != c.cur.epoch || c.idx >= len(c.cur.descs) {
		return database.ColumnDescriptor{}
	}
	return c.cur.descs[c.idx]
}

func (c *Column) IsNull() (bool, error) {
	v, err := c.Value()
	if err != nil {
		return false, err
	}
	return v.IsNull(), nil
}

// Value returns the decoded value of the current row.
func (c *Column) Value() (database.Value, error) {
	c.cur.mu.Lock()
	defer c.cur.mu.Unlock()
	if err := c.cur.checkPositioned(c.epoch); err != nil {
		return database.Value{}, err
	}
	return c.cur.row[c.idx], nil
}

func (c *Column) AsInt64() (int64, error) {
	v, err := c.Value()
	if err != nil {
		return 0, err
	}
	return v.AsInt64()
}

func (c *Column) AsUint64() (uint64, error) {
	v, err := c.Value()
	if err != nil {
		return 0, err
	}
	return v.AsUint64()
}

func (c *Column) AsFloat64() (float64, error) {
	v, err := c.Value()
	if err != nil {
		return 0, err
	}
	return v.AsFloat64()
}

func (c *Column) AsBool() (bool, error) {
	v, err := c.Value()
	if err != nil {
		return false, err
	}
	return v.AsBool()
}

func (c *Column) AsString() (string, error) {
	v, err := c.Value()
	if err != nil {
		return "", err
	}
	return v.AsString()
}

func (c *Column) AsDecimal() (decimal.Decimal, error) {
	v, err := c.Value()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return v.AsDecimal()
}

func (c *Column) AsDate() (database.Date, error) {
	v, err := c.Value()
	if err != nil {
		return database.Date{}, err
	}
	return v.AsDate()
}

func (c *Column) AsTime() (database.Clock, error) {
	v, err := c.Value()
	if err != nil {
		return database.Clock{}, err
	}
	return v.AsTime()
}

func (c *Column) AsTimestamp() (time.Time, error) {
	v, err := c.Value()
	if err != nil {
		return time.Time{}, err
	}
	return v.AsTimestamp()
}

func (c *Column) AsBytes() ([]byte, error) {
	v, err := c.Value()
	if err != nil {
		return nil, err
	}
	return v.AsBytes()
}

func (c *Column) AsGUID() (uuid.UUID, error) {
	v, err := c.Value()
	if err != nil {
		return uuid.UUID{}, err
	}
	return v.AsGUID()
}

// CharStream streams the string form of the value.
func (c *Column) CharStream() (database.RuneStream, error) {
	s, err := c.AsString()
	if err != nil {
		return nil, err
	}
	return bufio.NewReader(strings.NewReader(s)), nil
}

// BinaryStream streams a binary value.
func (c *Column) BinaryStream() (io.Reader, error) {
	v, err := c.Value()
	if err != nil {
		return nil, err
	}
	if !v.Tag().IsBinary() {
		return nil, errs.Newf(errs.ErrKindUnsupportedConversion,
			"conversion from %s to binary stream not supported", v.Tag())
	}
	b, err := v.AsBytes()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

var _ database.Column = (*Column)(nil)
