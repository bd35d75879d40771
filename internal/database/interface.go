package database

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Connectable is one open session against a backend. Every backend (ODBC,
// Postgres, MySQL, SQLite) implements it; layers above this package never
// import a backend package directly.
//
// A Connectable is not safe for concurrent use; callers serialize access.
type Connectable interface {
	// Ping verifies the session is alive.
	Ping(ctx context.Context) error

	// Prepare compiles text into a Statement owned by this session.
	Prepare(ctx context.Context, text string) (Statement, error)

	// Begin, Commit and Rollback issue the transaction primitives.
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Close releases the session and every Statement it owns.
	Close() error
}

// Statement is one prepared command.
type Statement interface {
	// Execute binds args and runs the command. The returned Cursor is owned by
	// the Statement; executing again invalidates it.
	Execute(ctx context.Context, args ...any) (Cursor, error)

	// RowsAffected reports the row count of the last execution.
	RowsAffected() (int64, error)

	// Close releases the statement and its cursor. Calling Close twice is a no-op.
	Close() error
}

// ColumnDescribable exposes result metadata without buffer internals.
type ColumnDescribable interface {
	Columns() []ColumnDescriptor
}

// Cursor is the open, positioned result of one execution.
type Cursor interface {
	ColumnDescribable

	// Next advances to the next row. It returns false with a nil error
	// when no rows remain.
	Next(ctx context.Context) (bool, error)

	// Column returns the accessor for the 1-based ordinal on the current row.
	Column(ordinal int) (Column, error)

	// ColumnByName returns the accessor of the first column named name.
	ColumnByName(name string) (Column, error)

	// NextResult moves to the next result set, if the command produced one.
	NextResult(ctx context.Context) (bool, error)

	State() CursorState

	// Close releases the result set. Calling Close twice is a no-op.
	Close() error
}

// RuneStream is a forward-only character stream that allows unreading the
// last rune read. Read yields UTF-8.
type RuneStream interface {
	io.Reader
	io.RuneScanner
}

// Column reads one column of the cursor's current row. Accessors are valid
// until the cursor advances; after that they refresh to the new row.
type Column interface {
	Descriptor() ColumnDescriptor

	// IsNull reports whether the current value is NULL. Every typed getter
	// fails with ErrKindNullValue exactly when IsNull is true.
	IsNull() (bool, error)

	// Value returns the current value, reading unbounded data fully.
	Value() (Value, error)

	AsInt64() (int64, error)
	AsUint64() (uint64, error)
	AsFloat64() (float64, error)
	AsBool() (bool, error)
	AsString() (string, error)
	AsDecimal() (decimal.Decimal, error)
	AsDate() (Date, error)
	AsTime() (Clock, error)
	AsTimestamp() (time.Time, error)
	AsBytes() ([]byte, error)
	AsGUID() (uuid.UUID, error)

	// CharStream and BinaryStream open a stream over the value. For
	// unbounded columns the data is pulled from the backend on demand.
	CharStream() (RuneStream, error)
	BinaryStream() (io.Reader, error)
}

// CursorState is the statement/cursor state machine.
type CursorState uint8

const (
	StateUnprepared CursorState = iota
	StatePrepared
	StateOpen       // executed, not yet positioned on a row
	StatePositioned // positioned on a fetched row
	StateEndOfData
	StateClosed
	StateBad // unrecoverable native failure; rejects all data operations
)

func (s CursorState) String() string {
	switch s {
	case StateUnprepared:
		return "unprepared"
	case StatePrepared:
		return "prepared"
	case StateOpen:
		return "open"
	case StatePositioned:
		return "positioned"
	case StateEndOfData:
		return "end_of_data"
	case StateClosed:
		return "closed"
	case StateBad:
		return "bad"
	default:
		return "invalid"
	}
}
