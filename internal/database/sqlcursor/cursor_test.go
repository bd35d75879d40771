package sqlcursor

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSource serves fixed result sets from memory.
type sliceSource struct {
	sets    []resultSet
	set     int
	pos     int
	fail    error
	closed  int
	closeFn func() error
}

type resultSet struct {
	cols []database.ColumnDescriptor
	rows [][]database.Value
}

func (s *sliceSource) Columns() []database.ColumnDescriptor { return s.sets[s.set].cols }

func (s *sliceSource) Next(context.Context) (bool, error) {
	if s.fail != nil {
		return false, s.fail
	}
	if s.pos >= len(s.sets[s.set].rows) {
		return false, nil
	}
	s.pos++
	return true, nil
}

func (s *sliceSource) Scan(dst []database.Value) error {
	copy(dst, s.sets[s.set].rows[s.pos-1])
	return nil
}

func (s *sliceSource) NextResultSet(context.Context) (bool, error) {
	if s.set+1 >= len(s.sets) {
		return false, nil
	}
	s.set++
	s.pos = 0
	return true, nil
}

func (s *sliceSource) Close() error {
	s.closed++
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

func people() *sliceSource {
	return &sliceSource{sets: []resultSet{{
		cols: []database.ColumnDescriptor{
			{Ordinal: 1, Name: "id", Type: database.TypeInt64},
			{Ordinal: 2, Name: "Name", Type: database.TypeVarChar},
			{Ordinal: 3, Name: "photo", Type: database.TypeLongBinary},
		},
		rows: [][]database.Value{
			{database.Int(database.TypeInt64, 1), database.String(database.TypeVarChar, "ada"), database.Bytes(database.TypeLongBinary, []byte{1, 2})},
			{database.Int(database.TypeInt64, 2), database.Null(database.TypeVarChar), database.Null(database.TypeLongBinary)},
		},
	}}}
}

func TestCursorLifecycle(t *testing.T) {
	ctx := context.Background()
	src := people()
	closed := 0
	cur := New(src, func(*Cursor) { closed++ }, nil)
	assert.Equal(t, database.StateOpen, cur.State())

	_, err := cur.Column(1)
	assert.True(t, errs.IsInvalidCursorState(err), "no row before the first fetch")

	ok, err := cur.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, database.StatePositioned, cur.State())

	id, err := cur.Column(1)
	require.NoError(t, err)
	name, err := cur.ColumnByName("name")
	require.NoError(t, err)
	again, err := cur.Column(2)
	require.NoError(t, err)
	assert.Same(t, name, again, "accessors are cached per ordinal")

	n, err := id.AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	s, err := name.AsString()
	require.NoError(t, err)
	assert.Equal(t, "ada", s)

	ok, err = cur.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	n, err = id.AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "accessor follows the current row")
	null, err := name.IsNull()
	require.NoError(t, err)
	assert.True(t, null)
	_, err = name.AsString()
	assert.True(t, errs.IsNullValue(err))

	ok, err = cur.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, database.StateEndOfData, cur.State())
	ok, err = cur.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "end of data is sticky")

	_, err = id.AsInt64()
	assert.True(t, errs.IsInvalidCursorState(err))

	require.NoError(t, cur.Close())
	require.NoError(t, cur.Close())
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, 1, closed)
	assert.Equal(t, database.StateClosed, cur.State())

	_, err = cur.Next(ctx)
	assert.True(t, errs.IsInvalidCursorState(err))
}

func TestCursorColumnLookup(t *testing.T) {
	cur := New(people(), nil, nil)
	_, err := cur.Next(context.Background())
	require.NoError(t, err)

	for _, ord := range []int{0, 4, -1} {
		_, err := cur.Column(ord)
		assert.True(t, errs.IsColumnNotFound(err), "ordinal %d", ord)
	}
	_, err = cur.ColumnByName("missing")
	assert.True(t, errs.IsColumnNotFound(err))

	col, err := cur.ColumnByName("Name")
	require.NoError(t, err)
	assert.Equal(t, 2, col.Descriptor().Ordinal)
}

func TestCursorStreams(t *testing.T) {
	cur := New(people(), nil, nil)
	_, err := cur.Next(context.Background())
	require.NoError(t, err)

	photo, err := cur.Column(3)
	require.NoError(t, err)
	r, err := photo.BinaryStream()
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)

	name, err := cur.Column(2)
	require.NoError(t, err)
	_, err = name.BinaryStream()
	assert.True(t, errs.IsUnsupportedConversion(err))

	cs, err := name.CharStream()
	require.NoError(t, err)
	ch, _, err := cs.ReadRune()
	require.NoError(t, err)
	assert.Equal(t, 'a', ch)
	require.NoError(t, cs.UnreadRune())
	rest, err := io.ReadAll(cs)
	require.NoError(t, err)
	assert.Equal(t, "ada", string(rest))

	_, err = cur.Next(context.Background())
	require.NoError(t, err)
	_, err = photo.BinaryStream()
	assert.True(t, errs.IsNullValue(err))
}

func TestCursorFetchFailure(t *testing.T) {
	src := people()
	src.fail = errs.New(errs.ErrKindConnectionFailed, "connection reset")
	cur := New(src, nil, nil)

	_, err := cur.Next(context.Background())
	assert.True(t, errs.IsConnectionFailed(err))
	assert.Equal(t, database.StateBad, cur.State())

	_, err = cur.Next(context.Background())
	assert.True(t, errs.IsInvalidCursorState(err))
	require.NoError(t, cur.Close())
}

func TestCursorContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cur := New(people(), nil, nil)
	_, err := cur.Next(ctx)
	assert.True(t, errs.IsTimeout(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, database.StateOpen, cur.State(), "nothing was fetched")
}

func TestCursorNextResult(t *testing.T) {
	src := people()
	src.sets = append(src.sets, resultSet{
		cols: []database.ColumnDescriptor{{Ordinal: 1, Name: "total", Type: database.TypeInt32}},
		rows: [][]database.Value{{database.Int(database.TypeInt32, 2)}},
	})
	cur := New(src, nil, nil)
	ctx := context.Background()

	_, err := cur.Next(ctx)
	require.NoError(t, err)
	stale, err := cur.Column(1)
	require.NoError(t, err)

	ok, err := cur.NextResult(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, database.StateOpen, cur.State())
	require.Len(t, cur.Columns(), 1)
	assert.Equal(t, "total", cur.Columns()[0].Name)

	_, err = cur.Next(ctx)
	require.NoError(t, err)
	_, err = stale.AsInt64()
	assert.True(t, errs.IsInvalidCursorState(err), "accessors of a replaced result set fail")

	col, err := cur.Column(1)
	require.NoError(t, err)
	n, err := col.AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err = cur.NextResult(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, database.StateEndOfData, cur.State())
}

func TestCursorCloseError(t *testing.T) {
	src := people()
	src.closeFn = func() error { return errs.New(errs.ErrKindConnectionFailed, "gone") }
	cur := New(src, nil, nil)
	err := cur.Close()
	assert.True(t, errs.IsConnectionFailed(err))
	assert.Equal(t, database.StateClosed, cur.State())
}

func TestEmptyCursor(t *testing.T) {
	cur := Empty(nil)
	assert.Empty(t, cur.Columns())
	ok, err := cur.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	rows, err := database.CollectRows(context.Background(), Empty(nil), 0)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestCollectRows(t *testing.T) {
	rows, err := database.CollectRows(context.Background(), New(people(), nil, nil), 0)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"id": int64(1), "Name": "ada", "photo": []byte{1, 2}},
		{"id": int64(2), "Name": nil, "photo": nil},
	}, rows)

	rows, err = database.CollectRows(context.Background(), New(people(), nil, nil), 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
