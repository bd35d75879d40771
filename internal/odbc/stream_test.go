package odbc

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/odbc/api"
	"github.com/koustreak/unisql/internal/odbc/odbctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func longText(name string) []odbctest.Column {
	return []odbctest.Column{colDef(name, api.TypeLongVarchar, 0)}
}

func TestChunkedRead(t *testing.T) {
	tests := []struct {
		name   string
		length int
		calls  int
	}{
		// chunk_size 16 leaves 15 bytes per call after the terminator.
		{"empty", 0, 1},
		{"within one chunk", 10, 1},
		{"exact chunk", 15, 1},
		{"two exact chunks", 30, 2},
		{"partial last chunk", 100, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Repeat("x", tt.length)
			drv := odbctest.New().Query("SELECT body FROM t", longText("body"), []any{text})
			conn := connect(t, drv, database.OptChunkSize, "16")
			_, cur := run(t, conn, "SELECT body FROM t")
			next(t, cur)

			got, err := column(t, cur, 1).AsString()
			require.NoError(t, err)
			assert.Equal(t, text, got)
			assert.Equal(t, tt.calls, drv.Calls(api.FnGetData))
		})
	}
}

func TestChunkedReadWithoutTotal(t *testing.T) {
	text := strings.Repeat("0123456789", 50)
	drv := odbctest.New().Query("SELECT body FROM t", longText("body"), []any{text})
	drv.NoTotal = true
	conn := connect(t, drv, database.OptChunkSize, "32")
	_, cur := run(t, conn, "SELECT body FROM t")
	next(t, cur)

	stream, err := column(t, cur, 1).CharStream()
	require.NoError(t, err)
	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, text, string(got))
}

func TestCharStreamUnreadRune(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 10)
	drv := odbctest.New().Query("SELECT body FROM t", longText("body"), []any{text})
	conn := connect(t, drv, database.OptChunkSize, "16")
	_, cur := run(t, conn, "SELECT body FROM t")
	next(t, cur)

	stream, err := column(t, cur, 1).CharStream()
	require.NoError(t, err)

	r, _, err := stream.ReadRune()
	require.NoError(t, err)
	assert.Equal(t, 'h', r)
	r, size, err := stream.ReadRune()
	require.NoError(t, err)
	assert.Equal(t, 'é', r)
	assert.Equal(t, 2, size)

	require.NoError(t, stream.UnreadRune())
	r, _, err = stream.ReadRune()
	require.NoError(t, err)
	assert.Equal(t, 'é', r)

	rest, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, text[3:], string(rest))
}

func TestStreamBelongsToRow(t *testing.T) {
	first := bytes.Repeat([]byte{0xaa}, 40)
	second := bytes.Repeat([]byte{0xbb}, 40)
	drv := odbctest.New().Query("SELECT blob FROM t",
		[]odbctest.Column{colDef("blob", api.TypeLongVarbinary, 0)}, []any{first}, []any{second})
	conn := connect(t, drv, database.OptChunkSize, "16")
	_, cur := run(t, conn, "SELECT blob FROM t")

	next(t, cur)
	stream, err := column(t, cur, 1).BinaryStream()
	require.NoError(t, err)
	p := make([]byte, 4)
	n, err := stream.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, first[:4], p)

	next(t, cur)
	_, err = stream.Read(p)
	assert.True(t, errs.IsInvalidCursorState(err), "stale stream must fail after the cursor advances")
	_, err = stream.Read(p)
	assert.True(t, errs.IsInvalidCursorState(err), "the failure is sticky")

	fresh, err := column(t, cur, 1).BinaryStream()
	require.NoError(t, err)
	got, err := io.ReadAll(fresh)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestDeferredDataIsConsumedOnce(t *testing.T) {
	drv := odbctest.New().Query("SELECT blob, body FROM t",
		[]odbctest.Column{colDef("blob", api.TypeLongVarbinary, 0), colDef("body", api.TypeLongVarchar, 0)},
		[]any{[]byte("payload"), "text"}, []any{[]byte("again"), "more"})
	conn := connect(t, drv)
	_, cur := run(t, conn, "SELECT blob, body FROM t")
	next(t, cur)

	blob := column(t, cur, 1)
	stream, err := blob.BinaryStream()
	require.NoError(t, err)

	_, err = blob.Value()
	assert.True(t, errs.IsInvalidCursorState(err), "value after a stream took the data")
	_, err = blob.BinaryStream()
	assert.True(t, errs.IsInvalidCursorState(err), "second stream on the same row")

	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	// Materialized values can be re-read and streamed from memory.
	body := column(t, cur, 2)
	s, err := body.AsString()
	require.NoError(t, err)
	assert.Equal(t, "text", s)
	cs, err := body.CharStream()
	require.NoError(t, err)
	again, err := io.ReadAll(cs)
	require.NoError(t, err)
	assert.Equal(t, "text", string(again))

	next(t, cur)
	b, err := blob.AsBytes()
	require.NoError(t, err)
	assert.Equal(t, "again", string(b))
}

func TestNullDeferredStream(t *testing.T) {
	drv := odbctest.New().Query("SELECT body FROM t", longText("body"), []any{nil})
	conn := connect(t, drv)
	_, cur := run(t, conn, "SELECT body FROM t")
	next(t, cur)

	_, err := column(t, cur, 1).CharStream()
	assert.True(t, errs.IsNullValue(err))
	assert.Zero(t, drv.Calls(api.FnGetData), "NULL is answered from the placeholder binding")
}

func TestUnexpectedInfoDuringChunkRead(t *testing.T) {
	text := strings.Repeat("y", 100)
	drv := odbctest.New().Query("SELECT body FROM t", longText("body"), []any{text})
	drv.InfoNext(api.FnGetData, "01S07", "Fractional truncation")
	conn := connect(t, drv, database.OptChunkSize, "16")
	st, cur := run(t, conn, "SELECT body FROM t")
	next(t, cur)

	stream, err := column(t, cur, 1).CharStream()
	require.NoError(t, err)
	_, err = io.ReadAll(stream)
	require.Error(t, err)

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "01S07", e.SQLState)
	assert.True(t, errs.IsQueryFailed(err))
	assert.Equal(t, database.StatePositioned, st.State(), "a classified failure leaves the cursor usable")
}

func TestUnclassifiedChunkFailure(t *testing.T) {
	drv := odbctest.New().Query("SELECT body FROM t", longText("body"), []any{"abc"}, []any{"def"})
	drv.FailNext(api.FnGetData, "ZZ999", 77, "driver exploded")
	conn := connect(t, drv)
	st, cur := run(t, conn, "SELECT body FROM t")
	next(t, cur)

	_, err := column(t, cur, 1).AsString()
	require.Error(t, err)
	assert.True(t, errs.IsUnclassifiedNative(err))
	assert.Equal(t, database.StateBad, st.State())

	_, err = cur.Next(context.Background())
	assert.True(t, errs.IsInvalidCursorState(err))
	assert.Error(t, cur.Close(), "a bad cursor cannot be closed")
	require.NoError(t, st.Close())
	assert.Equal(t, database.StateClosed, st.State())
}

func TestLOBPrefetch(t *testing.T) {
	text := strings.Repeat("z", 64)
	drv := odbctest.New().Query("SELECT body FROM t", longText("body"), []any{text}, []any{nil})
	conn := connect(t, drv, database.OptLOBPrefetch, "true", database.OptChunkSize, "16")
	_, cur := run(t, conn, "SELECT body FROM t")

	next(t, cur)
	calls := drv.Calls(api.FnGetData)
	assert.Positive(t, calls, "prefetch reads on fetch")

	c := column(t, cur, 1)
	got, err := c.AsString()
	require.NoError(t, err)
	assert.Equal(t, text, got)
	stream, err := c.CharStream()
	require.NoError(t, err)
	again, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, text, string(again))
	assert.Equal(t, calls, drv.Calls(api.FnGetData), "access after prefetch stays in memory")

	next(t, cur)
	null, err := c.IsNull()
	require.NoError(t, err)
	assert.True(t, null)
	assert.Equal(t, calls, drv.Calls(api.FnGetData), "NULL values are not prefetched")
}

func TestWideProtocol(t *testing.T) {
	text := strings.Repeat("wïde ✓ 𝄞 ", 40)
	cols := []odbctest.Column{
		colDef("short", api.TypeWVarchar, 10),
		colDef("long", api.TypeWLongVarchar, 0),
	}
	drv := odbctest.New().Query("SELECT short, long FROM t", cols, []any{"ünï𝄞", text})
	// An odd chunk size must still split on whole UTF-16 code units.
	conn := connect(t, drv, database.OptProtocol, "wide", database.OptChunkSize, "17")
	_, cur := run(t, conn, "SELECT short, long FROM t")
	next(t, cur)

	short, err := column(t, cur, 1).AsString()
	require.NoError(t, err)
	assert.Equal(t, "ünï𝄞", short)

	stream, err := column(t, cur, 2).CharStream()
	require.NoError(t, err)
	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, text, string(got))
}

func TestNarrowCharset(t *testing.T) {
	text := strings.Repeat("café crème ", 30)
	cols := []odbctest.Column{
		colDef("name", api.TypeVarchar, 8),
		colDef("notes", api.TypeLongVarchar, 0),
	}
	drv := odbctest.New().Query("SELECT name, notes FROM t", cols, []any{"naïve", text})
	drv.Charset = charmap.ISO8859_1
	conn := connect(t, drv, database.OptCharset, "ISO-8859-1", database.OptChunkSize, "16")
	_, cur := run(t, conn, "SELECT name, notes FROM t")
	next(t, cur)

	name, err := column(t, cur, 1).AsString()
	require.NoError(t, err)
	assert.Equal(t, "naïve", name)

	stream, err := column(t, cur, 2).CharStream()
	require.NoError(t, err)
	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, text, string(got))
}

func TestUnknownCharset(t *testing.T) {
	drv := odbctest.New()
	opts, err := database.ParseOptions(map[string]string{database.OptCharset: "klingon"})
	require.NoError(t, err)
	env, err := NewEnvironment(drv, nil)
	require.NoError(t, err)
	defer env.CloseAll()

	_, err = env.Connect(context.Background(), "DSN=test", opts)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Zero(t, drv.Handles(api.HandleDbc))
}
