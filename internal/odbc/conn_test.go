package odbc

import (
	"context"
	"testing"
	"time"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/logger"
	"github.com/koustreak/unisql/internal/odbc/api"
	"github.com/koustreak/unisql/internal/odbc/odbctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intRows(text string, n int) *odbctest.Driver {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{int32(i + 1)}
	}
	return odbctest.New().Query(text, []odbctest.Column{colDef("n", api.TypeInteger, 10)}, rows...)
}

func TestEnvironmentOwnsConnections(t *testing.T) {
	ctx := context.Background()
	drv := intRows("SELECT n FROM t", 1)
	env, err := NewEnvironment(drv, logger.Nop())
	require.NoError(t, err)

	a, err := env.Connect(ctx, "DSN=a", database.DefaultOptions())
	require.NoError(t, err)
	b, err := env.Connect(ctx, "DSN=b", database.DefaultOptions())
	require.NoError(t, err)
	_, err = a.PrepareStatement(ctx, "SELECT n FROM t")
	require.NoError(t, err)

	assert.Equal(t, 2, drv.Handles(api.HandleDbc))
	assert.Equal(t, 1, drv.Handles(api.HandleStmt))

	err = env.Close()
	assert.True(t, errs.IsInvalidCursorState(err), "environment with open connections")

	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "closing a connection twice is a no-op")
	require.NoError(t, env.CloseAll())

	assert.Zero(t, drv.Handles(api.HandleStmt))
	assert.Zero(t, drv.Handles(api.HandleDbc))
	assert.Zero(t, drv.Handles(api.HandleEnv))

	_, err = env.Connect(ctx, "DSN=c", database.DefaultOptions())
	assert.True(t, errs.IsNotConnected(err))
}

func TestConnectFailure(t *testing.T) {
	drv := odbctest.New()
	drv.FailNext(api.FnDriverConnect, "08001", 2003, "Can't connect to server")
	env, err := NewEnvironment(drv, logger.Nop())
	require.NoError(t, err)
	defer env.CloseAll()

	_, err = env.Connect(context.Background(), "DSN=down", database.DefaultOptions())
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.Zero(t, drv.Handles(api.HandleDbc), "the connection handle is released")
}

func TestSessionAttributes(t *testing.T) {
	drv := odbctest.New()
	connect(t, drv,
		database.OptLoginTimeout, "5s",
		database.OptReadOnly, "true",
		database.OptAutocommit, "false",
	)

	v, ok := drv.ConnectAttr(api.AttrLoginTimeout)
	require.True(t, ok)
	assert.Equal(t, uintptr(5), v)
	v, ok = drv.ConnectAttr(api.AttrAccessMode)
	require.True(t, ok)
	assert.Equal(t, uintptr(api.ModeReadOnly), v)
	v, ok = drv.ConnectAttr(api.AttrAutocommit)
	require.True(t, ok)
	assert.Equal(t, uintptr(api.AutocommitOff), v)
}

func TestPing(t *testing.T) {
	ctx := context.Background()
	drv := odbctest.New()
	conn := connect(t, drv)
	require.NoError(t, conn.Ping(ctx))

	drv.Dead = true
	assert.True(t, errs.IsConnectionFailed(conn.Ping(ctx)))

	require.NoError(t, conn.Close())
	assert.True(t, errs.IsNotConnected(conn.Ping(ctx)))
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	drv := odbctest.New()
	conn := connect(t, drv)

	assert.True(t, errs.IsInvalidInput(conn.Commit(ctx)), "commit without a transaction")

	require.NoError(t, conn.Begin(ctx))
	v, _ := drv.ConnectAttr(api.AttrAutocommit)
	assert.Equal(t, uintptr(api.AutocommitOff), v)
	assert.True(t, errs.IsInvalidInput(conn.Begin(ctx)), "nested begin")

	require.NoError(t, conn.Commit(ctx))
	v, _ = drv.ConnectAttr(api.AttrAutocommit)
	assert.Equal(t, uintptr(api.AutocommitOn), v)
	assert.Equal(t, 1, drv.Calls(api.FnEndTran))

	require.NoError(t, conn.Begin(ctx))
	require.NoError(t, conn.Rollback(ctx))
	assert.Equal(t, 2, drv.Calls(api.FnEndTran))

	// Closing inside a transaction rolls it back.
	require.NoError(t, conn.Begin(ctx))
	require.NoError(t, conn.Close())
	assert.Equal(t, 3, drv.Calls(api.FnEndTran))
}

func TestTransactionsWithoutAutocommit(t *testing.T) {
	ctx := context.Background()
	drv := odbctest.New()
	conn := connect(t, drv, "autocommit", "false")

	v, _ := drv.ConnectAttr(api.AttrAutocommit)
	assert.Equal(t, uintptr(api.AutocommitOff), v)

	require.NoError(t, conn.Commit(ctx), "commit without begin")
	require.NoError(t, conn.Rollback(ctx), "rollback without begin")
	assert.Equal(t, 2, drv.Calls(api.FnEndTran))
	v, _ = drv.ConnectAttr(api.AttrAutocommit)
	assert.Equal(t, uintptr(api.AutocommitOff), v, "autocommit stays off")

	require.NoError(t, conn.Begin(ctx))
	require.NoError(t, conn.Commit(ctx))
	assert.Equal(t, 3, drv.Calls(api.FnEndTran))

	// The implicit transaction is rolled back before disconnecting.
	require.NoError(t, conn.Close())
	assert.Equal(t, 4, drv.Calls(api.FnEndTran))
}

func TestMultipleResultSets(t *testing.T) {
	ctx := context.Background()
	drv := odbctest.New().Script("EXEC report", odbctest.Script{Results: []odbctest.Result{
		{Columns: []odbctest.Column{colDef("n", api.TypeInteger, 10)}, Rows: [][]any{{int32(1)}, {int32(2)}}},
		{RowCount: 3},
		{Columns: []odbctest.Column{colDef("label", api.TypeVarchar, 10)}, Rows: [][]any{{"total"}}},
	}})
	conn := connect(t, drv)
	_, cur := run(t, conn, "EXEC report")

	next(t, cur)
	first := column(t, cur, 1)

	ok, err := cur.NextResult(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, cur.Columns(), "row count only")
	assert.Equal(t, database.StateEndOfData, cur.State())
	_, err = first.AsInt64()
	assert.True(t, errs.IsInvalidCursorState(err), "accessor of a replaced result set")

	ok, err = cur.NextResult(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	descs := cur.Columns()
	require.Len(t, descs, 1)
	assert.Equal(t, "label", descs[0].Name)
	next(t, cur)
	s, err := column(t, cur, 1).AsString()
	require.NoError(t, err)
	assert.Equal(t, "total", s)

	ok, err = cur.NextResult(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, database.StateEndOfData, cur.State())
}

func TestNextResultWithoutCapability(t *testing.T) {
	drv := intRows("SELECT n FROM t", 1).Without(api.FnMoreResults)
	conn := connect(t, drv)
	_, cur := run(t, conn, "SELECT n FROM t")

	_, err := cur.NextResult(context.Background())
	assert.True(t, errs.IsCapabilityMissing(err))
	assert.Equal(t, database.StateOpen, cur.State(), "a missing capability leaves the cursor usable")
	next(t, cur)
}

func TestContextCancelDuringFetch(t *testing.T) {
	drv := intRows("SELECT n FROM t", 3)
	conn := connect(t, drv)
	st, cur := run(t, conn, "SELECT n FROM t")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	drv.FetchHook = cancel

	_, err := cur.Next(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, database.StateBad, st.State())

	drv.FetchHook = nil
	_, err = cur.Next(context.Background())
	assert.True(t, errs.IsInvalidCursorState(err), "a bad cursor rejects fetches")
	require.NoError(t, st.Close())
}

func TestContextDoneBeforeCall(t *testing.T) {
	drv := intRows("SELECT n FROM t", 1)
	conn := connect(t, drv)
	st, cur := run(t, conn, "SELECT n FROM t")

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := cur.Next(ctx)
	assert.True(t, errs.IsTimeout(err))
	assert.Zero(t, drv.Calls(api.FnFetch))
	assert.Equal(t, database.StateOpen, st.State(), "nothing reached the driver")
}

func TestStatementCancelDuringFetch(t *testing.T) {
	drv := intRows("SELECT n FROM t", 3)
	conn := connect(t, drv)
	st, cur := run(t, conn, "SELECT n FROM t")

	var cancelErr error
	drv.FetchHook = func() { cancelErr = conn.Cancel() }

	_, err := cur.Next(context.Background())
	require.NoError(t, cancelErr)
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err), "HY008 from the interrupted fetch")
	assert.Equal(t, database.StateBad, st.State())
}

func TestCancelIdleCursors(t *testing.T) {
	drv := intRows("SELECT n FROM t", 2)
	conn := connect(t, drv)
	st, cur := run(t, conn, "SELECT n FROM t")
	next(t, cur)

	require.NoError(t, conn.Cancel())
	assert.Equal(t, database.StateBad, st.State())
	_, err := cur.Column(1)
	assert.True(t, errs.IsInvalidCursorState(err))
}

func TestStatementCancelFlagObserved(t *testing.T) {
	drv := intRows("SELECT n FROM t", 2)
	conn := connect(t, drv)
	st, cur := run(t, conn, "SELECT n FROM t")

	require.NoError(t, st.Cancel())
	assert.Equal(t, database.StateBad, cur.State())
}

func TestCancelWithoutCapability(t *testing.T) {
	drv := intRows("SELECT n FROM t", 1).Without(api.FnCancel)
	conn := connect(t, drv)
	st, _ := run(t, conn, "SELECT n FROM t")

	assert.True(t, errs.IsCapabilityMissing(st.Cancel()))
	assert.True(t, errs.IsCapabilityMissing(conn.Cancel()))
	assert.Equal(t, database.StateOpen, st.State())
}

func TestUnclassifiedFetchFailure(t *testing.T) {
	drv := intRows("SELECT n FROM t", 2)
	drv.FailNext(api.FnFetch, "ZZ999", -1, "segment violation")
	conn := connect(t, drv)
	st, cur := run(t, conn, "SELECT n FROM t")

	_, err := cur.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsUnclassifiedNative(err))
	assert.Equal(t, database.StateBad, st.State())

	_, err = st.Execute(context.Background())
	assert.True(t, errs.IsInvalidCursorState(err), "a bad statement must be closed")
	require.NoError(t, st.Close())
	assert.Equal(t, database.StateClosed, st.State())
}

func TestPrepareFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	drv := odbctest.New()
	conn := connect(t, drv)

	_, err := conn.PrepareStatement(ctx, "SELECT n FROM missing")
	assert.True(t, errs.IsNotFound(err))
	assert.Zero(t, drv.Handles(api.HandleStmt), "a failed prepare does not leak its handle")

	st, err := conn.NewStatement(ctx)
	require.NoError(t, err)
	require.Error(t, st.Prepare(ctx, "SELECT n FROM missing"))
	assert.Equal(t, database.StateUnprepared, st.State())

	drv.Query("SELECT n FROM missing", []odbctest.Column{colDef("n", api.TypeInteger, 10)}, []any{int32(1)})
	require.NoError(t, st.Prepare(ctx, "SELECT n FROM missing"))
	assert.Equal(t, database.StatePrepared, st.State())
	assert.Equal(t, "SELECT n FROM missing", st.Text())
}

func TestReprepareAfterClose(t *testing.T) {
	ctx := context.Background()
	drv := intRows("SELECT n FROM t", 1)
	drv.Query("SELECT 2", []odbctest.Column{colDef("two", api.TypeInteger, 10)}, []any{int32(2)})
	conn := connect(t, drv)
	st, _ := run(t, conn, "SELECT n FROM t")

	require.NoError(t, st.Close())
	assert.Zero(t, drv.Handles(api.HandleStmt))

	require.NoError(t, st.Prepare(ctx, "SELECT 2"))
	assert.Equal(t, 1, drv.Handles(api.HandleStmt))
	cur, err := st.Execute(ctx)
	require.NoError(t, err)
	next(t, cur.(*Cursor))
	n, err := column(t, cur.(*Cursor), 1).AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestClosedConnectionRejectsWork(t *testing.T) {
	ctx := context.Background()
	drv := intRows("SELECT n FROM t", 1)
	conn := connect(t, drv)
	st, cur := run(t, conn, "SELECT n FROM t")

	require.NoError(t, conn.Close())
	assert.Equal(t, database.StateClosed, st.State())
	assert.Equal(t, database.StateClosed, cur.State())

	_, err := st.Execute(ctx)
	assert.True(t, errs.IsNotConnected(err))
	_, err = conn.PrepareStatement(ctx, "SELECT n FROM t")
	assert.True(t, errs.IsNotConnected(err))
	assert.True(t, errs.IsNotConnected(conn.Begin(ctx)))
}

func TestDiagnosticsAreKept(t *testing.T) {
	drv := intRows("SELECT n FROM t", 1)
	drv.InfoNext(api.FnExecute, "01000", "General warning")
	conn := connect(t, drv)
	st, _ := run(t, conn, "SELECT n FROM t")

	diags := st.Diagnostics()
	require.NotEmpty(t, diags)
	assert.Equal(t, "01000", diags[0].SQLState)
	assert.Equal(t, "General warning", diags[0].Message)
}

func TestFailedExecuteKeepsAllRecords(t *testing.T) {
	drv := odbctest.New().Script("DELETE FROM t", odbctest.Script{
		Exec: func([]any) *api.DiagRecord {
			return &api.DiagRecord{SQLState: "42501", NativeError: 1142, Message: "DELETE command denied"}
		},
	})
	conn := connect(t, drv)
	st, err := conn.PrepareStatement(context.Background(), "DELETE FROM t")
	require.NoError(t, err)

	_, err = st.Execute(context.Background())
	assert.True(t, errs.IsPermissionDenied(err))
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.Len(t, e.Records, 1)
	assert.Equal(t, int32(1142), e.Records[0].NativeCode)
	assert.Contains(t, st.Diagnostics(), e.Records[0])
}

func TestConnector(t *testing.T) {
	ctx := context.Background()
	drv := intRows("SELECT n FROM t", 3)
	cfg := database.DefaultConfig(database.BackendODBC, "DSN=warehouse")
	opts, err := database.ParseOptions(map[string]string{database.OptBookmarks: "true"})
	require.NoError(t, err)

	c, err := NewConnector(drv, cfg, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, database.BackendODBC, c.Backend())

	sess, err := c.Connect(ctx)
	require.NoError(t, err)
	st, err := sess.Prepare(ctx, "SELECT n FROM t")
	require.NoError(t, err)
	cur, err := st.Execute(ctx)
	require.NoError(t, err)

	rows, err := database.CollectRows(ctx, cur, 2)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"n": int64(1)}, {"n": int64(2)}}, rows, "the bookmark column is not collected")

	assert.True(t, errs.IsInvalidCursorState(c.Close()), "sessions still open")
	require.NoError(t, sess.Close())
	require.NoError(t, c.Close())
}
