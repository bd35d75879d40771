package odbc

import (
	"context"
	"testing"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/logger"
	"github.com/koustreak/unisql/internal/odbc/api"
	"github.com/koustreak/unisql/internal/odbc/odbctest"
	"github.com/stretchr/testify/require"
)

// connect opens a session on drv. kv are session option key/value pairs.
func connect(t *testing.T, drv *odbctest.Driver, kv ...string) *Connection {
	t.Helper()
	m := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	opts, err := database.ParseOptions(m)
	require.NoError(t, err)

	env, err := NewEnvironment(drv, logger.Nop())
	require.NoError(t, err)
	conn, err := env.Connect(context.Background(), "DSN=test", opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.CloseAll() })
	return conn
}

// run prepares and executes text, returning the statement and its cursor.
func run(t *testing.T, conn *Connection, text string, args ...any) (*Statement, *Cursor) {
	t.Helper()
	ctx := context.Background()
	st, err := conn.PrepareStatement(ctx, text)
	require.NoError(t, err)
	cur, err := st.Execute(ctx, args...)
	require.NoError(t, err)
	return st, cur.(*Cursor)
}

// next fetches one row and requires that it exists.
func next(t *testing.T, cur *Cursor) {
	t.Helper()
	ok, err := cur.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok, "expected a row")
}

func column(t *testing.T, cur *Cursor, ordinal int) database.Column {
	t.Helper()
	col, err := cur.Column(ordinal)
	require.NoError(t, err)
	return col
}

func colDef(name string, sqlType int16, size uint64) odbctest.Column {
	return odbctest.Column{Name: name, SQLType: sqlType, Size: size, Nullable: api.Nullable}
}
