package transfer

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/database/sqlcursor"
	"github.com/koustreak/unisql/internal/database/sqlite"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/filestore"
	"github.com/koustreak/unisql/internal/filestore/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session(t *testing.T) *sqlcursor.Session {
	t.Helper()
	ctx := context.Background()
	conn, err := sqlite.New(ctx, database.DefaultConfig(database.BackendSQLite, ":memory:"), nil)
	require.NoError(t, err)
	sess, err := conn.Session(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, sess.Close())
		require.NoError(t, conn.Close())
	})

	for _, text := range []string{
		`CREATE TABLE docs (id INTEGER PRIMARY KEY, title VARCHAR(20), body TEXT, scan BLOB, pages INTEGER)`,
		`INSERT INTO docs VALUES (1, 'manual', 'long body text', x'00ff10', 12)`,
		`INSERT INTO docs VALUES (2, 'empty', NULL, NULL, 0)`,
	} {
		st, err := sess.Prepare(ctx, text)
		require.NoError(t, err)
		_, err = st.Execute(ctx)
		require.NoError(t, err)
		require.NoError(t, st.Close())
	}
	return sess
}

func read(t *testing.T, store filestore.Store, bucket, key string) string {
	t.Helper()
	obj, err := store.GetObject(context.Background(), bucket, key)
	require.NoError(t, err)
	defer obj.Close()
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	return string(data)
}

func TestExportQuery(t *testing.T) {
	ctx := context.Background()
	sess := session(t)
	store := memory.New()
	svc := New(store, "lobs", time.Minute, nil)

	tests := []struct {
		name        string
		column      string
		want        string
		contentType string
	}{
		{"text", "body", "long body text", contentText},
		{"binary", "scan", "\x00\xff\x10", contentBinary},
		{"integer as text", "pages", "12", contentText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := svc.ExportQuery(ctx, sess, ExportRequest{
				SQL:    "SELECT body, scan, pages FROM docs WHERE id = ?",
				Args:   []any{1},
				Column: tt.column,
				Key:    "docs/1/" + tt.column,
			})
			require.NoError(t, err)
			assert.Equal(t, "lobs", out.Object.Bucket)
			assert.Equal(t, tt.contentType, out.Object.ContentType)
			assert.Equal(t, int64(len(tt.want)), out.Object.Size)
			assert.True(t, strings.HasPrefix(out.URL, "memory://lobs/docs/1/"))
			assert.Equal(t, tt.column, out.Column.Name)
			assert.Equal(t, tt.want, read(t, store, "lobs", "docs/1/"+tt.column))
		})
	}

	meta, err := store.Metadata("lobs", "docs/1/scan")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"column": "scan", "ordinal": "2", "type": database.TypeLongBinary.String()}, meta)
}

func TestExportGeneratedKey(t *testing.T) {
	sess := session(t)
	svc := New(memory.New(), "lobs", 0, nil)

	out, err := svc.ExportQuery(context.Background(), sess, ExportRequest{
		SQL:    "SELECT title FROM docs WHERE id = 1",
		Column: "TITLE",
		Bucket: "other",
	})
	require.NoError(t, err)
	assert.Equal(t, "other", out.Object.Bucket)
	assert.True(t, strings.HasPrefix(out.Object.Key, "exports/"))
	assert.Empty(t, out.URL)
}

func TestExportErrors(t *testing.T) {
	ctx := context.Background()
	sess := session(t)
	svc := New(memory.New(), "lobs", 0, nil)

	tests := []struct {
		name string
		req  ExportRequest
		kind errs.ErrKind
	}{
		{"missing column name", ExportRequest{SQL: "SELECT 1"}, errs.ErrKindInvalidInput},
		{"no rows", ExportRequest{SQL: "SELECT body FROM docs WHERE id = 99", Column: "body"}, errs.ErrKindNotFound},
		{"unknown column", ExportRequest{SQL: "SELECT body FROM docs", Column: "nope"}, errs.ErrKindColumnNotFound},
		{"null value", ExportRequest{SQL: "SELECT body FROM docs WHERE id = 2", Column: "body"}, errs.ErrKindNullValue},
		{"bad sql", ExportRequest{SQL: "SELECT FROM", Column: "x"}, errs.ErrKindQueryFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ExportQuery(ctx, sess, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
		})
	}
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	sess := session(t)
	store := memory.New()
	require.NoError(t, store.EnsureBucket(ctx, "lobs"))
	_, err := store.PutObject(ctx, "lobs", "incoming/3", strings.NewReader("imported body"), filestore.PutOptions{Size: -1})
	require.NoError(t, err)

	svc := New(store, "lobs", 0, nil)
	// The object binds after the request arguments; one is missing here.
	_, err = svc.Import(ctx, sess, ImportRequest{
		SQL: "UPDATE docs SET scan = ? WHERE id = ?",
		Key: "incoming/3",
	})
	require.Error(t, err)

	n, err := svc.Import(ctx, sess, ImportRequest{
		SQL:  "UPDATE docs SET title = ?, scan = ? WHERE id = 2",
		Args: []any{"scanned"},
		Key:  "incoming/3",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	out, err := svc.ExportQuery(ctx, sess, ExportRequest{SQL: "SELECT scan FROM docs WHERE id = 2", Column: "scan", Key: "roundtrip"})
	require.NoError(t, err)
	assert.Equal(t, "imported body", read(t, store, "lobs", "roundtrip"))
	assert.Equal(t, int64(len("imported body")), out.Object.Size)

	_, err = svc.Import(ctx, sess, ImportRequest{SQL: "UPDATE docs SET scan = ?", Key: "missing"})
	assert.True(t, errs.IsNotFound(err))
}

func TestObjectParam(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.EnsureBucket(ctx, "lobs"))

	tests := []struct {
		name        string
		contentType string
		data        string
		tag         database.TypeTag
		size        int64
	}{
		{"plain text", "text/plain; charset=utf-8", "hello", database.TypeLongChar, 5},
		{"upper case media type", "Text/CSV", "a,b", database.TypeLongChar, 3},
		{"binary", "application/octet-stream", "\x00\x01", database.TypeLongBinary, 2},
		{"no content type", "", "raw", database.TypeLongBinary, 3},
		{"empty object", "text/plain", "", database.TypeLongChar, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.PutObject(ctx, "lobs", tt.name, strings.NewReader(tt.data),
				filestore.PutOptions{Size: -1, ContentType: tt.contentType})
			require.NoError(t, err)
			obj, err := store.GetObject(ctx, "lobs", tt.name)
			require.NoError(t, err)
			defer obj.Close()

			p := objectParam(obj)
			assert.Equal(t, tt.tag, p.Type)
			assert.Equal(t, tt.size, p.Size)
			data, err := io.ReadAll(p.R)
			require.NoError(t, err)
			assert.Equal(t, tt.data, string(data))
		})
	}
}

func TestImportTextObject(t *testing.T) {
	ctx := context.Background()
	sess := session(t)
	store := memory.New()
	require.NoError(t, store.EnsureBucket(ctx, "lobs"))
	_, err := store.PutObject(ctx, "lobs", "notes.txt", strings.NewReader("plain notes"),
		filestore.PutOptions{Size: -1, ContentType: "text/plain"})
	require.NoError(t, err)

	svc := New(store, "lobs", 0, nil)
	n, err := svc.Import(ctx, sess, ImportRequest{SQL: "UPDATE docs SET body = ? WHERE id = 2", Key: "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	st, err := sess.Prepare(ctx, "SELECT typeof(body), body FROM docs WHERE id = 2")
	require.NoError(t, err)
	defer st.Close()
	cur, err := st.Execute(ctx)
	require.NoError(t, err)
	rows, err := database.CollectRows(ctx, cur, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "text", rows[0]["typeof(body)"])
	assert.Equal(t, "plain notes", rows[0]["body"])
}
