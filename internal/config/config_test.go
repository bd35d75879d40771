package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const full = `
log:
  level: debug
  format: console
server:
  addr: "127.0.0.1:9090"
  max_rows: 50
  write_timeout: 2m
filestore:
  provider: memory
connections:
  local:
    backend: sqlite
    dsn: ":memory:"
  warehouse:
    backend: odbc
    driver_library: /usr/lib/libodbc.so.2
    dsn: "DSN=warehouse;PWD=${UNISQL_TEST_PWD}"
    max_conns: 4
    options:
      charset: windows-1252
      lob_prefetch: "true"
`

func TestParse(t *testing.T) {
	t.Setenv("UNISQL_TEST_PWD", "s3cr$t")

	cfg, err := Parse([]byte(full))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "rfc3339", cfg.Log.TimeFormat)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, 50, cfg.Server.MaxRows)
	assert.Equal(t, 2*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)

	require.NotNil(t, cfg.FileStore)
	assert.Equal(t, filestore.ProviderMemory, cfg.FileStore.Provider)
	assert.Equal(t, "unisql-lobs", cfg.FileStore.Bucket)

	assert.Equal(t, []string{"local", "warehouse"}, cfg.ConnectionNames())
	wh := cfg.Connections["warehouse"]
	assert.Equal(t, database.BackendODBC, wh.Backend)
	assert.Equal(t, "DSN=warehouse;PWD=s3cr$t", wh.DSN)
	assert.Equal(t, int32(4), wh.MaxConns)
	assert.Equal(t, int32(2), wh.MinConns)
	assert.Equal(t, "windows-1252", wh.Options["charset"])

	local := cfg.Connections["local"]
	assert.NotNil(t, local.Options)
	assert.Equal(t, 30*time.Second, local.QueryTimeout)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("connections:\n  db:\n    backend: sqlite\n    dsn: \":memory:\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultServerConfig(), cfg.Server)
	assert.Nil(t, cfg.FileStore)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		kind errs.ErrKind
	}{
		{"no connections", "server:\n  addr: \":1\"\n", errs.ErrKindInvalidInput},
		{"unknown key", "bogus: 1\nconnections:\n  db:\n    backend: sqlite\n    dsn: x\n", errs.ErrKindInvalidInput},
		{"bad yaml", "connections: [", errs.ErrKindInvalidInput},
		{"unknown backend", "connections:\n  db:\n    backend: oracle\n    dsn: x\n", errs.ErrKindInvalidInput},
		{"missing dsn", "connections:\n  db:\n    backend: mysql\n", errs.ErrKindInvalidInput},
		{"odbc without library", "connections:\n  db:\n    backend: odbc\n    dsn: DSN=x\n", errs.ErrKindInvalidInput},
		{"bad option", "connections:\n  db:\n    backend: sqlite\n    dsn: x\n    options:\n      chunk_size: \"-1\"\n", errs.ErrKindInvalidInput},
		{"negative max rows", "server:\n  max_rows: -1\nconnections:\n  db:\n    backend: sqlite\n    dsn: x\n", errs.ErrKindInvalidInput},
		{"incomplete minio", "filestore:\n  provider: minio\nconnections:\n  db:\n    backend: sqlite\n    dsn: x\n", errs.ErrKindInvalidInput},
		{"unset variable", "connections:\n  db:\n    backend: sqlite\n    dsn: ${UNISQL_TEST_UNSET_VAR}\n", errs.ErrKindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
		})
	}
}

func TestExpandEnv(t *testing.T) {
	env := map[string]string{"USER": "report", "EMPTY": ""}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	tests := []struct {
		in   string
		want string
	}{
		{"UID=${USER}", "UID=report"},
		{"${MISSING:-fallback}", "fallback"},
		{"${EMPTY:-fallback}", ""},
		{"${MISSING:-}", ""},
		{"PWD=pa$$word", "PWD=pa$$word"},
		{"$USER", "$USER"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := expandEnv([]byte(tt.in), lookup)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, err := expandEnv([]byte("${A} ${B:-x} ${C}"), lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A, C")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unisqld.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connections:\n  db:\n    backend: sqlite\n    dsn: \":memory:\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.Connections, "db")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errs.IsNotFound(err))
}
