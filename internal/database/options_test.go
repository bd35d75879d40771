package database

import (
	"testing"
	"time"

	"github.com/koustreak/unisql/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]string
		check func(t *testing.T, o Options)
	}{
		{
			name:  "defaults",
			input: nil,
			check: func(t *testing.T, o Options) {
				assert.Equal(t, DefaultOptions(), o)
				assert.Equal(t, "UTF-8", o.Charset)
				assert.Equal(t, ProtocolNarrow, o.Protocol)
				assert.True(t, o.Autocommit)
			},
		},
		{
			name: "all keys",
			input: map[string]string{
				OptCharset:      "ISO-8859-1",
				OptProtocol:     "WIDE",
				OptLOBPrefetch:  "true",
				OptMaxFieldSize: "4096",
				OptChunkSize:    " 1024 ",
				OptAutocommit:   "false",
				OptReadOnly:     "1",
				OptLoginTimeout: "3s",
				OptBookmarks:    "true",
			},
			check: func(t *testing.T, o Options) {
				assert.Equal(t, Options{
					Charset:      "ISO-8859-1",
					Protocol:     ProtocolWide,
					LOBPrefetch:  true,
					MaxFieldSize: 4096,
					ChunkSize:    1024,
					Autocommit:   false,
					ReadOnly:     true,
					LoginTimeout: 3 * time.Second,
					Bookmarks:    true,
				}, o)
			},
		},
		{
			name:  "keys are case-insensitive",
			input: map[string]string{"Chunk_Size": "64"},
			check: func(t *testing.T, o Options) {
				assert.Equal(t, 64, o.ChunkSize)
			},
		},
		{
			name:  "max field size is clamped",
			input: map[string]string{OptMaxFieldSize: "999999999"},
			check: func(t *testing.T, o Options) {
				assert.Equal(t, MaxFieldSizeLimit, o.MaxFieldSize)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := ParseOptions(tt.input)
			require.NoError(t, err)
			tt.check(t, o)
		})
	}
}

func TestParseOptionsRejects(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]string
	}{
		{"unknown key", map[string]string{"chunksize": "100"}},
		{"empty charset", map[string]string{OptCharset: " "}},
		{"bad protocol", map[string]string{OptProtocol: "utf16"}},
		{"bad bool", map[string]string{OptLOBPrefetch: "maybe"}},
		{"zero size", map[string]string{OptMaxFieldSize: "0"}},
		{"negative size", map[string]string{OptChunkSize: "-5"}},
		{"chunk below minimum", map[string]string{OptChunkSize: "8"}},
		{"bad duration", map[string]string{OptLoginTimeout: "ten"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOptions(tt.input)
			require.Error(t, err)
			assert.True(t, errs.IsInvalidInput(err))
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{Backend: BackendSQLite, DSN: ":memory:", MaxConns: 3}
	cfg.ApplyDefaults()

	def := DefaultConfig(BackendSQLite, ":memory:")
	assert.Equal(t, int32(3), cfg.MaxConns, "explicit values survive")
	assert.Equal(t, def.MinConns, cfg.MinConns)
	assert.Equal(t, def.QueryTimeout, cfg.QueryTimeout)
	assert.NotNil(t, cfg.Options)
}
