package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "json config", config: &Config{Level: "debug", Format: "json", Output: io.Discard}},
		{name: "console config", config: &Config{Level: "info", Format: "console", Output: io.Discard}},
		{name: "nil output", config: &Config{Level: "warn"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, New(tt.config))
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "info", Format: "json", Output: buf})

	l.Info("cursor opened")

	entry := decode(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "cursor opened", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "info", Format: "json", Output: buf})

	child := l.With().
		Str("connection", "warehouse").
		Int("columns", 3).
		Logger()
	child.Info("result set described")

	entry := decode(t, buf)
	assert.Equal(t, "warehouse", entry["connection"])
	assert.Equal(t, float64(3), entry["columns"])
}

func TestLogger_Component(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "debug", Format: "json", Output: buf}).Component("odbc")

	l.Debug("statement prepared")

	entry := decode(t, buf)
	assert.Equal(t, "odbc", entry["component"])
	assert.Equal(t, "debug", entry["level"])
}

func TestLogger_Diagnostic(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "info", Format: "json", Output: buf})

	l.Diagnostic("01004", 0, "String data, right truncated")

	entry := decode(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "01004", entry["sqlstate"])
	assert.Equal(t, float64(0), entry["native_code"])
}

func TestLogger_ErrorWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "error", Format: "json", Output: buf})

	l.ErrorWith("fetch failed", errors.New("communication link failure"), map[string]interface{}{
		"row": 12,
	})

	entry := decode(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "communication link failure", entry["error"])
	assert.Equal(t, float64(12), entry["row"])
}

func TestLogger_Context(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "info", Format: "json", Output: buf})

	ctx := l.WithContext(context.Background())
	FromContext(ctx).Info("from context")

	entry := decode(t, buf)
	assert.Equal(t, "from context", entry["message"])

	// No logger in context: must not panic and must not write anywhere.
	FromContext(context.Background()).Info("dropped")
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFunc  func(*Logger)
		expected bool
	}{
		{"debug level logs debug", "debug", func(l *Logger) { l.Debug("d") }, true},
		{"info level skips debug", "info", func(l *Logger) { l.Debug("d") }, false},
		{"error level logs error", "error", func(l *Logger) { l.Error("e") }, true},
		{"error level skips warn", "error", func(l *Logger) { l.Warn("w") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			l := New(&Config{Level: tt.level, Format: "json", Output: buf})

			tt.logFunc(l)

			if tt.expected {
				assert.NotEmpty(t, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("nothing")
	l.Component("x").Warn("nothing")
}

func BenchmarkLogger_WithFields(b *testing.B) {
	l := New(&Config{Level: "info", Format: "json", Output: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.With().
			Str("connection", "warehouse").
			Int("row", i).
			Logger().
			Info("row fetched")
	}
}
