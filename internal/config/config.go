// Package config loads the unisqld YAML configuration.
//
// Example:
//
//	log:
//	  level: info
//	server:
//	  addr: ":8080"
//	filestore:
//	  provider: minio
//	  endpoint: localhost:9000
//	  access_key: ${MINIO_ACCESS_KEY}
//	  secret_key: ${MINIO_SECRET_KEY}
//	connections:
//	  warehouse:
//	    backend: odbc
//	    driver_library: /usr/lib/x86_64-linux-gnu/libodbc.so.2
//	    dsn: "DSN=warehouse;UID=report;PWD=${WAREHOUSE_PWD}"
//	    options:
//	      charset: windows-1252
//	      lob_prefetch: "true"
package config

import (
	"bytes"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/filestore"
	"github.com/koustreak/unisql/internal/logger"
	"go.yaml.in/yaml/v3"
)

// Config is the root of the configuration file.
type Config struct {
	Log         *logger.Config              `yaml:"log"`
	Server      ServerConfig                `yaml:"server"`
	FileStore   *filestore.Config           `yaml:"filestore"` // nil disables LOB export/import
	Connections map[string]*database.Config `yaml:"connections"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxRows caps the rows a query endpoint returns when the request sets no limit.
	MaxRows int `yaml:"max_rows"`
}

// DefaultServerConfig returns the settings used for omitted server fields.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxRows:         1000,
	}
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindNotFound, "config: cannot read "+path, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references, decodes data, applies defaults and
// validates the result. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnv(data, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "config: invalid yaml", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills omitted sections and fields.
func (c *Config) ApplyDefaults() {
	if c.Log == nil {
		c.Log = logger.DefaultConfig()
	} else {
		def := logger.DefaultConfig()
		if c.Log.Level == "" {
			c.Log.Level = def.Level
		}
		if c.Log.Format == "" {
			c.Log.Format = def.Format
		}
		if c.Log.TimeFormat == "" {
			c.Log.TimeFormat = def.TimeFormat
		}
		if c.Log.Output == nil {
			c.Log.Output = def.Output
		}
	}

	def := DefaultServerConfig()
	if c.Server.Addr == "" {
		c.Server.Addr = def.Addr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = def.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = def.WriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.Server.MaxRows == 0 {
		c.Server.MaxRows = def.MaxRows
	}

	if c.FileStore != nil {
		c.FileStore.ApplyDefaults()
	}
	for _, conn := range c.Connections {
		if conn != nil {
			conn.ApplyDefaults()
		}
	}
}

var backends = map[database.Backend]bool{
	database.BackendODBC:     true,
	database.BackendPostgres: true,
	database.BackendMySQL:    true,
	database.BackendSQLite:   true,
}

// Validate reports the first configuration error, checking connections in
// name order.
func (c *Config) Validate() error {
	if len(c.Connections) == 0 {
		return errs.New(errs.ErrKindInvalidInput, "config: at least one connection is required")
	}
	if c.Server.MaxRows < 0 {
		return errs.New(errs.ErrKindInvalidInput, "config: server.max_rows must not be negative")
	}

	for _, name := range c.ConnectionNames() {
		conn := c.Connections[name]
		if conn == nil {
			return errs.Newf(errs.ErrKindInvalidInput, "config: connection %q is empty", name)
		}
		if !backends[conn.Backend] {
			return errs.Newf(errs.ErrKindInvalidInput, "config: connection %q: unknown backend %q", name, conn.Backend)
		}
		if conn.DSN == "" {
			return errs.Newf(errs.ErrKindInvalidInput, "config: connection %q: dsn is required", name)
		}
		if conn.Backend == database.BackendODBC && conn.DriverLibrary == "" {
			return errs.Newf(errs.ErrKindInvalidInput, "config: connection %q: driver_library is required for odbc", name)
		}
		if _, err := database.ParseOptions(conn.Options); err != nil {
			return errs.Wrap(errs.KindOf(err), "config: connection "+name, err)
		}
	}

	if c.FileStore != nil {
		if err := c.FileStore.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ConnectionNames returns the configured connection names, sorted.
func (c *Config) ConnectionNames() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnv replaces ${VAR} and ${VAR:-default}. A reference to an unset
// variable without a default is an error. A bare $ is left alone, since
// DSNs and passwords may contain one.
func expandEnv(data []byte, lookup func(string) (string, bool)) ([]byte, error) {
	var missing []string
	out := envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		m := envRef.FindSubmatch(ref)
		name := string(m[1])
		if v, ok := lookup(name); ok {
			return []byte(v)
		}
		if m[2] != nil {
			return m[3]
		}
		missing = append(missing, name)
		return ref
	})
	if len(missing) > 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "config: unset environment variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
