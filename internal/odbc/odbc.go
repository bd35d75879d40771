// Package odbc is the ODBC backend: a column-binding and value-marshalling
// engine over a driver manager's call-level interface.
//
// The handle tree is Environment → Connection → Statement → Cursor → Column.
// Each result set is described once when it opens; fixed-width columns are
// bound to host buffers the driver fills on every fetch, while long and
// unbounded columns are pulled through SQLGetData in chunks when read.
package odbc

import (
	"context"
	"time"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/logger"
	"github.com/koustreak/unisql/internal/odbc/api"
)

func init() {
	database.Register(database.BackendODBC, Open)
}

// Connector opens ODBC sessions for one configured data source. It owns the
// environment and, when it loaded it, the driver manager library.
type Connector struct {
	env     *Environment
	lib     *api.Library
	dsn     string
	opts    database.Options
	timeout time.Duration
	log     *logger.Logger
}

// Open loads the driver manager named by cfg.DriverLibrary and builds a
// Connector. It is registered as the database.BackendODBC OpenFunc.
func Open(ctx context.Context, cfg *database.Config, log *logger.Logger) (database.Connector, error) {
	opts, err := database.ParseOptions(cfg.Options)
	if err != nil {
		return nil, err
	}
	lib, err := api.Load(cfg.DriverLibrary)
	if err != nil {
		return nil, err
	}
	c, err := NewConnector(lib, cfg, opts, log)
	if err != nil {
		lib.Unload()
		return nil, err
	}
	c.lib = lib
	log.With().Str("library", lib.Path()).Logger().Info("driver manager loaded")
	return c, nil
}

// NewConnector builds a Connector over an already loaded API.
func NewConnector(a api.API, cfg *database.Config, opts database.Options, log *logger.Logger) (*Connector, error) {
	if log == nil {
		log = logger.Nop()
	}
	env, err := NewEnvironment(a, log)
	if err != nil {
		return nil, err
	}
	return &Connector{
		env:     env,
		dsn:     cfg.DSN,
		opts:    opts,
		timeout: cfg.ConnectTimeout,
		log:     log,
	}, nil
}

func (c *Connector) Backend() database.Backend { return database.BackendODBC }

// Connect opens a new session, bounded by the configured connect timeout.
func (c *Connector) Connect(ctx context.Context) (database.Connectable, error) {
	return c.Session(ctx)
}

// Session is Connect returning the concrete connection.
func (c *Connector) Session(ctx context.Context) (*Connection, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.env.Connect(ctx, c.dsn, c.opts)
}

// Environment exposes the connector's environment.
func (c *Connector) Environment() *Environment { return c.env }

// Close frees the environment and unloads the driver manager. It fails
// while sessions remain open.
func (c *Connector) Close() error {
	if err := c.env.Close(); err != nil {
		return err
	}
	if c.lib != nil {
		return c.lib.Unload()
	}
	return nil
}

var _ database.Connector = (*Connector)(nil)
