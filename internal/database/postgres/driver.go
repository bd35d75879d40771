// Package postgres is the native PostgreSQL backend built on pgx. Rows are
// decoded from pgx's binary results and served through sqlcursor.
package postgres

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/logger"
)

func init() {
	database.Register(database.BackendPostgres, Open)
}

// Connector hands out sessions on connections acquired from a pgxpool.
// It is safe for concurrent use by multiple goroutines.
type Connector struct {
	pool *pgxpool.Pool
	opts database.Options
	log  *logger.Logger

	mu   sync.Mutex
	open int
}

// Open is registered as the database.BackendPostgres OpenFunc.
func Open(ctx context.Context, cfg *database.Config, log *logger.Logger) (database.Connector, error) {
	return New(ctx, cfg, log)
}

// New connects to PostgreSQL using the provided Config. It calls Ping to
// validate the connection before returning.
func New(ctx context.Context, cfg *database.Config, log *logger.Logger) (*Connector, error) {
	if log == nil {
		log = logger.Nop()
	}
	opts, err := database.ParseOptions(cfg.Options)
	if err != nil {
		return nil, err
	}

	pool, err := buildPool(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	c := &Connector{pool: pool, opts: opts, log: log}
	if err := c.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("postgres pool ready")
	return c, nil
}

func (c *Connector) Backend() database.Backend { return database.BackendPostgres }

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (c *Connector) Ping(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Connect acquires one pooled connection for a new session.
func (c *Connector) Connect(ctx context.Context) (database.Connectable, error) {
	return c.Session(ctx)
}

// Session is Connect returning the concrete session.
func (c *Connector) Session(ctx context.Context) (*Session, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, mapError(err, "failed to open session")
	}
	s := &Session{
		conn:  conn,
		opts:  c.opts,
		stmts: map[*Statement]struct{}{},
		log:   c.log,
	}
	if !c.opts.Autocommit {
		if err := s.begin(ctx); err != nil {
			conn.Release()
			return nil, err
		}
	}
	c.mu.Lock()
	c.open++
	c.mu.Unlock()
	s.release = func() {
		c.mu.Lock()
		c.open--
		c.mu.Unlock()
	}
	c.log.Debug("session opened")
	return s, nil
}

// Close drains the connection pool. It fails while sessions remain open.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open > 0 {
		return errs.Newf(errs.ErrKindInvalidCursorState, "%d sessions still open", c.open)
	}
	c.pool.Close()
	return nil
}

var _ database.Connector = (*Connector)(nil)
