// Package mysql is the MySQL backend: go-sql-driver/mysql through sqlx,
// adapted to database.Cursor by sqlcursor.
package mysql

import (
	"context"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/database/sqlcursor"
	"github.com/koustreak/unisql/internal/logger"

	_ "github.com/go-sql-driver/mysql" // register "mysql" driver
)

func init() {
	database.Register(database.BackendMySQL, Open)
}

// Open builds a pool for cfg.DSN and validates it with a ping. It is
// registered as the database.BackendMySQL OpenFunc.
func Open(ctx context.Context, cfg *database.Config, log *logger.Logger) (database.Connector, error) {
	return New(ctx, cfg, log)
}

// New is Open returning the concrete connector. Sessions are safe for use
// by one goroutine at a time; the connector itself is safe for concurrent use.
func New(ctx context.Context, cfg *database.Config, log *logger.Logger) (*sqlcursor.Connector, error) {
	if log == nil {
		log = logger.Nop()
	}
	opts, err := database.ParseOptions(cfg.Options)
	if err != nil {
		return nil, err
	}

	db, err := buildPool(cfg, opts)
	if err != nil {
		return nil, err
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, mapError(err, "ping failed")
	}

	log.Info("mysql pool ready")
	return sqlcursor.NewConnector(db, Driver{}, opts, log), nil
}
