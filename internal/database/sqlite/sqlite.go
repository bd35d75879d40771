// Package sqlite is the embedded engine backend: mattn/go-sqlite3 through
// sqlx, adapted to database.Cursor by sqlcursor.
package sqlite

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/database/sqlcursor"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/logger"

	_ "github.com/mattn/go-sqlite3" // register "sqlite3" driver
)

const driverName = "sqlite3"

func init() {
	database.Register(database.BackendSQLite, Open)
}

// Open opens the database file named by cfg.DSN and validates it with a
// ping. It is registered as the database.BackendSQLite OpenFunc.
func Open(ctx context.Context, cfg *database.Config, log *logger.Logger) (database.Connector, error) {
	return New(ctx, cfg, log)
}

// New is Open returning the concrete connector.
func New(ctx context.Context, cfg *database.Config, log *logger.Logger) (*sqlcursor.Connector, error) {
	if log == nil {
		log = logger.Nop()
	}
	opts, err := database.ParseOptions(cfg.Options)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "sqlite: empty DSN")
	}

	db, err := sqlx.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, mapError(err, "invalid DSN")
	}
	if inMemory(cfg.DSN) {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else {
		db.SetMaxOpenConns(int(cfg.MaxConns))
		db.SetMaxIdleConns(int(cfg.MinConns))
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
		db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
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

	log.With().Str("dsn", cfg.DSN).Logger().Info("sqlite database opened")
	return sqlcursor.NewConnector(db, Driver{}, opts, log), nil
}

func inMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
