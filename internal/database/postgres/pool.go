package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
)

// buildPool creates a pgxpool from the given config. The pool connects
// lazily; callers ping it.
func buildPool(ctx context.Context, cfg *database.Config, opts database.Options) (*pgxpool.Pool, error) {
	poolCfg, err := buildPoolConfig(cfg, opts)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, mapError(err, "failed to create connection pool")
	}
	return pool, nil
}

// buildPoolConfig parses cfg.DSN and applies the pool and session settings.
// Read-only sessions are enforced by the server through
// default_transaction_read_only.
func buildPoolConfig(cfg *database.Config, opts database.Options) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid postgres DSN", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	if opts.LoginTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = opts.LoginTimeout
	}
	if opts.ReadOnly {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = map[string]string{}
		}
		poolCfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	}
	return poolCfg, nil
}
