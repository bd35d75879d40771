package mysql

import (
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
)

const driverName = "mysql"

// buildPool configures and returns a *sqlx.DB with pool settings.
func buildPool(cfg *database.Config, opts database.Options) (*sqlx.DB, error) {
	dsn, err := buildDSN(cfg, opts)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, mapError(err, "failed to open mysql")
	}

	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	return db, nil
}

// buildDSN normalizes cfg.DSN: temporal columns are decoded as time.Time,
// multi-statement text may return several result sets, and the dial
// timeout follows the connect timeout.
func buildDSN(cfg *database.Config, opts database.Options) (string, error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "invalid mysql DSN", err)
	}
	mc.ParseTime = true
	mc.MultiStatements = true
	if mc.Timeout == 0 {
		mc.Timeout = cfg.ConnectTimeout
	}
	if opts.LoginTimeout > 0 {
		mc.Timeout = opts.LoginTimeout
	}
	if opts.Charset != "" && opts.Charset != "UTF-8" {
		if mc.Params == nil {
			mc.Params = map[string]string{}
		}
		mc.Params["charset"] = mysqlCharset(opts.Charset)
	}
	return mc.FormatDSN(), nil
}

// mysqlCharset maps IANA names to MySQL character set names.
func mysqlCharset(iana string) string {
	switch iana {
	case "ISO-8859-1", "latin1", "windows-1252":
		return "latin1"
	case "US-ASCII", "ASCII":
		return "ascii"
	case "UTF-16", "UTF-16BE":
		return "utf16"
	}
	return iana
}
