package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/unisql/internal/errs"
)

// mapError converts a pgx error into *errs.Error. Server errors carry a
// SQLSTATE and are classified by it.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind, ok := errs.ClassifySQLState(pgErr.Code)
		if !ok {
			kind = errs.ErrKindQueryFailed
		}
		e := errs.Wrap(kind, msg+": "+pgErr.Message, err)
		e.SQLState = pgErr.Code
		e.Records = []errs.Record{{SQLState: pgErr.Code, Message: pgErr.Message}}
		if pgErr.Detail != "" {
			e.Records = append(e.Records, errs.Record{SQLState: pgErr.Code, Message: pgErr.Detail})
		}
		return e
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), pgconn.Timeout(err):
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	case errors.Is(err, pgx.ErrNoRows):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case errors.Is(err, pgx.ErrTxClosed):
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
