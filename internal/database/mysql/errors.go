package mysql

import (
	"context"
	"database/sql"
	"errors"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/unisql/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDuplicateEntry    = 1062
	errNoReferencedRow   = 1452
	errRowIsReferenced   = 1451
	errBadFieldError     = 1054
	errAccessDenied      = 1045
	errDBAccessDenied    = 1044
	errTableAccess       = 1142
	errConnRefused       = 2003
	errUnknownDatabase   = 1049
	errNoSuchTable       = 1146
	errReadOnlyTx        = 1792
	errReadOnlyServer    = 1290
	errLockWaitTimeout   = 1205
	errQueryInterrupted  = 1317
	errOutOfMemory       = 1037
	errTooManyConns      = 1040
	errDataTooLong       = 1406
	errTruncatedValue    = 1292
	errLockDeadlock      = 1213
	errStatementTimedOut = 3024
)

func (Driver) MapError(err error, msg string) error {
	return mapError(err, msg)
}

// mapError converts a MySQL driver error into *errs.Error. The server's
// vendor number is classified first; the SQLSTATE covers the rest.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, gomysql.ErrInvalidConn) {
		return errs.Wrap(errs.ErrKindNotConnected, msg, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		state := string(mysqlErr.SQLState[:])
		if mysqlErr.SQLState == [5]byte{} {
			state = ""
		}
		kind, ok := classifyMySQLCode(mysqlErr.Number)
		if !ok {
			kind, ok = errs.ClassifySQLState(state)
		}
		if !ok {
			kind = errs.ErrKindQueryFailed
		}
		e := errs.Wrap(kind, msg+": "+mysqlErr.Message, err)
		e.SQLState = state
		e.NativeCode = int32(mysqlErr.Number)
		e.Records = []errs.Record{{SQLState: state, NativeCode: e.NativeCode, Message: mysqlErr.Message}}
		return e
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps the server error numbers whose SQLSTATE is too
// coarse ("HY000", "42000") to tell them apart.
func classifyMySQLCode(number uint16) (errs.ErrKind, bool) {
	switch number {
	case errDuplicateEntry, errNoReferencedRow, errRowIsReferenced:
		return errs.ErrKindInvalidInput, true
	case errBadFieldError:
		return errs.ErrKindColumnNotFound, true
	case errNoSuchTable, errUnknownDatabase:
		return errs.ErrKindNotFound, true
	case errAccessDenied:
		return errs.ErrKindAuthenticationFailed, true
	case errDBAccessDenied, errTableAccess:
		return errs.ErrKindPermissionDenied, true
	case errConnRefused:
		return errs.ErrKindConnectionFailed, true
	case errReadOnlyTx, errReadOnlyServer:
		return errs.ErrKindReadOnlyViolation, true
	case errLockWaitTimeout, errQueryInterrupted, errStatementTimedOut, errLockDeadlock:
		return errs.ErrKindTimeout, true
	case errOutOfMemory, errTooManyConns:
		return errs.ErrKindResourceExhausted, true
	case errDataTooLong, errTruncatedValue:
		return errs.ErrKindTruncation, true
	}
	return errs.ErrKindUnknown, false
}
