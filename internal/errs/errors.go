// Package errs provides the unified error type used across all of unisql.
//
// Every subsystem (odbc engine, database backends, filestore, server) wraps
// its native errors into *errs.Error before returning them to callers.
// Callers use the Is* predicates to handle errors without importing
// backend-specific packages.
//
// Usage:
//
//	// In a backend, wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "query timed out", pgErr)
//
//	// In a handler, check the error kind:
//	if errs.IsNullValue(err) {
//	    return nil
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKind categorises an error without exposing backend-specific codes.
// All backends (ODBC, Postgres, MySQL, SQLite, MinIO, …) map their native
// errors to one of these kinds, giving callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows, no object, no bucket
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL or storage operation error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied

	ErrKindNotConnected          // operation on a connection that is not open
	ErrKindAuthenticationFailed  // credentials rejected
	ErrKindReadOnlyViolation     // write attempted on a read-only session
	ErrKindInvalidCursorState    // operation attempted in the wrong cursor state
	ErrKindColumnNotFound        // unknown ordinal or column name
	ErrKindUnsupportedConversion // value cannot be converted to the requested type
	ErrKindNullValue             // typed getter called on a NULL value
	ErrKindTruncation            // data was truncated
	ErrKindCapabilityMissing     // native driver lacks a required function
	ErrKindResourceExhausted     // out of memory / handles / invalid binding
	ErrKindUnclassifiedNative    // native status the classification table does not know
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindNotConnected:
		return "not_connected"
	case ErrKindAuthenticationFailed:
		return "authentication_failed"
	case ErrKindReadOnlyViolation:
		return "read_only_violation"
	case ErrKindInvalidCursorState:
		return "invalid_cursor_state"
	case ErrKindColumnNotFound:
		return "column_not_found"
	case ErrKindUnsupportedConversion:
		return "unsupported_conversion"
	case ErrKindNullValue:
		return "null_value"
	case ErrKindTruncation:
		return "truncation"
	case ErrKindCapabilityMissing:
		return "capability_missing"
	case ErrKindResourceExhausted:
		return "resource_exhausted"
	case ErrKindUnclassifiedNative:
		return "unclassified_native"
	default:
		return "unknown"
	}
}

// Record is one diagnostic entry attached to an error. It mirrors the
// native diagnostic record so the vendor detail survives classification.
type Record struct {
	SQLState   string `json:"sqlstate"`
	NativeCode int32  `json:"native_code"`
	Message    string `json:"message"`
	Row        int64  `json:"row,omitempty"`    // 0 when unknown
	Column     int64  `json:"column,omitempty"` // 0 when unknown
}

func (r Record) String() string {
	return fmt.Sprintf("[%s] (%d) %s", r.SQLState, r.NativeCode, r.Message)
}

// Error is the single error type returned by all unisql subsystems.
// Backends produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging

	// Native detail, empty for errors raised by the engine itself.
	SQLState   string
	NativeCode int32

	// Records holds every diagnostic collected for the failing call,
	// primary record first.
	Records []Record
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Kind, e.Message)
	if e.SQLState != "" {
		fmt.Fprintf(&sb, " (sqlstate %s, native %d)", e.SQLState, e.NativeCode)
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Secondary returns the diagnostic records after the primary one.
func (e *Error) Secondary() []Record {
	if len(e.Records) < 2 {
		return nil
	}
	return e.Records[1:]
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with fmt formatting.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// FromRecords promotes the primary record to an error. Its SQLSTATE is run
// through the classification table; fallback is used when the table has no
// entry for the state, exact or by class.
func FromRecords(records []Record, fallback ErrKind) *Error {
	if len(records) == 0 {
		return &Error{Kind: fallback, Message: "native call failed without diagnostics"}
	}
	primary := records[0]
	kind, ok := ClassifySQLState(primary.SQLState)
	if !ok {
		kind = fallback
	}
	return &Error{
		Kind:       kind,
		Message:    primary.Message,
		SQLState:   primary.SQLState,
		NativeCode: primary.NativeCode,
		Records:    records,
	}
}

// --- Predicates ---

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind ErrKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotFound reports whether err represents a "not found" result
// (no rows, missing object, unknown table/bucket, …).
func IsNotFound(err error) bool {
	return Is(err, ErrKindNotFound)
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return Is(err, ErrKindTimeout)
}

// IsConnectionFailed reports whether err is a connectivity failure.
func IsConnectionFailed(err error) bool {
	return Is(err, ErrKindConnectionFailed)
}

// IsQueryFailed reports whether err is a backend operation failure.
func IsQueryFailed(err error) bool {
	return Is(err, ErrKindQueryFailed)
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return Is(err, ErrKindInvalidInput)
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return Is(err, ErrKindPermissionDenied)
}

func IsNotConnected(err error) bool         { return Is(err, ErrKindNotConnected) }
func IsAuthenticationFailed(err error) bool { return Is(err, ErrKindAuthenticationFailed) }
func IsReadOnlyViolation(err error) bool    { return Is(err, ErrKindReadOnlyViolation) }
func IsInvalidCursorState(err error) bool   { return Is(err, ErrKindInvalidCursorState) }
func IsColumnNotFound(err error) bool       { return Is(err, ErrKindColumnNotFound) }
func IsNullValue(err error) bool            { return Is(err, ErrKindNullValue) }
func IsTruncation(err error) bool           { return Is(err, ErrKindTruncation) }
func IsCapabilityMissing(err error) bool    { return Is(err, ErrKindCapabilityMissing) }
func IsResourceExhausted(err error) bool    { return Is(err, ErrKindResourceExhausted) }
func IsUnclassifiedNative(err error) bool   { return Is(err, ErrKindUnclassifiedNative) }

// IsUnsupportedConversion reports whether a getter was asked for a type the
// source value cannot be converted to.
func IsUnsupportedConversion(err error) bool {
	return Is(err, ErrKindUnsupportedConversion)
}
