package odbc

import (
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/logger"
	"github.com/koustreak/unisql/internal/odbc/api"
)

const (
	// maxDiagRecords bounds how many records one call may contribute.
	maxDiagRecords = 64
	// maxDiagLog bounds a handle's log; the oldest records are dropped.
	maxDiagLog = 256
)

// handle is one native handle together with the append-only diagnostic log
// of the calls made on it.
type handle struct {
	api   api.API
	typ   api.HandleType
	h     api.Handle
	log   *logger.Logger
	diags []errs.Record
}

// collect drains the driver's diagnostic records for the last call on h,
// primary record first, appends them to the log and returns them.
func (h *handle) collect() []errs.Record {
	var recs []errs.Record
	withFields := h.api.Has(api.FnGetDiagField)
	for i := int16(1); i <= maxDiagRecords; i++ {
		d, ret := h.api.GetDiagRec(h.typ, h.h, i)
		if !ret.Succeeded() {
			break
		}
		r := errs.Record{SQLState: d.SQLState, NativeCode: d.NativeError, Message: d.Message}
		if withFields {
			if v, ret := h.api.GetDiagField(h.typ, h.h, i, api.DiagRowNumber); ret.Succeeded() && v > 0 {
				r.Row = v
			}
			if v, ret := h.api.GetDiagField(h.typ, h.h, i, api.DiagColumnNumber); ret.Succeeded() && v > 0 {
				r.Column = v
			}
		}
		recs = append(recs, r)
	}

	h.diags = append(h.diags, recs...)
	if over := len(h.diags) - maxDiagLog; over > 0 {
		h.diags = append(h.diags[:0:0], h.diags[over:]...)
	}
	return recs
}

// check turns the status of a call into an error. SUCCESS_WITH_INFO records
// are logged and kept. NO_DATA and NEED_DATA are not errors here; callers
// that care inspect the status themselves.
func (h *handle) check(op string, ret api.Return) error {
	switch ret {
	case api.Success, api.NoData, api.NeedData:
		return nil
	case api.SuccessWithInfo:
		for _, r := range h.collect() {
			h.log.Diagnostic(r.SQLState, r.NativeCode, r.Message)
		}
		return nil
	case api.Error:
		return h.raise(op, h.collect())
	case api.InvalidHandle:
		return errs.Newf(errs.ErrKindUnclassifiedNative, "%s: invalid %s handle", op, h.typ)
	default:
		return errs.Newf(errs.ErrKindUnclassifiedNative, "%s: unexpected return code %d", op, int16(ret))
	}
}

// fatal is check for a status the caller has no success path for: a status
// check would accept is reported as unclassified.
func (h *handle) fatal(op string, ret api.Return) error {
	if err := h.check(op, ret); err != nil {
		return err
	}
	return errs.Newf(errs.ErrKindUnclassifiedNative, "%s: unexpected %s", op, ret)
}

// expect requires SUCCESS or SUCCESS_WITH_INFO.
func (h *handle) expect(op string, ret api.Return) error {
	if ret.Succeeded() {
		return h.check(op, ret)
	}
	return h.fatal(op, ret)
}

// raise promotes the primary record to an error. A state the classification
// table does not recognise yields ErrKindUnclassifiedNative.
func (h *handle) raise(op string, recs []errs.Record) error {
	err := errs.FromRecords(recs, errs.ErrKindUnclassifiedNative)
	if len(recs) == 0 {
		err.Message = op + " failed without diagnostics"
	}
	h.log.With().Str("op", op).Str("sqlstate", err.SQLState).Logger().
		Debugf("native call failed: %s", err.Message)
	return err
}

// Diagnostics returns a copy of the handle's diagnostic log.
func (h *handle) Diagnostics() []errs.Record {
	out := make([]errs.Record, len(h.diags))
	copy(out, h.diags)
	return out
}

// onlyTruncation reports whether every record is the "data truncated, call
// again" warning.
func onlyTruncation(recs []errs.Record) bool {
	for _, r := range recs {
		if r.SQLState != errs.StateStringTruncated {
			return false
		}
	}
	return true
}

// promoteInfo turns an unexpected SUCCESS_WITH_INFO into a hard error whose
// primary record is the first non-truncation record.
func promoteInfo(recs []errs.Record) *errs.Error {
	ordered := make([]errs.Record, 0, len(recs))
	for _, r := range recs {
		if r.SQLState != errs.StateStringTruncated {
			ordered = append(ordered, r)
		}
	}
	for _, r := range recs {
		if r.SQLState == errs.StateStringTruncated {
			ordered = append(ordered, r)
		}
	}
	return errs.FromRecords(ordered, errs.ErrKindUnclassifiedNative)
}
