package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/logger"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind       string        `json:"kind"`
	Message    string        `json:"message"`
	SQLState   string        `json:"sqlstate,omitempty"`
	NativeCode int32         `json:"native_code,omitempty"`
	Records    []errs.Record `json:"records,omitempty"`
}

// statusFor maps an error kind to the HTTP status returned for it.
func statusFor(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindNotFound, errs.ErrKindColumnNotFound:
		return http.StatusNotFound
	case errs.ErrKindPermissionDenied, errs.ErrKindAuthenticationFailed:
		return http.StatusForbidden
	case errs.ErrKindConnectionFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err as a JSON error body. Server-side failures are
// logged; client errors are left to the request log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	detail := errorDetail{Kind: errs.ErrKindUnknown.String(), Message: err.Error()}
	var e *errs.Error
	if errors.As(err, &e) {
		detail = errorDetail{
			Kind:       e.Kind.String(),
			Message:    e.Error(),
			SQLState:   e.SQLState,
			NativeCode: e.NativeCode,
			Records:    e.Secondary(),
		}
	}

	status := statusFor(errs.KindOf(err))
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).With().
			Str("kind", detail.Kind).
			Err(err).
			Logger().Error("request failed")
	}
	writeJSON(w, status, errorBody{Error: detail})
}

// decodeBody reads a JSON request body into v. Unknown fields are rejected
// and numbers are kept as json.Number for normalizeArgs.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.New(errs.ErrKindInvalidInput, "request body is empty")
		}
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid request body", err)
	}
	return nil
}

// normalizeArgs turns JSON-decoded arguments into parameter values:
// integral numbers bind as int64, other numbers as float64. Objects and
// arrays have no parameter form.
func normalizeArgs(in []any) ([]any, error) {
	out := make([]any, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case nil, string, bool:
			out[i] = x
		case json.Number:
			if n, err := x.Int64(); err == nil {
				out[i] = n
				continue
			}
			f, err := x.Float64()
			if err != nil {
				return nil, errs.Wrap(errs.ErrKindInvalidInput, "argument "+x.String(), err)
			}
			out[i] = f
		default:
			return nil, errs.Newf(errs.ErrKindInvalidInput, "argument %d: unsupported JSON type %T", i+1, v)
		}
	}
	return out, nil
}
