package errs

// SQLSTATE codes the engine reacts to directly.
const (
	StateStringTruncated = "01004" // string data, right truncated: call again for more
	StateGeneralWarning  = "01000"
	StateNoData          = "02000"
	StateGeneralError    = "HY000"
	StateCancelled       = "HY008"
	StateNotImplemented  = "HYC00"
	StateNoDriverFunc    = "IM001"
)

// exactStates is the closed classification table. Codes listed here win over
// the class prefix table below.
var exactStates = map[string]ErrKind{
	"01004": ErrKindTruncation,
	"07002": ErrKindInvalidInput, // COUNT field incorrect
	"07006": ErrKindUnsupportedConversion,
	"07009": ErrKindColumnNotFound, // invalid descriptor index
	"08001": ErrKindConnectionFailed,
	"08002": ErrKindConnectionFailed,
	"08003": ErrKindNotConnected,
	"08004": ErrKindConnectionFailed,
	"08S01": ErrKindConnectionFailed,
	"22002": ErrKindNullValue, // indicator variable required but not supplied
	"22003": ErrKindInvalidInput,
	"22018": ErrKindUnsupportedConversion,
	"24000": ErrKindInvalidCursorState,
	"25006": ErrKindReadOnlyViolation,
	"28000": ErrKindAuthenticationFailed,
	"28P01": ErrKindAuthenticationFailed,
	"42501": ErrKindPermissionDenied,
	"42703": ErrKindColumnNotFound,
	"42P01": ErrKindNotFound,
	"42S02": ErrKindNotFound,
	"42S22": ErrKindColumnNotFound,
	"57014": ErrKindTimeout, // query_canceled
	"HY001": ErrKindResourceExhausted,
	"HY008": ErrKindTimeout,
	"HY009": ErrKindInvalidInput, // invalid use of null pointer
	"HY010": ErrKindInvalidCursorState,
	"HY013": ErrKindResourceExhausted,
	"HY014": ErrKindResourceExhausted,
	"HY090": ErrKindInvalidInput,
	"HY104": ErrKindInvalidInput,
	"HY105": ErrKindInvalidInput,
	"HYC00": ErrKindCapabilityMissing,
	"HYT00": ErrKindTimeout,
	"HYT01": ErrKindTimeout,
	"IM001": ErrKindCapabilityMissing,
	"IM002": ErrKindConnectionFailed,
	"IM003": ErrKindConnectionFailed,
}

// classStates maps the two-character SQLSTATE class to a coarse kind.
var classStates = map[string]ErrKind{
	"01": ErrKindQueryFailed,
	"07": ErrKindInvalidInput,
	"08": ErrKindConnectionFailed,
	"21": ErrKindInvalidInput,
	"22": ErrKindInvalidInput,
	"23": ErrKindInvalidInput,
	"24": ErrKindInvalidCursorState,
	"25": ErrKindQueryFailed,
	"28": ErrKindAuthenticationFailed,
	"3D": ErrKindNotFound,
	"40": ErrKindQueryFailed,
	"42": ErrKindQueryFailed,
	"53": ErrKindResourceExhausted,
	"54": ErrKindResourceExhausted,
	"57": ErrKindQueryFailed,
	"HY": ErrKindQueryFailed,
	"IM": ErrKindConnectionFailed,
}

// ClassifySQLState maps a five-character SQLSTATE to an ErrKind. The exact
// table is consulted first, then the class prefix. ok is false when neither
// recognises the code.
func ClassifySQLState(state string) (kind ErrKind, ok bool) {
	if kind, ok = exactStates[state]; ok {
		return kind, true
	}
	if len(state) == 5 {
		if kind, ok = classStates[state[:2]]; ok {
			return kind, true
		}
	}
	return ErrKindUnknown, false
}

// IsWarningState reports whether state belongs to the warning class "01".
func IsWarningState(state string) bool {
	return len(state) == 5 && state[:2] == "01"
}
