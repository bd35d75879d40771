package api

// Handle is an opaque native handle (SQLHANDLE).
type Handle uintptr

// NullHandle is the absent parent handle used when allocating an environment.
const NullHandle Handle = 0

// HandleType selects the kind of handle passed to a call.
type HandleType int16

const (
	HandleEnv  HandleType = 1
	HandleDbc  HandleType = 2
	HandleStmt HandleType = 3
	HandleDesc HandleType = 4
)

func (t HandleType) String() string {
	switch t {
	case HandleEnv:
		return "env"
	case HandleDbc:
		return "dbc"
	case HandleStmt:
		return "stmt"
	case HandleDesc:
		return "desc"
	default:
		return "unknown"
	}
}

// Return is the status code every native call returns (SQLRETURN).
type Return int16

const (
	Success         Return = 0
	SuccessWithInfo Return = 1
	StillExecuting  Return = 2
	NeedData        Return = 99
	NoData          Return = 100
	Error           Return = -1
	InvalidHandle   Return = -2
)

func (r Return) String() string {
	switch r {
	case Success:
		return "SQL_SUCCESS"
	case SuccessWithInfo:
		return "SQL_SUCCESS_WITH_INFO"
	case StillExecuting:
		return "SQL_STILL_EXECUTING"
	case NeedData:
		return "SQL_NEED_DATA"
	case NoData:
		return "SQL_NO_DATA"
	case Error:
		return "SQL_ERROR"
	case InvalidHandle:
		return "SQL_INVALID_HANDLE"
	default:
		return "SQL_RETURN(unknown)"
	}
}

// Succeeded reports SUCCESS or SUCCESS_WITH_INFO.
func (r Return) Succeeded() bool {
	return r == Success || r == SuccessWithInfo
}

// Length and indicator sentinels.
const (
	NullData         int64 = -1
	DataAtExec       int64 = -2
	NTS              int64 = -3
	NoTotal          int64 = -4
	lenDataAtExecOff int64 = -100
)

// LenDataAtExec encodes a known total length for a data-at-execution
// parameter (SQL_LEN_DATA_AT_EXEC).
func LenDataAtExec(n int64) int64 {
	return lenDataAtExecOff - n
}

// IsDataAtExec reports whether ind requests data-at-execution.
func IsDataAtExec(ind int64) bool {
	return ind == DataAtExec || ind <= lenDataAtExecOff
}

// Environment, connection and statement attributes.
const (
	AttrODBCVersion    int32 = 200
	AttrAccessMode     int32 = 101
	AttrAutocommit     int32 = 102
	AttrLoginTimeout   int32 = 103
	AttrConnectionDead int32 = 1209
	AttrUseBookmarks   int32 = 12
	AttrAppRowDesc     int32 = 10010
	AttrAppParamDesc   int32 = 10011
	OVODBC3                  = 3
	AutocommitOff            = 0
	AutocommitOn             = 1
	ModeReadWrite            = 0
	ModeReadOnly             = 1
	UseBookmarksOff          = 0
	UseBookmarksOn           = 1
	ConnectionAlive          = 0
	ConnectionDead           = 1
)

// FreeStmt options.
const (
	Close       uint16 = 0
	Drop        uint16 = 1
	Unbind      uint16 = 2
	ResetParams uint16 = 3
)

// EndTran completion types.
const (
	Commit   int16 = 0
	Rollback int16 = 1
)

// Nullability as reported by SQLDescribeCol.
const (
	NoNulls         int16 = 0
	Nullable        int16 = 1
	NullableUnknown int16 = 2
)

// SQL (wire) data types.
const (
	TypeUnknown       int16 = 0
	TypeChar          int16 = 1
	TypeNumeric       int16 = 2
	TypeDecimal       int16 = 3
	TypeInteger       int16 = 4
	TypeSmallint      int16 = 5
	TypeFloat         int16 = 6
	TypeReal          int16 = 7
	TypeDouble        int16 = 8
	TypeDatetime      int16 = 9
	TypeTimeV2        int16 = 10 // ODBC 2 SQL_TIME
	TypeTimestampV2   int16 = 11 // ODBC 2 SQL_TIMESTAMP
	TypeVarchar       int16 = 12
	TypeBoolean       int16 = 16
	TypeDate          int16 = 91
	TypeTime          int16 = 92
	TypeTimestamp     int16 = 93
	TypeLongVarchar   int16 = -1
	TypeBinary        int16 = -2
	TypeVarbinary     int16 = -3
	TypeLongVarbinary int16 = -4
	TypeBigint        int16 = -5
	TypeTinyint       int16 = -6
	TypeBit           int16 = -7
	TypeWChar         int16 = -8
	TypeWVarchar      int16 = -9
	TypeWLongVarchar  int16 = -10
	TypeGUID          int16 = -11
)

// C (host buffer) data types.
const (
	CChar      int16 = 1
	CNumeric   int16 = 2
	CFloat     int16 = 7
	CDouble    int16 = 8
	CDate      int16 = 91
	CTime      int16 = 92
	CTimestamp int16 = 93
	CBinary    int16 = -2
	CBit       int16 = -7
	CWChar     int16 = -8
	CGUID      int16 = -11
	CSTinyint  int16 = -26
	CUTinyint  int16 = -28
	CSShort    int16 = -15
	CUShort    int16 = -17
	CSLong     int16 = -16
	CULong     int16 = -18
	CSBigint   int16 = -25
	CUBigint   int16 = -27
	CBookmark        = CUBigint
)

// Descriptor and column attribute fields.
const (
	DescType          uint16 = 1002
	DescOctetLenPtr   uint16 = 1004
	DescPrecision     uint16 = 1005
	DescScale         uint16 = 1006
	DescIndicatorPtr  uint16 = 1009
	DescDataPtr       uint16 = 1010
	DescUnsigned      uint16 = 8
	DescOctetLength   uint16 = 1013
	DescDisplaySize   uint16 = 6
	DescTypeName      uint16 = 14
	DescAutoUnique    uint16 = 11
	DescUnsignedTrue         = 1
	DescUnsignedFalse        = 0
)

// Diagnostic header and record fields.
const (
	DiagNumber       int16 = 2
	DiagRowNumber    int16 = -1248
	DiagColumnNumber int16 = -1247
)

// ParamInput is the only parameter direction the engine binds.
const ParamInput int16 = 1

// DriverNoPrompt is the SQLDriverConnect completion mode.
const DriverNoPrompt uint16 = 0
