// Package api is the native call surface of the ODBC engine: the handle and
// status types, the C data layouts, and the API interface through which the
// engine reaches a driver manager.
//
// API is implemented by Library, which resolves every required symbol once
// at load time, and by the scripted fake in odbctest. Optional functions are
// reported through Has; calling one the driver lacks is a programming error
// the engine guards against with a capability-missing error.
package api

// Native function names. They double as capability names for Has.
const (
	FnAllocHandle    = "SQLAllocHandle"
	FnFreeHandle     = "SQLFreeHandle"
	FnSetEnvAttr     = "SQLSetEnvAttr"
	FnSetConnectAttr = "SQLSetConnectAttr"
	FnGetConnectAttr = "SQLGetConnectAttr"
	FnSetStmtAttr    = "SQLSetStmtAttr"
	FnGetStmtAttr    = "SQLGetStmtAttr"
	FnSetDescField   = "SQLSetDescField"
	FnDriverConnect  = "SQLDriverConnect"
	FnDisconnect     = "SQLDisconnect"
	FnEndTran        = "SQLEndTran"
	FnPrepare        = "SQLPrepare"
	FnNumParams      = "SQLNumParams"
	FnDescribeParam  = "SQLDescribeParam"
	FnBindParameter  = "SQLBindParameter"
	FnExecute        = "SQLExecute"
	FnParamData      = "SQLParamData"
	FnPutData        = "SQLPutData"
	FnNumResultCols  = "SQLNumResultCols"
	FnDescribeCol    = "SQLDescribeCol"
	FnColAttribute   = "SQLColAttribute"
	FnBindCol        = "SQLBindCol"
	FnFetch          = "SQLFetch"
	FnGetData        = "SQLGetData"
	FnRowCount       = "SQLRowCount"
	FnMoreResults    = "SQLMoreResults"
	FnFreeStmt       = "SQLFreeStmt"
	FnCancel         = "SQLCancel"
	FnGetDiagRec     = "SQLGetDiagRec"
	FnGetDiagField   = "SQLGetDiagField"
)

// Required lists the functions a driver manager must export for Load to
// succeed. Everything else is optional and probed through Has.
var Required = []string{
	FnAllocHandle, FnFreeHandle, FnSetEnvAttr, FnSetConnectAttr,
	FnGetConnectAttr, FnSetStmtAttr, FnGetStmtAttr, FnSetDescField,
	FnDriverConnect, FnDisconnect, FnEndTran, FnPrepare, FnNumParams,
	FnBindParameter, FnExecute, FnParamData, FnPutData, FnNumResultCols,
	FnDescribeCol, FnColAttribute, FnBindCol, FnFetch, FnGetData,
	FnRowCount, FnFreeStmt, FnGetDiagRec,
}

// Optional lists the functions the engine uses when present.
var Optional = []string{
	FnDescribeParam, FnMoreResults, FnCancel, FnGetDiagField,
}

// Buffer is host memory the driver writes into: a bound column, a bound
// parameter or a SQLGetData chunk. Data and Indicator must stay at a fixed
// address while bound; implementations pin them.
type Buffer struct {
	Data      []byte
	Indicator int64
}

// NewBuffer allocates a buffer of n bytes.
func NewBuffer(n int) *Buffer {
	return &Buffer{Data: make([]byte, n)}
}

// IsNull reports whether the driver stored the NULL sentinel.
func (b *Buffer) IsNull() bool { return b.Indicator == NullData }

// Param is one input parameter binding for SQLBindParameter.
type Param struct {
	CType         int16
	SQLType       int16
	ColumnSize    uint64
	DecimalDigits int16

	// Buf holds the value and its length/indicator. For data-at-execution
	// parameters Buf.Data is empty and Buf.Indicator is DataAtExec or
	// LenDataAtExec(n).
	Buf Buffer

	// Token identifies the parameter when SQLParamData asks for its data.
	Token uintptr
}

// ColumnDesc is the result of SQLDescribeCol.
type ColumnDesc struct {
	Name          string
	SQLType       int16
	Size          uint64
	DecimalDigits int16
	Nullable      int16
}

// ParamDesc is the result of SQLDescribeParam.
type ParamDesc struct {
	SQLType       int16
	Size          uint64
	DecimalDigits int16
	Nullable      int16
}

// DiagRecord is one record returned by SQLGetDiagRec.
type DiagRecord struct {
	SQLState    string
	NativeError int32
	Message     string
}

// API is the set of native operations the engine performs. Methods mirror
// the ODBC functions of the same name; text arguments and results are
// UTF-8 and the implementation handles any conversion.
type API interface {
	// Has reports whether the driver exports the named function.
	Has(fn string) bool

	AllocHandle(typ HandleType, parent Handle) (Handle, Return)
	FreeHandle(typ HandleType, h Handle) Return

	SetEnvAttr(env Handle, attr int32, value uintptr) Return
	SetConnectAttr(dbc Handle, attr int32, value uintptr) Return
	GetConnectAttr(dbc Handle, attr int32) (uintptr, Return)
	SetStmtAttr(stmt Handle, attr int32, value uintptr) Return

	DriverConnect(dbc Handle, connStr string) Return
	Disconnect(dbc Handle) Return
	EndTran(typ HandleType, h Handle, completion int16) Return

	Prepare(stmt Handle, text string) Return
	NumParams(stmt Handle) (int16, Return)
	DescribeParam(stmt Handle, n uint16) (ParamDesc, Return)
	BindParameter(stmt Handle, n uint16, p *Param) Return
	Execute(stmt Handle) Return
	ParamData(stmt Handle) (uintptr, Return)
	PutData(stmt Handle, data []byte) Return

	NumResultCols(stmt Handle) (int16, Return)
	DescribeCol(stmt Handle, col uint16) (ColumnDesc, Return)
	ColAttribute(stmt Handle, col uint16, field uint16) (int64, Return)

	// BindCol binds buf to col with the given C type. BindNumericCol does
	// the same for SQL_C_NUMERIC, setting the row descriptor's precision
	// and scale so the driver scales digits to the declared column.
	BindCol(stmt Handle, col uint16, cType int16, buf *Buffer) Return
	BindNumericCol(stmt Handle, col uint16, precision, scale int16, buf *Buffer) Return

	Fetch(stmt Handle) Return
	GetData(stmt Handle, col uint16, cType int16, buf *Buffer) Return
	RowCount(stmt Handle) (int64, Return)
	MoreResults(stmt Handle) Return
	FreeStmt(stmt Handle, option uint16) Return
	Cancel(stmt Handle) Return

	GetDiagRec(typ HandleType, h Handle, rec int16) (DiagRecord, Return)
	GetDiagField(typ HandleType, h Handle, rec int16, field int16) (int64, Return)
}
