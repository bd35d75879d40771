//go:build darwin || freebsd || linux

package api

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/koustreak/unisql/internal/errs"
)

// Library is an API backed by a driver manager shared object (unixODBC,
// iODBC) loaded with purego. Symbols are resolved once in Load.
type Library struct {
	path   string
	handle uintptr
	have   map[string]bool

	// Bound column and parameter buffers stay pinned until the statement
	// unbinds them or is freed.
	mu        sync.Mutex
	colPins   map[Handle]*runtime.Pinner
	paramPins map[Handle]*runtime.Pinner

	sqlAllocHandle    func(typ int16, in uintptr, out unsafe.Pointer) int16
	sqlFreeHandle     func(typ int16, h uintptr) int16
	sqlSetEnvAttr     func(h uintptr, attr int32, val uintptr, n int32) int16
	sqlSetConnectAttr func(h uintptr, attr int32, val uintptr, n int32) int16
	sqlGetConnectAttr func(h uintptr, attr int32, val unsafe.Pointer, n int32, out unsafe.Pointer) int16
	sqlSetStmtAttr    func(h uintptr, attr int32, val uintptr, n int32) int16
	sqlGetStmtAttr    func(h uintptr, attr int32, val unsafe.Pointer, n int32, out unsafe.Pointer) int16
	sqlSetDescField   func(h uintptr, rec int16, field int16, val uintptr, n int32) int16
	sqlDriverConnect  func(h uintptr, hwnd uintptr, in unsafe.Pointer, inLen int16, out unsafe.Pointer, outCap int16, outLen unsafe.Pointer, completion uint16) int16
	sqlDisconnect     func(h uintptr) int16
	sqlEndTran        func(typ int16, h uintptr, completion int16) int16
	sqlPrepare        func(h uintptr, text unsafe.Pointer, n int32) int16
	sqlNumParams      func(h uintptr, out unsafe.Pointer) int16
	sqlDescribeParam  func(h uintptr, n uint16, typ, size, digits, nullable unsafe.Pointer) int16
	sqlBindParameter  func(h uintptr, n uint16, io, cType, sqlType int16, size uint64, digits int16, val uintptr, bufLen int64, ind uintptr) int16
	sqlExecute        func(h uintptr) int16
	sqlParamData      func(h uintptr, out unsafe.Pointer) int16
	sqlPutData        func(h uintptr, data unsafe.Pointer, n int64) int16
	sqlNumResultCols  func(h uintptr, out unsafe.Pointer) int16
	sqlDescribeCol    func(h uintptr, col uint16, name unsafe.Pointer, nameCap int16, nameLen, typ, size, digits, nullable unsafe.Pointer) int16
	sqlColAttribute   func(h uintptr, col uint16, field uint16, chr unsafe.Pointer, chrCap int16, chrLen unsafe.Pointer, num unsafe.Pointer) int16
	sqlBindCol        func(h uintptr, col uint16, cType int16, val uintptr, bufLen int64, ind uintptr) int16
	sqlFetch          func(h uintptr) int16
	sqlGetData        func(h uintptr, col uint16, cType int16, val unsafe.Pointer, bufLen int64, ind unsafe.Pointer) int16
	sqlRowCount       func(h uintptr, out unsafe.Pointer) int16
	sqlMoreResults    func(h uintptr) int16
	sqlFreeStmt       func(h uintptr, option uint16) int16
	sqlCancel         func(h uintptr) int16
	sqlGetDiagRec     func(typ int16, h uintptr, rec int16, state unsafe.Pointer, native unsafe.Pointer, msg unsafe.Pointer, msgCap int16, msgLen unsafe.Pointer) int16
	sqlGetDiagField   func(typ int16, h uintptr, rec int16, field int16, val unsafe.Pointer, n int16, out unsafe.Pointer) int16
}

// DefaultLibrary is the driver manager loaded when the configuration names none.
const DefaultLibrary = "libodbc.so.2"

// Load opens the driver manager at path and resolves its symbols. A missing
// required symbol fails the load with a capability-missing error naming it.
func Load(path string) (*Library, error) {
	if path == "" {
		path = DefaultLibrary
	}
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to load driver manager "+path, err)
	}

	lib := &Library{
		path:      path,
		handle:    h,
		have:      make(map[string]bool, len(Required)+len(Optional)),
		colPins:   map[Handle]*runtime.Pinner{},
		paramPins: map[Handle]*runtime.Pinner{},
	}

	slots := map[string]any{
		FnAllocHandle:    &lib.sqlAllocHandle,
		FnFreeHandle:     &lib.sqlFreeHandle,
		FnSetEnvAttr:     &lib.sqlSetEnvAttr,
		FnSetConnectAttr: &lib.sqlSetConnectAttr,
		FnGetConnectAttr: &lib.sqlGetConnectAttr,
		FnSetStmtAttr:    &lib.sqlSetStmtAttr,
		FnGetStmtAttr:    &lib.sqlGetStmtAttr,
		FnSetDescField:   &lib.sqlSetDescField,
		FnDriverConnect:  &lib.sqlDriverConnect,
		FnDisconnect:     &lib.sqlDisconnect,
		FnEndTran:        &lib.sqlEndTran,
		FnPrepare:        &lib.sqlPrepare,
		FnNumParams:      &lib.sqlNumParams,
		FnDescribeParam:  &lib.sqlDescribeParam,
		FnBindParameter:  &lib.sqlBindParameter,
		FnExecute:        &lib.sqlExecute,
		FnParamData:      &lib.sqlParamData,
		FnPutData:        &lib.sqlPutData,
		FnNumResultCols:  &lib.sqlNumResultCols,
		FnDescribeCol:    &lib.sqlDescribeCol,
		FnColAttribute:   &lib.sqlColAttribute,
		FnBindCol:        &lib.sqlBindCol,
		FnFetch:          &lib.sqlFetch,
		FnGetData:        &lib.sqlGetData,
		FnRowCount:       &lib.sqlRowCount,
		FnMoreResults:    &lib.sqlMoreResults,
		FnFreeStmt:       &lib.sqlFreeStmt,
		FnCancel:         &lib.sqlCancel,
		FnGetDiagRec:     &lib.sqlGetDiagRec,
		FnGetDiagField:   &lib.sqlGetDiagField,
	}

	for _, name := range Required {
		sym, err := purego.Dlsym(h, name)
		if err != nil {
			_ = purego.Dlclose(h)
			return nil, errs.Wrap(errs.ErrKindCapabilityMissing, "driver manager "+path+" does not export "+name, err)
		}
		purego.RegisterFunc(slots[name], sym)
		lib.have[name] = true
	}
	for _, name := range Optional {
		sym, err := purego.Dlsym(h, name)
		if err != nil {
			continue
		}
		purego.RegisterFunc(slots[name], sym)
		lib.have[name] = true
	}
	return lib, nil
}

// Path returns the shared object the library was loaded from.
func (l *Library) Path() string { return l.path }

// Unload closes the shared object. No handle may be live.
func (l *Library) Unload() error {
	if err := purego.Dlclose(l.handle); err != nil {
		return errs.Wrap(errs.ErrKindUnknown, "failed to unload driver manager", err)
	}
	return nil
}

func (l *Library) Has(fn string) bool { return l.have[fn] }

// --- pinning ---

func (l *Library) pin(set map[Handle]*runtime.Pinner, stmt Handle, ptrs ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := set[stmt]
	if !ok {
		p = &runtime.Pinner{}
		set[stmt] = p
	}
	for _, ptr := range ptrs {
		p.Pin(ptr)
	}
}

func (l *Library) unpin(set map[Handle]*runtime.Pinner, stmt Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := set[stmt]; ok {
		p.Unpin()
		delete(set, stmt)
	}
}

func dataPtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

func cstring(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

func gostring(b []byte, n int) string {
	if n < 0 {
		n = 0
	}
	if n > len(b) {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if b[i] == 0 {
			return string(b[:i])
		}
	}
	return string(b[:n])
}

// --- handles and attributes ---

func (l *Library) AllocHandle(typ HandleType, parent Handle) (Handle, Return) {
	var out uintptr
	ret := l.sqlAllocHandle(int16(typ), uintptr(parent), unsafe.Pointer(&out))
	return Handle(out), Return(ret)
}

func (l *Library) FreeHandle(typ HandleType, h Handle) Return {
	ret := Return(l.sqlFreeHandle(int16(typ), uintptr(h)))
	if typ == HandleStmt {
		l.unpin(l.colPins, h)
		l.unpin(l.paramPins, h)
	}
	return ret
}

func (l *Library) SetEnvAttr(env Handle, attr int32, value uintptr) Return {
	return Return(l.sqlSetEnvAttr(uintptr(env), attr, value, 0))
}

func (l *Library) SetConnectAttr(dbc Handle, attr int32, value uintptr) Return {
	return Return(l.sqlSetConnectAttr(uintptr(dbc), attr, value, 0))
}

func (l *Library) GetConnectAttr(dbc Handle, attr int32) (uintptr, Return) {
	var out uintptr
	ret := l.sqlGetConnectAttr(uintptr(dbc), attr, unsafe.Pointer(&out), 0, nil)
	return out, Return(ret)
}

func (l *Library) SetStmtAttr(stmt Handle, attr int32, value uintptr) Return {
	return Return(l.sqlSetStmtAttr(uintptr(stmt), attr, value, 0))
}

// --- connection ---

func (l *Library) DriverConnect(dbc Handle, connStr string) Return {
	in := cstring(connStr)
	out := make([]byte, 1024)
	var outLen int16
	ret := l.sqlDriverConnect(uintptr(dbc), 0, dataPtr(in), int16(len(connStr)),
		dataPtr(out), int16(len(out)), unsafe.Pointer(&outLen), DriverNoPrompt)
	runtime.KeepAlive(in)
	return Return(ret)
}

func (l *Library) Disconnect(dbc Handle) Return {
	return Return(l.sqlDisconnect(uintptr(dbc)))
}

func (l *Library) EndTran(typ HandleType, h Handle, completion int16) Return {
	return Return(l.sqlEndTran(int16(typ), uintptr(h), completion))
}

// --- statements and parameters ---

func (l *Library) Prepare(stmt Handle, text string) Return {
	b := cstring(text)
	ret := l.sqlPrepare(uintptr(stmt), dataPtr(b), int32(len(text)))
	runtime.KeepAlive(b)
	return Return(ret)
}

func (l *Library) NumParams(stmt Handle) (int16, Return) {
	var n int16
	ret := l.sqlNumParams(uintptr(stmt), unsafe.Pointer(&n))
	return n, Return(ret)
}

func (l *Library) DescribeParam(stmt Handle, n uint16) (ParamDesc, Return) {
	var d ParamDesc
	ret := l.sqlDescribeParam(uintptr(stmt), n, unsafe.Pointer(&d.SQLType),
		unsafe.Pointer(&d.Size), unsafe.Pointer(&d.DecimalDigits), unsafe.Pointer(&d.Nullable))
	return d, Return(ret)
}

func (l *Library) BindParameter(stmt Handle, n uint16, p *Param) Return {
	var val uintptr
	bufLen := int64(len(p.Buf.Data))
	if IsDataAtExec(p.Buf.Indicator) {
		val = p.Token
		bufLen = 0
		l.pin(l.paramPins, stmt, &p.Buf.Indicator)
	} else if len(p.Buf.Data) > 0 {
		l.pin(l.paramPins, stmt, &p.Buf.Data[0], &p.Buf.Indicator)
		val = uintptr(unsafe.Pointer(&p.Buf.Data[0]))
	} else {
		l.pin(l.paramPins, stmt, &p.Buf.Indicator)
	}
	ind := uintptr(unsafe.Pointer(&p.Buf.Indicator))

	ret := Return(l.sqlBindParameter(uintptr(stmt), n, ParamInput, p.CType, p.SQLType,
		p.ColumnSize, p.DecimalDigits, val, bufLen, ind))
	if !ret.Succeeded() || p.CType != CNumeric || val == 0 {
		return ret
	}
	return l.describeNumeric(stmt, AttrAppParamDesc, n, int16(p.ColumnSize), p.DecimalDigits, val, ind)
}

func (l *Library) Execute(stmt Handle) Return {
	return Return(l.sqlExecute(uintptr(stmt)))
}

func (l *Library) ParamData(stmt Handle) (uintptr, Return) {
	var token uintptr
	ret := l.sqlParamData(uintptr(stmt), unsafe.Pointer(&token))
	return token, Return(ret)
}

func (l *Library) PutData(stmt Handle, data []byte) Return {
	n := int64(len(data))
	if n == 0 {
		return Return(l.sqlPutData(uintptr(stmt), nil, 0))
	}
	ret := l.sqlPutData(uintptr(stmt), dataPtr(data), n)
	runtime.KeepAlive(data)
	return Return(ret)
}

// --- result sets ---

func (l *Library) NumResultCols(stmt Handle) (int16, Return) {
	var n int16
	ret := l.sqlNumResultCols(uintptr(stmt), unsafe.Pointer(&n))
	return n, Return(ret)
}

func (l *Library) DescribeCol(stmt Handle, col uint16) (ColumnDesc, Return) {
	var (
		d       ColumnDesc
		nameLen int16
	)
	name := make([]byte, 256)
	ret := Return(l.sqlDescribeCol(uintptr(stmt), col, dataPtr(name), int16(len(name)),
		unsafe.Pointer(&nameLen), unsafe.Pointer(&d.SQLType), unsafe.Pointer(&d.Size),
		unsafe.Pointer(&d.DecimalDigits), unsafe.Pointer(&d.Nullable)))
	if ret.Succeeded() {
		d.Name = gostring(name, int(nameLen))
	}
	return d, ret
}

func (l *Library) ColAttribute(stmt Handle, col uint16, field uint16) (int64, Return) {
	var num int64
	ret := l.sqlColAttribute(uintptr(stmt), col, field, nil, 0, nil, unsafe.Pointer(&num))
	return num, Return(ret)
}

func (l *Library) BindCol(stmt Handle, col uint16, cType int16, buf *Buffer) Return {
	var val uintptr
	if len(buf.Data) > 0 {
		l.pin(l.colPins, stmt, &buf.Data[0], &buf.Indicator)
		val = uintptr(unsafe.Pointer(&buf.Data[0]))
	} else {
		l.pin(l.colPins, stmt, &buf.Indicator)
	}
	ind := uintptr(unsafe.Pointer(&buf.Indicator))
	return Return(l.sqlBindCol(uintptr(stmt), col, cType, val, int64(len(buf.Data)), ind))
}

func (l *Library) BindNumericCol(stmt Handle, col uint16, precision, scale int16, buf *Buffer) Return {
	ret := l.BindCol(stmt, col, CNumeric, buf)
	if !ret.Succeeded() {
		return ret
	}
	val := uintptr(unsafe.Pointer(&buf.Data[0]))
	ind := uintptr(unsafe.Pointer(&buf.Indicator))
	return l.describeNumeric(stmt, AttrAppRowDesc, col, precision, scale, val, ind)
}

// describeNumeric sets precision and scale on an application descriptor
// record. Changing the type fields resets the data pointer, so it is set last.
func (l *Library) describeNumeric(stmt Handle, descAttr int32, rec uint16, precision, scale int16, val, ind uintptr) Return {
	var desc uintptr
	if ret := Return(l.sqlGetStmtAttr(uintptr(stmt), descAttr, unsafe.Pointer(&desc), 0, nil)); !ret.Succeeded() {
		return ret
	}
	fields := []struct {
		id  uint16
		val uintptr
	}{
		{DescType, uintptr(CNumeric)},
		{DescPrecision, uintptr(precision)},
		{DescScale, uintptr(scale)},
		{DescIndicatorPtr, ind},
		{DescOctetLenPtr, ind},
		{DescDataPtr, val},
	}
	for _, f := range fields {
		if ret := Return(l.sqlSetDescField(desc, int16(rec), int16(f.id), f.val, 0)); !ret.Succeeded() {
			return ret
		}
	}
	return Success
}

func (l *Library) Fetch(stmt Handle) Return {
	return Return(l.sqlFetch(uintptr(stmt)))
}

func (l *Library) GetData(stmt Handle, col uint16, cType int16, buf *Buffer) Return {
	ret := l.sqlGetData(uintptr(stmt), col, cType, dataPtr(buf.Data), int64(len(buf.Data)), unsafe.Pointer(&buf.Indicator))
	runtime.KeepAlive(buf)
	return Return(ret)
}

func (l *Library) RowCount(stmt Handle) (int64, Return) {
	var n int64
	ret := l.sqlRowCount(uintptr(stmt), unsafe.Pointer(&n))
	return n, Return(ret)
}

func (l *Library) MoreResults(stmt Handle) Return {
	if l.sqlMoreResults == nil {
		return Error
	}
	return Return(l.sqlMoreResults(uintptr(stmt)))
}

func (l *Library) FreeStmt(stmt Handle, option uint16) Return {
	ret := Return(l.sqlFreeStmt(uintptr(stmt), option))
	switch option {
	case Unbind:
		l.unpin(l.colPins, stmt)
	case ResetParams:
		l.unpin(l.paramPins, stmt)
	}
	return ret
}

func (l *Library) Cancel(stmt Handle) Return {
	if l.sqlCancel == nil {
		return Error
	}
	return Return(l.sqlCancel(uintptr(stmt)))
}

// --- diagnostics ---

func (l *Library) GetDiagRec(typ HandleType, h Handle, rec int16) (DiagRecord, Return) {
	var (
		native int32
		msgLen int16
	)
	state := make([]byte, 6)
	msg := make([]byte, 1024)
	ret := Return(l.sqlGetDiagRec(int16(typ), uintptr(h), rec, dataPtr(state),
		unsafe.Pointer(&native), dataPtr(msg), int16(len(msg)), unsafe.Pointer(&msgLen)))
	if !ret.Succeeded() {
		return DiagRecord{}, ret
	}
	return DiagRecord{
		SQLState:    gostring(state, 5),
		NativeError: native,
		Message:     gostring(msg, int(msgLen)),
	}, ret
}

func (l *Library) GetDiagField(typ HandleType, h Handle, rec int16, field int16) (int64, Return) {
	if l.sqlGetDiagField == nil {
		return 0, Error
	}
	var v int64
	ret := l.sqlGetDiagField(int16(typ), uintptr(h), rec, field, unsafe.Pointer(&v), 0, nil)
	return v, Return(ret)
}

var _ API = (*Library)(nil)
