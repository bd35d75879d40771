package odbctest

import (
	"sort"

	"github.com/koustreak/unisql/internal/odbc/api"
)

func (d *Driver) Has(fn string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.missing[fn]
}

// --- handles and attributes ---

func (d *Driver) AllocHandle(typ api.HandleType, parent api.Handle) (api.Handle, api.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnAllocHandle, parent)
	if ret, stop := preempt(o, inj); stop {
		return 0, ret
	}
	switch typ {
	case api.HandleEnv:
		if parent != api.NullHandle {
			return 0, api.InvalidHandle
		}
		return d.alloc(&env{}), api.Success
	case api.HandleDbc:
		if _, ok := o.(*env); !ok {
			return 0, api.InvalidHandle
		}
		return d.alloc(&dbc{attrs: map[int32]uintptr{}}), api.Success
	case api.HandleStmt:
		c, ok := o.(*dbc)
		if !ok {
			return 0, api.InvalidHandle
		}
		if !c.connected {
			return 0, c.fail("08003", "Connection not open")
		}
		return d.alloc(&stmt{
			dbc:     c,
			params:  map[uint16]*api.Param{},
			bound:   map[uint16]*boundCol{},
			offsets: map[uint16]int{},
			done:    map[uint16]bool{},
		}), api.Success
	}
	return 0, api.Error
}

func (d *Driver) FreeHandle(typ api.HandleType, h api.Handle) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnFreeHandle, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	if o == nil || typeOf(o) != typ {
		return api.InvalidHandle
	}
	if c, ok := o.(*dbc); ok && c.connected {
		return c.fail("HY010", "Function sequence error")
	}
	delete(d.objs, h)
	return api.Success
}

func (d *Driver) SetEnvAttr(h api.Handle, attr int32, value uintptr) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnSetEnvAttr, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	if _, ok := o.(*env); !ok {
		return api.InvalidHandle
	}
	return finish(o, inj, api.Success)
}

func (d *Driver) SetConnectAttr(h api.Handle, attr int32, value uintptr) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnSetConnectAttr, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	c, ok := o.(*dbc)
	if !ok {
		return api.InvalidHandle
	}
	c.attrs[attr] = value
	return finish(o, inj, api.Success)
}

func (d *Driver) GetConnectAttr(h api.Handle, attr int32) (uintptr, api.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnGetConnectAttr, h)
	if ret, stop := preempt(o, inj); stop {
		return 0, ret
	}
	c, ok := o.(*dbc)
	if !ok {
		return 0, api.InvalidHandle
	}
	if attr == api.AttrConnectionDead {
		if d.Dead || !c.connected {
			return api.ConnectionDead, finish(o, inj, api.Success)
		}
		return api.ConnectionAlive, finish(o, inj, api.Success)
	}
	return c.attrs[attr], finish(o, inj, api.Success)
}

func (d *Driver) SetStmtAttr(h api.Handle, attr int32, value uintptr) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnSetStmtAttr, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return api.InvalidHandle
	}
	if attr == api.AttrUseBookmarks {
		st.bookmarks = value == api.UseBookmarksOn
	}
	return finish(o, inj, api.Success)
}

// --- sessions ---

func (d *Driver) DriverConnect(h api.Handle, connStr string) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnDriverConnect, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	c, ok := o.(*dbc)
	if !ok {
		return api.InvalidHandle
	}
	if c.connected {
		return c.fail("08002", "Connection name in use")
	}
	c.connected, c.dsn = true, connStr
	d.lastDbc = c
	return finish(o, inj, api.Success)
}

func (d *Driver) Disconnect(h api.Handle) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnDisconnect, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	c, ok := o.(*dbc)
	if !ok {
		return api.InvalidHandle
	}
	if !c.connected {
		return c.fail("08003", "Connection not open")
	}
	c.connected = false
	for sh, so := range d.objs {
		if st, ok := so.(*stmt); ok && st.dbc == c {
			delete(d.objs, sh)
		}
	}
	return finish(o, inj, api.Success)
}

func (d *Driver) EndTran(typ api.HandleType, h api.Handle, completion int16) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnEndTran, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	c, ok := o.(*dbc)
	if !ok || typ != api.HandleDbc {
		return api.InvalidHandle
	}
	if !c.connected {
		return c.fail("08003", "Connection not open")
	}
	return finish(o, inj, api.Success)
}

// --- preparation and execution ---

func (d *Driver) Prepare(h api.Handle, text string) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnPrepare, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return api.InvalidHandle
	}
	if st.open {
		return st.fail("24000", "Invalid cursor state")
	}
	sc, ok := d.scripts[text]
	if !ok {
		return st.fail("42S02", "Base table or view not found: "+text)
	}
	st.script = sc
	st.results, st.open = nil, false
	return finish(o, inj, api.Success)
}

func (d *Driver) NumParams(h api.Handle) (int16, api.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnNumParams, h)
	if ret, stop := preempt(o, inj); stop {
		return 0, ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return 0, api.InvalidHandle
	}
	if st.script == nil {
		return 0, st.fail("HY010", "Function sequence error")
	}
	return int16(len(st.script.Params)), finish(o, inj, api.Success)
}

func (d *Driver) DescribeParam(h api.Handle, n uint16) (api.ParamDesc, api.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnDescribeParam, h)
	if ret, stop := preempt(o, inj); stop {
		return api.ParamDesc{}, ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return api.ParamDesc{}, api.InvalidHandle
	}
	if d.missing[api.FnDescribeParam] {
		return api.ParamDesc{}, st.fail("IM001", "Driver does not support this function")
	}
	if st.script == nil {
		return api.ParamDesc{}, st.fail("HY010", "Function sequence error")
	}
	if n < 1 || int(n) > len(st.script.Params) {
		return api.ParamDesc{}, st.fail("07009", "Invalid descriptor index")
	}
	p := st.script.Params[n-1]
	return api.ParamDesc{SQLType: p.SQLType, Size: p.Size, DecimalDigits: p.Digits, Nullable: p.Nullable},
		finish(o, inj, api.Success)
}

func (d *Driver) BindParameter(h api.Handle, n uint16, p *api.Param) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnBindParameter, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return api.InvalidHandle
	}
	if st.script == nil {
		return st.fail("HY010", "Function sequence error")
	}
	if n < 1 || int(n) > len(st.script.Params) {
		return st.fail("07009", "Invalid descriptor index")
	}
	st.params[n] = p
	return finish(o, inj, api.Success)
}

func (d *Driver) Execute(h api.Handle) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnExecute, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return api.InvalidHandle
	}
	if st.script == nil {
		return st.fail("HY010", "Function sequence error")
	}
	if st.open {
		return st.fail("24000", "Invalid cursor state")
	}
	if len(st.params) != len(st.script.Params) {
		return st.fail("07002", "COUNT field incorrect")
	}

	st.dae = st.dae[:0]
	for n, p := range st.params {
		if api.IsDataAtExec(p.Buf.Indicator) {
			st.dae = append(st.dae, n)
		}
	}
	if len(st.dae) > 0 {
		sort.Slice(st.dae, func(i, j int) bool { return st.dae[i] < st.dae[j] })
		st.daeBusy, st.daeIdx, st.daeData = true, -1, map[uint16][]byte{}
		return api.NeedData
	}
	return finish(o, inj, d.run(st))
}

func (d *Driver) ParamData(h api.Handle) (uintptr, api.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnParamData, h)
	if ret, stop := preempt(o, inj); stop {
		return 0, ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return 0, api.InvalidHandle
	}
	if !st.daeBusy {
		return 0, st.fail("HY010", "Function sequence error")
	}
	if st.daeIdx+1 < len(st.dae) {
		st.daeIdx++
		return st.params[st.dae[st.daeIdx]].Token, api.NeedData
	}
	st.daeBusy = false
	return 0, finish(o, inj, d.run(st))
}

func (d *Driver) PutData(h api.Handle, data []byte) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnPutData, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return api.InvalidHandle
	}
	if !st.daeBusy || st.daeIdx < 0 {
		return st.fail("HY010", "Function sequence error")
	}
	n := st.dae[st.daeIdx]
	st.daeData[n] = append(st.daeData[n], data...)
	return finish(o, inj, api.Success)
}

// run completes an execution once every parameter has its data.
func (d *Driver) run(st *stmt) api.Return {
	sc := st.script
	values := make([]any, len(sc.Params))
	for i := range sc.Params {
		n := uint16(i + 1)
		v, err := d.paramValue(st.params[n], st.daeData[n])
		if err != nil {
			return st.fail("22018", "Invalid character value for cast specification")
		}
		if v == nil && sc.Params[i].Nullable == api.NoNulls {
			return st.fail("HY009", "Invalid use of null pointer")
		}
		values[i] = v
	}
	d.lastParams = values
	if sc.Exec != nil {
		if rec := sc.Exec(values); rec != nil {
			st.add(*rec)
			return api.Error
		}
	}
	st.results = sc.Results
	st.result = 0
	st.position(-1)
	st.open = len(st.results) > 0 && len(st.results[0].Columns) > 0
	return api.Success
}

// --- results ---

func (st *stmt) current() *Result {
	if st.result < 0 || st.result >= len(st.results) {
		return nil
	}
	return &st.results[st.result]
}

func (st *stmt) position(row int) {
	st.row = row
	clear(st.offsets)
	clear(st.done)
}

func (d *Driver) NumResultCols(h api.Handle) (int16, api.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnNumResultCols, h)
	if ret, stop := preempt(o, inj); stop {
		return 0, ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return 0, api.InvalidHandle
	}
	r := st.current()
	if r == nil {
		return 0, finish(o, inj, api.Success)
	}
	return int16(len(r.Columns)), finish(o, inj, api.Success)
}

func (d *Driver) DescribeCol(h api.Handle, col uint16) (api.ColumnDesc, api.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnDescribeCol, h)
	if ret, stop := preempt(o, inj); stop {
		return api.ColumnDesc{}, ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return api.ColumnDesc{}, api.InvalidHandle
	}
	r := st.current()
	if r == nil || col < 1 || int(col) > len(r.Columns) {
		return api.ColumnDesc{}, st.fail("07009", "Invalid descriptor index")
	}
	c := r.Columns[col-1]
	return api.ColumnDesc{
		Name:          c.Name,
		SQLType:       c.SQLType,
		Size:          c.Size,
		DecimalDigits: c.Digits,
		Nullable:      c.Nullable,
	}, finish(o, inj, api.Success)
}

func (d *Driver) ColAttribute(h api.Handle, col uint16, field uint16) (int64, api.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnColAttribute, h)
	if ret, stop := preempt(o, inj); stop {
		return 0, ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return 0, api.InvalidHandle
	}
	r := st.current()
	if r == nil || col < 1 || int(col) > len(r.Columns) {
		return 0, st.fail("07009", "Invalid descriptor index")
	}
	if field == api.DescUnsigned && r.Columns[col-1].Unsigned {
		return api.DescUnsignedTrue, finish(o, inj, api.Success)
	}
	return 0, finish(o, inj, api.Success)
}

func (d *Driver) BindCol(h api.Handle, col uint16, cType int16, buf *api.Buffer) api.Return {
	return d.bindCol(api.FnBindCol, h, col, &boundCol{cType: cType, buf: buf})
}

func (d *Driver) BindNumericCol(h api.Handle, col uint16, precision, scale int16, buf *api.Buffer) api.Return {
	return d.bindCol(api.FnBindCol, h, col, &boundCol{cType: api.CNumeric, buf: buf, precision: precision, scale: scale})
}

func (d *Driver) bindCol(fn string, h api.Handle, col uint16, b *boundCol) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(fn, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return api.InvalidHandle
	}
	r := st.current()
	switch {
	case col == 0 && !st.bookmarks:
		return st.fail("07009", "Invalid descriptor index")
	case r == nil || int(col) > len(r.Columns):
		return st.fail("07009", "Invalid descriptor index")
	}
	if b.buf == nil {
		delete(st.bound, col)
	} else {
		st.bound[col] = b
	}
	return finish(o, inj, api.Success)
}

func (d *Driver) Fetch(h api.Handle) api.Return {
	d.mu.Lock()
	o, inj := d.enter(api.FnFetch, h)
	if ret, stop := preempt(o, inj); stop {
		d.mu.Unlock()
		return ret
	}
	st, ok := o.(*stmt)
	if !ok {
		d.mu.Unlock()
		return api.InvalidHandle
	}
	st.busy = true
	hook := d.FetchHook
	d.mu.Unlock()

	if hook != nil {
		hook()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	st.busy = false
	if st.cancelled {
		st.cancelled = false
		return st.fail("HY008", "Operation canceled")
	}
	if !st.open {
		return st.fail("24000", "Invalid cursor state")
	}
	r := st.current()
	if st.row+1 >= len(r.Rows) {
		st.position(len(r.Rows))
		return finish(o, inj, api.NoData)
	}
	st.position(st.row + 1)

	ret := api.Success
	for col, b := range st.bound {
		if !d.fillBound(st, col, b) {
			ret = api.SuccessWithInfo
		}
	}
	if ret == api.SuccessWithInfo {
		st.warn("01004", "String data, right truncated")
	}
	return finish(o, inj, ret)
}

// fillBound writes the current row's value into a bound buffer. It reports
// false when variable-length data did not fit.
func (d *Driver) fillBound(st *stmt, col uint16, b *boundCol) bool {
	if col == 0 {
		api.PutUint(b.buf.Data, 8, uint64(st.row+1))
		b.buf.Indicator = 8
		return true
	}
	v := st.current().Rows[st.row][col-1]
	if v == nil {
		b.buf.Indicator = api.NullData
		return true
	}
	if width, fixed := api.CTypeWidth(b.cType); fixed {
		writeFixed(b.cType, b.buf.Data[:width], v, b.scale)
		b.buf.Indicator = int64(width)
		return true
	}
	data := d.encodeVar(b.cType, v)
	space := max(len(b.buf.Data)-terminator(b.cType), 0)
	n := min(len(data), space)
	copy(b.buf.Data, data[:n])
	clear(b.buf.Data[n:min(n+terminator(b.cType), len(b.buf.Data))])
	b.buf.Indicator = int64(len(data))
	return n == len(data)
}

func (d *Driver) GetData(h api.Handle, col uint16, cType int16, buf *api.Buffer) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnGetData, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return api.InvalidHandle
	}
	r := st.current()
	if !st.open || r == nil || st.row < 0 || st.row >= len(r.Rows) {
		return st.fail("24000", "Invalid cursor state")
	}
	if col < 1 || int(col) > len(r.Columns) {
		return st.fail("07009", "Invalid descriptor index")
	}
	if st.done[col] {
		return finish(o, inj, api.NoData)
	}

	v := r.Rows[st.row][col-1]
	if v == nil {
		buf.Indicator = api.NullData
		st.done[col] = true
		return finish(o, inj, api.Success)
	}
	if width, fixed := api.CTypeWidth(cType); fixed {
		writeFixed(cType, buf.Data[:width], v, r.Columns[col-1].Digits)
		buf.Indicator = int64(width)
		st.done[col] = true
		return finish(o, inj, api.Success)
	}

	data := d.encodeVar(cType, v)
	rem := data[st.offsets[col]:]
	term := terminator(cType)
	space := max(len(buf.Data)-term, 0)
	if cType == api.CWChar {
		space &^= 1
	}
	n := min(len(rem), space)
	copy(buf.Data, rem[:n])
	clear(buf.Data[n:min(n+term, len(buf.Data))])
	st.offsets[col] += n

	if n < len(rem) {
		buf.Indicator = int64(len(rem))
		if d.NoTotal {
			buf.Indicator = api.NoTotal
		}
		st.warn("01004", "String data, right truncated")
		return finish(o, inj, api.SuccessWithInfo)
	}
	buf.Indicator = int64(len(rem))
	st.done[col] = true
	return finish(o, inj, api.Success)
}

func (d *Driver) RowCount(h api.Handle) (int64, api.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnRowCount, h)
	if ret, stop := preempt(o, inj); stop {
		return 0, ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return 0, api.InvalidHandle
	}
	r := st.current()
	if r == nil {
		return -1, finish(o, inj, api.Success)
	}
	return r.RowCount, finish(o, inj, api.Success)
}

func (d *Driver) MoreResults(h api.Handle) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnMoreResults, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return api.InvalidHandle
	}
	if d.missing[api.FnMoreResults] {
		return st.fail("IM001", "Driver does not support this function")
	}
	if st.result+1 >= len(st.results) {
		st.result = len(st.results)
		st.open = false
		return finish(o, inj, api.NoData)
	}
	st.result++
	st.position(-1)
	st.open = len(st.results[st.result].Columns) > 0
	return finish(o, inj, api.Success)
}

func (d *Driver) FreeStmt(h api.Handle, option uint16) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, inj := d.enter(api.FnFreeStmt, h)
	if ret, stop := preempt(o, inj); stop {
		return ret
	}
	st, ok := o.(*stmt)
	if !ok {
		return api.InvalidHandle
	}
	switch option {
	case api.Close:
		st.open, st.results = false, nil
		st.daeBusy = false
	case api.Unbind:
		clear(st.bound)
	case api.ResetParams:
		clear(st.params)
	default:
		return st.fail("HY092", "Invalid attribute/option identifier")
	}
	return finish(o, inj, api.Success)
}

func (d *Driver) Cancel(h api.Handle) api.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[api.FnCancel]++
	st, ok := d.objs[h].(*stmt)
	if !ok {
		return api.InvalidHandle
	}
	if d.missing[api.FnCancel] {
		return st.fail("IM001", "Driver does not support this function")
	}
	if st.busy {
		st.cancelled = true
	}
	st.daeBusy = false
	return api.Success
}

// --- diagnostics ---

func (d *Driver) GetDiagRec(typ api.HandleType, h api.Handle, rec int16) (api.DiagRecord, api.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[api.FnGetDiagRec]++
	dh := diagsOf(d.objs[h])
	if dh == nil {
		return api.DiagRecord{}, api.InvalidHandle
	}
	if rec < 1 || int(rec) > len(dh.diags) {
		return api.DiagRecord{}, api.NoData
	}
	return dh.diags[rec-1], api.Success
}

func (d *Driver) GetDiagField(typ api.HandleType, h api.Handle, rec int16, field int16) (int64, api.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[api.FnGetDiagField]++
	dh := diagsOf(d.objs[h])
	if dh == nil {
		return 0, api.InvalidHandle
	}
	if rec < 1 || int(rec) > len(dh.diags) {
		return 0, api.NoData
	}
	return 0, api.Success
}
