// Package odbctest provides an in-memory, scripted implementation of
// api.API for exercising the ODBC engine without a driver manager.
//
// A Driver answers each prepared text with a Script: the parameters it
// takes and the result sets it produces. Fetch fills bound buffers in the
// C layouts a real driver would use, SQLGetData returns data in chunks with
// the 01004 truncation warning, and data-at-execution parameters go through
// the SQLParamData/SQLPutData exchange.
package odbctest

import (
	"fmt"
	"sync"

	"github.com/koustreak/unisql/internal/odbc/api"
	"golang.org/x/text/encoding"
)

// Column describes one scripted result column.
type Column struct {
	Name     string
	SQLType  int16
	Size     uint64
	Digits   int16
	Nullable int16
	Unsigned bool
}

// Result is one scripted result set. Row values are Go values: nil, ints,
// uints, floats, bool, string, []byte, decimal.Decimal, database.Date,
// database.Clock, time.Time, uuid.UUID or one of the api layout structs.
type Result struct {
	Columns  []Column
	Rows     [][]any
	RowCount int64
}

// ParamSpec describes one parameter marker.
type ParamSpec struct {
	SQLType  int16
	Size     uint64
	Digits   int16
	Nullable int16
}

// Script is what executing one command text produces.
type Script struct {
	Params  []ParamSpec
	Results []Result

	// Exec, when set, sees the decoded parameter values of every
	// execution. A non-nil record fails the execution with it.
	Exec func(params []any) *api.DiagRecord
}

// Driver is a fake driver manager. The zero value is not usable; call New.
type Driver struct {
	mu      sync.Mutex
	scripts map[string]*Script
	missing map[string]bool
	inject  map[string][]injection
	calls   map[string]int
	objs    map[api.Handle]any
	next    api.Handle

	// Charset encodes SQL_C_CHAR data; nil means UTF-8.
	Charset encoding.Encoding
	// NoTotal makes SQLGetData report SQL_NO_TOTAL for partial chunks.
	NoTotal bool
	// FetchHook runs inside every SQLFetch before the row is produced,
	// without the driver lock held.
	FetchHook func()
	// Dead makes the connection-dead attribute report a dead session.
	Dead bool

	lastParams []any
	lastDbc    *dbc
}

type injection struct {
	ret api.Return
	rec api.DiagRecord
}

// New returns an empty driver.
func New() *Driver {
	return &Driver{
		scripts: map[string]*Script{},
		missing: map[string]bool{},
		inject:  map[string][]injection{},
		calls:   map[string]int{},
		objs:    map[api.Handle]any{},
		next:    0x1000,
	}
}

// Script registers the answer for a command text.
func (d *Driver) Script(text string, s Script) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts[text] = &s
	return d
}

// Query registers a single-result script without parameters.
func (d *Driver) Query(text string, cols []Column, rows ...[]any) *Driver {
	return d.Script(text, Script{Results: []Result{{Columns: cols, Rows: rows}}})
}

// Without removes capabilities, as if the driver did not export them.
func (d *Driver) Without(fns ...string) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, fn := range fns {
		d.missing[fn] = true
	}
	return d
}

// FailNext makes the next call of fn fail with the given record.
func (d *Driver) FailNext(fn, state string, native int32, msg string) *Driver {
	return d.injectNext(fn, api.Error, api.DiagRecord{SQLState: state, NativeError: native, Message: msg})
}

// InfoNext makes the next call of fn succeed with an extra warning record.
func (d *Driver) InfoNext(fn, state, msg string) *Driver {
	return d.injectNext(fn, api.SuccessWithInfo, api.DiagRecord{SQLState: state, Message: msg})
}

// ReturnNext makes the next call of fn return ret without diagnostics.
func (d *Driver) ReturnNext(fn string, ret api.Return) *Driver {
	return d.injectNext(fn, ret, api.DiagRecord{})
}

func (d *Driver) injectNext(fn string, ret api.Return, rec api.DiagRecord) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inject[fn] = append(d.inject[fn], injection{ret: ret, rec: rec})
	return d
}

// Calls reports how many times fn was called.
func (d *Driver) Calls(fn string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[fn]
}

// Handles reports how many handles of typ are allocated.
func (d *Driver) Handles(typ api.HandleType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, o := range d.objs {
		if typeOf(o) == typ {
			n++
		}
	}
	return n
}

// LastParams returns the decoded parameters of the last execution.
func (d *Driver) LastParams() []any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastParams
}

// ConnectAttr returns an attribute of the most recently connected session.
func (d *Driver) ConnectAttr(attr int32) (uintptr, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastDbc == nil {
		return 0, false
	}
	v, ok := d.lastDbc.attrs[attr]
	return v, ok
}

// --- handle objects ---

type diagHolder struct {
	diags []api.DiagRecord
}

type env struct {
	diagHolder
}

type dbc struct {
	diagHolder
	connected bool
	dsn       string
	attrs     map[int32]uintptr
}

type boundCol struct {
	cType            int16
	buf              *api.Buffer
	precision, scale int16
}

type stmt struct {
	diagHolder
	dbc       *dbc
	script    *Script
	bookmarks bool

	params map[uint16]*api.Param

	// data-at-execution exchange
	dae     []uint16
	daeIdx  int
	daeData map[uint16][]byte
	daeBusy bool

	open    bool
	results []Result
	result  int
	row     int
	bound   map[uint16]*boundCol
	offsets map[uint16]int  // SQLGetData progress per column on this row
	done    map[uint16]bool // columns whose data SQLGetData fully returned

	busy      bool
	cancelled bool
}

func typeOf(o any) api.HandleType {
	switch o.(type) {
	case *env:
		return api.HandleEnv
	case *dbc:
		return api.HandleDbc
	case *stmt:
		return api.HandleStmt
	}
	return 0
}

func (h *diagHolder) reset() { h.diags = h.diags[:0] }

func (h *diagHolder) add(r api.DiagRecord) { h.diags = append(h.diags, r) }

func (h *diagHolder) fail(state, msg string) api.Return {
	h.add(api.DiagRecord{SQLState: state, Message: msg})
	return api.Error
}

func (h *diagHolder) warn(state, msg string) {
	h.add(api.DiagRecord{SQLState: state, Message: msg})
}

func diagsOf(o any) *diagHolder {
	switch o := o.(type) {
	case *env:
		return &o.diagHolder
	case *dbc:
		return &o.diagHolder
	case *stmt:
		return &o.diagHolder
	}
	return nil
}

// enter starts a call on h: it counts the call, clears the handle's
// diagnostics and returns a pending injection, if any. Called with mu held.
func (d *Driver) enter(fn string, h api.Handle) (any, *injection) {
	d.calls[fn]++
	o := d.objs[h]
	if dh := diagsOf(o); dh != nil {
		dh.reset()
	}
	if q := d.inject[fn]; len(q) > 0 {
		d.inject[fn] = q[1:]
		return o, &q[0]
	}
	return o, nil
}

// preempt applies an injected failure or raw status before the call has
// any effect.
func preempt(o any, inj *injection) (api.Return, bool) {
	if inj == nil || inj.ret == api.SuccessWithInfo {
		return 0, false
	}
	if inj.ret == api.Error {
		if dh := diagsOf(o); dh != nil {
			dh.add(inj.rec)
		}
	}
	return inj.ret, true
}

// finish applies an injected warning to a call that succeeded.
func finish(o any, inj *injection, ret api.Return) api.Return {
	if inj == nil || inj.ret != api.SuccessWithInfo || !ret.Succeeded() {
		return ret
	}
	if dh := diagsOf(o); dh != nil {
		dh.add(inj.rec)
	}
	return api.SuccessWithInfo
}

func (d *Driver) alloc(o any) api.Handle {
	d.next++
	d.objs[d.next] = o
	return d.next
}

func (d *Driver) stmtOf(h api.Handle) (*stmt, bool) {
	s, ok := d.objs[h].(*stmt)
	return s, ok
}

func (d *Driver) String() string {
	return fmt.Sprintf("odbctest.Driver(%d scripts)", len(d.scripts))
}

var _ api.API = (*Driver)(nil)
