package odbc

import (
	"context"
	"sync"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/logger"
	"github.com/koustreak/unisql/internal/odbc/api"
)

// Environment is the root of the handle tree for one loaded driver manager.
// It owns every Connection opened through it and cannot be closed while any
// of them remains open.
type Environment struct {
	mu     sync.Mutex
	h      handle
	conns  map[*Connection]struct{}
	closed bool
	log    *logger.Logger
}

// NewEnvironment allocates an environment handle on a and requests ODBC 3
// behaviour.
func NewEnvironment(a api.API, log *logger.Logger) (*Environment, error) {
	if log == nil {
		log = logger.Nop()
	}
	h, ret := a.AllocHandle(api.HandleEnv, api.NullHandle)
	if !ret.Succeeded() {
		return nil, errs.Newf(errs.ErrKindResourceExhausted, "%s(env) returned %s", api.FnAllocHandle, ret)
	}
	env := &Environment{
		h:     handle{api: a, typ: api.HandleEnv, h: h, log: log},
		conns: map[*Connection]struct{}{},
		log:   log,
	}
	if err := env.h.expect(api.FnSetEnvAttr, a.SetEnvAttr(h, api.AttrODBCVersion, api.OVODBC3)); err != nil {
		a.FreeHandle(api.HandleEnv, h)
		return nil, err
	}
	log.Debug("environment allocated")
	return env, nil
}

// Connect opens a session with a driver connection string. Options are the
// session's explicit configuration; they never leak to other connections.
func (e *Environment) Connect(ctx context.Context, dsn string, opts database.Options) (*Connection, error) {
	cd, err := newCodec(opts)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errs.New(errs.ErrKindNotConnected, "environment is closed")
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	a := e.h.api
	dbc, ret := a.AllocHandle(api.HandleDbc, e.h.h)
	if err := e.h.expect(api.FnAllocHandle, ret); err != nil {
		return nil, err
	}
	log := e.log.Component("connection")
	c := &Connection{
		env:   e,
		h:     handle{api: a, typ: api.HandleDbc, h: dbc, log: log},
		opts:  opts,
		codec: cd,
		stmts: map[*Statement]struct{}{},
		log:   log,
	}

	if opts.LoginTimeout > 0 {
		secs := uintptr(opts.LoginTimeout.Seconds())
		if err := c.h.expect(api.FnSetConnectAttr, a.SetConnectAttr(dbc, api.AttrLoginTimeout, max(secs, 1))); err != nil {
			a.FreeHandle(api.HandleDbc, dbc)
			return nil, err
		}
	}
	if err := c.h.expect(api.FnDriverConnect, a.DriverConnect(dbc, dsn)); err != nil {
		a.FreeHandle(api.HandleDbc, dbc)
		return nil, err
	}
	if err := c.applySession(); err != nil {
		a.Disconnect(dbc)
		a.FreeHandle(api.HandleDbc, dbc)
		return nil, err
	}

	e.conns[c] = struct{}{}
	log.With().Str("charset", cd.name).Str("protocol", string(opts.Protocol)).Logger().Info("connected")
	return c, nil
}

// applySession sets the connection attributes derived from the options.
func (c *Connection) applySession() error {
	if !c.opts.Autocommit {
		ret := c.h.api.SetConnectAttr(c.h.h, api.AttrAutocommit, api.AutocommitOff)
		if err := c.h.expect(api.FnSetConnectAttr, ret); err != nil {
			return err
		}
	}
	if c.opts.ReadOnly {
		ret := c.h.api.SetConnectAttr(c.h.h, api.AttrAccessMode, api.ModeReadOnly)
		if err := c.h.expect(api.FnSetConnectAttr, ret); err != nil {
			return err
		}
	}
	return nil
}

func (e *Environment) release(c *Connection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, c)
}

// Close frees the environment handle. It fails while connections remain
// open; see CloseAll. Closing twice is a no-op.
func (e *Environment) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if n := len(e.conns); n > 0 {
		return errs.Newf(errs.ErrKindInvalidCursorState, "environment still owns %d open connections", n)
	}
	e.closed = true
	e.log.Debug("environment freed")
	return e.h.check(api.FnFreeHandle, e.h.api.FreeHandle(api.HandleEnv, e.h.h))
}

// CloseAll closes every connection, then the environment.
func (e *Environment) CloseAll() error {
	e.mu.Lock()
	conns := make([]*Connection, 0, len(e.conns))
	for c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	var first error
	for _, c := range conns {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := e.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
