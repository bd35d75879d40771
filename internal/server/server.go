// Package server exposes configured connections over HTTP.
//
// Every request opens its own session on the named connection and closes it
// before the response completes, so handlers never share a Connectable.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/unisql/internal/config"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/logger"
	"github.com/koustreak/unisql/internal/transfer"
)

// Connection is one named database the server routes to.
type Connection struct {
	Connector database.Connector

	// QueryTimeout bounds each request's work on the connection; zero means
	// the request context alone.
	QueryTimeout time.Duration
}

// Server is the HTTP surface. Build it with New and start it with Run.
type Server struct {
	cfg      config.ServerConfig
	conns    map[string]Connection
	transfer *transfer.Service // nil when no file store is configured
	log      *logger.Logger
	router   chi.Router
}

// New builds a Server over conns. xfer may be nil, in which case the
// export and import routes fail with ErrKindCapabilityMissing.
func New(cfg config.ServerConfig, conns map[string]Connection, xfer *transfer.Service, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		cfg:      cfg,
		conns:    conns,
		transfer: xfer,
		log:      log.Component("server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1/connections/{name}", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Get("/tables", s.handleListTables)
		r.Get("/tables/{table}", s.handleTableRows)
		r.Get("/schema", s.handleInspectSchema)
		r.Get("/schema/{table}", s.handleInspectTable)
		r.Post("/export", s.handleExport)
		r.Post("/import", s.handleImport)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errs.Newf(errs.ErrKindNotFound, "no route for %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{
			Kind:    "method_not_allowed",
			Message: r.Method + " is not allowed on " + r.URL.Path,
		}})
	})
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully
// within cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return s.log.WithContext(context.Background()) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.With().Str("addr", s.cfg.Addr).Logger().Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errs.Wrap(errs.ErrKindConnectionFailed, "http server failed", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "http server shutdown", err)
	}
	return nil
}

// session opens a fresh session on the connection named in the route. The
// returned cancel func releases the per-request deadline and must be called
// after the session is closed.
func (s *Server) session(r *http.Request) (database.Connectable, context.Context, context.CancelFunc, error) {
	name := chi.URLParam(r, "name")
	conn, ok := s.conns[name]
	if !ok {
		return nil, nil, nil, errs.Newf(errs.ErrKindNotFound, "unknown connection %q", name)
	}

	ctx, cancel := r.Context(), context.CancelFunc(func() {})
	if conn.QueryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, conn.QueryTimeout)
	}
	sess, err := conn.Connector.Connect(ctx)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return sess, ctx, cancel, nil
}

// limit clamps a requested row count to the configured maximum.
func (s *Server) limit(n int) int {
	if n <= 0 || (s.cfg.MaxRows > 0 && n > s.cfg.MaxRows) {
		return s.cfg.MaxRows
	}
	return n
}
