package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/schema"
	"github.com/koustreak/unisql/internal/transfer"
)

type queryRequest struct {
	SQL   string `json:"sql"`
	Args  []any  `json:"args"`
	Limit int    `json:"limit"`
}

type resultSet struct {
	Columns      []database.ColumnDescriptor `json:"columns"`
	Rows         []map[string]any            `json:"rows"`
	Truncated    bool                        `json:"truncated,omitempty"`
	RowsAffected *int64                      `json:"rows_affected,omitempty"`
}

type healthStatus struct {
	Status      string            `json:"status"`
	Connections map[string]string `json:"connections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := healthStatus{Status: "ok", Connections: make(map[string]string, len(s.conns))}
	for name, conn := range s.conns {
		if err := ping(r.Context(), conn.Connector); err != nil {
			out.Status = "degraded"
			out.Connections[name] = err.Error()
			continue
		}
		out.Connections[name] = "ok"
	}

	status := http.StatusOK
	if out.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, out)
}

func ping(ctx context.Context, c database.Connector) error {
	sess, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	return sess.Ping(ctx)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.SQL == "" {
		writeError(w, r, errs.New(errs.ErrKindInvalidInput, "sql is required"))
		return
	}
	args, err := normalizeArgs(req.Args)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sess, ctx, cancel, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cancel()
	defer sess.Close()

	res, err := s.run(ctx, sess, req.SQL, args, s.limit(req.Limit))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// run executes text and collects up to limit rows. Statements without a
// result set report their affected row count instead.
func (s *Server) run(ctx context.Context, sess database.Connectable, text string, args []any, limit int) (*resultSet, error) {
	st, err := sess.Prepare(ctx, text)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	cur, err := st.Execute(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	cols := cur.Columns()
	if len(cols) == 0 {
		n, err := st.RowsAffected()
		if err != nil {
			return nil, err
		}
		return &resultSet{Columns: cols, Rows: []map[string]any{}, RowsAffected: &n}, nil
	}

	rows, err := database.CollectRows(ctx, cur, limit)
	if err != nil {
		return nil, err
	}
	res := &resultSet{Columns: cols, Rows: rows}
	if limit > 0 && len(rows) == limit {
		more, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		res.Truncated = more
	}
	return res, nil
}

func (s *Server) handleTableRows(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit < 0 || offset < 0 {
		writeError(w, r, errs.New(errs.ErrKindInvalidInput, "limit and offset must not be negative"))
		return
	}

	sess, ctx, cancel, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cancel()
	defer sess.Close()

	table := chi.URLParam(r, "table")
	backend := s.conns[chi.URLParam(r, "name")].Connector.Backend()

	// Catalog-capable backends answer a missing table with 404 rather than
	// a backend syntax error.
	if cat, err := schema.New(backend, sess); err == nil {
		ok, err := cat.TableExists(ctx, "", table)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !ok {
			writeError(w, r, errs.Newf(errs.ErrKindNotFound, "table %q not found", table))
			return
		}
	}

	b := database.Select(table, database.DialectFor(backend)).Limit(s.limit(limit))
	if offset > 0 {
		b = b.Offset(offset)
	}
	if col := r.URL.Query().Get("order_by"); col != "" {
		dir := database.Asc
		if r.URL.Query().Get("desc") == "true" {
			dir = database.Desc
		}
		b = b.OrderBy(col, dir)
	}
	text, args, err := b.Build()
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.run(ctx, sess, text, args, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	s.withCatalog(w, r, func(ctx context.Context, cat *schema.Catalog) (any, error) {
		tables, err := cat.ListTables(ctx, r.URL.Query().Get("schema"))
		if err != nil {
			return nil, err
		}
		return map[string][]string{"tables": tables}, nil
	})
}

func (s *Server) handleInspectSchema(w http.ResponseWriter, r *http.Request) {
	s.withCatalog(w, r, func(ctx context.Context, cat *schema.Catalog) (any, error) {
		return cat.InspectSchema(ctx, r.URL.Query().Get("schema"))
	})
}

func (s *Server) handleInspectTable(w http.ResponseWriter, r *http.Request) {
	s.withCatalog(w, r, func(ctx context.Context, cat *schema.Catalog) (any, error) {
		return cat.InspectTable(ctx, r.URL.Query().Get("schema"), chi.URLParam(r, "table"))
	})
}

func (s *Server) withCatalog(w http.ResponseWriter, r *http.Request, fn func(context.Context, *schema.Catalog) (any, error)) {
	sess, ctx, cancel, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cancel()
	defer sess.Close()

	cat, err := schema.New(s.conns[chi.URLParam(r, "name")].Connector.Backend(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := fn(ctx, cat)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.transfer == nil {
		writeError(w, r, errs.New(errs.ErrKindCapabilityMissing, "no file store configured"))
		return
	}
	var req transfer.ExportRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	args, err := normalizeArgs(req.Args)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.Args = args

	sess, ctx, cancel, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cancel()
	defer sess.Close()

	out, err := s.transfer.ExportQuery(ctx, sess, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.transfer == nil {
		writeError(w, r, errs.New(errs.ErrKindCapabilityMissing, "no file store configured"))
		return
	}
	var req transfer.ImportRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	args, err := normalizeArgs(req.Args)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.Args = args

	sess, ctx, cancel, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cancel()
	defer sess.Close()

	n, err := s.transfer.Import(ctx, sess, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"rows_affected": n})
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Wrap(errs.ErrKindInvalidInput, "query parameter "+key, err)
	}
	return n, nil
}
