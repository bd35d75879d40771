// Package transfer moves large column values between a database session
// and object storage. Exports read an unbounded column through its stream
// accessor and upload it without materialising it; imports hand a stored
// object to a statement as a streamed parameter.
package transfer

import (
	"context"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/filestore"
	"github.com/koustreak/unisql/internal/logger"
)

const (
	contentBinary = "application/octet-stream"
	contentText   = "text/plain; charset=utf-8"

	keyPrefix = "exports"
)

// Service exports and imports column data. It is safe for concurrent use
// as long as each call uses its own session.
type Service struct {
	store  filestore.Store
	bucket string
	ttl    time.Duration
	log    *logger.Logger
}

// New returns a Service writing to bucket unless a request names another.
// ttl bounds presigned download URLs; zero disables them.
func New(store filestore.Store, bucket string, ttl time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, bucket: bucket, ttl: ttl, log: log.Component("transfer")}
}

// ExportRequest selects one column of the first row of a query.
type ExportRequest struct {
	SQL    string `json:"sql"`
	Args   []any  `json:"args"`
	Column string `json:"column"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Export is the stored result of an export.
type Export struct {
	Object *filestore.ObjectInfo     `json:"object"`
	Column database.ColumnDescriptor `json:"column"`
	URL    string                    `json:"url,omitempty"`
}

// ExportQuery runs req.SQL on conn and uploads req.Column of the first row.
// A query without rows fails with ErrKindNotFound.
func (s *Service) ExportQuery(ctx context.Context, conn database.Connectable, req ExportRequest) (*Export, error) {
	if req.SQL == "" || req.Column == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "transfer: sql and column are required")
	}
	st, err := conn.Prepare(ctx, req.SQL)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	cur, err := st.Execute(ctx, req.Args...)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	ok, err := cur.Next(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "transfer: query returned no rows")
	}
	col, err := cur.ColumnByName(req.Column)
	if err != nil {
		return nil, err
	}
	return s.ExportColumn(ctx, col, req.Bucket, req.Key)
}

// ExportColumn uploads the current value of col. Character data is stored
// as UTF-8 text, binary data as-is, any other type in its text form. An
// empty key gets a generated one under exports/.
func (s *Service) ExportColumn(ctx context.Context, col database.Column, bucket, key string) (*Export, error) {
	desc := col.Descriptor()
	null, err := col.IsNull()
	if err != nil {
		return nil, err
	}
	if null {
		return nil, errs.Newf(errs.ErrKindNullValue, "transfer: column %s is NULL", desc.Name)
	}

	var (
		r           io.Reader
		contentType string
	)
	if desc.Type.IsBinary() {
		contentType = contentBinary
		if r, err = col.BinaryStream(); err != nil {
			return nil, err
		}
	} else {
		contentType = contentText
		if r, err = col.CharStream(); err != nil {
			return nil, err
		}
	}

	if bucket == "" {
		bucket = s.bucket
	}
	if key == "" {
		key = path.Join(keyPrefix, uuid.NewString())
	}
	if err := s.store.EnsureBucket(ctx, bucket); err != nil {
		return nil, err
	}

	info, err := s.store.PutObject(ctx, bucket, key, r, filestore.PutOptions{
		Size:        -1,
		ContentType: contentType,
		Metadata: map[string]string{
			"column":  desc.Name,
			"ordinal": strconv.Itoa(desc.Ordinal),
			"type":    desc.Type.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	out := &Export{Object: info, Column: desc}
	if s.ttl > 0 {
		if out.URL, err = s.store.PresignGetURL(ctx, bucket, key, s.ttl); err != nil {
			return nil, err
		}
	}
	s.log.With().
		Str("column", desc.Name).
		Str("bucket", bucket).
		Str("key", key).
		Logger().Info("column exported")
	return out, nil
}

// ImportRequest runs SQL with a stored object bound as its last parameter.
type ImportRequest struct {
	SQL    string `json:"sql"`
	Args   []any  `json:"args"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Import streams the object named by req into the statement as its final
// parameter and returns the affected row count.
func (s *Service) Import(ctx context.Context, conn database.Connectable, req ImportRequest) (int64, error) {
	if req.SQL == "" || req.Key == "" {
		return 0, errs.New(errs.ErrKindInvalidInput, "transfer: sql and key are required")
	}
	bucket := req.Bucket
	if bucket == "" {
		bucket = s.bucket
	}
	obj, err := s.store.GetObject(ctx, bucket, req.Key)
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	st, err := conn.Prepare(ctx, req.SQL)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	args := append(append([]any{}, req.Args...), objectParam(obj))
	cur, err := st.Execute(ctx, args...)
	if err != nil {
		return 0, err
	}
	if err := cur.Close(); err != nil {
		return 0, err
	}
	n, err := st.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.log.With().
		Str("bucket", bucket).
		Str("key", req.Key).
		Logger().Info("object imported")
	return n, nil
}

// objectParam binds obj as a stream parameter. text/* objects are character
// data; everything else is binary. A known size is passed on so drivers can
// take the length up front.
func objectParam(obj filestore.Object) database.StreamParam {
	p := database.StreamParam{R: obj, Type: database.TypeLongBinary}
	info := obj.Info()
	if info == nil {
		return p
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(info.ContentType)), "text/") {
		p.Type = database.TypeLongChar
	}
	if info.Size > 0 {
		p.Size = info.Size
	}
	return p
}
