// Package memory is a process-local filestore.Store. Objects live in maps
// guarded by a mutex; nothing survives a restart.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/filestore"
)

type entry struct {
	data []byte
	info filestore.ObjectInfo
	meta map[string]string
}

// Store is an in-memory filestore.Store. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*entry
	now     func() time.Time
}

func New() *Store {
	return &Store{buckets: map[string]map[string]*entry{}, now: time.Now}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) EnsureBucket(_ context.Context, bucket string) error {
	if bucket == "" {
		return errs.New(errs.ErrKindInvalidInput, "bucket name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = map[string]*entry{}
	}
	return nil
}

// PutObject reads r fully. When opts.Size is known the reader must supply
// exactly that many bytes.
func (s *Store) PutObject(ctx context.Context, bucket, key string, r io.Reader, opts filestore.PutOptions) (*filestore.ObjectInfo, error) {
	if key == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "object key is empty")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read object content", err)
	}
	if opts.Size >= 0 && int64(len(data)) != opts.Size {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "object size %d does not match declared size %d", len(data), opts.Size)
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "put cancelled", err)
	}

	sum := md5.Sum(data)
	e := &entry{
		data: data,
		meta: opts.Metadata,
		info: filestore.ObjectInfo{
			Key:          key,
			Bucket:       bucket,
			Size:         int64(len(data)),
			ContentType:  opts.ContentType,
			ETag:         hex.EncodeToString(sum[:]),
			LastModified: s.now(),
		},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	objects, ok := s.buckets[bucket]
	if !ok {
		return nil, errNoBucket(bucket)
	}
	objects[key] = e
	info := e.info
	return &info, nil
}

func (s *Store) GetObject(_ context.Context, bucket, key string) (filestore.Object, error) {
	e, err := s.lookup(bucket, key)
	if err != nil {
		return nil, err
	}
	info := e.info
	return &object{Reader: bytes.NewReader(e.data), info: &info}, nil
}

func (s *Store) StatObject(_ context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	e, err := s.lookup(bucket, key)
	if err != nil {
		return nil, err
	}
	info := e.info
	return &info, nil
}

// Metadata returns the user metadata stored with an object.
func (s *Store) Metadata(bucket, key string) (map[string]string, error) {
	e, err := s.lookup(bucket, key)
	if err != nil {
		return nil, err
	}
	return e.meta, nil
}

func (s *Store) RemoveObject(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, ok := s.buckets[bucket]
	if !ok {
		return errNoBucket(bucket)
	}
	delete(objects, key)
	return nil
}

// PresignGetURL returns a memory:// URL. It is only meaningful to this process.
func (s *Store) PresignGetURL(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if _, err := s.lookup(bucket, key); err != nil {
		return "", err
	}
	u := url.URL{
		Scheme:   "memory",
		Host:     bucket,
		Path:     "/" + key,
		RawQuery: url.Values{"expires": {s.now().Add(ttl).UTC().Format(time.RFC3339)}}.Encode(),
	}
	return u.String(), nil
}

func (s *Store) lookup(bucket, key string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objects, ok := s.buckets[bucket]
	if !ok {
		return nil, errNoBucket(bucket)
	}
	e, ok := objects[key]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "object %s/%s not found", bucket, key)
	}
	return e, nil
}

func errNoBucket(bucket string) error {
	return errs.Newf(errs.ErrKindNotFound, "bucket %s not found", bucket)
}

type object struct {
	*bytes.Reader
	info *filestore.ObjectInfo
}

func (o *object) Close() error                { return nil }
func (o *object) Info() *filestore.ObjectInfo { return o.info }

var _ filestore.Store = (*Store)(nil)
