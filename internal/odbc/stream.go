package odbc

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/odbc/api"
)

// chunkReader pulls one deferred column of one row through SQLGetData,
// chunk by chunk. It is forward-only and belongs to the row it was opened
// on: once the cursor advances, further reads fail.
type chunkReader struct {
	cur  *Cursor
	b    *binding
	gen  uint64
	buf  *api.Buffer
	data []byte // unread part of the current chunk
	done bool
	err  error

	// locked is set when the caller already holds the connection lock.
	locked bool
}

func newChunkReader(cur *Cursor, b *binding, chunk int) *chunkReader {
	return &chunkReader{
		cur: cur,
		b:   b,
		gen: cur.gen,
		buf: api.NewBuffer(chunk),
	}
}

// Read serves the current chunk and refills it from the driver. Every call
// verifies the cursor is still on the row the reader was opened on.
func (r *chunkReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if !r.locked {
		mu := &r.cur.stmt.conn.mu
		mu.Lock()
		defer mu.Unlock()
	}
	if err := r.cur.checkRow(r.gen); err != nil {
		r.err = err
		return 0, err
	}
	for len(r.data) == 0 {
		if r.done {
			return 0, io.EOF
		}
		if err := r.fill(); err != nil {
			r.err = err
			return 0, err
		}
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

// fill issues one SQLGetData call. SUCCESS ends the value; SUCCESS_WITH_INFO
// carrying only the truncation warning means the chunk is full and more
// follows; NO_DATA means everything was already returned. Called with the
// connection lock held.
func (r *chunkReader) fill() error {
	s := r.cur.stmt
	// Drivers fill whole code units only.
	capacity := len(r.buf.Data) - r.b.term
	capacity -= capacity % max(r.b.term, 1)

	ret := s.h.api.GetData(s.h.h, r.b.ordinal(), r.b.cType, r.buf)
	switch ret {
	case api.Success:
		r.done = true
		n := r.buf.Indicator
		switch {
		case n == api.NullData:
			n = 0
		case n == api.NoTotal || n > int64(capacity):
			n = int64(capacity)
		case n < 0:
			return s.fail(errs.Newf(errs.ErrKindUnclassifiedNative,
				"column %d: invalid length indicator %d", r.b.desc.Ordinal, n))
		}
		r.data = r.buf.Data[:n]
	case api.SuccessWithInfo:
		recs := s.h.collect()
		if !onlyTruncation(recs) {
			return s.fail(promoteInfo(recs))
		}
		r.data = r.buf.Data[:capacity]
	case api.NoData:
		r.done = true
	default:
		return s.fail(s.h.fatal(api.FnGetData, ret))
	}
	return nil
}

// charStream wraps a reader of driver-encoded bytes as a RuneStream. The
// bufio layer keeps the last rune for UnreadRune across refills.
func charStream(raw io.Reader, c *codec, size int) database.RuneStream {
	return bufio.NewReaderSize(c.decodeReader(raw), size)
}

func stringStream(s string) database.RuneStream {
	return bufio.NewReader(strings.NewReader(s))
}

// readAll drains a deferred column into memory.
func readAll(r io.Reader) ([]byte, error) {
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
