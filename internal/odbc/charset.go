package odbc

import (
	"io"
	"strings"
	"unicode/utf8"

	"github.com/koustreak/unisql/internal/database"
	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/odbc/api"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// codec converts character data between the driver's representation and
// Go strings. Narrow sessions exchange bytes in the configured charset as
// SQL_C_CHAR; wide sessions exchange UTF-16 code units as SQL_C_WCHAR.
type codec struct {
	name    string
	enc     encoding.Encoding
	wide    bool
	unit    int // bytes per code unit, and per terminator
	maxChar int // worst-case bytes per character
	utf8    bool
}

func newCodec(opts database.Options) (*codec, error) {
	if opts.Protocol == database.ProtocolWide {
		return &codec{
			name:    "UTF-16LE",
			enc:     unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
			wide:    true,
			unit:    2,
			maxChar: 4,
		}, nil
	}

	enc, err := ianaindex.IANA.Encoding(opts.Charset)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "unknown charset "+opts.Charset, err)
	}
	if enc == nil {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "charset %s is not supported", opts.Charset)
	}
	c := &codec{name: opts.Charset, enc: enc, unit: 1, maxChar: 4}
	if enc == unicode.UTF8 || strings.EqualFold(opts.Charset, "utf-8") || strings.EqualFold(opts.Charset, "utf8") {
		c.utf8 = true
	}
	if _, single := enc.(*charmap.Charmap); single {
		c.maxChar = 1
	}
	return c, nil
}

// cType is the C type used to bind and fetch character data.
func (c *codec) cType() int16 {
	if c.wide {
		return api.CWChar
	}
	return api.CChar
}

// sqlType picks the wire type for a character parameter.
func (c *codec) sqlType(long bool) int16 {
	switch {
	case c.wide && long:
		return api.TypeWLongVarchar
	case c.wide:
		return api.TypeWVarchar
	case long:
		return api.TypeLongVarchar
	default:
		return api.TypeVarchar
	}
}

// bufferSize returns the bytes needed to hold chars characters plus the
// terminator the driver appends.
func (c *codec) bufferSize(chars int64) int64 {
	if c.wide {
		return (chars + 1) * 2
	}
	return chars*int64(c.maxChar) + 1
}

func (c *codec) decode(b []byte) (string, error) {
	if c.utf8 {
		return string(b), nil
	}
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindUnsupportedConversion, "cannot decode "+c.name+" data", err)
	}
	return string(out), nil
}

func (c *codec) encode(s string) ([]byte, error) {
	if c.utf8 {
		if !utf8.ValidString(s) {
			return nil, errs.New(errs.ErrKindInvalidInput, "string parameter is not valid UTF-8")
		}
		return []byte(s), nil
	}
	out, err := c.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "cannot encode string as "+c.name, err)
	}
	return out, nil
}

// decodeReader yields UTF-8 from a reader of driver-encoded bytes. Partial
// sequences split across chunk boundaries are carried over by transform.
func (c *codec) decodeReader(r io.Reader) io.Reader {
	if c.utf8 {
		return r
	}
	return transform.NewReader(r, c.enc.NewDecoder())
}

// encodeReader is the inverse of decodeReader for streamed parameters.
func (c *codec) encodeReader(r io.Reader) io.Reader {
	if c.utf8 {
		return r
	}
	return transform.NewReader(r, c.enc.NewEncoder())
}
