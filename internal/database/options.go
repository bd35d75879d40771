package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/unisql/internal/errs"
)

// Session option keys accepted at connect time.
const (
	OptCharset      = "charset"        // IANA character set of narrow character data
	OptProtocol     = "protocol"       // "narrow" or "wide"
	OptLOBPrefetch  = "lob_prefetch"   // fetch unbounded columns into memory right after binding
	OptMaxFieldSize = "max_field_size" // ceiling for eagerly bound character/binary buffers
	OptChunkSize    = "chunk_size"     // buffer size for streamed long data
	OptAutocommit   = "autocommit"
	OptReadOnly     = "read_only"
	OptLoginTimeout = "login_timeout"
	OptBookmarks    = "use_bookmarks" // expose the ordinal 0 bookmark column
)

const (
	DefaultMaxFieldSize = 64 * 1024
	MaxFieldSizeLimit   = 1024 * 1024
	DefaultChunkSize    = 8 * 1024
	minChunkSize        = 16
)

// Protocol selects the narrow or wide character call variants.
type Protocol string

const (
	ProtocolNarrow Protocol = "narrow"
	ProtocolWide   Protocol = "wide"
)

// Options is the parsed session configuration. It is an explicit value
// attached to a connection, never process-global state.
type Options struct {
	Charset      string
	Protocol     Protocol
	LOBPrefetch  bool
	MaxFieldSize int
	ChunkSize    int
	Autocommit   bool
	ReadOnly     bool
	LoginTimeout time.Duration
	Bookmarks    bool
}

// DefaultOptions returns the option set used when a key is absent.
func DefaultOptions() Options {
	return Options{
		Charset:      "UTF-8",
		Protocol:     ProtocolNarrow,
		MaxFieldSize: DefaultMaxFieldSize,
		ChunkSize:    DefaultChunkSize,
		Autocommit:   true,
	}
}

// ParseOptions reads a string-keyed option map. Unknown keys are rejected so
// typos in configuration surface at connect time.
func ParseOptions(m map[string]string) (Options, error) {
	opts := DefaultOptions()
	for key, raw := range m {
		val := strings.TrimSpace(raw)
		var err error
		switch strings.ToLower(key) {
		case OptCharset:
			if val == "" {
				err = fmt.Errorf("empty charset")
			}
			opts.Charset = val
		case OptProtocol:
			switch Protocol(strings.ToLower(val)) {
			case ProtocolNarrow:
				opts.Protocol = ProtocolNarrow
			case ProtocolWide:
				opts.Protocol = ProtocolWide
			default:
				err = fmt.Errorf("want narrow or wide, got %q", val)
			}
		case OptLOBPrefetch:
			opts.LOBPrefetch, err = strconv.ParseBool(val)
		case OptMaxFieldSize:
			opts.MaxFieldSize, err = parseSize(val)
			if opts.MaxFieldSize > MaxFieldSizeLimit {
				opts.MaxFieldSize = MaxFieldSizeLimit
			}
		case OptChunkSize:
			opts.ChunkSize, err = parseSize(val)
			if err == nil && opts.ChunkSize < minChunkSize {
				err = fmt.Errorf("chunk size must be at least %d", minChunkSize)
			}
		case OptAutocommit:
			opts.Autocommit, err = strconv.ParseBool(val)
		case OptReadOnly:
			opts.ReadOnly, err = strconv.ParseBool(val)
		case OptLoginTimeout:
			opts.LoginTimeout, err = time.ParseDuration(val)
		case OptBookmarks:
			opts.Bookmarks, err = strconv.ParseBool(val)
		default:
			err = fmt.Errorf("unknown option")
		}
		if err != nil {
			return Options{}, errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("session option %q", key), err)
		}
	}
	return opts, nil
}

func parseSize(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("size must be positive, got %d", n)
	}
	return n, nil
}
