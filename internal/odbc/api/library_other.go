//go:build !(darwin || freebsd || linux)

package api

import "github.com/koustreak/unisql/internal/errs"

// Library is unavailable on this platform.
type Library struct{ API }

const DefaultLibrary = ""

// Load always fails: dynamic loading of a driver manager is only wired for
// unix platforms.
func Load(path string) (*Library, error) {
	return nil, errs.New(errs.ErrKindCapabilityMissing, "loading an ODBC driver manager is not supported on this platform")
}

func (l *Library) Path() string  { return "" }
func (l *Library) Unload() error { return nil }
