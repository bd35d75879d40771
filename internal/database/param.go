package database

import "io"

// StreamParam is a statement parameter whose data is read from R while the
// statement executes. Type selects character or binary data; Size is the
// total length in bytes when known, otherwise 0. Backends without a
// data-at-execution protocol drain R before executing.
type StreamParam struct {
	R    io.Reader
	Type TypeTag
	Size int64
}
