package cfb

import (
	"errors"
	"fmt"
)

// Error kinds reported by the container reader. Use errors.Is to test for them.
var (
	// ErrFormat means the header is not a compound file header or is structurally impossible.
	ErrFormat = errors.New("not a compound document")
	// ErrCorrupt means a sector index, chain or directory entry cannot be trusted.
	ErrCorrupt = errors.New("compound document corrupt")
	// ErrNotFound means a path component names no directory entry.
	ErrNotFound = errors.New("entry not found")
	// ErrNotAStorage means an intermediate path component names a stream.
	ErrNotAStorage = errors.New("not a storage")
	// ErrNotAStream means the final path component names a storage.
	ErrNotAStream = errors.New("not a stream")
)

// CompDocError is returned for every failure inside the compound document layer.
type CompDocError struct {
	Kind    error
	Message string
}

func (e *CompDocError) Error() string {
	return e.Kind.Error() + ": " + e.Message
}

func (e *CompDocError) Unwrap() error {
	return e.Kind
}

func newCompDocError(kind error, format string, args ...interface{}) *CompDocError {
	return &CompDocError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
