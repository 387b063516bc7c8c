package transfer

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to classify a failure returned by any component.
var (
	ErrSizeUnavailable      = errors.New("size unavailable")
	ErrDownloadFailed       = errors.New("download failed")
	ErrReassemblyIncomplete = errors.New("reassembly incomplete")
	ErrExpandFailed         = errors.New("expand failed")
	ErrUploadFailed         = errors.New("upload failed")
	ErrExistenceCheckFailed = errors.New("existence check failed")
	ErrFilesystem           = errors.New("filesystem error")
)

// Error is a failure of one transfer operation.
//
// Both Kind and Err are reachable through errors.Is and errors.As, so a caller
// can test for the kind (ErrDownloadFailed) and for the underlying cause
// (for example an HTTP sentinel) on the same value.
type Error struct {
	Kind error  // One of the Err* kinds above
	Op   string // Operation that failed, e.g. "head", "get range", "put"
	Path string // Source name, local path or object key involved
	Err  error  // Underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return "transfer: " + msg
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError creates an Error of the given kind.
func NewError(kind error, op, path string, err error) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// KindOf returns the kind of err, or nil if err carries none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrSizeUnavailable,
		ErrDownloadFailed,
		ErrReassemblyIncomplete,
		ErrExpandFailed,
		ErrUploadFailed,
		ErrExistenceCheckFailed,
		ErrFilesystem,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
