package lob

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrHandleOutOfRange = errors.New("handle out of range")
	ErrInvalidHandle    = errors.New("invalid handle")
	ErrHandlesExhausted = errors.New("out of free handle slots")
	ErrBackingStore     = errors.New("backing store failure")
	ErrPathTooLong      = errors.New("path too long")
	ErrPermissionDenied = errors.New("permission denied")
	ErrPartialTransfer  = errors.New("partial transfer")
	ErrModeNotPermitted = errors.New("operation not permitted by open mode")
)

// Error provides structured error information for large-object operations.
type Error struct {
	Op       string   // Operation that failed (e.g., "lo_open", "lo_export")
	Handle   Handle   // Handle involved, or -1
	ObjectID ObjectID // Object involved, or InvalidObjectID
	Path     string   // Local path (import/export only)
	Cause    error    // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Path != "":
		return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Cause)
	case e.ObjectID != InvalidObjectID:
		return fmt.Sprintf("%s object %d: %v", e.Op, e.ObjectID, e.Cause)
	case e.Handle >= 0:
		return fmt.Sprintf("%s handle %d: %v", e.Op, e.Handle, e.Cause)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target error matches this error or its cause.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}

func handleErr(op string, h Handle, cause error) *Error {
	return &Error{Op: op, Handle: h, ObjectID: InvalidObjectID, Cause: cause}
}

func objectErr(op string, id ObjectID, cause error) *Error {
	return &Error{Op: op, Handle: -1, ObjectID: id, Cause: cause}
}

func pathErr(op, path string, cause error) *Error {
	return &Error{Op: op, Handle: -1, ObjectID: InvalidObjectID, Path: path, Cause: cause}
}
