package patch

import (
	"errors"
	"fmt"
)

var (
	// ErrPathNotFound reports a target or intermediate location that does not exist.
	ErrPathNotFound = errors.New("path not found")
	// ErrInvalidPointer reports malformed pointer syntax.
	ErrInvalidPointer = errors.New("invalid pointer")
	// ErrUnsupportedOp reports an operation name the applier does not know.
	ErrUnsupportedOp = errors.New("unsupported operation")
	// ErrInvalidValue reports a missing value or one of the wrong type.
	ErrInvalidValue = errors.New("invalid value")
)

// Error describes a failed operation. The tree it was applied to is left
// unchanged.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("patch %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(op Op, err error) error {
	return &Error{Op: op.Op, Path: op.Path, Err: err}
}

// Reason returns a short machine-friendly classification for metrics and
// event payloads.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPathNotFound):
		return "path_not_found"
	case errors.Is(err, ErrInvalidPointer):
		return "invalid_pointer"
	case errors.Is(err, ErrUnsupportedOp):
		return "unsupported_op"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	default:
		return "unknown"
	}
}
