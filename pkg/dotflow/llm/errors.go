package llm

import (
	"errors"
	"fmt"
)

// Error wraps a provider failure with the operation that produced it
// and whether retrying could help. Transient provider conditions (rate
// limits, overload, 5xx) are marked retryable so callers can feed them
// into a retry policy; everything else should surface immediately.
type Error struct {
	Op        string
	Err       error
	Retryable bool
}

// NewError builds an *Error for the named operation.
func NewError(op string, err error, retryable bool) *Error {
	return &Error{Op: op, Err: err, Retryable: retryable}
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is (or wraps) a retryable *Error.
func IsRetryable(err error) bool {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Retryable
	}
	return false
}
