package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy shared by every layer. Wrap with fmt.Errorf("%w: ...") and
// test with errors.Is.
var (
	// ErrNotFound means the referenced complaint (or other record) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation means the caller supplied malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrDependency means a backing store or transport failed.
	ErrDependency = errors.New("dependency failure")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrThrottled    = errors.New("too many requests")
)

// ThrottledError is ErrThrottled carrying how long the caller should wait.
type ThrottledError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%s: %s", ErrThrottled, e.Reason)
}

func (e *ThrottledError) Unwrap() error { return ErrThrottled }
