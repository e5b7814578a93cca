// Package result provides the typed success/failure container used by the
// core instead of plain error returns, plus the shared failure taxonomy.
package result

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Every failed Result wraps exactly one of these.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrIO         = errors.New("io error")
	ErrProcess    = errors.New("process error")
	ErrState      = errors.New("invalid state")
)

// Unit is the payload type for results that carry no value.
type Unit = struct{}

// Result is a tagged success/failure container. On success it carries a
// payload; on failure it carries an error and no payload.
type Result[T any] struct {
	value T
	err   error
	ok    bool
}

// Ok returns a successful result carrying v.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// OkUnit returns a successful result with no payload.
func OkUnit() Result[Unit] {
	return Ok(Unit{})
}

// Err returns a failed result wrapping err.
func Err[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// Errf returns a failed result whose error wraps the given taxonomy kind.
func Errf[T any](kind error, format string, args ...interface{}) Result[T] {
	return Result[T]{err: fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))}
}

// OK reports whether the result is a success.
func (r Result[T]) OK() bool {
	return r.ok
}

// Value returns the payload. Zero value on failure.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the failure error, or nil on success.
func (r Result[T]) Err() error {
	return r.err
}

// Message returns the human-readable failure message, or "" on success.
func (r Result[T]) Message() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsIO checks if an error is an IO error.
func IsIO(err error) bool {
	return errors.Is(err, ErrIO)
}

// IsProcess checks if an error is a subprocess error.
func IsProcess(err error) bool {
	return errors.Is(err, ErrProcess)
}

// IsState checks if an error is a lifecycle state error.
func IsState(err error) bool {
	return errors.Is(err, ErrState)
}
