// Package errs defines the error taxonomy shared across depot services.
// Errors are classified so callers can map them to HTTP status codes and
// queue outcomes without string matching.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// DecodeError reports a package file that could not be parsed. The scanner
// records these as failures and keeps walking; they are never fatal.
type DecodeError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode failed"
	if e.Reason != "" {
		msg = e.Reason
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NewDecode builds a DecodeError for path with a short reason.
func NewDecode(path, reason string, err error) error {
	return &DecodeError{Path: path, Reason: strings.TrimSpace(reason), Err: err}
}

// NotFoundError reports a lookup against an identifier that does not exist.
// Kind names the entity class (for example "title" or "download").
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "record"
	}
	if e.Key == "" {
		return fmt.Sprintf("%s not found", kind)
	}
	return fmt.Sprintf("%s %q not found", kind, e.Key)
}

// NewNotFound builds a NotFoundError for the given entity kind and key.
func NewNotFound(kind, key string) error {
	return &NotFoundError{Kind: strings.TrimSpace(kind), Key: key}
}

// TransientIOError reports a network or disk failure that is expected to be
// retryable. Op names the operation that failed.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	op := e.Op
	if op == "" {
		op = "io"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", op, e.Err)
	}
	return fmt.Sprintf("%s: transient failure", op)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// NewTransientIO builds a TransientIOError for the named operation.
func NewTransientIO(op string, err error) error {
	return &TransientIOError{Op: strings.TrimSpace(op), Err: err}
}

// ConflictError reports an operation rejected because of the current state of
// a record, such as an invalid status transition or a concurrent scan.
type ConflictError struct {
	Op  string
	Key string
}

func (e *ConflictError) Error() string {
	op := e.Op
	if op == "" {
		op = "operation"
	}
	if e.Key == "" {
		return fmt.Sprintf("%s: conflict", op)
	}
	return fmt.Sprintf("%s: conflict on %q", op, e.Key)
}

// NewConflict builds a ConflictError for the named operation and key.
func NewConflict(op, key string) error {
	return &ConflictError{Op: strings.TrimSpace(op), Key: key}
}

// IsDecode reports whether err wraps a DecodeError.
func IsDecode(err error) bool {
	var target *DecodeError
	return errors.As(err, &target)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsTransientIO reports whether err wraps a TransientIOError.
func IsTransientIO(err error) bool {
	var target *TransientIOError
	return errors.As(err, &target)
}

// IsConflict reports whether err wraps a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}
