// Package errs is the registry's error taxonomy. Every pipeline failure carries a
// Kind that decides whether a message is dropped, retried or redelivered.
package errs

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/pkg/errors"
)

type Kind string

const (
	// KindValidation marks malformed input. Dropped, never retried.
	KindValidation Kind = "validation"
	// KindNotFound marks a retrieval miss.
	KindNotFound Kind = "not_found"
	// KindConflict marks an optimistic concurrency collision.
	KindConflict Kind = "conflict"
	// KindRetryable marks conflicts that survived every internal retry.
	KindRetryable Kind = "retryable"
	// KindTransient marks store or queue unavailability.
	KindTransient Kind = "transient"
	// KindCatalog marks a malformed matching profile.
	KindCatalog Kind = "catalog"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Cause satisfies github.com/pkg/errors.Cause.
func (e *Error) Cause() error { return e.Err }

func newError(kind Kind, err error, format string, args ...any) error {
	e := &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
	if err != nil {
		e.Err = errors.WithStack(err)
	}
	return e
}

func Validation(format string, args ...any) error {
	return newError(KindValidation, nil, format, args...)
}

func WrapValidation(err error, format string, args ...any) error {
	return newError(KindValidation, err, format, args...)
}

func NotFound(format string, args ...any) error {
	return newError(KindNotFound, nil, format, args...)
}

func Conflict(format string, args ...any) error {
	return newError(KindConflict, nil, format, args...)
}

func WrapConflict(err error, format string, args ...any) error {
	return newError(KindConflict, err, format, args...)
}

func Retryable(err error, format string, args ...any) error {
	return newError(KindRetryable, err, format, args...)
}

func Transient(err error, format string, args ...any) error {
	return newError(KindTransient, err, format, args...)
}

func Catalog(format string, args ...any) error {
	return newError(KindCatalog, nil, format, args...)
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool { return err != nil && KindOf(err) == kind }

func IsValidation(err error) bool { return Is(err, KindValidation) }
func IsNotFound(err error) bool   { return Is(err, KindNotFound) }
func IsConflict(err error) bool   { return Is(err, KindConflict) }
func IsRetryable(err error) bool  { return Is(err, KindRetryable) }
func IsTransient(err error) bool  { return Is(err, KindTransient) }
func IsCatalog(err error) bool    { return Is(err, KindCatalog) }

// Permanent reports whether redelivering the message that produced err can never succeed.
func Permanent(err error) bool {
	return IsValidation(err) || IsCatalog(err)
}

var statusByKind = map[Kind]int{
	KindValidation: http.StatusBadRequest,
	KindNotFound:   http.StatusNotFound,
	KindConflict:   http.StatusConflict,
	KindRetryable:  http.StatusServiceUnavailable,
	KindTransient:  http.StatusServiceUnavailable,
	KindCatalog:    http.StatusInternalServerError,
}

func StatusCode(err error) int {
	if status, ok := statusByKind[KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ToHTTPError converts a kinded error into an httperror the echo error handler renders.
func ToHTTPError(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	return httperror.NewHTTPError(StatusCode(err), e.Message)
}
