package app

import (
	"errors"

	"github.com/hylla/timeboard/internal/domain"
)

// ErrNotFound and related errors classify service failures. Anything that is
// neither one of these nor a domain validation error is an infrastructure failure.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	ErrMismatch  = errors.New("mismatch")
)

// ErrorKind names a failure class stable enough for transports to branch on.
type ErrorKind string

// ErrorKind values.
const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
	KindConflict   ErrorKind = "conflict"
	KindMismatch   ErrorKind = "mismatch"
	KindInternal   ErrorKind = "internal"
)

// KindOf classifies err. A nil error has no kind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrMismatch):
		return KindMismatch
	default:
		return KindInternal
	}
}
