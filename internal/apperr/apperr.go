package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the stable codes surfaced to
// clients and used by the worker to decide whether a job is retryable.
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindTransform  Kind = "transform_error"
	KindStorage    Kind = "storage_error"
	KindInternal   Kind = "internal_error"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// Terminal reports whether err must not be retried by the queue: the
// job would fail the same way on every delivery.
func Terminal(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindTransform, KindNotFound, KindConflict:
		return true
	}
	return false
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindStorage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
