// Package apperr is the error taxonomy shared by services and the HTTP
// boundary. Every error that reaches a handler is mapped to one Kind.
package apperr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindAuth                Kind = "auth"
	KindRateLimited         Kind = "rate_limited"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindInternal            Kind = "internal"
)

// Error is a classified failure. Message is safe to show to callers; Err is
// the cause and is only exposed outside production.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind and Code so callers can compare against
// the exported sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// With returns a copy of e carrying an extra detail field for the response
// envelope.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Auth(code, message string) *Error {
	return New(KindAuth, code, message)
}

func RateLimited(code, message string) *Error {
	return New(KindRateLimited, code, message)
}

func Unavailable(message string, err error) *Error {
	return Wrap(KindUpstreamUnavailable, "UPSTREAM_UNAVAILABLE", message, err)
}

// Internal records the caller stack on err unless it already carries one.
func Internal(err error) *Error {
	if err == nil {
		err = errors.New("unknown error")
	}
	if _, ok := err.(stackTracer); !ok {
		err = pkgerrors.WithStack(err)
	}
	return Wrap(KindInternal, "INTERNAL", "Internal server error", err)
}

// FromStore classifies a persistence failure. Connection loss, timeouts and
// cancellation mean the datastore is unreachable; anything else is internal.
func FromStore(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		return Unavailable("Database unavailable", err)
	default:
		return Internal(err)
	}
}

// As returns the classified error, treating anything unclassified as
// internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return As(err).Kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// Stack renders the innermost recorded stack, or "" when none was captured.
func Stack(err error) string {
	var found string
	for err != nil {
		if s, ok := err.(stackTracer); ok {
			found = fmt.Sprintf("%+v", s.StackTrace())
		}
		err = errors.Unwrap(err)
	}
	return found
}
