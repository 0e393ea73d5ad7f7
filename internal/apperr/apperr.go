// Package apperr defines the tagged error type that request handlers and the
// ingress pipeline return, so the fault boundary can pick a status code
// without inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the failure domain of an Error.
type Kind string

const (
	KindInternal        Kind = "internal"
	KindCorsRejected    Kind = "cors_rejected"
	KindBodyParse       Kind = "body_parse"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindNotFound        Kind = "not_found"
	KindMethod          Kind = "method_not_allowed"
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindUnauthorized    Kind = "unauthorized"
	KindUnavailable     Kind = "unavailable"
	KindUpstream        Kind = "upstream"
)

// Error is a classified failure. Message is safe to show to clients; Err
// keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same Kind, so callers can write
// errors.Is(err, apperr.NotFound("")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Status maps the Kind to an HTTP status code.
func (e *Error) Status() int {
	return StatusFor(e.Kind)
}

// StatusFor maps a Kind to an HTTP status code.
func StatusFor(k Kind) int {
	switch k {
	case KindCorsRejected:
		return http.StatusForbidden
	case KindBodyParse:
		return http.StatusBadRequest
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindNotFound:
		return http.StatusNotFound
	case KindMethod:
		return http.StatusMethodNotAllowed
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// KindOf reports the Kind of err, or KindInternal when err carries no tag.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// New builds an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// CorsRejected reports a request from an origin outside the allow-list.
func CorsRejected(origin string) *Error {
	return &Error{Kind: KindCorsRejected, Message: "Origen no permitido por CORS", Err: fmt.Errorf("origin %q", origin)}
}

// BodyParse reports a body that could not be read or decoded.
func BodyParse(err error) *Error {
	return &Error{Kind: KindBodyParse, Message: "invalid request body", Err: err}
}

// PayloadTooLarge reports a body over limit bytes.
func PayloadTooLarge(limit int64) *Error {
	return &Error{Kind: KindPayloadTooLarge, Message: fmt.Sprintf("request body exceeds %d bytes", limit)}
}

// NotFound reports a missing resource; msg defaults to "not found".
func NotFound(msg string) *Error {
	if msg == "" {
		msg = "not found"
	}
	return &Error{Kind: KindNotFound, Message: msg}
}

// MethodNotAllowed reports a path that exists without a handler for method.
func MethodNotAllowed(method, path string) *Error {
	return &Error{Kind: KindMethod, Message: fmt.Sprintf("Cannot %s %s", method, path)}
}

// Validation reports a well-formed body with unacceptable content.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Unauthorized reports missing or invalid credentials.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// Unavailable reports a dependency that is not ready yet.
func Unavailable(msg string) *Error {
	return &Error{Kind: KindUnavailable, Message: msg}
}
