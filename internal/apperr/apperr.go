// Package apperr models the system's fallible operations as tagged error
// variants instead of exception-style control flow, per the taxonomy in
// spec §7. Only the façade layer (internal/server) maps a Kind to an HTTP
// status; every other package returns or wraps an *E.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one entry in the §7 taxonomy.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindUnauthorized   Kind = "unauthorized"
	KindForbidden      Kind = "forbidden"
	KindNotFound       Kind = "not_found"
	KindVersionConflict Kind = "version_conflict"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindInternal       Kind = "internal_error"
	KindBadGateway     Kind = "bad_gateway"
	KindGatewayTimeout Kind = "gateway_timeout"
)

// E is the tagged error value threaded through every component.
type E struct {
	Kind    Kind
	Message string
	Detail  any
	cause   error
}

func (e *E) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.cause }

// New constructs a tagged error with no detail and no wrapped cause.
func New(kind Kind, message string) *E {
	return &E{Kind: kind, Message: message}
}

// Newf constructs a tagged error with a formatted message.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a Kind, preserving it for Unwrap.
func Wrap(kind Kind, message string, cause error) *E {
	return &E{Kind: kind, Message: message, cause: cause}
}

// WithDetail attaches a structured detail payload (e.g. field-level
// validation failures) and returns the same *E for chaining.
func (e *E) WithDetail(detail any) *E {
	e.Detail = detail
	return e
}

// As extracts an *E from err, following spec §7's "surface at the API
// layer" rule: any error that isn't already tagged becomes internal_error.
func As(err error) *E {
	if err == nil {
		return nil
	}
	var e *E
	if errors.As(err, &e) {
		return e
	}
	return &E{Kind: KindInternal, Message: "internal error", cause: err}
}

func NotFound(what string) *E         { return New(KindNotFound, what+" not found") }
func Validation(msg string) *E        { return New(KindValidation, msg) }
func Unauthorized(msg string) *E      { return New(KindUnauthorized, msg) }
func Forbidden(msg string) *E         { return New(KindForbidden, msg) }
func VersionConflict(msg string) *E   { return New(KindVersionConflict, msg) }
func PayloadTooLarge(msg string) *E   { return New(KindPayloadTooLarge, msg) }
func Internal(msg string, cause error) *E { return Wrap(KindInternal, msg, cause) }
func BadGateway(msg string, cause error) *E { return Wrap(KindBadGateway, msg, cause) }
func GatewayTimeout(msg string) *E    { return New(KindGatewayTimeout, msg) }
