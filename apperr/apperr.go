package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindBadCredentials      Kind = "bad_credentials"
	KindWrongTenant         Kind = "wrong_tenant"
	KindResetPending        Kind = "reset_pending"
	KindThrottled           Kind = "throttled"
	KindUnsupportedStrategy Kind = "unsupported_strategy"
	KindValidation          Kind = "validation_error"
	KindEmailUnconfirmed    Kind = "email_unconfirmed"
	KindAlreadyExists       Kind = "already_exists"
	KindUnauthorized        Kind = "unauthorized"
	KindInternal            Kind = "internal_error"
)

// HTTPStatus maps an error kind to the status code used by the HTTP layer.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindBadCredentials, KindWrongTenant, KindResetPending, KindUnauthorized:
		return http.StatusUnauthorized
	case KindThrottled:
		return http.StatusTooManyRequests
	case KindUnsupportedStrategy, KindValidation:
		return http.StatusBadRequest
	case KindAlreadyExists:
		return http.StatusConflict
	case KindEmailUnconfirmed:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// FieldError describes a single invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message,omitempty"`
}

// Error is the domain error carried through the service. Message is safe to
// show to callers; Err is the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrBadCredentials      = &Error{Kind: KindBadCredentials}
	ErrWrongTenant         = &Error{Kind: KindWrongTenant}
	ErrResetPending        = &Error{Kind: KindResetPending}
	ErrThrottled           = &Error{Kind: KindThrottled}
	ErrUnsupportedStrategy = &Error{Kind: KindUnsupportedStrategy}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrEmailUnconfirmed    = &Error{Kind: KindEmailUnconfirmed}
	ErrAlreadyExists       = &Error{Kind: KindAlreadyExists}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrInternal            = &Error{Kind: KindInternal}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func BadCredentials(format string, args ...any) *Error {
	return New(KindBadCredentials, format, args...)
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// ValidationFields builds a validation error carrying per-field details.
func ValidationFields(fields []FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "The request is invalid.", Fields: fields}
}

// Internal wraps an unexpected failure. The message is generic; the cause is kept for logs.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: cause}
}

// KindOf reports the kind of err, or KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsDomain reports whether err is a typed domain error (anything but Internal).
func IsDomain(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind != KindInternal
}
