// Package errors carries the typed error used across the backend. Every
// error has a Code, and the Code decides the HTTP status and how much of
// the error a client gets to see.
package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeIntegrity         Code = "INTEGRITY_ERROR"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit         Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata is the client-facing policy of a Code.
type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
	// DetailsAllowed exposes Error.Details in responses.
	DetailsAllowed bool
	// MessageAllowed replaces PublicMessage with the error's own message.
	MessageAllowed bool
}

func public(status int, msg string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg, MessageAllowed: true, DetailsAllowed: true}
}

func private(status int, msg string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg}
}

func (m Metadata) retryable() Metadata {
	m.Retryable = true
	return m
}

func (m Metadata) withoutDetails() Metadata {
	m.DetailsAllowed = false
	return m
}

func (m Metadata) withDetails() Metadata {
	m.DetailsAllowed = true
	return m
}

var catalog = map[Code]Metadata{
	CodeValidation:        public(http.StatusBadRequest, "validation failed"),
	CodeUnauthorized:      public(http.StatusUnauthorized, "authentication required").withoutDetails(),
	CodeForbidden:         public(http.StatusForbidden, "access denied").withoutDetails(),
	CodeNotFound:          public(http.StatusNotFound, "resource not found").withoutDetails(),
	CodeConflict:          public(http.StatusConflict, "record changed concurrently").retryable(),
	CodeInvalidTransition: public(http.StatusUnprocessableEntity, "command not allowed in current status"),
	CodeIntegrity:         public(http.StatusInternalServerError, "record history failed verification"),
	CodeIdempotency:       public(http.StatusConflict, "idempotency key reused"),
	CodeRateLimit:         public(http.StatusTooManyRequests, "rate limit exceeded").withoutDetails(),
	CodeInternal:          private(http.StatusInternalServerError, "internal server error").retryable(),
	CodeDependency:        private(http.StatusServiceUnavailable, "dependency unavailable").retryable().withDetails(),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := catalog[code]; ok {
		return meta
	}
	return catalog[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Code reports CodeInternal on a nil receiver.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func IsCode(err error, code Code) bool {
	return As(err).codeIs(code)
}

func (e *Error) codeIs(code Code) bool {
	return e != nil && e.code == code
}
