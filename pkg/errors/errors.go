// Package errors carries the typed API error used across services. A Code
// fixes the HTTP status, public message and retry hint for every failure that
// reaches a handler.
package errors

import (
	"context"
	stdErrors "errors"
	"net/http"
	"strings"
)

type Code string

const (
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeAmountMismatch Code = "AMOUNT_MISMATCH"
	CodeCardDeclined   Code = "CARD_DECLINED"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeForbidden      Code = "FORBIDDEN"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeStateConflict  Code = "STATE_CONFLICT"
	CodeIdempotency    Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit      Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal       Code = "INTERNAL_ERROR"
	CodeDependency     Code = "UPSTREAM_FAILURE"
)

// Metadata is the transport contract of a Code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// Positional: status, retryable, public message, details allowed.
var codeTable = map[Code]Metadata{
	CodeValidation:     {http.StatusBadRequest, false, "validation failed", true},
	CodeAmountMismatch: {http.StatusUnprocessableEntity, false, "amount does not match cart total", true},
	CodeCardDeclined:   {http.StatusPaymentRequired, false, "card declined", true},
	CodeUnauthorized:   {http.StatusUnauthorized, false, "authentication required", false},
	CodeForbidden:      {http.StatusForbidden, false, "access denied", false},
	CodeNotFound:       {http.StatusNotFound, false, "resource not found", false},
	CodeConflict:       {http.StatusConflict, false, "conflict detected", false},
	CodeStateConflict:  {http.StatusUnprocessableEntity, false, "state transition disallowed", true},
	CodeIdempotency:    {http.StatusConflict, false, "idempotency key reused", true},
	CodeRateLimit:      {http.StatusTooManyRequests, false, "rate limit exceeded", false},
	CodeInternal:       {http.StatusInternalServerError, true, "internal server error", false},
	CodeDependency:     {http.StatusServiceUnavailable, true, "dependency unavailable", true},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	meta, ok := codeTable[code]
	if !ok {
		meta = codeTable[CodeInternal]
	}
	return meta
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

// Wrap attaches a code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// FromStore classifies a storage failure. Typed errors pass through, expired
// or canceled contexts become dependency errors, anything else is internal.
func FromStore(err error, message string) error {
	switch {
	case err == nil:
		return nil
	case As(err) != nil:
		return As(err)
	case stdErrors.Is(err, context.DeadlineExceeded), stdErrors.Is(err, context.Canceled):
		return Wrap(CodeDependency, err, message)
	default:
		return Wrap(CodeInternal, err, message)
	}
}

// IsCode reports whether the first typed error in err's chain has code.
func IsCode(err error, code Code) bool {
	if typed := As(err); typed != nil {
		return typed.code == code
	}
	return false
}

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err == nil || !stdErrors.As(err, &typed) {
		return nil
	}
	return typed
}

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

func (e *Error) Retryable() bool { return MetadataFor(e.Code()).Retryable }

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.code))
	b.WriteString(": ")
	b.WriteString(e.message)
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}
