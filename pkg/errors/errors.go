package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	CodeStorage       Code = "STORAGE_ERROR"
	CodeDocument      Code = "DOCUMENT_ERROR"
	CodeDispatch      Code = "DISPATCH_ERROR"
)

// Metadata describes how a code surfaces at the HTTP boundary.
type Metadata struct {
	HTTPStatus int
	Retryable  bool
	// PublicMessage replaces the error's own message unless ExposeMessage
	// is set.
	PublicMessage  string
	ExposeMessage  bool
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	// shopper-correctable
	CodeValidation:    {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", ExposeMessage: true, DetailsAllowed: true},
	CodeNotFound:      {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", ExposeMessage: true},
	CodeConflict:      {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected", ExposeMessage: true},
	CodeStateConflict: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", ExposeMessage: true, DetailsAllowed: true},
	CodeIdempotency:   {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", ExposeMessage: true, DetailsAllowed: true},
	CodeRateLimit:     {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded", ExposeMessage: true},

	// server side; the cause stays in the logs
	CodeInternal:   {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
	CodeDependency: {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},
	CodeStorage:    {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "state could not be saved"},
	CodeDocument:   {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "order document could not be generated"},
	CodeDispatch:   {HTTPStatus: http.StatusBadGateway, Retryable: true, PublicMessage: "order could not be sent"},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error carrying an optional public payload and cause.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	e := New(code, message)
	e.cause = err
	return e
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

// IsCode reports whether the outermost typed error in err has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Classify is As with untyped errors promoted to CodeInternal.
func Classify(err error) *Error {
	if err == nil {
		err = stdErrors.New("unknown error")
	}
	if typed := As(err); typed != nil {
		return typed
	}
	return Wrap(CodeInternal, err, "unexpected error")
}

// PublicMessage is the text a shopper may see for err.
func PublicMessage(err error) string {
	typed := Classify(err)
	meta := MetadataFor(typed.code)
	if meta.ExposeMessage && typed.message != "" {
		return typed.message
	}
	return meta.PublicMessage
}
