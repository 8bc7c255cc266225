// Package apierrors defines the gateway's stable error taxonomy and its
// mapping to HTTP status codes and wire error bodies.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the category of a gateway error, independent of the
// HTTP status it eventually maps to.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindRateLimited     Kind = "rate_limited"
	KindBadRequest      Kind = "bad_request"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindValidation      Kind = "validation"
	KindGuardExceeded   Kind = "guard_exceeded"
	KindSQLRejected     Kind = "sql_rejected"
	KindUpstreamBusy    Kind = "upstream_busy"
	KindUpstreamTimeout Kind = "upstream_timeout"
	KindUpstreamError   Kind = "upstream_error"
	KindRLSViolation    Kind = "rls_violation"
	KindCancelled       Kind = "cancelled"
	KindInternal        Kind = "internal"
)

// Error is the gateway's structured error type. Every error that escapes a
// component to the HTTP layer should be (or wrap) an *Error so the handler
// can map it to a stable code and status without string-sniffing.
type Error struct {
	Kind       Kind
	Code       string // stable wire code, e.g. "ERR_2001"
	Message    string
	Suggestion string
	Docs       string
	RetryAfter int // seconds; only meaningful for KindRateLimited
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Wrap attaches an underlying cause for logging without changing the wire
// message shown to callers.
func (e *Error) Wrap(cause error) *Error {
	clone := *e
	clone.cause = cause
	return &clone
}

// New constructs an *Error for the given kind/code/message.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Stable error codes used across the request path. Codes are never reused
// for a different meaning once published.
const (
	CodeDatasetNotFound     = "ERR_2001"
	CodeSourceNotFound      = "ERR_2002"
	CodeUnknownField        = "ERR_2003"
	CodeInvalidRequest      = "ERR_2004"
	CodeGuardRows           = "ERR_3001"
	CodeGuardDimensions     = "ERR_3002"
	CodeGuardMetrics        = "ERR_3003"
	CodeGuardFilters        = "ERR_3004"
	CodeGuardFilterDepth    = "ERR_3005"
	CodeGuardTimeout        = "ERR_3006"
	CodeSQLRejected         = "ERR_SQL_REJECTED"
	CodeUpstreamBusy        = "ERR_UPSTREAM_BUSY"
	CodeUpstreamTimeout     = "ERR_UPSTREAM_TIMEOUT"
	CodeRowLimit            = "ERR_ROW_LIMIT"
	CodeRateLimited         = "ERR_4001"
	CodeUnauthenticated     = "ERR_4010"
	CodeForbidden           = "ERR_4030"
	CodeBatchCycle          = "ERR_5001"
	CodeBatchMixedSource    = "ERR_5002"
	CodeBatchMissingRef     = "ERR_5003"
	CodeInternal            = "ERR_9000"
)

// HTTPStatus returns the status code a Kind maps to.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden, KindRLSViolation:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindBadRequest, KindGuardExceeded, KindSQLRejected:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindUpstreamBusy:
		return http.StatusServiceUnavailable
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindUpstreamError:
		return http.StatusBadGateway
	case KindCancelled:
		return 499 // client closed request, nginx convention
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON shape returned to callers, per spec's error envelope:
// {"error": {"code", "message", "suggestion?", "docs?"}}.
type Body struct {
	Error BodyDetail `json:"error"`
}

type BodyDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Docs       string `json:"docs,omitempty"`
}

// ToBody converts an error into the wire body. Errors that are not *Error
// are treated as internal errors and given a correlation id as the message
// suffix by the caller (see httpserver.RespondErr).
func ToBody(err error) (status int, body Body) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.HTTPStatus(), Body{Error: BodyDetail{
			Code:       e.Code,
			Message:    e.Message,
			Suggestion: e.Suggestion,
			Docs:       e.Docs,
		}}
	}
	return http.StatusInternalServerError, Body{Error: BodyDetail{
		Code:    CodeInternal,
		Message: "internal error",
	}}
}

// GuardExceeded builds a guard-cap violation error.
func GuardExceeded(code, kindName string, limit int) *Error {
	return &Error{
		Kind:    KindGuardExceeded,
		Code:    code,
		Message: fmt.Sprintf("%s exceeds configured limit of %d", kindName, limit),
	}
}

// NotFound builds a not-found error for the named entity.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeDatasetNotFound, Message: entity + " not found"}
}

// Internal builds an internal error carrying a correlation id as the
// message, never leaking the underlying cause to the caller.
func Internal(correlationID string, cause error) *Error {
	e := &Error{
		Kind:    KindInternal,
		Code:    CodeInternal,
		Message: fmt.Sprintf("internal error (correlation_id=%s)", correlationID),
	}
	return e.Wrap(cause)
}
