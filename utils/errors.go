package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an error so callers can branch on failure class
// instead of string matching.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindConfiguration    Kind = "configuration"
	KindProvider         Kind = "provider"
	KindRateLimited      Kind = "provider_rate_limited"
	KindTimeout          Kind = "provider_timeout"
	KindIndex            Kind = "index"
	KindNotFound         Kind = "not_found"
	KindDocumentNotReady Kind = "document_not_ready"
	KindDegenerateInput  Kind = "degenerate_input"
)

// Error is the tagged error carried across service boundaries.
type Error struct {
	Kind    Kind
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a tagged error without a cause.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a tagged error wrapping an underlying cause.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain. Untagged errors
// yield the empty Kind.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the error class is worth retrying.
// Only transient provider conditions qualify.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTimeout:
		return true
	}
	return false
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// statusForKind maps an error kind to the HTTP status it surfaces as.
func statusForKind(kind Kind) int {
	switch kind {
	case KindValidation, KindConfiguration, KindDegenerateInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDocumentNotReady:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindProvider, KindTimeout:
		return http.StatusBadGateway
	case KindIndex:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithAppError maps a tagged error onto the wire format. Untagged
// errors surface as a generic 500 without leaking internals.
func RespondWithAppError(c *gin.Context, err error) {
	var appErr *Error
	if errors.As(err, &appErr) {
		RespondWithError(c, statusForKind(appErr.Kind), string(appErr.Kind), appErr.Message, appErr.Details)
		return
	}
	RespondWithError(c, http.StatusInternalServerError, "internal_error", "internal server error", nil)
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}
