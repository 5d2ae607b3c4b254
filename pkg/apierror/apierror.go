package apierror

import (
	"fmt"
	"net/http"
)

const (
	CodeBadRequest            = "BAD_REQUEST"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeAccountInactive       = "ACCOUNT_INACTIVE"
	CodeTokenExpired          = "TOKEN_EXPIRED"
	CodeTokenInvalidSignature = "TOKEN_INVALID_SIGNATURE"
	CodeTokenWrongKind        = "TOKEN_WRONG_KIND"
	CodeTokenMalformed        = "TOKEN_MALFORMED"
	CodeForbidden             = "FORBIDDEN"
	CodeNotFound              = "NOT_FOUND"
	CodeConflict              = "CONFLICT"
	CodeRateLimited           = "RATE_LIMITED"
	CodeRequestTimeout        = "REQUEST_TIMEOUT"
	CodeInternal              = "INTERNAL_ERROR"
)

type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

func BadRequest(message string, details string) *APIError {
	return New(CodeBadRequest, message, details, http.StatusBadRequest)
}

// InvalidCredentials is shared by the unknown-user and wrong-password paths so
// the two stay indistinguishable.
func InvalidCredentials() *APIError {
	return New(CodeInvalidCredentials, "Invalid username or password", "", http.StatusUnauthorized)
}

func AccountInactive() *APIError {
	return New(CodeAccountInactive, "User account is inactive.", "", http.StatusForbidden)
}

func Unauthorized(message string) *APIError {
	return New(CodeUnauthorized, message, "", http.StatusUnauthorized)
}

func Forbidden(message string) *APIError {
	return New(CodeForbidden, message, "", http.StatusForbidden)
}

func NotFound(message string, status int) *APIError {
	return New(CodeNotFound, message, "", status)
}

func Conflict(message string) *APIError {
	return New(CodeConflict, message, "", http.StatusConflict)
}

// Internal never carries the underlying cause; callers log it separately.
func Internal(message string) *APIError {
	return New(CodeInternal, message, "", http.StatusInternalServerError)
}

func RateLimited() *APIError {
	return New(CodeRateLimited, "Too many requests", "", http.StatusTooManyRequests)
}

func RequestTimeout() *APIError {
	return New(CodeRequestTimeout, "Request timed out", "", http.StatusServiceUnavailable)
}
