package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Error is an upstream failure with a stable category.
type Error struct {
	Type    ErrorType `json:"type"`
	Op      string    `json:"op,omitempty"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.Type)
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", prefix, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error { return e.Err }

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrCanceled       ErrorType = "canceled_error"
	ErrProvider       ErrorType = "provider_error"
)

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrAPI:
		return true
	default:
		return false
	}
}

// IsAuth reports whether the credential was rejected.
func (e *Error) IsAuth() bool {
	return e.Type == ErrAuthentication || e.Type == ErrPermission
}

// Substrings the service uses when a key is rejected on channels that carry no status.
var authMessages = []string{
	"api key not valid",
	"api_key_invalid",
	"requested entity was not found",
	"permission denied",
	"unauthenticated",
}

// Classify wraps err as an *Error. It returns nil for nil and passes an
// existing *Error through unchanged.
func Classify(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Type: ErrCanceled, Op: op, Message: err.Error(), Err: err}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &Error{
			Type:    typeForAPIError(apiErr),
			Op:      op,
			Message: apiErr.Message,
			Code:    apiErr.Status,
			Err:     err,
		}
	}

	errType := ErrProvider
	lower := strings.ToLower(err.Error())
	for _, m := range authMessages {
		if strings.Contains(lower, m) {
			errType = ErrAuthentication
			break
		}
	}
	return &Error{Type: errType, Op: op, Message: err.Error(), Err: err}
}

func typeForAPIError(e genai.APIError) ErrorType {
	var errType ErrorType
	switch e.Status {
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		errType = ErrInvalidRequest
	case "UNAUTHENTICATED":
		errType = ErrAuthentication
	case "PERMISSION_DENIED":
		errType = ErrPermission
	case "NOT_FOUND":
		errType = ErrNotFound
	case "RESOURCE_EXHAUSTED":
		errType = ErrRateLimit
	case "INTERNAL":
		errType = ErrAPI
	case "UNAVAILABLE":
		errType = ErrOverloaded
	default:
		errType = ErrProvider
	}

	// Also check HTTP status code
	switch e.Code {
	case http.StatusTooManyRequests:
		errType = ErrRateLimit
	case http.StatusServiceUnavailable:
		errType = ErrOverloaded
	case http.StatusUnauthorized, http.StatusForbidden:
		errType = ErrAuthentication
	}
	if errType == ErrInvalidRequest && strings.Contains(strings.ToLower(e.Message), "api key not valid") {
		errType = ErrAuthentication
	}
	return errType
}
