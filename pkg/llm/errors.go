package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorType indicates which part of the model configuration or transport failed.
type ErrorType string

const (
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeResponse  ErrorType = "response"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// msgTimeout is the message of every classified per-request deadline.
const msgTimeout = "request timeout"

// Error represents a structured model error with classification.
type Error struct {
	Type       ErrorType // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the operation can be retried
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Model      string    // Model name if known
	Endpoint   string    // Endpoint URL if known; only the host is printed
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if host := endpointHost(e.Endpoint); host != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", host))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
// This allows the retry package to check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured model error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError categorizes an error and returns a structured Error.
// This consolidates error classification logic for consistent handling.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	newErr := func(errType ErrorType, message string, retryable bool, status int) *Error {
		e := NewError(errType, message, retryable, err)
		e.StatusCode = status
		return e
	}

	// A cancelled caller is never retried; a per-request deadline is.
	if errors.Is(err, context.Canceled) {
		return newErr(ErrorTypeEndpoint, "request cancelled", false, 0)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newErr(ErrorTypeEndpoint, msgTimeout, true, 0)
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)
	statusCode := statusCodeOf(err, errStr)

	switch {
	case statusCode == 401 || statusCode == 403 || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "authentication_error"):
		return newErr(ErrorTypeAuth, "authentication failed", false, statusCode)

	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")):
		return newErr(ErrorTypeModel, "model not found", false, statusCode)

	case statusCode == 404:
		return newErr(ErrorTypeEndpoint, "endpoint not found", false, statusCode)

	case statusCode == 429 || strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit"):
		return newErr(ErrorTypeRateLimit, "rate limited", true, statusCode)

	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset") || strings.Contains(lower, "eof"):
		return newErr(ErrorTypeEndpoint, "connection failed", true, statusCode)

	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return newErr(ErrorTypeEndpoint, msgTimeout, true, statusCode)

	case statusCode >= 500 || strings.Contains(lower, "overloaded"):
		return newErr(ErrorTypeEndpoint, "server error", true, statusCode)

	case statusCode == 400:
		return newErr(ErrorTypeResponse, "request rejected", false, statusCode)
	}

	return newErr(ErrorTypeUnknown, "llm error", false, statusCode)
}

// statusCodeOf reads the HTTP status from go-openai errors, falling back to
// scanning the message for a known code.
func statusCodeOf(err error, errStr string) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode
	}
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504, 529} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			return code
		}
	}
	return 0
}

func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// IsTimeout reports whether err is a model request that ran out of time.
// A cancelled caller is not a timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var llmErr *Error
	return errors.As(err, &llmErr) && llmErr.Message == msgTimeout
}
