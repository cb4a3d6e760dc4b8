package providers

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a provider failure for retry policy and reporting.
type ErrorKind string

const (
	// ErrorKindAuth covers 401/403 and missing credentials. Fatal per
	// provider: the unit is marked error and never retried.
	ErrorKindAuth ErrorKind = "auth"
	// ErrorKindBadRequest covers 400-class malformed requests. Fatal.
	ErrorKindBadRequest ErrorKind = "bad_request"
	// ErrorKindRateLimit covers 429. Retryable after backoff.
	ErrorKindRateLimit ErrorKind = "rate_limit"
	// ErrorKindServer covers 5xx upstream failures. Retryable.
	ErrorKindServer ErrorKind = "server"
	// ErrorKindNetwork covers timeouts and connection failures. Retryable.
	ErrorKindNetwork ErrorKind = "network"
	// ErrorKindUnknown is everything else. Not retried.
	ErrorKindUnknown ErrorKind = "unknown"
)

// Error represents a structured provider error with classification.
type Error struct {
	Kind       ErrorKind // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the call can be retried
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Provider   string    // Provider name if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Kind))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Provider != "" {
		parts = append(parts, fmt.Sprintf("provider=%s", e.Provider))
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
// This allows the retry package to check retryability without importing providers.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured provider error.
func NewError(kind ErrorKind, message string, retryable bool, cause error) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// statusCodes are probed in error strings when the SDK does not surface a
// typed status. Order matters: first match wins.
var statusCodes = []int{400, 401, 403, 404, 429, 500, 502, 503, 504}

// ClassifyError categorizes an error and returns a structured Error.
// This consolidates error classification so every provider client applies
// the same retry policy: auth and malformed-request failures are fatal,
// rate limits and server/network failures are retryable.
func ClassifyError(provider string, err error) *Error {
	if err == nil {
		return nil
	}

	// Check if already an *Error
	var provErr *Error
	if errors.As(err, &provErr) {
		if provErr.Provider == "" {
			provErr.Provider = provider
		}
		return provErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range statusCodes {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	classified := func(kind ErrorKind, message string, retryable bool) *Error {
		return &Error{
			Kind:       kind,
			Message:    message,
			Retryable:  retryable,
			Cause:      err,
			StatusCode: statusCode,
			Provider:   provider,
		}
	}

	// Authentication / authorization failures (not retryable)
	if statusCode == 401 || statusCode == 403 ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid x-api-key") {
		return classified(ErrorKindAuth, "authentication failed", false)
	}

	// Malformed request (not retryable)
	if statusCode == 400 || strings.Contains(lower, "invalid request") {
		return classified(ErrorKindBadRequest, "malformed request", false)
	}

	// Rate limiting (retryable after backoff)
	if statusCode == 429 || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") {
		return classified(ErrorKindRateLimit, "rate limited", true)
	}

	// Timeout and deadline exceeded (retryable)
	if strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "context canceled") {
		return classified(ErrorKindNetwork, "request timeout", true)
	}

	// Connection errors (retryable)
	if strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network is unreachable") {
		return classified(ErrorKindNetwork, "connection failed", true)
	}

	// 5xx server errors (retryable)
	if statusCode >= 500 {
		return classified(ErrorKindServer, "server error", true)
	}

	return classified(ErrorKindUnknown, "provider error", false)
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}

// KindOf extracts the ErrorKind from an error.
func KindOf(err error) ErrorKind {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Kind
	}
	return ErrorKindUnknown
}
