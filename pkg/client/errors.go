package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// HTTPError represents a non-success response with additional context.
type HTTPError struct {
	StatusCode int
	ErrorClass ErrorClass
	URL        string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (status %d) for %s: %s: %v",
			e.ErrorClass, e.StatusCode, e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (status %d) for %s: %s",
		e.ErrorClass, e.StatusCode, e.URL, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors are caused by the request itself; resending won't help
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// classifyError maps an attempt error to its class.
func classifyError(err error) ErrorClass {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.ErrorClass
	}
	return ErrorClassNetwork
}

// classifyStatus categorizes an HTTP status code.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == 429:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
