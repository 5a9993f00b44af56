package client

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{"client error should not retry", ErrorClassClient, false},
		{"server error should retry", ErrorClassServer, true},
		{"rate limit should retry", ErrorClassRateLimit, true},
		{"network error should retry", ErrorClassNetwork, true},
		{"empty error class should not retry", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := shouldRetry(tt.errorClass); result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{200, ""},
		{304, ""},
		{400, ErrorClassClient},
		{403, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.want {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	httpErr := &HTTPError{StatusCode: 503, ErrorClass: ErrorClassServer}
	if got := classifyError(fmt.Errorf("wrapped: %w", httpErr)); got != ErrorClassServer {
		t.Errorf("classifyError(HTTPError) = %q, want server", got)
	}
	if got := classifyError(errors.New("dial tcp: connection refused")); got != ErrorClassNetwork {
		t.Errorf("classifyError(plain) = %q, want network", got)
	}
}

func TestHTTPError_Error(t *testing.T) {
	wrapped := errors.New("underlying")
	tests := []struct {
		name     string
		err      *HTTPError
		contains []string
	}{
		{
			name: "error with wrapped error",
			err: &HTTPError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				URL:        "/resource/erm2-nwe9.json",
				Message:    "Internal Server Error",
				Err:        wrapped,
			},
			contains: []string{"server error", "status 500", "/resource/erm2-nwe9.json", "underlying"},
		},
		{
			name: "error without wrapped error",
			err: &HTTPError{
				StatusCode: 400,
				ErrorClass: ErrorClassClient,
				URL:        "/v1/archive",
				Message:    "bad request",
			},
			contains: []string{"client error", "status 400", "bad request"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, missing %q", msg, want)
				}
			}
		})
	}
}

func TestHTTPError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &HTTPError{Err: inner}
	if !errors.Is(err, inner) {
		t.Error("errors.Is should find wrapped error")
	}
}
