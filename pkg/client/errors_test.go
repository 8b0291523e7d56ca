package client

import (
	"errors"
	"strings"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorClass
	}{
		{"transport failure", 0, ErrorClassNetwork},
		{"rate limit", 429, ErrorClassRateLimit},
		{"server error", 500, ErrorClassServer},
		{"bad gateway", 502, ErrorClassServer},
		{"not found", 404, ErrorClassClient},
		{"unauthorized", 401, ErrorClassClient},
		{"success", 200, ErrorClass("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.want {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ErrorClassNetwork, true},
		{ErrorClassServer, true},
		{ErrorClassRateLimit, true},
		{ErrorClassClient, false},
		{ErrorClass(""), false},
	}

	for _, tt := range tests {
		if got := retryable(tt.class); got != tt.want {
			t.Errorf("retryable(%q) = %v, want %v", tt.class, got, tt.want)
		}
	}
}

func TestFetchError_Error(t *testing.T) {
	err := &FetchError{
		URL:        "https://api.example.com/users?page=2",
		StatusCode: 503,
		Retries:    3,
		Err:        errors.New("service unavailable"),
	}

	msg := err.Error()
	for _, part := range []string{"https://api.example.com/users?page=2", "503", "3 attempts", "service unavailable"} {
		if !strings.Contains(msg, part) {
			t.Errorf("Error() = %q, missing %q", msg, part)
		}
	}
}

func TestFetchError_TransportOmitsStatus(t *testing.T) {
	err := &FetchError{
		URL:     "https://api.example.com/users?page=1",
		Retries: 3,
		Err:     errors.New("connection refused"),
	}

	if strings.Contains(err.Error(), "status") {
		t.Errorf("Error() = %q, should omit status for transport failures", err.Error())
	}
}

func TestFetchError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &FetchError{URL: "u", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Expected errors.Is to reach the wrapped error")
	}
}
