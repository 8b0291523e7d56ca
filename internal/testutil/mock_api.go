// Package testutil provides testing utilities for the customer pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockResponse defines the behavior for one canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockAPI is a configurable mock customer API server for testing. It
// records every request so tests can assert page order and headers.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc

	requests    []string // path?query, in arrival order
	lastHeaders http.Header
}

// NewMockAPI creates a new mock customer API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path + "?" + r.URL.RawQuery

		mock.mu.Lock()
		mock.requests = append(mock.requests, key)
		mock.lastHeaders = r.Header.Clone()
		handler, exists := mock.handlers[key]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server base URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Requests returns the recorded request paths in arrival order.
func (m *MockAPI) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}

// RequestCount returns the number of requests served.
func (m *MockAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastHeaders returns the headers of the most recent request.
func (m *MockAPI) LastHeaders() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeaders
}

// SetHandler installs a handler for an exact "path?query" key, e.g.
// "/users?page=2".
func (m *MockAPI) SetHandler(key string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[key] = handler
}

// SetResponse installs a fixed response for a "path?query" key.
func (m *MockAPI) SetResponse(key string, resp MockResponse) {
	m.SetHandler(key, func(w http.ResponseWriter, r *http.Request) {
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			fmt.Fprint(w, resp.Body)
		}
	})
}

// SetPage installs a well-formed customer page at /<resource>?page=<n>.
func (m *MockAPI) SetPage(resource string, page, totalPages int, records []map[string]any) {
	body, err := json.Marshal(map[string]any{
		"page":        page,
		"total_pages": totalPages,
		"data":        records,
	})
	if err != nil {
		panic(err)
	}
	m.SetResponse(fmt.Sprintf("/%s?page=%d", resource, page), MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	})
}

// FailThenSucceed installs a handler that returns failStatus for the
// first failures requests to the key, then delegates to ok.
func (m *MockAPI) FailThenSucceed(key string, failures, failStatus int, ok http.HandlerFunc) {
	var mu sync.Mutex
	count := 0
	m.SetHandler(key, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		n := count
		mu.Unlock()

		if n <= failures {
			http.Error(w, `{"error": "upstream failure"}`, failStatus)
			return
		}
		ok(w, r)
	})
}

// FailThenSucceedRateLimited installs a handler that returns 429 (with
// the given Retry-After value when non-empty) for the first failures
// requests, then delegates to ok.
func (m *MockAPI) FailThenSucceedRateLimited(key string, failures int, retryAfter string, ok http.HandlerFunc) {
	var mu sync.Mutex
	count := 0
	m.SetHandler(key, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		n := count
		mu.Unlock()

		if n <= failures {
			if retryAfter != "" {
				w.Header().Set("Retry-After", retryAfter)
			}
			http.Error(w, `{"error": "rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		ok(w, r)
	})
}

// PageHandler returns a handler serving a well-formed customer page.
func PageHandler(page, totalPages int, records []map[string]any) http.HandlerFunc {
	body, err := json.Marshal(map[string]any{
		"page":        page,
		"total_pages": totalPages,
		"data":        records,
	})
	if err != nil {
		panic(err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

// Customer builds a raw customer record for page bodies.
func Customer(id int, firstName, lastName, email string) map[string]any {
	return map[string]any{
		"id":         id,
		"first_name": firstName,
		"last_name":  lastName,
		"email":      email,
	}
}

// RateLimitResponse creates a 429 response, optionally with Retry-After.
func RateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate limit exceeded"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// ServerErrorResponse creates a 500 response.
func ServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
