// Package testutil provides testing utilities for the wiki API client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// MockResponse defines one scripted response of the mock wiki.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Cookies    []*http.Cookie
	Delay      time.Duration
}

// RecordedRequest is a request received by the mock wiki.
type RecordedRequest struct {
	Method  string
	Action  string
	Query   url.Values
	Form    url.Values
	Cookies []*http.Cookie
	At      time.Time
}

// Param returns a parameter from the form body, falling back to the query.
func (r RecordedRequest) Param(key string) string {
	if v := r.Form.Get(key); v != "" {
		return v
	}
	return r.Query.Get(key)
}

// MockWiki is a scripted api.php server. Responses are queued per action
// and served in order.
type MockWiki struct {
	server *httptest.Server

	mu       sync.Mutex
	queues   map[string][]MockResponse
	requests []RecordedRequest
}

// NewMockWiki starts a mock wiki API server.
func NewMockWiki() *MockWiki {
	mock := &MockWiki{
		queues: make(map[string][]MockResponse),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the api.php URL of the mock server.
func (m *MockWiki) URL() string {
	return m.server.URL + "/w/api.php"
}

// Close shuts down the mock server.
func (m *MockWiki) Close() {
	m.server.Close()
}

// Enqueue appends scripted responses for action.
func (m *MockWiki) Enqueue(action string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[action] = append(m.queues[action], responses...)
}

// EnqueueJSON appends 200 OK JSON responses for action.
func (m *MockWiki) EnqueueJSON(action string, bodies ...string) {
	responses := make([]MockResponse, 0, len(bodies))
	for _, body := range bodies {
		responses = append(responses, JSON(body))
	}
	m.Enqueue(action, responses...)
}

// Requests returns a copy of all received requests.
func (m *MockWiki) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestCount returns the number of requests received.
func (m *MockWiki) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Pending returns the number of unserved responses for action.
func (m *MockWiki) Pending(action string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[action])
}

func (m *MockWiki) handle(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	action := r.URL.Query().Get("action")

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method:  r.Method,
		Action:  action,
		Query:   r.URL.Query(),
		Form:    r.PostForm,
		Cookies: r.Cookies(),
		At:      time.Now(),
	})
	queue := m.queues[action]
	var resp MockResponse
	ok := len(queue) > 0
	if ok {
		resp = queue[0]
		m.queues[action] = queue[1:]
	}
	m.mu.Unlock()

	if !ok {
		// An unscripted request is a test bug; answer with a fatal API error.
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		fmt.Fprintf(w, `{"error":{"code":"mock-unscripted","info":"no response queued for action %q"}}`, action)
		return
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	for _, cookie := range resp.Cookies {
		http.SetCookie(w, cookie)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// JSON creates a 200 OK JSON response.
func JSON(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewMalformedResponse creates a 200 OK response whose body is not JSON,
// as served by a wiki behind an overloaded proxy.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       "<html><body>Service temporarily unavailable</body></html>",
		Headers: map[string]string{
			"Content-Type": "text/html; charset=utf-8",
		},
	}
}

// NewRateLimitWarning creates a response carrying a rate limit warning for action.
func NewRateLimitWarning(action string) MockResponse {
	return JSON(fmt.Sprintf(`{"warnings":{%q:{"warnings":"You've exceeded your rate limit. Please wait some time and try again."}}}`, action))
}

// NewServerErrorResponse creates a 503 Service Unavailable response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       "upstream connect error",
	}
}

// NewLoginTokenResponse creates a meta=tokens response.
func NewLoginTokenResponse(token string) MockResponse {
	return JSON(fmt.Sprintf(`{"batchcomplete":true,"query":{"tokens":{"logintoken":%q}}}`, token))
}

// NewLoginResponse creates a login action response; a successful login also
// sets a session cookie.
func NewLoginResponse(result, username string) MockResponse {
	resp := JSON(fmt.Sprintf(`{"login":{"result":%q,"lgusername":%q}}`, result, username))
	if result == "Success" {
		resp.Cookies = []*http.Cookie{{Name: "wikiSession", Value: "session-" + username, Path: "/"}}
	}
	return resp
}
