package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/Sternrassler/wikipurge/pkg/ratelimit"
	"golang.org/x/net/publicsuffix"
)

// Transport sends requests through the throttle and keeps the session cookies.
// All requests sent through one Transport share its cookie jar.
type Transport struct {
	strategy  ratelimit.Strategy
	userAgent string

	mu         sync.RWMutex
	httpClient *http.Client
}

// NewTransport creates a transport. A nil strategy disables throttling and a
// nil base client uses http.DefaultTransport without a timeout. The base
// client's jar is replaced by a fresh session jar.
func NewTransport(strategy ratelimit.Strategy, base *http.Client, userAgent string) (*Transport, error) {
	if strategy == nil {
		strategy = ratelimit.Nop{}
	}
	if base == nil {
		base = &http.Client{}
	}

	jar, err := newJar()
	if err != nil {
		return nil, err
	}

	return &Transport{
		strategy:  strategy,
		userAgent: userAgent,
		httpClient: &http.Client{
			Transport:     base.Transport,
			CheckRedirect: base.CheckRedirect,
			Timeout:       base.Timeout,
			Jar:           jar,
		},
	}, nil
}

func newJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return jar, nil
}

// Send enforces the throttle and then dispatches req.
func (t *Transport) Send(req *http.Request) (*http.Response, error) {
	if err := t.strategy.Enforce(req.Context()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
	}

	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	t.mu.RLock()
	httpClient := t.httpClient
	t.mu.RUnlock()

	resp, err := httpClient.Do(req)
	if err != nil {
		// url.Error repeats the full URL, query string included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, &TransportError{Method: req.Method, URL: redactURL(req.URL), Err: err}
	}
	return resp, nil
}

// ClearCookies drops every stored cookie.
func (t *Transport) ClearCookies() {
	jar, err := newJar()
	if err != nil {
		// cookiejar.New only fails on invalid options.
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.httpClient = &http.Client{
		Transport:     t.httpClient.Transport,
		CheckRedirect: t.httpClient.CheckRedirect,
		Timeout:       t.httpClient.Timeout,
		Jar:           jar,
	}
}

// Cookies returns the cookies the jar would send to u.
func (t *Transport) Cookies(u *url.URL) []*http.Cookie {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.httpClient.Jar.Cookies(u)
}

// redactURL drops the query string so credentials never reach error messages.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	clean.RawQuery = ""
	clean.User = nil
	return clean.String()
}
