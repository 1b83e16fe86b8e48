package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Flag decodes presence-style booleans. Format version 1 marks a set flag
// with an empty string, version 2 with true; anything but false or null
// counts as set.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	v := bytes.TrimSpace(data)
	*f = Flag(!bytes.Equal(v, []byte("false")) && !bytes.Equal(v, []byte("null")))
	return nil
}

// Page identifies a wiki page.
type Page struct {
	ID        int64  `json:"pageid"`
	Title     string `json:"title"`
	Namespace int    `json:"ns"`
}

// Pages decodes query.pages in both the v2 list form and the v1 map form
// keyed by page id. Map entries are ordered by id.
type Pages []Page

// UnmarshalJSON implements json.Unmarshaler.
func (p *Pages) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = nil
		return nil
	}

	if data[0] == '[' {
		var list []Page
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*p = list
		return nil
	}

	var byID map[string]Page
	if err := json.Unmarshal(data, &byID); err != nil {
		return fmt.Errorf("decode pages: %w", err)
	}
	list := make([]Page, 0, len(byID))
	for _, page := range byID {
		list = append(list, page)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	*p = list
	return nil
}

// Query is the "query" module output.
type Query struct {
	Pages  Pages             `json:"pages"`
	Tokens map[string]string `json:"tokens"`
}

// PurgeResult is one entry of the purge action output.
type PurgeResult struct {
	ID      int64  `json:"pageid"`
	Title   string `json:"title"`
	Purged  Flag   `json:"purged"`
	Missing Flag   `json:"missing"`
	Invalid Flag   `json:"invalid"`
}

// IsPurged reports whether the wiki confirmed the purge.
func (r PurgeResult) IsPurged() bool {
	return bool(r.Purged)
}

// LoginResult is the login action output.
type LoginResult struct {
	Result     string `json:"result"`
	Reason     string `json:"reason"`
	Token      string `json:"token"`
	LgUsername string `json:"lgusername"`
}

// Warning is a per-module warning. Format version 2 uses "warnings",
// version 1 uses "*".
type Warning struct {
	Warnings string `json:"warnings"`
	Star     string `json:"*"`
}

// Text returns the warning message regardless of format version.
func (w Warning) Text() string {
	if w.Warnings != "" {
		return w.Warnings
	}
	return w.Star
}

// ErrorBody is the "error" object of a failed API call.
type ErrorBody struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

// Response is a decoded API response. Only the fields the client depends on
// are typed; Raw keeps the full body.
type Response struct {
	BatchComplete Flag                      `json:"batchcomplete"`
	Continue      map[string]any            `json:"continue"`
	QueryContinue map[string]map[string]any `json:"query-continue"`
	Warnings      map[string]Warning        `json:"warnings"`
	Query         *Query                    `json:"query"`
	Purge         []PurgeResult             `json:"purge"`
	Login         *LoginResult              `json:"login"`
	Error         *ErrorBody                `json:"error"`

	Raw json.RawMessage `json:"-"`
}

// rateLimitMarker is matched case-insensitively against action warnings.
const rateLimitMarker = "rate limit"

// RateLimited reports whether the warnings for action mention a rate limit.
func (r *Response) RateLimited(action string) bool {
	w, ok := r.Warnings[action]
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(w.Text()), rateLimitMarker)
}

// LoginToken returns the login token from query.tokens.logintoken, falling
// back to login.token used by older API generations.
func (r *Response) LoginToken() string {
	if r.Query != nil {
		if token := r.Query.Tokens["logintoken"]; token != "" {
			return token
		}
	}
	if r.Login != nil {
		return r.Login.Token
	}
	return ""
}

// Pages returns query.pages, or false if the response carries no page list.
func (r *Response) Pages() (Pages, bool) {
	if r.Query == nil || r.Query.Pages == nil {
		return nil, false
	}
	return r.Query.Pages, true
}

// decodeResponse parses a response body.
func decodeResponse(body []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	resp.Raw = json.RawMessage(body)
	return &resp, nil
}
