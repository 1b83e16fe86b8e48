package client

import (
	"context"
	"net/http"
	"net/url"
)

// loginSuccess is the login.result value of a successful login.
const loginSuccess = "Success"

// Login authenticates with a bot password. Logging in while already logged
// in performs an implicit logout first.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if c.LoggedIn() {
		c.logger.Info().Str("username", c.Username()).Msg("Already logged in, logging out first")
		c.Logout()
	}

	tokenResp, err := c.Request(ctx, http.MethodGet, "query", url.Values{
		"meta": {"tokens"},
		"type": {"login"},
	}, nil)
	if err != nil {
		return err
	}

	token := tokenResp.LoginToken()
	if token == "" {
		return &ProtocolError{Action: "query", Field: "login token"}
	}

	loginResp, err := c.Request(ctx, http.MethodPost, "login", nil, url.Values{
		"lgname":     {username},
		"lgpassword": {password},
		"lgtoken":    {token},
	})
	if err != nil {
		return err
	}

	// Anything short of an explicit success marker is a failed login.
	if loginResp.Login == nil || loginResp.Login.Result != loginSuccess {
		authErr := &AuthError{Username: username}
		if loginResp.Login != nil {
			authErr.Result = loginResp.Login.Result
			authErr.Reason = loginResp.Login.Reason
		}
		c.logger.Error().
			Str("username", username).
			Str("result", authErr.Result).
			Msg("Login failed")
		return authErr
	}

	name := loginResp.Login.LgUsername
	if name == "" {
		name = username
	}

	c.mu.Lock()
	c.username = name
	c.mu.Unlock()

	c.logger.Info().Str("username", name).Msg("Logged in")
	return nil
}

// Logout drops the session: the username is forgotten and all cookies are
// cleared. Safe to call when not logged in.
func (c *Client) Logout() {
	c.mu.Lock()
	wasLoggedIn := c.username != ""
	c.username = ""
	c.mu.Unlock()

	c.transport.ClearCookies()

	if wasLoggedIn {
		c.logger.Info().Msg("Logged out")
	}
}

// LoggedIn reports whether a login succeeded and no logout happened since.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username != ""
}

// Username returns the authenticated user name, or "" when anonymous.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}
