package accountsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a client for the accounts service. It performs unauthenticated
// operations and creates Sessions.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RequestToken exchanges an email and password for an access token.
func (c *Client) RequestToken(ctx context.Context, email, password string) (*TokenResponse, error) {
	data := url.Values{
		"username": {email},
		"password": {password},
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/login/access-token",
		strings.NewReader(data.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
	)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON(resp, &tokenResp, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokenResp, nil
}

// Login authenticates and returns a Session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	tokenResp, err := c.RequestToken(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokenResp), nil
}

// NewSession wraps an access token obtained elsewhere. A zero expiresAt
// means the client never considers the token expired.
func (c *Client) NewSession(accessToken string, expiresAt time.Time) *Session {
	return &Session{client: c, accessToken: accessToken, expiresAt: expiresAt}
}
