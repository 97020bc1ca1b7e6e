package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

var ErrNoAccessToken = errors.New("api client has no access token")

// Client is an authenticated client for the downstream API, cached per session.
// Its access token is replaced in place on refresh so the underlying
// connection pool and any state tied to the client survive rotation.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token oauth2.Token
}

var _ oauth2.TokenSource = (*Client)(nil)

func New(baseURL string, timeout time.Duration, accessToken string, expiry time.Time) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token: oauth2.Token{
			AccessToken: accessToken,
			TokenType:   "Bearer",
			Expiry:      expiry,
		},
	}
	c.http = &http.Client{
		Timeout:   timeout,
		Transport: &oauth2.Transport{Source: c, Base: http.DefaultTransport},
	}
	return c
}

// Token implements oauth2.TokenSource over the current in-place token.
func (c *Client) Token() (*oauth2.Token, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token.AccessToken == "" {
		return nil, ErrNoAccessToken
	}
	tok := c.token
	return &tok, nil
}

// SetAccessToken swaps the credential without rebuilding the client.
func (c *Client) SetAccessToken(accessToken string, expiry time.Time) {
	c.mu.Lock()
	c.token.AccessToken = accessToken
	c.token.Expiry = expiry
	c.mu.Unlock()
}

func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token.AccessToken
}

// StatusError is returned for non-2xx downstream responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api responded %d: %s", e.StatusCode, e.Body)
}

// GetJSON issues an authenticated GET to path and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+strings.TrimLeft(path, "/"), nil)
	if err != nil {
		return fmt.Errorf("[apiclient GetJSON] build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("[apiclient GetJSON] %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("[apiclient GetJSON] decode %s: %w", path, err)
	}
	return nil
}
