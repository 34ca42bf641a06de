package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBody = 4 << 20

// Account is the subset of /api/auth/accounts/{id}/ the tooling uses.
type Account struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Avatar      *string   `json:"avatar"`
	IsOnline    bool      `json:"is_online"`
	IsStaff     bool      `json:"is_staff"`
	IsSuperuser bool      `json:"is_superuser"`
	LastSeen    time.Time `json:"last_seen"`
	DateJoined  time.Time `json:"date_joined"`
}

// Client issues backend calls through a Transport.
type Client struct {
	base *url.URL
	hc   *http.Client
}

// NewClient builds a client rooted at apiHost. rt is normally a *Transport.
func NewClient(apiHost string, rt http.RoundTripper, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(apiHost), "/"))
	if err != nil {
		return nil, fmt.Errorf("api host: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api host: unsupported scheme %q", u.Scheme)
	}
	return &Client{base: u, hc: &http.Client{Transport: rt, Timeout: timeout}}, nil
}

// URL resolves path against the API host.
func (c *Client) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.base.String() + path
}

// Do sends one request. body, when non-nil, is JSON-encoded.
// Non-2xx answers are returned as-is; callers inspect StatusCode.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.hc.Do(req)
}

// GetJSON fetches path and decodes a 2xx body into dst.
func (c *Client) GetJSON(ctx context.Context, path string, dst any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, dst)
}

// PostJSON posts body and decodes a 2xx answer into dst (nil to discard).
func (c *Client) PostJSON(ctx context.Context, path string, body, dst any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, dst)
}

// Me loads the signed-in account.
func (c *Client) Me(ctx context.Context, userID string) (Account, error) {
	if strings.TrimSpace(userID) == "" {
		return Account{}, fmt.Errorf("me: empty user id")
	}
	var a Account
	if err := c.GetJSON(ctx, "/api/auth/accounts/"+url.PathEscape(userID)+"/", &a); err != nil {
		return Account{}, err
	}
	return a, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dst any) error {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}
	if dst == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(dst); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}
