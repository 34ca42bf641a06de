package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/auth/tokenstore"
)

// Exchanger performs the two credential exchanges against the backend.
type Exchanger interface {
	// Login trades an identifier/secret for a full credential pair.
	Login(ctx context.Context, identifier, secret string) (tokenstore.Pair, error)
	// Refresh trades a refresh token for a new access token.
	Refresh(ctx context.Context, refresh string) (access string, err error)
}

// maxExchangeBody caps how much of a response body is read.
const maxExchangeBody = 64 << 10

// HTTPExchanger talks to the dashboard login endpoints over HTTP.
type HTTPExchanger struct {
	cfg    Config
	client *http.Client
}

// NewHTTPExchanger builds an exchanger. A nil client uses http.DefaultClient.
func NewHTTPExchanger(cfg Config, client *http.Client) *HTTPExchanger {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExchanger{cfg: cfg, client: client}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

func (x *HTTPExchanger) Login(ctx context.Context, identifier, secret string) (tokenstore.Pair, error) {
	var out loginResponse
	if err := x.post(ctx, x.cfg.LoginPath, loginRequest{Email: identifier, Password: secret}, &out); err != nil {
		return tokenstore.Pair{}, err
	}

	p := tokenstore.Pair{Access: out.Access, Refresh: out.Refresh}
	if err := p.Validate(); err != nil {
		return tokenstore.Pair{}, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return p, nil
}

func (x *HTTPExchanger) Refresh(ctx context.Context, refresh string) (string, error) {
	var out refreshResponse
	if err := x.post(ctx, x.cfg.RefreshPath, refreshRequest{Refresh: refresh}, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Access) == "" {
		return "", fmt.Errorf("%w: empty access token", ErrRejected)
	}
	return out.Access, nil
}

// post sends a JSON body and decodes a 2xx JSON answer into dst.
// Non-2xx bodies are drained and discarded.
func (x *HTTPExchanger) post(ctx context.Context, path string, body, dst any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(x.cfg.APIHost, "/")+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("exchange %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxExchangeBody))
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxExchangeBody)).Decode(dst); err != nil {
		return fmt.Errorf("%w: bad body: %v", ErrRejected, err)
	}
	return nil
}
