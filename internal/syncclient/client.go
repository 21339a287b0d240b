// Package syncclient talks to the sync server: one-shot login, full-state
// pull and push, and a background session that runs both on timers.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tokosync/backend/internal/domain"
)

// ErrUnauthorized reports a rejected or expired token. Callers should
// re-login and retry; every other error is transient network trouble.
var ErrUnauthorized = errors.New("syncclient: unauthorized")

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetToken installs a previously issued token, skipping Login.
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) Login(ctx context.Context, username, password string) (domain.LoginResponse, error) {
	payload, err := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/sync/login", bytes.NewReader(payload))
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("login request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.LoginResponse{}, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return domain.LoginResponse{}, fmt.Errorf("login: unexpected status %d", resp.StatusCode)
	}

	var out domain.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.LoginResponse{}, fmt.Errorf("decode login response: %w", err)
	}
	c.token = out.Token
	return out, nil
}

// Pull fetches the server's full snapshot for this account.
func (c *Client) Pull(ctx context.Context) (domain.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/sync/pull", nil)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("build pull request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("pull request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.Snapshot{}, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Snapshot{}, fmt.Errorf("pull: unexpected status %d", resp.StatusCode)
	}

	var out domain.PullResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode pull response: %w", err)
	}
	return out.Data, nil
}

// Push sends the terminal's full state. The server acknowledges with 200
// only after the whole batch is reconciled.
func (c *Client) Push(ctx context.Context, pushReq domain.PushRequest) error {
	payload, err := json.Marshal(pushReq)
	if err != nil {
		return fmt.Errorf("encode push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/sync/push", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
