package webserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/helpinghand/helpinghand/internal/db"
	"github.com/helpinghand/helpinghand/internal/manager"
	"github.com/helpinghand/helpinghand/internal/telemetry"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status int
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Msg)
}

// Client talks to a running helpinghand server on behalf of one token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    telemetry.InstrumentClient(&http.Client{Timeout: 10 * time.Second}),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("x-auth-token", c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Msg string `json:"msg"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Msg == "" {
			e.Msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Msg: e.Msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Ping checks that BaseURL is a healthy helpinghand server.
func (c *Client) Ping(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &body); err != nil {
		return err
	}
	if body.Status != healthMagic {
		return fmt.Errorf("%s is not a helpinghand server", c.BaseURL)
	}
	return nil
}

// Login exchanges credentials for a token and keeps it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out sessionResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return "", err
	}
	c.Token = out.Token
	return out.Token, nil
}

func (c *Client) Pending(ctx context.Context) ([]manager.RequestView, error) {
	var out []manager.RequestView
	if err := c.do(ctx, http.MethodGet, "/api/requests/pending", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Mine(ctx context.Context) ([]manager.RequestView, error) {
	var out []manager.RequestView
	if err := c.do(ctx, http.MethodGet, "/api/requests/mine", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id string) (*manager.RequestView, error) {
	var out manager.RequestView
	if err := c.do(ctx, http.MethodGet, "/api/requests/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Create(ctx context.Context, in manager.CreateInput) (*manager.RequestView, error) {
	var out requestResponse
	if err := c.do(ctx, http.MethodPost, "/api/requests", in, &out); err != nil {
		return nil, err
	}
	return out.Request, nil
}

// Transition runs one of accept, complete, cancel or unassign and returns
// the server's message with the updated request.
func (c *Client) Transition(ctx context.Context, id, action string) (string, *manager.RequestView, error) {
	switch action {
	case "accept", "complete", "cancel", "unassign":
	default:
		return "", nil, fmt.Errorf("unknown action %q", action)
	}
	var out requestResponse
	if err := c.do(ctx, http.MethodPut, "/api/requests/"+url.PathEscape(id)+"/"+action, nil, &out); err != nil {
		return "", nil, err
	}
	return out.Msg, out.Request, nil
}

// WaitForStatus polls the request until it reaches want or ctx ends.
// Transient failures are retried.
func (c *Client) WaitForStatus(ctx context.Context, id string, want db.Status, every time.Duration) (*manager.RequestView, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		req, err := c.Get(ctx, id)
		if err == nil && req.Status == want {
			return req, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
