// Package generator is the HTTP client for the external workflow
// generation backend.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrNotConfigured = errors.New("generation backend not configured")
	ErrUnavailable   = errors.New("generation backend unavailable")
)

// Request is forwarded to the backend as-is. SessionID is a continuity token
// for the backend's conversation state, not an idempotency key.
type Request struct {
	SessionID string `json:"session_id"`
	UserInput string `json:"user_input"`
	UserID    string `json:"user_id"`
}

// Result carries the parsed success flag plus the raw body, which is
// returned to the caller verbatim.
type Result struct {
	Success bool
	Body    json.RawMessage
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client with a bounded request timeout. The backend can run a
// full generation pipeline per call, so the timeout is long (100 s default).
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// Generate POSTs one chat turn to the backend router. Transport failures and
// timeouts come back wrapped in ErrUnavailable; a 2xx response with
// success:false is NOT an error here, the caller passes it through.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	if !c.IsConfigured() {
		return Result{}, ErrNotConfigured
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/webhook/chat-router", bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("%w: status code %d", ErrUnavailable, resp.StatusCode)
	}

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var envelope struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return Result{Success: envelope.Success, Body: body}, nil
}
