// Package api is the client for the metered chat service's /api/v1 endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/session"
)

const (
	defaultTimeout = 60 * time.Second
	maxBodySize    = 1 << 20 // 1 MB
	tokenHeader    = "X-Session-Token"
	userAgent      = "lnchat/1.0"
)

// Client talks to the session and chat endpoints. The session token lives in
// the shared session.Store; the client sets and clears it as the service dictates.
type Client struct {
	baseURL string
	tokens  *session.Store
	http    *http.Client
	timeout time.Duration
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout. Chat turns can take a while
// upstream, so the default is generous.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client rooted at baseURL (e.g. http://localhost:8000/api/v1).
func NewClient(baseURL string, tokens *session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{},
		timeout: defaultTimeout,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// IsSessionActive reports whether a session token is held.
func (c *Client) IsSessionActive() bool {
	return c.tokens.Active()
}

// CreateSession requests a new session and stores the returned token.
// Limits are optional; nil omits them from the request.
func (c *Client) CreateSession(ctx context.Context, plan config.PlanKind, requestLimit, tokenLimit *int64) (string, error) {
	req := createSessionRequest{
		PlanType:           plan,
		TotalRequestsLimit: requestLimit,
		TotalTokenLimit:    tokenLimit,
	}
	var resp createSessionResponse
	if err := c.do(ctx, http.MethodPost, "/sessions/create", req, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSessionCreation, err)
	}
	if resp.SessionToken == "" {
		return "", fmt.Errorf("%w: empty session token", ErrSessionCreation)
	}

	if err := c.tokens.Set(resp.SessionToken); err != nil {
		// The token is held in memory; only the next process start loses it.
		c.log.Warn("session token not persisted", "err", err)
	}
	return resp.SessionToken, nil
}

// GetSessionStatus fetches the current session. A 401 clears the stored token.
func (c *Client) GetSessionStatus(ctx context.Context) (*SessionStatus, error) {
	if !c.tokens.Active() {
		return nil, ErrNoActiveSession
	}
	var st SessionStatus
	if err := c.do(ctx, http.MethodGet, "/sessions/status", nil, &st); err != nil {
		if statusOf(err) == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("api: session status: %w", err)
	}
	return &st, nil
}

// UpdateConfig sends an arbitrary config patch to PUT /sessions/config.
func (c *Client) UpdateConfig(ctx context.Context, patch map[string]any) error {
	if !c.tokens.Active() {
		return ErrNoActiveSession
	}
	if err := c.do(ctx, http.MethodPut, "/sessions/config", patch, nil); err != nil {
		return fmt.Errorf("%w: %s", ErrConfigUpdate, detailOf(err))
	}
	return nil
}

// UpdateTokenConfig sets the total token limit of the current session.
func (c *Client) UpdateTokenConfig(ctx context.Context, limit int64) (TokenConfig, error) {
	if !c.tokens.Active() {
		return TokenConfig{}, ErrNoActiveSession
	}
	var out TokenConfig
	if err := c.do(ctx, http.MethodPut, "/sessions/token-config", TokenConfig{TotalTokenLimit: limit}, &out); err != nil {
		return TokenConfig{}, fmt.Errorf("%w: %s", ErrConfigUpdate, detailOf(err))
	}
	return out, nil
}

// TerminateSession ends the session server-side. Without a token it is a
// no-op. The token is cleared whenever the service gave a definite answer
// (2xx, 401, 404); on transport failures and 5xx it is kept so the next
// status check can tell what happened.
func (c *Client) TerminateSession(ctx context.Context) error {
	if !c.tokens.Active() {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/sessions/terminate", nil, nil)
	switch statusOf(err) {
	case http.StatusUnauthorized, http.StatusNotFound:
		err = nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTermination, err)
	}
	c.clearToken()
	return nil
}

// SendMessage sends one chat turn with the preceding history.
// A 401 clears the token and returns ErrSessionExpired; a 429 returns a
// *RateLimitError and leaves the token alone.
func (c *Client) SendMessage(ctx context.Context, text string, history []Message) (*ChatResponse, error) {
	if !c.tokens.Active() {
		return nil, ErrNoActiveSession
	}
	if history == nil {
		history = []Message{}
	}
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat/message", chatRequest{Message: text, History: history}, &resp); err != nil {
		if statusOf(err) == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
		var rl *RateLimitError
		if errors.As(err, &rl) {
			return nil, rl
		}
		return nil, fmt.Errorf("api: send message: %w", err)
	}
	return &resp, nil
}

// GetChatHistory returns the stored transcript in chronological order.
func (c *Client) GetChatHistory(ctx context.Context) ([]Message, error) {
	if !c.tokens.Active() {
		return nil, ErrNoActiveSession
	}
	var msgs []Message
	if err := c.do(ctx, http.MethodGet, "/chat/history", nil, &msgs); err != nil {
		return nil, fmt.Errorf("api: chat history: %w", err)
	}
	return msgs, nil
}

// Health probes the service's /health endpoint, which lives outside /api/v1.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	root := strings.TrimSuffix(c.baseURL, "/api/v1")
	if err := c.doURL(ctx, http.MethodGet, root+"/health", nil, &h); err != nil {
		return nil, fmt.Errorf("api: health: %w", err)
	}
	return &h, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	return c.doURL(ctx, method, c.baseURL+path, in, out)
}

// doURL performs one request. Non-2xx responses become *APIError, except 429
// which becomes *RateLimitError. A 401 on a request that carried a token
// clears the token before returning.
func (c *Client) doURL(ctx context.Context, method, url string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("api: creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	token := c.tokens.Token()
	if token != "" {
		req.Header.Set(tokenHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Detail:     parseDetail(data),
			RetryAfter: parseRetryAfter(resp.Header),
		}
	case resp.StatusCode == http.StatusUnauthorized:
		if token != "" {
			c.clearToken()
		}
		return &APIError{Status: resp.StatusCode, Detail: parseDetail(data)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &APIError{Status: resp.StatusCode, Detail: parseDetail(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: parsing response: %w", err)
	}
	return nil
}

func (c *Client) clearToken() {
	if err := c.tokens.Clear(); err != nil {
		c.log.Warn("session token not removed from state", "err", err)
	}
}
