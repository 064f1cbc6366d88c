package api

import (
	"time"

	"github.com/lightningmodel/lnchat/internal/config"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn as exchanged with the service.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	TokenCount *int64 `json:"token_count,omitempty"`
}

// SessionStatus is the response of GET /sessions/status.
type SessionStatus struct {
	PlanType           config.PlanKind `json:"plan_type"`
	IsActive           bool            `json:"is_active"`
	TotalRequestsLimit *int64          `json:"total_requests_limit"`
	RequestCount       int64           `json:"request_count"`
	TotalTokenLimit    *int64          `json:"total_token_limit"`
	TokenCount         int64           `json:"token_count"`
	RateLimitRPM       int             `json:"rate_limit_rpm,omitempty"`
	RateLimitRPD       int             `json:"rate_limit_rpd,omitempty"`
	CreatedAt          *time.Time      `json:"created_at,omitempty"`
}

// RequestsRemaining is the unclamped remaining request allowance, or nil when
// the session has no request limit.
func (s SessionStatus) RequestsRemaining() *int64 {
	if s.TotalRequestsLimit == nil {
		return nil
	}
	v := *s.TotalRequestsLimit - s.RequestCount
	return &v
}

// TokensRemaining is the unclamped remaining token allowance, or nil when the
// session has no token limit.
func (s SessionStatus) TokensRemaining() *int64 {
	if s.TotalTokenLimit == nil {
		return nil
	}
	v := *s.TotalTokenLimit - s.TokenCount
	return &v
}

// ChatResponse is the response of POST /chat/message. Optional fields are nil
// when the service omits them.
type ChatResponse struct {
	Content           string `json:"content"`
	LatencyMS         *int64 `json:"latency_ms"`
	RequestsRemaining *int64 `json:"requests_remaining"`
	TokensRemaining   *int64 `json:"tokens_remaining"`
	TokenUsage        *int64 `json:"token_usage"`
	SessionActive     *bool  `json:"session_active"`
}

// TokenConfig is echoed by PUT /sessions/token-config.
type TokenConfig struct {
	TotalTokenLimit int64 `json:"total_token_limit"`
}

// Health is the service's /health payload.
type Health struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

type createSessionRequest struct {
	PlanType           config.PlanKind `json:"plan_type"`
	TotalRequestsLimit *int64          `json:"total_requests_limit,omitempty"`
	TotalTokenLimit    *int64          `json:"total_token_limit,omitempty"`
}

type createSessionResponse struct {
	SessionToken string `json:"session_token"`
}

type chatRequest struct {
	Message string    `json:"message"`
	History []Message `json:"history"`
}
