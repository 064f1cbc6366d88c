package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNoActiveSession is returned when an operation needs a token and none is held.
	ErrNoActiveSession = errors.New("api: no active session")
	// ErrUnauthorized indicates the service rejected the session token.
	ErrUnauthorized = errors.New("api: unauthorized (session invalid)")
	// ErrSessionExpired is ErrUnauthorized as seen while chatting.
	ErrSessionExpired = errors.New("api: session expired")
	// ErrRateLimited matches any *RateLimitError via errors.Is.
	ErrRateLimited = errors.New("api: rate limited")
	// ErrSessionCreation wraps failures of POST /sessions/create.
	ErrSessionCreation = errors.New("api: session creation failed")
	// ErrConfigUpdate wraps failures of the session config endpoints.
	ErrConfigUpdate = errors.New("api: config update failed")
	// ErrTermination wraps failures of POST /sessions/terminate.
	ErrTermination = errors.New("api: session termination failed")
	// ErrTransport wraps network-level failures.
	ErrTransport = errors.New("api: transport error")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Detail)
}

// RateLimitError is a 429 from the service. The token stays valid.
type RateLimitError struct {
	Detail     string
	RetryAfter time.Duration // zero when the service sent no Retry-After
}

func (e *RateLimitError) Error() string {
	if e.Detail == "" {
		return "rate limited"
	}
	return e.Detail
}

// Is makes errors.Is(err, ErrRateLimited) true.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsAuthFailure reports whether err means the session token is no longer valid.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrSessionExpired)
}

func statusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

func detailOf(err error) string {
	var ae *APIError
	if errors.As(err, &ae) && ae.Detail != "" {
		return ae.Detail
	}
	return err.Error()
}

// parseDetail extracts FastAPI's "detail" field. Validation errors carry a
// list of objects with a "msg" each.
func parseDetail(body []byte) string {
	var raw struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &raw); err != nil || len(raw.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var s string
	if err := json.Unmarshal(raw.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(raw.Detail)
}

func parseRetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
