package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/session"
	"github.com/lightningmodel/lnchat/internal/store"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *session.Store, store.Backend) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	backend := store.NewMemory()
	tokens := session.NewStore(backend)
	return NewClient(srv.URL+"/api/v1", tokens), tokens, backend
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCreateSession_StoresAndAttachesToken(t *testing.T) {
	var sawToken string
	c, tokens, backend := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/sessions/create":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["plan_type"] != "request" {
				t.Errorf("plan_type = %v", body["plan_type"])
			}
			if body["total_requests_limit"] != float64(100) {
				t.Errorf("total_requests_limit = %v", body["total_requests_limit"])
			}
			if _, ok := body["total_token_limit"]; ok {
				t.Errorf("nil token limit should be omitted")
			}
			writeJSON(w, http.StatusOK, map[string]string{"session_token": "tok-123"})
		case "/api/v1/sessions/status":
			sawToken = r.Header.Get("X-Session-Token")
			writeJSON(w, http.StatusOK, map[string]any{
				"plan_type": "request", "is_active": true,
				"total_requests_limit": 100, "request_count": 0,
			})
		default:
			http.NotFound(w, r)
		}
	})

	if c.IsSessionActive() {
		t.Fatal("active before create")
	}
	limit := int64(100)
	tok, err := c.CreateSession(context.Background(), config.PlanRequest, &limit, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if tok != "tok-123" || tokens.Token() != "tok-123" {
		t.Fatalf("token = %q / %q", tok, tokens.Token())
	}
	if v, _ := backend.Get(session.TokenKey); v != "tok-123" {
		t.Fatalf("persisted token = %q", v)
	}

	st, err := c.GetSessionStatus(context.Background())
	if err != nil {
		t.Fatalf("GetSessionStatus: %v", err)
	}
	if sawToken != "tok-123" {
		t.Fatalf("X-Session-Token = %q", sawToken)
	}
	if rem := st.RequestsRemaining(); rem == nil || *rem != 100 {
		t.Fatalf("RequestsRemaining = %v, want 100", rem)
	}
}

func TestCreateSession_ServerErrorWraps(t *testing.T) {
	c, tokens, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "db down"})
	})
	_, err := c.CreateSession(context.Background(), config.PlanToken, nil, nil)
	if !errors.Is(err, ErrSessionCreation) {
		t.Fatalf("err = %v, want ErrSessionCreation", err)
	}
	if tokens.Active() {
		t.Fatal("token stored after failed create")
	}
}

func TestGetSessionStatus_NoToken(t *testing.T) {
	c, _, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("server must not be called without a token")
	})
	if _, err := c.GetSessionStatus(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("err = %v, want ErrNoActiveSession", err)
	}
}

func TestGetSessionStatus_UnauthorizedClearsToken(t *testing.T) {
	c, tokens, backend := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Session token is required"})
	})
	_ = tokens.Set("stale")

	_, err := c.GetSessionStatus(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if c.IsSessionActive() {
		t.Fatal("IsSessionActive true after 401")
	}
	if _, err := backend.Get(session.TokenKey); err == nil {
		t.Fatal("persisted token survived 401")
	}
}

func TestSendMessage(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       any
		check      func(t *testing.T, resp *ChatResponse, err error)
		wantActive bool
	}{
		{
			name:   "ok",
			status: http.StatusOK,
			body: map[string]any{
				"content": "hi there", "requests_remaining": 41, "session_active": true,
			},
			check: func(t *testing.T, resp *ChatResponse, err error) {
				if err != nil {
					t.Fatalf("err = %v", err)
				}
				if resp.Content != "hi there" || resp.RequestsRemaining == nil || *resp.RequestsRemaining != 41 {
					t.Fatalf("resp = %+v", resp)
				}
				if resp.TokensRemaining != nil {
					t.Fatalf("TokensRemaining should be nil when omitted")
				}
			},
			wantActive: true,
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   map[string]string{"detail": "slow down"},
			check: func(t *testing.T, _ *ChatResponse, err error) {
				var rl *RateLimitError
				if !errors.As(err, &rl) || rl.Detail != "slow down" {
					t.Fatalf("err = %v, want RateLimitError(slow down)", err)
				}
				if !errors.Is(err, ErrRateLimited) {
					t.Fatal("errors.Is(ErrRateLimited) false")
				}
			},
			wantActive: true,
		},
		{
			name:   "expired",
			status: http.StatusUnauthorized,
			body:   map[string]string{"detail": "nope"},
			check: func(t *testing.T, _ *ChatResponse, err error) {
				if !errors.Is(err, ErrSessionExpired) || !IsAuthFailure(err) {
					t.Fatalf("err = %v, want ErrSessionExpired", err)
				}
			},
			wantActive: false,
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   map[string]string{"detail": "upstream"},
			check: func(t *testing.T, _ *ChatResponse, err error) {
				var ae *APIError
				if !errors.As(err, &ae) || ae.Status != http.StatusBadGateway {
					t.Fatalf("err = %v, want APIError 502", err)
				}
			},
			wantActive: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, tokens, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				var req chatRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				if req.Message != "hello" || len(req.History) != 1 {
					t.Errorf("request = %+v", req)
				}
				writeJSON(w, tt.status, tt.body)
			})
			_ = tokens.Set("tok")
			resp, err := c.SendMessage(context.Background(), "hello", []Message{{Role: RoleUser, Content: "earlier"}})
			tt.check(t, resp, err)
			if c.IsSessionActive() != tt.wantActive {
				t.Fatalf("IsSessionActive = %v, want %v", c.IsSessionActive(), tt.wantActive)
			}
		})
	}
}

func TestUpdateTokenConfig_WrapsDetail(t *testing.T) {
	c, tokens, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]string{{"msg": "ensure this value is greater than 0"}},
		})
	})
	if _, err := c.UpdateTokenConfig(context.Background(), 10); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("without token err = %v", err)
	}
	_ = tokens.Set("tok")
	_, err := c.UpdateTokenConfig(context.Background(), 0)
	if !errors.Is(err, ErrConfigUpdate) {
		t.Fatalf("err = %v, want ErrConfigUpdate", err)
	}
	if got := err.Error(); got != "api: config update failed: ensure this value is greater than 0" {
		t.Fatalf("err text = %q", got)
	}
}

func TestTerminateSession(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   bool
		wantToken bool
	}{
		{"ok", http.StatusOK, false, false},
		{"already gone", http.StatusNotFound, false, false},
		{"unauthorized", http.StatusUnauthorized, false, false},
		{"server error keeps token", http.StatusInternalServerError, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, tokens, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, map[string]string{})
			})
			_ = tokens.Set("tok")
			err := c.TerminateSession(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrTermination) {
				t.Fatalf("err = %v, want ErrTermination", err)
			}
			if tokens.Active() != tt.wantToken {
				t.Fatalf("token held = %v, want %v", tokens.Active(), tt.wantToken)
			}
		})
	}
}

func TestTerminateSession_NoTokenIsNoop(t *testing.T) {
	c, _, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("server must not be called")
	})
	if err := c.TerminateSession(context.Background()); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestTerminateSession_TransportErrorKeepsToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	tokens := session.NewStore(store.NewMemory())
	_ = tokens.Set("tok")
	c := NewClient(srv.URL, tokens)

	err := c.TerminateSession(context.Background())
	if !errors.Is(err, ErrTermination) || !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v", err)
	}
	if !tokens.Active() {
		t.Fatal("token cleared on transport failure")
	}
}

func TestGetChatHistory(t *testing.T) {
	c, tokens, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"role": "user", "content": "q", "id": 1},
			{"role": "assistant", "content": "a", "token_count": 12},
		})
	})
	_ = tokens.Set("tok")
	msgs, err := c.GetChatHistory(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Role != RoleUser || msgs[1].Content != "a" {
		t.Fatalf("msgs = %+v", msgs)
	}
	if msgs[1].TokenCount == nil || *msgs[1].TokenCount != 12 {
		t.Fatalf("token_count not decoded: %+v", msgs[1])
	}
}

func TestHealth_UsesServiceRoot(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "healthy", "services": map[string]string{"redis": "connected"},
		})
	})
	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != "healthy" || h.Services["redis"] != "connected" {
		t.Fatalf("health = %+v", h)
	}
}

func TestUpdateConfig(t *testing.T) {
	var got map[string]any
	c, tokens, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/v1/sessions/config" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if err := c.UpdateConfig(context.Background(), map[string]any{"x": 1}); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("without token err = %v", err)
	}
	_ = tokens.Set("tok")
	if err := c.UpdateConfig(context.Background(), map[string]any{"total_requests_limit": 200}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if got["total_requests_limit"] != float64(200) {
		t.Fatalf("patch sent = %v", got)
	}
}
