package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/lightningmodel/lnchat/internal/api"
	"github.com/lightningmodel/lnchat/internal/session"
	"github.com/lightningmodel/lnchat/internal/store"
)

const fakeToken = "tok-1"

// fakeService is an in-memory stand-in for the metered chat service.
type fakeService struct {
	mu sync.Mutex

	plan     string
	reqLimit *int64
	tokLimit *int64
	requests int64
	tokens   int64
	active   bool

	chatStatus  int // non-zero makes /chat/message fail with this status
	chatDetail  string
	statusCode  int // non-zero makes /sessions/status fail with this status
	historyFail bool
	history     []api.Message

	calls       map[string]int
	lastHistory []api.Message
	createBody  map[string]any
}

func (f *fakeService) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeService) sent() []api.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastHistory
}

func (f *fakeService) created() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createBody
}

func (f *fakeService) set(fn func(f *fakeService)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	authed := func(name string, h func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls[name]++
			if name != "create" && r.Header.Get("X-Session-Token") != fakeToken {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid session token"})
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("POST /api/v1/sessions/create", authed("create", func(w http.ResponseWriter, r *http.Request) {
		raw := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&raw)
		f.createBody = raw
		f.plan, _ = raw["plan_type"].(string)
		f.reqLimit, f.tokLimit = optInt(raw["total_requests_limit"]), optInt(raw["total_token_limit"])
		f.requests, f.tokens, f.active = 0, 0, true
		writeJSON(w, http.StatusOK, map[string]string{"session_token": fakeToken})
	}))

	mux.HandleFunc("GET /api/v1/sessions/status", authed("status", func(w http.ResponseWriter, _ *http.Request) {
		if f.statusCode != 0 {
			writeJSON(w, f.statusCode, map[string]string{"detail": "status unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"plan_type":            f.plan,
			"is_active":            f.active,
			"total_requests_limit": f.reqLimit,
			"request_count":        f.requests,
			"total_token_limit":    f.tokLimit,
			"token_count":          f.tokens,
		})
	}))

	mux.HandleFunc("PUT /api/v1/sessions/token-config", authed("token-config", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Limit int64 `json:"total_token_limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Limit > 1_000_000 {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"detail": []map[string]string{{"msg": "ensure this value is less than or equal to 1000000"}},
			})
			return
		}
		f.tokLimit = &body.Limit
		writeJSON(w, http.StatusOK, map[string]int64{"total_token_limit": body.Limit})
	}))

	mux.HandleFunc("POST /api/v1/sessions/terminate", authed("terminate", func(w http.ResponseWriter, _ *http.Request) {
		f.active = false
		writeJSON(w, http.StatusOK, map[string]string{"message": "Session terminated"})
	}))

	mux.HandleFunc("POST /api/v1/chat/message", authed("chat", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string        `json:"message"`
			History []api.Message `json:"history"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastHistory = body.History
		if f.chatStatus != 0 {
			writeJSON(w, f.chatStatus, map[string]string{"detail": f.chatDetail})
			return
		}

		f.requests++
		f.tokens += 10
		resp := map[string]any{"content": "echo: " + body.Message, "token_usage": 10, "latency_ms": 5}
		if f.reqLimit != nil {
			rem := *f.reqLimit - f.requests
			resp["requests_remaining"] = rem
			f.active = rem > 0
		}
		if f.tokLimit != nil {
			rem := *f.tokLimit - f.tokens
			resp["tokens_remaining"] = rem
			f.active = rem > 0
		}
		resp["session_active"] = f.active
		writeJSON(w, http.StatusOK, resp)
	}))

	mux.HandleFunc("GET /api/v1/chat/history", authed("history", func(w http.ResponseWriter, _ *http.Request) {
		if f.historyFail {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "history unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, f.history)
	}))
	return mux
}

func optInt(v any) *int64 {
	n, ok := v.(float64)
	if !ok {
		return nil
	}
	i := int64(n)
	return &i
}

type harness struct {
	coord  *Coordinator
	svc    *fakeService
	tokens *session.Store
	client *api.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	svc := &fakeService{calls: map[string]int{}}
	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)

	tokens := session.NewStore(store.NewMemory())
	client := api.NewClient(srv.URL+"/api/v1", tokens)
	return &harness{
		coord:  NewCoordinator(client, nil),
		svc:    svc,
		tokens: tokens,
		client: client,
	}
}
