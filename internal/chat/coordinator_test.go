package chat

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightningmodel/lnchat/internal/api"
	"github.com/lightningmodel/lnchat/internal/config"
)

func activeRequestSession(t *testing.T, h *harness, limit int64) {
	t.Helper()
	require.NoError(t, h.coord.SelectPlan(config.PlanRequest))
	require.NoError(t, h.coord.BeginPayment(limit))
	require.NoError(t, h.coord.ConfigureRequestLimit(context.Background(), limit))
}

func TestConfigureRequestLimit_RemainingEqualsLimit(t *testing.T) {
	h := newHarness(t)
	activeRequestSession(t, h, 100)

	st := h.coord.State()
	assert.Equal(t, PhaseActive, st.Phase)
	assert.True(t, st.LimitConfigured)
	require.NotNil(t, st.RequestsRemaining)
	assert.Equal(t, int64(100), *st.RequestsRemaining)
	require.NotNil(t, st.Status)
	assert.Equal(t, int64(100), *st.Status.RequestsRemaining())
	assert.Equal(t, float64(100), h.svc.created()["total_requests_limit"])
	assert.True(t, h.client.IsSessionActive())
}

func TestConfigureRequestLimit_NeedsPlan(t *testing.T) {
	h := newHarness(t)
	err := h.coord.ConfigureRequestLimit(context.Background(), 10)
	assert.ErrorIs(t, err, ErrPlanNotSelected)
	assert.Zero(t, h.svc.count("create"))

	require.NoError(t, h.coord.SelectPlan(config.PlanRequest))
	assert.ErrorIs(t, h.coord.ConfigureRequestLimit(context.Background(), 0), ErrInvalidLimit)
}

func TestConfigureTokenLimit(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.coord.SelectPlan(config.PlanToken))
	require.NoError(t, h.coord.ConfigureTokenLimit(context.Background(), 100_000))

	_, sentLimit := h.svc.created()["total_token_limit"]
	assert.False(t, sentLimit, "token limit must be set by the follow-up config call")
	assert.Equal(t, 1, h.svc.count("token-config"))

	st := h.coord.State()
	require.NotNil(t, st.TokensRemaining)
	assert.Equal(t, int64(100_000), *st.TokensRemaining)
	assert.Equal(t, config.PlanToken, st.Plan)
	assert.Equal(t, PhaseActive, st.Phase)
}

func TestConfigureTokenLimit_ServerRejects(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.coord.SelectPlan(config.PlanToken))

	err := h.coord.ConfigureTokenLimit(context.Background(), 5_000_000)
	assert.ErrorIs(t, err, api.ErrConfigUpdate)
	assert.ErrorContains(t, err, "less than or equal to 1000000")

	st := h.coord.State()
	assert.Equal(t, "Failed to set token limit. Please try again.", st.Err)
	assert.False(t, st.Loading)
	assert.False(t, st.LimitConfigured)
	assert.Equal(t, PhasePlanSelected, st.Phase)

	assert.Equal(t, 1, h.svc.count("terminate"))
	assert.False(t, h.client.IsSessionActive(), "uncapped session token must not be kept")
	assert.Empty(t, h.tokens.Token())
}

func TestConfigure_UnauthorizedStatusResets(t *testing.T) {
	h := newHarness(t)
	h.svc.set(func(f *fakeService) { f.statusCode = http.StatusUnauthorized })
	require.NoError(t, h.coord.SelectPlan(config.PlanRequest))
	require.NoError(t, h.coord.BeginPayment(10))

	err := h.coord.ConfigureRequestLimit(context.Background(), 10)
	assert.ErrorIs(t, err, api.ErrUnauthorized)

	st := h.coord.State()
	assert.Equal(t, PhaseNoPlan, st.Phase)
	assert.Equal(t, MsgSessionExpired, st.Err)
	assert.False(t, st.CanSend())
	assert.Nil(t, st.Status)
	assert.False(t, h.client.IsSessionActive())
}

func TestConfigure_StatusOutageKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.svc.set(func(f *fakeService) { f.statusCode = http.StatusServiceUnavailable })
	activeRequestSession(t, h, 10)

	st := h.coord.State()
	assert.Equal(t, PhaseActive, st.Phase)
	require.NotNil(t, st.RequestsRemaining)
	assert.Equal(t, int64(10), *st.RequestsRemaining)
	assert.True(t, h.client.IsSessionActive())
}

func TestSendMessage_UpdatesRemainingAndCalls(t *testing.T) {
	h := newHarness(t)
	activeRequestSession(t, h, 50)
	h.svc.set(func(f *fakeService) { f.requests = 8 })

	require.NoError(t, h.coord.SendMessage(context.Background(), "hello"))

	st := h.coord.State()
	require.NotNil(t, st.RequestsRemaining)
	assert.Equal(t, int64(41), *st.RequestsRemaining)
	assert.Equal(t, 1, st.TotalCalls)
	assert.Equal(t, int64(10), st.TokenUsage)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Err)
	require.Len(t, st.Messages, 2)
	assert.Equal(t, api.RoleUser, st.Messages[0].Role)
	assert.Equal(t, "echo: hello", st.Messages[1].Content)
}

func TestSendMessage_HistoryIsPriorTurns(t *testing.T) {
	h := newHarness(t)
	activeRequestSession(t, h, 10)
	ctx := context.Background()

	require.NoError(t, h.coord.SendMessage(ctx, "one"))
	assert.Empty(t, h.svc.sent())

	require.NoError(t, h.coord.SendMessage(ctx, "two"))
	require.Len(t, h.svc.sent(), 2)
	assert.Equal(t, "one", h.svc.sent()[0].Content)
	assert.Equal(t, "echo: one", h.svc.sent()[1].Content)
}

func TestSendMessage_BlankIsNoop(t *testing.T) {
	h := newHarness(t)
	activeRequestSession(t, h, 10)
	before := h.coord.State()

	require.NoError(t, h.coord.SendMessage(context.Background(), "  \n\t "))
	assert.Zero(t, h.svc.count("chat"))
	assert.Equal(t, before, h.coord.State())
}

func TestSendMessage_NoSessionStaysLocal(t *testing.T) {
	h := newHarness(t)
	err := h.coord.SendMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, api.ErrNoActiveSession)
	assert.Zero(t, h.svc.count("chat"))

	st := h.coord.State()
	assert.Equal(t, MsgNoSession, st.Err)
	assert.Empty(t, st.Messages)
}

func TestSendMessage_RateLimited(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.coord.now = func() time.Time { return now }
	activeRequestSession(t, h, 50)
	before := h.coord.State()

	h.svc.set(func(f *fakeService) {
		f.chatStatus = http.StatusTooManyRequests
		f.chatDetail = "slow down"
	})
	err := h.coord.SendMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, api.ErrRateLimited)

	st := h.coord.State()
	assert.Contains(t, st.Err, "slow down")
	assert.True(t, st.RateLimit.Limited)
	assert.Equal(t, 60*time.Second, st.RateLimit.RetryAfter)
	assert.Equal(t, 60*time.Second, st.RateLimit.Remaining(now))
	assert.False(t, st.Loading)

	assert.Equal(t, before.Phase, st.Phase)
	assert.Equal(t, before.Status, st.Status)
	assert.Equal(t, before.RequestsRemaining, st.RequestsRemaining)
	assert.Equal(t, before.TotalCalls, st.TotalCalls)
	assert.True(t, h.client.IsSessionActive())
	assert.Equal(t, 2, h.svc.count("status"), "status refreshed once after the 429")

	assert.False(t, h.coord.ExpireRateLimit(now.Add(59*time.Second)))
	assert.True(t, h.coord.ExpireRateLimit(now.Add(60*time.Second)))
	assert.False(t, h.coord.State().RateLimit.Limited)
}

func TestSendMessage_SuccessClearsRateLimit(t *testing.T) {
	h := newHarness(t)
	activeRequestSession(t, h, 50)
	ctx := context.Background()

	h.svc.set(func(f *fakeService) { f.chatStatus, f.chatDetail = http.StatusTooManyRequests, "slow down" })
	_ = h.coord.SendMessage(ctx, "hello")
	require.True(t, h.coord.State().RateLimit.Limited)

	h.svc.set(func(f *fakeService) { f.chatStatus = 0 })
	require.NoError(t, h.coord.SendMessage(ctx, "again"))
	assert.False(t, h.coord.State().RateLimit.Limited)
}

func TestSendMessage_ExpiredResets(t *testing.T) {
	h := newHarness(t)
	activeRequestSession(t, h, 50)
	require.NoError(t, h.coord.SendMessage(context.Background(), "first"))

	h.svc.set(func(f *fakeService) { f.chatStatus, f.chatDetail = http.StatusUnauthorized, "expired" })
	err := h.coord.SendMessage(context.Background(), "second")
	assert.ErrorIs(t, err, api.ErrSessionExpired)

	st := h.coord.State()
	assert.Equal(t, PhaseNoPlan, st.Phase)
	assert.Equal(t, MsgSessionExpired, st.Err)
	assert.Empty(t, st.Messages)
	assert.Zero(t, st.TotalCalls)
	assert.Nil(t, st.Status)
	assert.False(t, st.Loading)
	assert.False(t, h.client.IsSessionActive())
}

func TestSendMessage_GenericFailureThenRetry(t *testing.T) {
	h := newHarness(t)
	activeRequestSession(t, h, 50)
	ctx := context.Background()

	h.svc.set(func(f *fakeService) { f.chatStatus, f.chatDetail = http.StatusBadGateway, "upstream" })
	require.Error(t, h.coord.SendMessage(ctx, "hello"))

	st := h.coord.State()
	assert.Equal(t, MsgSendFailed, st.Err)
	assert.False(t, st.Loading)
	text, ok := st.LastUserMessage()
	require.True(t, ok)
	assert.Equal(t, "hello", text)

	h.svc.set(func(f *fakeService) { f.chatStatus = 0 })
	require.NoError(t, h.coord.Retry(ctx))

	st = h.coord.State()
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "hello", st.Messages[0].Content)
	assert.Equal(t, "echo: hello", st.Messages[1].Content)
	assert.Equal(t, 1, st.TotalCalls)
	assert.Empty(t, st.Err)

	// Nothing left to retry.
	require.NoError(t, h.coord.Retry(ctx))
	assert.Equal(t, 2, h.svc.count("chat"))
}

func TestSendMessage_Exhaustion(t *testing.T) {
	h := newHarness(t)
	activeRequestSession(t, h, 1)

	require.NoError(t, h.coord.SendMessage(context.Background(), "only"))
	st := h.coord.State()
	assert.Equal(t, PhaseExhausted, st.Phase)
	assert.Equal(t, int64(0), *st.RequestsRemaining)
	assert.False(t, st.CanSend())
	assert.Equal(t, "Session terminated: You've reached your request limit.", st.Banner())

	err := h.coord.SendMessage(context.Background(), "more")
	assert.ErrorIs(t, err, api.ErrNoActiveSession)
	assert.Equal(t, 1, h.svc.count("chat"))
}

func TestResetChat_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.coord.SelectModel(config.DefaultModel)
	activeRequestSession(t, h, 10)
	require.NoError(t, h.coord.SendMessage(context.Background(), "hello"))

	h.coord.ResetChat(context.Background())
	once := h.coord.State()
	h.coord.ResetChat(context.Background())
	twice := h.coord.State()

	assert.Equal(t, once, twice)
	assert.Equal(t, PhaseNoPlan, twice.Phase)
	assert.Empty(t, twice.SelectedModel)
	assert.Empty(t, twice.Messages)
	assert.Zero(t, twice.TotalCalls)
	assert.Nil(t, twice.RequestsRemaining)
	assert.False(t, twice.LimitConfigured)
	assert.Equal(t, 1, h.svc.count("terminate"))
	assert.False(t, h.client.IsSessionActive())
}

func TestEndSession_KeepsTranscript(t *testing.T) {
	h := newHarness(t)
	activeRequestSession(t, h, 10)
	require.NoError(t, h.coord.SendMessage(context.Background(), "hello"))

	require.NoError(t, h.coord.EndSession(context.Background()))
	st := h.coord.State()
	assert.Equal(t, PhaseTerminated, st.Phase)
	assert.Len(t, st.Messages, 2)
	assert.False(t, st.Status.IsActive)
	assert.Equal(t, "Session terminated.", st.Banner())
	assert.False(t, h.client.IsSessionActive())

	assert.ErrorIs(t, h.coord.EndSession(context.Background()), ErrInvalidTransition)
}

func TestResetChat_FromTerminatedAllowsNewPlan(t *testing.T) {
	h := newHarness(t)
	activeRequestSession(t, h, 10)
	require.NoError(t, h.coord.EndSession(context.Background()))

	h.coord.ResetChat(context.Background())
	st := h.coord.State()
	assert.Equal(t, PhaseNoPlan, st.Phase)
	assert.Nil(t, st.Status)
	assert.Empty(t, st.Messages)

	require.NoError(t, h.coord.SelectPlan(config.PlanToken))
	assert.Equal(t, PhasePlanSelected, h.coord.State().Phase)
}

func TestRestore(t *testing.T) {
	history := []api.Message{
		{Role: api.RoleUser, Content: "q"},
		{Role: api.RoleAssistant, Content: "a"},
	}

	t.Run("active session with history", func(t *testing.T) {
		h := newHarness(t)
		limit := int64(20)
		h.svc.set(func(f *fakeService) {
			f.plan, f.reqLimit, f.requests, f.active, f.history = "request", &limit, 5, true, history
		})
		require.NoError(t, h.tokens.Set(fakeToken))

		require.NoError(t, h.coord.Restore(context.Background()))
		st := h.coord.State()
		assert.Equal(t, PhaseActive, st.Phase)
		assert.Equal(t, config.PlanRequest, st.Plan)
		assert.True(t, st.LimitConfigured)
		assert.Equal(t, int64(15), *st.RequestsRemaining)
		assert.Equal(t, history, st.Messages)
	})

	t.Run("history failure is swallowed", func(t *testing.T) {
		h := newHarness(t)
		limit := int64(20)
		h.svc.set(func(f *fakeService) {
			f.plan, f.reqLimit, f.active, f.historyFail = "request", &limit, true, true
		})
		require.NoError(t, h.tokens.Set(fakeToken))

		require.NoError(t, h.coord.Restore(context.Background()))
		st := h.coord.State()
		assert.Equal(t, PhaseActive, st.Phase)
		assert.Empty(t, st.Messages)
	})

	t.Run("stale token is dropped", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.tokens.Set("stale"))

		require.NoError(t, h.coord.Restore(context.Background()))
		assert.Equal(t, PhaseNoPlan, h.coord.State().Phase)
		assert.False(t, h.client.IsSessionActive())
	})

	t.Run("no token does nothing", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.coord.Restore(context.Background()))
		assert.Zero(t, h.svc.count("status"))
	})

	t.Run("inactive session restores exhausted", func(t *testing.T) {
		h := newHarness(t)
		limit := int64(3)
		h.svc.set(func(f *fakeService) {
			f.plan, f.reqLimit, f.requests, f.active = "request", &limit, 3, false
		})
		require.NoError(t, h.tokens.Set(fakeToken))

		require.NoError(t, h.coord.Restore(context.Background()))
		assert.Equal(t, PhaseExhausted, h.coord.State().Phase)
	})
}

func TestClearError(t *testing.T) {
	h := newHarness(t)
	_ = h.coord.SendMessage(context.Background(), "hi")
	require.NotEmpty(t, h.coord.State().Err)
	h.coord.ClearError()
	assert.Empty(t, h.coord.State().Err)
}
