// Package chat owns the session lifecycle, the transcript and the quota
// counters. All state sits behind one mutex that is released while a network
// call is in flight; results that land after a reset are dropped.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lightningmodel/lnchat/internal/api"
	"github.com/lightningmodel/lnchat/internal/config"
)

var (
	// ErrPlanNotSelected is returned when configuring a limit before choosing a plan.
	ErrPlanNotSelected = errors.New("chat: plan not selected")
	// ErrInvalidLimit is returned for a non-positive limit.
	ErrInvalidLimit = errors.New("chat: limit must be greater than 0")
	// ErrBusy is returned when a send or limit configuration is attempted while
	// another request is in flight.
	ErrBusy = errors.New("chat: a request is already in flight")
)

// User-facing error texts.
const (
	MsgNoSession      = "No active session. Choose a plan to start chatting."
	MsgSessionExpired = "Your session has expired. Please choose a plan to start a new one."
	MsgSendFailed     = "Failed to send message. Please try again."
	MsgRateLimited    = "Rate limit exceeded: %s"
	MsgConfigFailed   = "Failed to set %s limit. Please try again."
	MsgEndFailed      = "Could not end the session. Please try again."
)

// Client is the subset of the session API the coordinator drives.
type Client interface {
	IsSessionActive() bool
	CreateSession(ctx context.Context, plan config.PlanKind, requestLimit, tokenLimit *int64) (string, error)
	GetSessionStatus(ctx context.Context) (*api.SessionStatus, error)
	UpdateTokenConfig(ctx context.Context, limit int64) (api.TokenConfig, error)
	TerminateSession(ctx context.Context) error
	SendMessage(ctx context.Context, text string, history []api.Message) (*api.ChatResponse, error)
	GetChatHistory(ctx context.Context) ([]api.Message, error)
}

// State is a snapshot of the coordinator.
type State struct {
	Phase         Phase
	SelectedModel string
	Plan          config.PlanKind
	Limit         int64 // limit chosen for the plan being purchased

	Messages   []api.Message
	Loading    bool
	Err        string
	TotalCalls int

	Status            *api.SessionStatus
	RequestsRemaining *int64
	TokensRemaining   *int64
	TokenUsage        int64
	LimitConfigured   bool

	RateLimit RateLimit
}

// CanSend reports whether a message may be sent now.
func (s State) CanSend() bool {
	return !s.Loading && s.Phase == PhaseActive && s.Status != nil && s.Status.IsActive
}

// LastUserMessage returns the trailing user message of a failed turn, if any.
func (s State) LastUserMessage() (string, bool) {
	if n := len(s.Messages); n > 0 && s.Messages[n-1].Role == api.RoleUser {
		return s.Messages[n-1].Content, true
	}
	return "", false
}

// Banner is the notice shown once the session can no longer be used.
func (s State) Banner() string {
	switch s.Phase {
	case PhaseExhausted:
		unit := "request"
		if s.Plan == config.PlanToken {
			unit = "token"
		}
		return fmt.Sprintf("Session terminated: You've reached your %s limit.", unit)
	case PhaseTerminated:
		return "Session terminated."
	}
	return ""
}

// Coordinator drives one user's session.
type Coordinator struct {
	client Client
	log    *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	st    State
	epoch uint64
}

// NewCoordinator creates a coordinator in the NoPlan phase.
func NewCoordinator(client Client, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{client: client, log: log, now: time.Now}
}

// State returns a copy of the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.st
	s.Messages = slices.Clone(c.st.Messages)
	if c.st.Status != nil {
		st := *c.st.Status
		s.Status = &st
	}
	s.RequestsRemaining = clonePtr(c.st.RequestsRemaining)
	s.TokensRemaining = clonePtr(c.st.TokensRemaining)
	return s
}

// Restore picks up a session from a persisted token. A token the service no
// longer accepts is dropped silently; a history failure is only logged.
func (c *Coordinator) Restore(ctx context.Context) error {
	if !c.client.IsSessionActive() {
		return nil
	}
	status, err := c.client.GetSessionStatus(ctx)
	if err != nil {
		if api.IsAuthFailure(err) {
			c.log.Info("persisted session is no longer valid")
			return nil
		}
		return fmt.Errorf("chat: restoring session: %w", err)
	}

	history, herr := c.client.GetChatHistory(ctx)
	if herr != nil {
		c.log.Warn("chat history unavailable", "err", herr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := transition(c.st.Phase, evRestored)
	if err != nil {
		return err
	}
	c.st.Phase = next
	c.st.Plan = status.PlanType
	c.st.LimitConfigured = true
	c.st.TokenUsage = status.TokenCount
	c.applyStatusLocked(status)
	if !status.IsActive {
		c.markExhaustedLocked()
	}
	if herr == nil {
		c.st.Messages = history
	}
	c.log.Info("session restored", "plan", status.PlanType, "active", status.IsActive)
	return nil
}

// SelectModel records the chosen model.
func (c *Coordinator) SelectModel(name string) {
	c.mu.Lock()
	c.st.SelectedModel = name
	c.mu.Unlock()
}

// SelectPlan chooses how the next session is metered.
func (c *Coordinator) SelectPlan(kind config.PlanKind) error {
	if !kind.Valid() {
		return fmt.Errorf("chat: unknown plan %q", kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := transition(c.st.Phase, evSelectPlan)
	if err != nil {
		return err
	}
	c.st.Phase = next
	c.st.Plan = kind
	c.st.Err = ""
	return nil
}

// BeginPayment records the limit being bought and moves to AwaitingPayment.
func (c *Coordinator) BeginPayment(limit int64) error {
	if limit <= 0 {
		return ErrInvalidLimit
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.Plan == "" {
		return ErrPlanNotSelected
	}
	next, err := transition(c.st.Phase, evBeginPayment)
	if err != nil {
		return err
	}
	c.st.Phase = next
	c.st.Limit = limit
	return nil
}

// ConfigureRequestLimit creates a session capped at limit requests.
func (c *Coordinator) ConfigureRequestLimit(ctx context.Context, limit int64) error {
	return c.configure(ctx, limit, "request", func(plan config.PlanKind) error {
		_, err := c.client.CreateSession(ctx, plan, &limit, nil)
		return err
	})
}

// ConfigureTokenLimit creates a session and then caps it at limit tokens.
// A session whose cap could not be set is terminated again, so no uncapped
// token is left behind.
func (c *Coordinator) ConfigureTokenLimit(ctx context.Context, limit int64) error {
	return c.configure(ctx, limit, "token", func(plan config.PlanKind) error {
		if _, err := c.client.CreateSession(ctx, plan, nil, nil); err != nil {
			return err
		}
		if _, err := c.client.UpdateTokenConfig(ctx, limit); err != nil {
			if terr := c.client.TerminateSession(ctx); terr != nil {
				c.log.Warn("uncapped session left open", "err", terr)
			}
			return err
		}
		return nil
	})
}

// ConfigureLimit dispatches on the selected plan.
func (c *Coordinator) ConfigureLimit(ctx context.Context, limit int64) error {
	c.mu.Lock()
	plan := c.st.Plan
	c.mu.Unlock()
	if plan == config.PlanToken {
		return c.ConfigureTokenLimit(ctx, limit)
	}
	return c.ConfigureRequestLimit(ctx, limit)
}

func (c *Coordinator) configure(ctx context.Context, limit int64, unit string, create func(config.PlanKind) error) error {
	if limit <= 0 {
		return ErrInvalidLimit
	}

	c.mu.Lock()
	plan := c.st.Plan
	if plan == "" {
		c.mu.Unlock()
		return ErrPlanNotSelected
	}
	if c.st.Loading {
		c.mu.Unlock()
		return ErrBusy
	}
	next, err := transition(c.st.Phase, evConfigured)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.st.Loading = true
	c.st.Err = ""
	epoch := c.epoch
	c.mu.Unlock()

	if err := create(plan); err != nil {
		c.mu.Lock()
		if c.epoch == epoch {
			c.st.Loading = false
			c.st.Err = fmt.Sprintf(MsgConfigFailed, unit)
		}
		c.mu.Unlock()
		c.log.Error("configuring session failed", "plan", plan, "limit", limit, "err", err)
		return err
	}

	status, err := c.client.GetSessionStatus(ctx)
	if api.IsAuthFailure(err) {
		c.log.Info("new session rejected by the service", "err", err)
		c.mu.Lock()
		if c.epoch == epoch {
			c.resetLocked()
			c.st.Err = MsgSessionExpired
		}
		c.mu.Unlock()
		return err
	}
	if err != nil {
		c.log.Warn("status after session creation unavailable", "err", err)
		status = &api.SessionStatus{PlanType: plan, IsActive: true}
		if plan == config.PlanToken {
			status.TotalTokenLimit = &limit
		} else {
			status.TotalRequestsLimit = &limit
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil
	}
	c.st.Loading = false
	c.st.Phase = next
	c.st.Limit = limit
	c.st.LimitConfigured = true
	c.applyStatusLocked(status)
	if unit == "request" {
		c.st.RequestsRemaining = clamp(limit)
	} else if c.st.TokensRemaining == nil {
		c.st.TokensRemaining = clamp(limit)
	}
	c.log.Info("session configured", "plan", plan, "limit", limit)
	return nil
}

// SendMessage sends text as the next user turn. Blank text is ignored. The
// user message is appended before the call so a failed turn can be retried.
func (c *Coordinator) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c.mu.Lock()
	if c.st.Loading {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.st.Status == nil || !c.st.Status.IsActive || c.st.Phase.Terminal() {
		c.st.Err = MsgNoSession
		c.mu.Unlock()
		return api.ErrNoActiveSession
	}
	history := slices.Clone(c.st.Messages)
	c.st.Messages = append(c.st.Messages, api.Message{Role: api.RoleUser, Content: text})
	c.st.Loading = true
	c.st.Err = ""
	c.st.RateLimit = RateLimit{}
	epoch := c.epoch
	c.mu.Unlock()

	resp, err := c.client.SendMessage(ctx, text, history)
	if err != nil {
		c.sendFailed(ctx, epoch, err)
		return err
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	c.st.Loading = false
	c.st.Messages = append(c.st.Messages, api.Message{
		Role:       api.RoleAssistant,
		Content:    resp.Content,
		TokenCount: clonePtr(resp.TokenUsage),
	})
	c.st.TotalCalls++
	if resp.RequestsRemaining != nil {
		c.st.RequestsRemaining = clamp(*resp.RequestsRemaining)
	}
	if resp.TokensRemaining != nil {
		c.st.TokensRemaining = clamp(*resp.TokensRemaining)
	}
	if resp.TokenUsage != nil {
		c.st.TokenUsage += *resp.TokenUsage
	}
	inactive := resp.SessionActive != nil && !*resp.SessionActive
	c.mu.Unlock()

	if inactive {
		if err := c.refresh(ctx, epoch); err != nil {
			c.log.Warn("status refresh after exhaustion failed", "err", err)
		}
		c.mu.Lock()
		if c.epoch == epoch {
			c.markExhaustedLocked()
		}
		c.mu.Unlock()
	}
	return nil
}

func (c *Coordinator) sendFailed(ctx context.Context, epoch uint64, err error) {
	var rl *api.RateLimitError
	switch {
	case api.IsAuthFailure(err):
		c.log.Info("session expired while chatting", "err", err)
		c.ResetChat(ctx)
		c.mu.Lock()
		c.st.Err = MsgSessionExpired
		c.mu.Unlock()

	case errors.As(err, &rl):
		c.log.Warn("rate limited", "detail", rl.Detail)
		c.mu.Lock()
		if c.epoch == epoch {
			c.st.Loading = false
			c.st.RateLimit = newRateLimit(rl.Detail, c.now())
			c.st.Err = fmt.Sprintf(MsgRateLimited, rl.Error())
		}
		c.mu.Unlock()
		if rerr := c.refresh(ctx, epoch); rerr != nil {
			c.log.Debug("status refresh after rate limit failed", "err", rerr)
		}

	default:
		c.log.Error("send failed", "err", err)
		c.mu.Lock()
		if c.epoch == epoch {
			c.st.Loading = false
			if errors.Is(err, api.ErrNoActiveSession) {
				c.st.Err = MsgNoSession
			} else {
				c.st.Err = MsgSendFailed
			}
		}
		c.mu.Unlock()
	}
}

// Retry resubmits the trailing user message of a failed turn.
func (c *Coordinator) Retry(ctx context.Context) error {
	c.mu.Lock()
	text, ok := c.st.LastUserMessage()
	if !ok || c.st.Loading {
		c.mu.Unlock()
		return nil
	}
	c.st.Messages = slices.Clone(c.st.Messages[:len(c.st.Messages)-1])
	c.mu.Unlock()
	return c.SendMessage(ctx, text)
}

// RefreshStatus re-reads the session and its remaining quota.
func (c *Coordinator) RefreshStatus(ctx context.Context) error {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	return c.refresh(ctx, epoch)
}

func (c *Coordinator) refresh(ctx context.Context, epoch uint64) error {
	status, err := c.client.GetSessionStatus(ctx)
	if err != nil {
		if api.IsAuthFailure(err) {
			c.mu.Lock()
			if c.epoch == epoch {
				c.resetLocked()
				c.st.Err = MsgSessionExpired
			}
			c.mu.Unlock()
		}
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil
	}
	c.applyStatusLocked(status)
	if !status.IsActive {
		c.markExhaustedLocked()
	}
	return nil
}

// EndSession terminates the session server-side and keeps the transcript.
func (c *Coordinator) EndSession(ctx context.Context) error {
	c.mu.Lock()
	next, err := transition(c.st.Phase, evTerminated)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	epoch := c.epoch
	c.mu.Unlock()

	if err := c.client.TerminateSession(ctx); err != nil {
		c.log.Error("terminating session failed", "err", err)
		c.mu.Lock()
		c.st.Err = MsgEndFailed
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil
	}
	c.st.Phase = next
	c.st.RateLimit = RateLimit{}
	if c.st.Status != nil {
		c.st.Status.IsActive = false
	}
	return nil
}

// ResetChat ends any live session, best effort, and returns to NoPlan.
// The error text survives so the user can see why they were sent back.
func (c *Coordinator) ResetChat(ctx context.Context) {
	if c.client.IsSessionActive() {
		if err := c.client.TerminateSession(ctx); err != nil {
			c.log.Warn("terminate during reset failed", "err", err)
		}
	}
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
}

// ClearError clears only the error text.
func (c *Coordinator) ClearError() {
	c.mu.Lock()
	c.st.Err = ""
	c.mu.Unlock()
}

// ExpireRateLimit clears the rate-limit signal once its countdown is over.
// It reports whether anything changed.
func (c *Coordinator) ExpireRateLimit(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.st.RateLimit.Expired(now) {
		return false
	}
	c.st.RateLimit = RateLimit{}
	return true
}

func (c *Coordinator) resetLocked() {
	next, err := transition(c.st.Phase, evReset)
	if err != nil {
		c.log.Error("reset refused", "phase", c.st.Phase, "err", err)
		return
	}
	c.st = State{Phase: next, Err: c.st.Err}
	c.epoch++
}

func (c *Coordinator) applyStatusLocked(status *api.SessionStatus) {
	st := *status
	c.st.Status = &st
	if st.PlanType.Valid() {
		c.st.Plan = st.PlanType
	}
	if rem := st.RequestsRemaining(); rem != nil {
		c.st.RequestsRemaining = clamp(*rem)
	}
	if rem := st.TokensRemaining(); rem != nil {
		c.st.TokensRemaining = clamp(*rem)
	}
}

func (c *Coordinator) markExhaustedLocked() {
	if next, err := transition(c.st.Phase, evExhausted); err == nil {
		c.st.Phase = next
	}
	if c.st.Status != nil {
		c.st.Status.IsActive = false
	}
}

func clamp(v int64) *int64 {
	v = max(v, 0)
	return &v
}

func clonePtr(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
