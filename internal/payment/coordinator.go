// Package payment turns a plan choice into a Lightning invoice and watches it
// until it is paid.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/lnd"
)

// ErrNoInvoice is returned when waiting without a current invoice.
var ErrNoInvoice = errors.New("payment: no invoice")

// State is a snapshot of the coordinator.
type State struct {
	Plan    config.PlanKind
	Limit   int64
	Invoice *lnd.Invoice
	Loading bool
	Err     error
	Outcome Outcome
}

// Coordinator owns the invoice for the plan being purchased.
type Coordinator struct {
	provider lnd.Provider
	rates    config.Rates
	poller   *Poller
	log      *slog.Logger

	mu     sync.Mutex
	state  State
	handle *PollHandle
}

// NewCoordinator creates a coordinator that prices with rates and polls per pc.
func NewCoordinator(p lnd.Provider, rates config.Rates, pc PollConfig, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		provider: p,
		rates:    rates,
		poller:   NewPoller(p, pc, log),
		log:      log,
	}
}

// State returns a copy of the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	if s.Invoice != nil {
		inv := *s.Invoice
		s.Invoice = &inv
	}
	return s
}

// Quote prices limit units of plan without creating anything.
func (c *Coordinator) Quote(plan config.PlanKind, limit int64) (int64, error) {
	return lnd.CalculatePaymentAmount(plan, limit, c.rates)
}

// Memo is the invoice description for a purchase.
func Memo(plan config.PlanKind, limit int64) string {
	return fmt.Sprintf("Lightning Model API: %d %s", limit, plan.Unit())
}

// CreatePaymentInvoice creates and stores the invoice for limit units of plan.
// On failure the error is kept in State().Err and nil is returned.
func (c *Coordinator) CreatePaymentInvoice(ctx context.Context, plan config.PlanKind, limit int64) *lnd.Invoice {
	c.mu.Lock()
	c.stopLocked()
	c.state = State{Plan: plan, Limit: limit, Loading: true}
	c.mu.Unlock()

	inv, err := c.createInvoice(ctx, plan, limit)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Loading = false
	if err != nil {
		c.log.Error("invoice creation failed", "plan", plan, "limit", limit, "err", err)
		c.state.Err = err
		return nil
	}
	c.log.Info("invoice created", "plan", plan, "limit", limit,
		"amount_sats", inv.AmountSats, "hash", inv.PaymentHash)
	c.state.Invoice = inv
	cp := *inv
	return &cp
}

func (c *Coordinator) createInvoice(ctx context.Context, plan config.PlanKind, limit int64) (*lnd.Invoice, error) {
	amount, err := lnd.CalculatePaymentAmount(plan, limit, c.rates)
	if err != nil {
		return nil, fmt.Errorf("pricing %d %s: %w", limit, plan.Unit(), err)
	}
	inv, err := c.provider.CreateInvoice(ctx, amount, Memo(plan, limit))
	if err != nil {
		return nil, fmt.Errorf("creating invoice for %d sats: %w", amount, err)
	}
	return inv, nil
}

// ResetPayment drops the invoice and error and stops any poll.
func (c *Coordinator) ResetPayment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.state = State{}
}

// AwaitPayment starts polling the current invoice. The state is updated
// before the handle reports done.
func (c *Coordinator) AwaitPayment(ctx context.Context) (*PollHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Invoice == nil {
		return nil, ErrNoInvoice
	}
	c.stopLocked()
	c.state.Outcome = Pending

	inv := *c.state.Invoice
	var h *PollHandle
	h = c.poller.start(ctx, &inv, func(res Result) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.handle != h || res.Outcome == Cancelled {
			return
		}
		c.state.Outcome = res.Outcome
		switch res.Outcome {
		case Settled:
			if c.state.Invoice != nil {
				c.state.Invoice.Settled = true
			}
		case Expired:
			c.state.Err = errors.New("invoice expired before payment")
		case Failed:
			c.state.Err = fmt.Errorf("checking payment: %w", res.Err)
		}
	})
	c.handle = h
	return h, nil
}

// CheckNow runs one status check of the current invoice. A paid invoice is
// settled on the spot and the background poll is stopped.
func (c *Coordinator) CheckNow(ctx context.Context) (bool, error) {
	c.mu.Lock()
	inv := c.state.Invoice
	c.mu.Unlock()
	if inv == nil {
		return false, ErrNoInvoice
	}
	paid, err := c.provider.CheckInvoiceStatus(ctx, inv.PaymentHash)
	if err != nil || !paid {
		return paid, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Invoice != nil && c.state.Invoice.PaymentHash == inv.PaymentHash {
		c.stopLocked()
		c.state.Outcome = Settled
		c.state.Invoice.Settled = true
	}
	return true, nil
}

func (c *Coordinator) stopLocked() {
	if c.handle != nil {
		c.handle.Stop()
		c.handle = nil
	}
}
