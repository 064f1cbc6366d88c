package payment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/lnd"
)

// Outcome is how a poll ended.
type Outcome int

const (
	Pending Outcome = iota
	Settled
	Expired
	Failed
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Settled:
		return "settled"
	case Expired:
		return "expired"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return "pending"
}

// Result is the final report of one poll run.
type Result struct {
	Outcome    Outcome
	Invoice    *lnd.Invoice
	Err        error
	Checks     int
	Generation uint64
}

// PollConfig controls cadence, ceiling and error handling.
type PollConfig struct {
	Interval    time.Duration
	Timeout     time.Duration
	ErrorPolicy string
}

// PollConfigFrom reads the poll settings from the invoice config.
func PollConfigFrom(cfg config.InvoiceConfig) PollConfig {
	policy := cfg.PollErrorPolicy
	if policy == "" {
		policy = config.PollErrorStop
	}
	return PollConfig{
		Interval:    cfg.PollInterval(),
		Timeout:     cfg.PollTimeout(),
		ErrorPolicy: policy,
	}
}

// Poller checks invoice status until it settles, lapses, or is stopped.
// Each Start supersedes the previous run; results from older runs are
// reported as Cancelled.
type Poller struct {
	checker lnd.Provider
	cfg     PollConfig
	log     *slog.Logger
	now     func() time.Time

	gen     atomic.Uint64
	mu      sync.Mutex
	current *PollHandle
}

// NewPoller creates a poller over p.
func NewPoller(p lnd.Provider, cfg PollConfig, log *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{checker: p, cfg: cfg, log: log, now: time.Now}
}

// Generation returns the id of the most recent run.
func (p *Poller) Generation() uint64 {
	return p.gen.Load()
}

// Start begins polling inv in the background, stopping any earlier run.
func (p *Poller) Start(ctx context.Context, inv *lnd.Invoice) *PollHandle {
	return p.start(ctx, inv, nil)
}

// Stop cancels the current run, if any.
func (p *Poller) Stop() {
	p.mu.Lock()
	h := p.current
	p.current = nil
	p.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

func (p *Poller) start(ctx context.Context, inv *lnd.Invoice, onDone func(Result)) *PollHandle {
	gen := p.gen.Add(1)
	runCtx, cancel := context.WithCancel(ctx)
	h := &PollHandle{gen: gen, cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	prev := p.current
	p.current = h
	p.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	go func() {
		res := p.run(runCtx, inv)
		res.Generation = gen
		if res.Outcome != Cancelled && p.gen.Load() != gen {
			p.log.Debug("dropping stale poll result", "generation", gen, "outcome", res.Outcome)
			res = Result{Outcome: Cancelled, Invoice: inv, Checks: res.Checks, Generation: gen}
		}
		h.result = res
		if onDone != nil {
			onDone(res)
		}
		cancel()
		close(h.done)
	}()
	return h
}

func (p *Poller) run(ctx context.Context, inv *lnd.Invoice) Result {
	res := Result{Invoice: inv}
	if inv == nil {
		res.Outcome = Failed
		res.Err = errors.New("payment: no invoice to poll")
		return res
	}
	if inv.Expired(p.now()) {
		res.Outcome = Expired
		return res
	}

	deadline, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(p.cfg.Interval), 1)
	limiter.Allow() // first check waits a full interval

	for {
		if err := waitTurn(deadline, limiter); err != nil {
			res.Outcome = stopped(ctx)
			return res
		}

		res.Checks++
		settled, err := p.checker.CheckInvoiceStatus(deadline, inv.PaymentHash)
		// An answer that arrives after the ceiling or a stop is discarded,
		// whatever it says.
		if deadline.Err() != nil {
			res.Outcome = stopped(ctx)
			return res
		}
		if err != nil {
			switch p.cfg.ErrorPolicy {
			case config.PollErrorRetry:
				p.log.Warn("invoice status check failed, retrying", "hash", inv.PaymentHash, "err", err)
				continue
			case config.PollErrorAssumePaid:
				p.log.Warn("invoice status check failed, assuming paid", "hash", inv.PaymentHash, "err", err)
				settled = true
			default:
				res.Outcome = Failed
				res.Err = err
				return res
			}
		}

		if settled {
			res.Outcome = Settled
			return res
		}
		if inv.Expired(p.now()) {
			res.Outcome = Expired
			return res
		}
	}
}

// stopped classifies the end of a run whose deadline context is done.
func stopped(ctx context.Context) Outcome {
	if ctx.Err() != nil {
		return Cancelled
	}
	return Expired
}

// waitTurn blocks until the limiter grants the next check or ctx is done.
// Limiter.Wait gives up as soon as the next slot would land past the
// deadline, which would end a run up to one interval before the ceiling.
func waitTurn(ctx context.Context, l *rate.Limiter) error {
	r := l.Reserve()
	d := r.Delay()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// PollHandle controls one poll run.
type PollHandle struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Generation is the run id.
func (h *PollHandle) Generation() uint64 { return h.gen }

// Stop cancels the run. It is safe to call more than once.
func (h *PollHandle) Stop() { h.cancel() }

// Done is closed when the run has finished and Result is valid.
func (h *PollHandle) Done() <-chan struct{} { return h.done }

// Result returns the outcome, or a Pending result while the run is going.
func (h *PollHandle) Result() Result {
	select {
	case <-h.done:
		return h.result
	default:
		return Result{Outcome: Pending, Generation: h.gen}
	}
}

// Wait blocks until the run finishes or ctx is done.
func (h *PollHandle) Wait(ctx context.Context) Result {
	select {
	case <-h.done:
		return h.result
	case <-ctx.Done():
		h.Stop()
		<-h.done
		return h.result
	}
}
