package tui

import (
	"context"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lightningmodel/lnchat/internal/chat"
	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/payment"
)

// restoredMsg is sent once the persisted session (if any) has been checked.
type restoredMsg struct{ err error }

// invoiceMsg carries the poll started for a freshly created invoice. handle
// is nil when creation failed; the error is in the payment state.
type invoiceMsg struct{ handle *payment.PollHandle }

// paymentMsg is the final result of a poll run.
type paymentMsg struct{ res payment.Result }

// configuredMsg is sent after the paid limit was applied to a new session.
type configuredMsg struct{ err error }

// chatMsg is sent after any chat operation completes; the coordinator holds
// the outcome.
type chatMsg struct{ err error }

type copiedMsg struct{ err error }

// checkedMsg is the result of a manual invoice status check.
type checkedMsg struct {
	paid bool
	err  error
}

func restoreCmd(ctx context.Context, c *chat.Coordinator) tea.Cmd {
	return func() tea.Msg {
		return restoredMsg{err: c.Restore(ctx)}
	}
}

// createInvoiceCmd creates the invoice and starts watching it.
func createInvoiceCmd(ctx context.Context, p *payment.Coordinator, plan config.PlanKind, limit int64) tea.Cmd {
	return func() tea.Msg {
		if p.CreatePaymentInvoice(ctx, plan, limit) == nil {
			return invoiceMsg{}
		}
		h, err := p.AwaitPayment(ctx)
		if err != nil {
			return invoiceMsg{}
		}
		return invoiceMsg{handle: h}
	}
}

func waitPaymentCmd(h *payment.PollHandle) tea.Cmd {
	return func() tea.Msg {
		<-h.Done()
		return paymentMsg{res: h.Result()}
	}
}

func configureCmd(ctx context.Context, c *chat.Coordinator, limit int64) tea.Cmd {
	return func() tea.Msg {
		return configuredMsg{err: c.ConfigureLimit(ctx, limit)}
	}
}

func sendCmd(ctx context.Context, c *chat.Coordinator, text string) tea.Cmd {
	return func() tea.Msg {
		return chatMsg{err: c.SendMessage(ctx, text)}
	}
}

func retryCmd(ctx context.Context, c *chat.Coordinator) tea.Cmd {
	return func() tea.Msg {
		return chatMsg{err: c.Retry(ctx)}
	}
}

func endSessionCmd(ctx context.Context, c *chat.Coordinator) tea.Cmd {
	return func() tea.Msg {
		return chatMsg{err: c.EndSession(ctx)}
	}
}

func resetCmd(ctx context.Context, c *chat.Coordinator, p *payment.Coordinator) tea.Cmd {
	return func() tea.Msg {
		p.ResetPayment()
		c.ResetChat(ctx)
		return chatMsg{}
	}
}

func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{err: clipboard.WriteAll(text)}
	}
}

func refreshCmd(ctx context.Context, c *chat.Coordinator) tea.Cmd {
	return func() tea.Msg {
		return chatMsg{err: c.RefreshStatus(ctx)}
	}
}

func checkNowCmd(ctx context.Context, p *payment.Coordinator) tea.Cmd {
	return func() tea.Msg {
		paid, err := p.CheckNow(ctx)
		return checkedMsg{paid: paid, err: err}
	}
}
