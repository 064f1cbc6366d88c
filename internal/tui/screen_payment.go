package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lightningmodel/lnchat/internal/cli"
	"github.com/lightningmodel/lnchat/internal/payment"
	"github.com/lightningmodel/lnchat/internal/tui/components"
	"github.com/lightningmodel/lnchat/internal/tui/theme"
)

const detailsWidth = 44

func (a App) updatePayment(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ps := a.pay.State()
	switch msg.String() {
	case "esc", "q":
		return a, resetCmd(a.ctx, a.chat, a.pay)
	case "?":
		a.showHelp = true
	case "c", "y":
		if ps.Invoice != nil {
			return a, copyCmd(ps.Invoice.PaymentRequest)
		}
	case "p":
		if ps.Invoice != nil && ps.Outcome == payment.Pending {
			return a, checkNowCmd(a.ctx, a.pay)
		}
	case "r":
		if ps.Loading {
			return a, nil
		}
		if ps.Err != nil || ps.Outcome == payment.Expired || (ps.Invoice != nil && ps.Invoice.Expired(a.now)) {
			st := a.chat.State()
			return a, createInvoiceCmd(a.ctx, a.pay, st.Plan, st.Limit)
		}
	}
	return a, nil
}

func (a App) viewPayment() string {
	t := theme.Active
	cw := a.contentWidth()
	ps := a.pay.State()

	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	errStyle := lipgloss.NewStyle().Foreground(t.Red)

	if ps.Loading || (ps.Invoice == nil && ps.Err == nil) {
		return "\n  " + a.spinner.View() + mutedStyle.Render(" Creating invoice...")
	}
	if ps.Invoice == nil {
		return "\n  " + errStyle.Render("Could not create an invoice: "+ps.Err.Error()) +
			"\n\n  " + mutedStyle.Render("Press r to try again or esc to go back.")
	}

	details := components.ContentCard("Lightning invoice", a.invoiceDetails(ps), detailsWidth)
	qr := components.QRCode(ps.Invoice.PaymentRequest)

	var body string
	if lipgloss.Width(qr)+detailsWidth+2 <= cw {
		body = lipgloss.JoinHorizontal(lipgloss.Top, qr, "  ", details)
	} else {
		body = details + "\n" + qr
	}
	return "\n" + lipgloss.NewStyle().PaddingLeft(1).Render(body)
}

func (a App) invoiceDetails(ps payment.State) string {
	t := theme.Active
	inv := ps.Invoice
	inner := components.CardInnerWidth(detailsWidth)

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)
	satsStyle := lipgloss.NewStyle().Foreground(t.Sats).Bold(true)
	okStyle := lipgloss.NewStyle().Foreground(t.Green).Bold(true)
	errStyle := lipgloss.NewStyle().Foreground(t.Red)

	var b strings.Builder
	b.WriteString(satsStyle.Render(cli.FormatSats(inv.AmountSats)))
	b.WriteString(labelStyle.Render("  " + cli.FormatSatsAsBTC(inv.AmountSats)))
	b.WriteString("\n")
	b.WriteString(valueStyle.Render(inv.Memo))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render(abbreviate(inv.PaymentRequest, inner)))
	b.WriteString("\n\n")

	switch {
	case ps.Outcome == payment.Settled:
		b.WriteString(okStyle.Render("✓ Paid"))
		b.WriteString(labelStyle.Render(" Opening your session..."))
	case ps.Err != nil:
		b.WriteString(errStyle.Render(ps.Err.Error()))
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Press r for a new invoice."))
	default:
		left := inv.ExpiresAt().Sub(a.now)
		b.WriteString(components.CountdownBar("expires", left, inv.Expiry, inner))
		b.WriteString("\n\n")
		b.WriteString(a.spinner.View())
		b.WriteString(labelStyle.Render(" Waiting for payment..."))
	}
	return b.String()
}

// abbreviate shortens s to fit w columns, keeping both ends visible.
func abbreviate(s string, w int) string {
	r := []rune(s)
	if len(r) <= w || w < 8 {
		return s
	}
	tail := w / 3
	head := w - tail - 1
	return string(r[:head]) + "…" + string(r[len(r)-tail:])
}
