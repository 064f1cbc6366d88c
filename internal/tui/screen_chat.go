package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lightningmodel/lnchat/internal/api"
	"github.com/lightningmodel/lnchat/internal/chat"
	"github.com/lightningmodel/lnchat/internal/cli"
	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/tui/components"
	"github.com/lightningmodel/lnchat/internal/tui/theme"
)

func (a App) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := a.chat.State()
	key := msg.String()

	if st.Phase.Terminal() {
		switch key {
		case "n", "enter", "ctrl+n":
			return a, resetCmd(a.ctx, a.chat, a.pay)
		case "q":
			return a, tea.Quit
		}
		return a.scrollTranscript(msg)
	}

	switch key {
	case "ctrl+n":
		return a, resetCmd(a.ctx, a.chat, a.pay)
	case "ctrl+e":
		return a, endSessionCmd(a.ctx, a.chat)
	case "ctrl+s":
		return a, refreshCmd(a.ctx, a.chat)
	case "ctrl+r":
		if _, ok := st.LastUserMessage(); ok && st.Err != "" {
			return a, retryCmd(a.ctx, a.chat)
		}
		return a, nil
	case "esc":
		a.chat.ClearError()
		return a, nil
	case "pgup", "pgdown", "up", "down":
		return a.scrollTranscript(msg)
	case "enter":
		text := a.input.Value()
		if strings.TrimSpace(text) == "" {
			return a, nil
		}
		if !st.CanSend() {
			if st.Loading {
				a.flash = "Waiting for the previous reply"
			}
			return a, nil
		}
		a.input.Reset()
		return a, sendCmd(a.ctx, a.chat, text)
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a App) scrollTranscript(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	a.transcript, cmd = a.transcript.Update(msg)
	return a, cmd
}

func (a App) viewChat() string {
	t := theme.Active
	cw := a.contentWidth()
	st := a.chat.State()

	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim)
	warnStyle := lipgloss.NewStyle().Foreground(t.Orange)
	errStyle := lipgloss.NewStyle().Foreground(t.Red)
	bannerStyle := lipgloss.NewStyle().Foreground(t.Yellow).Bold(true)

	var b strings.Builder
	b.WriteString(quotaLine(st, cw))
	b.WriteString("\n")
	b.WriteString(a.transcript.View())
	b.WriteString("\n")

	switch {
	case st.Phase.Terminal():
		b.WriteString(bannerStyle.Render(" " + st.Banner()))
		b.WriteString(mutedStyle.Render("  Press n to choose a new plan."))
	case st.RateLimit.Limited:
		left := st.RateLimit.Remaining(a.now)
		b.WriteString(warnStyle.Render(" " + st.Err))
		b.WriteString("\n")
		b.WriteString(components.CountdownBar(" retry in", left, st.RateLimit.RetryAfter, cw-1))
	case st.Err != "":
		b.WriteString(errStyle.Render(" " + st.Err))
		if _, ok := st.LastUserMessage(); ok {
			b.WriteString(mutedStyle.Render("  ctrl+r to retry"))
		}
	}
	b.WriteString("\n")

	if !st.Phase.Terminal() {
		b.WriteString(a.input.View())
		if st.Plan == config.PlanToken && a.input.Value() != "" {
			b.WriteString("\n")
			b.WriteString(dimStyle.Render(fmt.Sprintf("  ~%d tokens", chat.EstimateTokens(a.input.Value()))))
		}
	}
	return b.String()
}

// quotaLine shows what is left of the session allowance.
func quotaLine(st chat.State, w int) string {
	if st.Status == nil {
		return ""
	}
	switch st.Plan {
	case config.PlanRequest:
		total := st.Limit
		if st.Status.TotalRequestsLimit != nil {
			total = *st.Status.TotalRequestsLimit
		}
		if st.RequestsRemaining == nil || total <= 0 {
			return ""
		}
		return " " + components.QuotaBar("requests", *st.RequestsRemaining, total, w-1, cli.FormatNumber)
	case config.PlanToken:
		total := st.Limit
		if st.Status.TotalTokenLimit != nil {
			total = *st.Status.TotalTokenLimit
		}
		if st.TokensRemaining == nil || total <= 0 {
			return ""
		}
		return " " + components.QuotaBar("tokens", *st.TokensRemaining, total, w-1, cli.FormatTokens)
	}
	return ""
}

// renderTranscript lays out the conversation for the viewport.
func renderTranscript(st chat.State, w int, spin string) string {
	t := theme.Active

	userStyle := lipgloss.NewStyle().Foreground(t.User).Bold(true)
	assistantStyle := lipgloss.NewStyle().Foreground(t.Assistant).Bold(true)
	bodyStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Width(max(w-4, 10)).PaddingLeft(2)
	metaStyle := lipgloss.NewStyle().Foreground(t.TextDim)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted)

	if len(st.Messages) == 0 && !st.Loading {
		return mutedStyle.Render(" Say hello to " + st.SelectedModel + ".")
	}

	name := st.SelectedModel
	if name == "" {
		name = "Assistant"
	}

	var b strings.Builder
	for i, m := range st.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		if m.Role == api.RoleUser {
			b.WriteString(" " + userStyle.Render("You"))
		} else {
			b.WriteString(" " + assistantStyle.Render(name))
			if m.TokenCount != nil {
				b.WriteString(metaStyle.Render(fmt.Sprintf("  %s tokens", cli.FormatTokens(*m.TokenCount))))
			}
		}
		b.WriteString("\n")
		b.WriteString(bodyStyle.Render(m.Content))
		b.WriteString("\n")
	}
	if st.Loading {
		b.WriteString("\n " + assistantStyle.Render(name) + "\n  " + spin + mutedStyle.Render(" thinking..."))
	}
	return b.String()
}
