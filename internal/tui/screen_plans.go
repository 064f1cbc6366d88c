package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lightningmodel/lnchat/internal/cli"
	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/tui/components"
	"github.com/lightningmodel/lnchat/internal/tui/theme"
)

func (a App) updatePlans(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "?":
		a.showHelp = true
	case "left", "h", "shift+tab":
		a.planCursor = (a.planCursor + len(config.Plans) - 1) % len(config.Plans)
	case "right", "l", "tab":
		a.planCursor = (a.planCursor + 1) % len(config.Plans)
	case "enter", " ":
		if err := a.chat.SelectPlan(config.Plans[a.planCursor].Kind); err != nil {
			a.flash = err.Error()
			return a, nil
		}
		cmd := a.openLimitForm()
		return a, cmd
	}
	return a, nil
}

func (a App) viewPlans() string {
	t := theme.Active
	cw := a.contentWidth()
	rates := a.cfg.EffectiveRates()

	titleStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	errStyle := lipgloss.NewStyle().Foreground(t.Red)

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(centerBlock(titleStyle.Render("Choose a plan"), cw))
	b.WriteString("\n")
	b.WriteString(centerBlock(mutedStyle.Render("Pay with Lightning, then chat until your limit is used."), cw))
	b.WriteString("\n\n")

	widths := components.LayoutRow(min(cw, 96), len(config.Plans))
	cards := make([]string, len(config.Plans))
	for i, p := range config.Plans {
		cards[i] = components.PlanCard(p.Name, cli.FormatRate(rates.Rate(p.Kind)), p.Unit, p.Features, i == a.planCursor, widths[i])
	}
	b.WriteString(centerBlock(components.CardRow(cards), cw))

	if msg := a.chat.State().Err; msg != "" {
		b.WriteString("\n\n")
		b.WriteString(centerBlock(errStyle.Render(msg), cw))
	}
	return b.String()
}
