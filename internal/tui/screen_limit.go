package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/lightningmodel/lnchat/internal/cli"
	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/tui/theme"
)

// customLimit is the select value that reveals the free-form input.
const customLimit int64 = 0

// limitValues backs the limit form. It is shared by pointer because huh
// writes through the bound fields.
type limitValues struct {
	plan   config.PlanKind
	preset int64
	custom string
}

func parseLimit(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, errors.New("enter a number")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.New("enter a whole number")
	}
	if n <= 0 {
		return 0, errors.New("limit must be greater than 0")
	}
	return n, nil
}

// limit is the chosen limit: the preset, or the parsed custom value.
func (v *limitValues) limit() (int64, error) {
	if v.preset != customLimit {
		return v.preset, nil
	}
	return parseLimit(v.custom)
}

func newLimitForm(v *limitValues) *huh.Form {
	unit := v.plan.Unit()
	presets := config.Presets(v.plan)
	opts := make([]huh.Option[int64], 0, len(presets)+1)
	for _, p := range presets {
		opts = append(opts, huh.NewOption(cli.FormatNumber(p)+" "+unit, p))
	}
	opts = append(opts, huh.NewOption("Custom amount", customLimit))

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int64]().
				Title(fmt.Sprintf("How many %s?", unit)).
				Options(opts...).
				Value(&v.preset),
		),
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("Custom %s limit", strings.TrimSuffix(unit, "s"))).
				Placeholder("e.g. 250").
				Value(&v.custom).
				Validate(func(s string) error {
					_, err := parseLimit(s)
					return err
				}),
		).WithHideFunc(func() bool { return v.preset != customLimit }),
	).WithShowHelp(false).WithTheme(huh.ThemeCharm())
}

func (a *App) openLimitForm() tea.Cmd {
	plan := a.chat.State().Plan
	a.limitVals = &limitValues{plan: plan, preset: a.cfg.DefaultLimit(plan)}
	a.limitForm = newLimitForm(a.limitVals).WithWidth(a.formWidth())
	return a.limitForm.Init()
}

func (a App) formWidth() int {
	return min(max(a.contentWidth()-8, 30), 60)
}

func (a App) updateLimit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		a.limitForm = nil
		return a, resetCmd(a.ctx, a.chat, a.pay)
	}
	if a.limitForm == nil {
		cmd := a.openLimitForm()
		return a, cmd
	}
	return a.updateLimitForm(msg)
}

func (a App) updateLimitForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.limitForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.limitForm = f
	}

	switch a.limitForm.State {
	case huh.StateCompleted:
		a.limitForm = nil
		limit, err := a.limitVals.limit()
		if err != nil {
			a.flash = err.Error()
			cmd = a.openLimitForm()
			return a, cmd
		}
		if err := a.chat.BeginPayment(limit); err != nil {
			a.flash = err.Error()
			cmd = a.openLimitForm()
			return a, cmd
		}
		return a, createInvoiceCmd(a.ctx, a.pay, a.limitVals.plan, limit)

	case huh.StateAborted:
		a.limitForm = nil
		return a, resetCmd(a.ctx, a.chat, a.pay)
	}

	return a, cmd
}

func (a App) viewLimit() string {
	t := theme.Active
	cw := a.contentWidth()

	titleStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	satsStyle := lipgloss.NewStyle().Foreground(t.Sats).Bold(true)

	plan := a.chat.State().Plan
	p, _ := config.PlanFor(plan)
	rate := a.cfg.EffectiveRates().Rate(plan)

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  " + p.Name))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %s %s", cli.FormatRate(rate), p.Unit)))
	b.WriteString("\n\n")

	if a.limitForm != nil {
		b.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(a.limitForm.View()))
		b.WriteString("\n")
	}

	if a.limitVals != nil {
		if limit, err := a.limitVals.limit(); err == nil {
			if sats, err := a.pay.Quote(plan, limit); err == nil {
				b.WriteString("\n  ")
				b.WriteString(mutedStyle.Render("Total: "))
				b.WriteString(satsStyle.Render(cli.FormatSats(sats)))
				b.WriteString(mutedStyle.Render(" (" + cli.FormatSatsAsBTC(sats) + ")"))
			}
		}
	}
	return lipgloss.NewStyle().Width(cw).Render(b.String())
}
