package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/lightningmodel/lnchat/internal/cli"
	"github.com/lightningmodel/lnchat/internal/tui/theme"
)

// ColorForRemaining returns green/yellow/orange/red as a quota drains.
func ColorForRemaining(frac float64) string {
	t := theme.Active
	switch {
	case frac <= 0.1:
		return string(t.Red)
	case frac <= 0.25:
		return string(t.Orange)
	case frac <= 0.5:
		return string(t.Yellow)
	default:
		return string(t.Green)
	}
}

func clampFrac(f float64) float64 {
	return min(max(f, 0), 1)
}

// QuotaBar renders "label [bar] remaining/total" for a session allowance.
func QuotaBar(label string, remaining, total int64, width int, format func(int64) string) string {
	t := theme.Active
	if total <= 0 {
		return ""
	}
	frac := clampFrac(float64(remaining) / float64(total))
	counts := fmt.Sprintf("%s/%s", format(max(remaining, 0)), format(total))

	barW := max(width-lipgloss.Width(label)-lipgloss.Width(counts)-2, 4)
	bar := progress.New(
		progress.WithSolidFill(ColorForRemaining(frac)),
		progress.WithWidth(barW),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.TextDim)

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	countStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorForRemaining(frac))).Bold(true)

	return labelStyle.Render(label) + " " + bar.ViewAs(frac) + " " + countStyle.Render(counts)
}

// CountdownBar renders time left out of total, e.g. for invoice expiry or a
// rate-limit wait.
func CountdownBar(label string, left, total time.Duration, width int) string {
	t := theme.Active
	if total <= 0 {
		return ""
	}
	frac := clampFrac(float64(left) / float64(total))
	clock := cli.FormatCountdown(left)

	barW := max(width-lipgloss.Width(label)-lipgloss.Width(clock)-2, 4)
	bar := progress.New(
		progress.WithSolidFill(string(t.Accent)),
		progress.WithWidth(barW),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.TextDim)

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	clockStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Bold(true)

	return labelStyle.Render(label) + " " + bar.ViewAs(frac) + " " + clockStyle.Render(clock)
}
