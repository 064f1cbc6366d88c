// Package components provides reusable TUI widgets for lnchat.
package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lightningmodel/lnchat/internal/tui/theme"
)

// LayoutRow distributes totalWidth into n widths that sum to exactly totalWidth.
// First items absorb the remainder from integer division.
func LayoutRow(totalWidth, n int) []int {
	if n <= 0 {
		return nil
	}
	base := totalWidth / n
	remainder := totalWidth % n
	widths := make([]int, n)
	for i := range widths {
		widths[i] = base
		if i < remainder {
			widths[i]++
		}
	}
	return widths
}

// PlanCard renders one purchasable plan. The selected card gets an accent border.
func PlanCard(name, price, unit string, features []string, selected bool, outerWidth int) string {
	t := theme.Active

	border := t.Border
	if selected {
		border = t.BorderAccent
	}
	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Width(max(outerWidth-2, 10)).
		Padding(0, 1)

	nameStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Bold(true)
	priceStyle := lipgloss.NewStyle().Foreground(t.Yellow).Bold(true)
	unitStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	featureStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	checkStyle := lipgloss.NewStyle().Foreground(t.Green)

	var b strings.Builder
	if selected {
		b.WriteString(lipgloss.NewStyle().Foreground(t.Accent).Render("▸ "))
	}
	b.WriteString(nameStyle.Render(name))
	b.WriteString("\n\n")
	b.WriteString(priceStyle.Render(price))
	b.WriteString(" ")
	b.WriteString(unitStyle.Render(unit))
	b.WriteString("\n")
	for _, f := range features {
		b.WriteString("\n")
		b.WriteString(checkStyle.Render("✓ "))
		b.WriteString(featureStyle.Render(f))
	}

	return cardStyle.Render(b.String())
}

// ContentCard renders a bordered content card with an optional title.
// outerWidth controls the total rendered width including border.
func ContentCard(title, body string, outerWidth int) string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Width(max(outerWidth-2, 10)).
		Padding(0, 1)

	titleStyle := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Bold(true)

	content := ""
	if title != "" {
		content = titleStyle.Render(title) + "\n"
	}
	content += body

	return cardStyle.Render(content)
}

// CardRow joins pre-rendered cards horizontally, padding shorter cards so
// every column has the height of the tallest.
func CardRow(cards []string) string {
	if len(cards) == 0 {
		return ""
	}
	maxH := 0
	for _, c := range cards {
		maxH = max(maxH, lipgloss.Height(c))
	}
	padded := make([]string, len(cards))
	for i, c := range cards {
		if h := lipgloss.Height(c); h < maxH {
			c += strings.Repeat("\n"+strings.Repeat(" ", lipgloss.Width(c)), maxH-h)
		}
		padded[i] = c
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, padded...)
}

// CardInnerWidth returns the usable text width inside a ContentCard
// given its outer width (subtracts border + padding).
func CardInnerWidth(outerWidth int) int {
	return max(outerWidth-4, 10)
}
