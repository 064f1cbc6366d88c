// Package tui provides the interactive Bubble Tea client for lnchat.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/lightningmodel/lnchat/internal/chat"
	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/payment"
	"github.com/lightningmodel/lnchat/internal/tui/components"
	"github.com/lightningmodel/lnchat/internal/tui/theme"
)

// Deps are the long-lived collaborators the App drives.
type Deps struct {
	Chat    *chat.Coordinator
	Payment *payment.Coordinator
	Config  config.Config
	Log     *slog.Logger
}

type screen int

const (
	screenLoading screen = iota
	screenPlans
	screenLimit
	screenPayment
	screenChat
)

// screenFor maps the session phase to the screen that handles it.
func screenFor(p chat.Phase) screen {
	switch p {
	case chat.PhasePlanSelected:
		return screenLimit
	case chat.PhaseAwaitingPayment:
		return screenPayment
	case chat.PhaseActive, chat.PhaseExhausted, chat.PhaseTerminated:
		return screenChat
	default:
		return screenPlans
	}
}

// App is the root Bubble Tea model.
type App struct {
	ctx  context.Context
	chat *chat.Coordinator
	pay  *payment.Coordinator
	cfg  config.Config
	log  *slog.Logger

	restored bool
	now      time.Time

	// UI state
	width    int
	height   int
	showHelp bool
	flash    string // transient notice, cleared on the next key

	planCursor int

	limitForm *huh.Form
	limitVals *limitValues

	spinner    spinner.Model
	transcript viewport.Model
	input      textinput.Model
	rendered   string // last transcript content pushed to the viewport
}

const (
	minTerminalWidth = 60
	maxContentWidth  = 120

	headerHeight    = 2
	chatChromeLines = 8 // quota, notices, input, status bar
)

// NewApp creates the root model. ctx bounds every network call it starts.
func NewApp(ctx context.Context, deps Deps) App {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	in := textinput.New()
	in.Placeholder = "Type a message..."
	in.CharLimit = 8000
	in.Prompt = "› "

	deps.Chat.SelectModel(deps.Config.General.DefaultModel)

	return App{
		ctx:        ctx,
		chat:       deps.Chat,
		pay:        deps.Payment,
		cfg:        deps.Config,
		log:        log,
		now:        time.Now(),
		spinner:    sp,
		transcript: viewport.New(80, 10),
		input:      in,
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		restoreCmd(a.ctx, a.chat),
		a.spinner.Tick,
		tickCmd(),
	)
}

func (a App) screen() screen {
	if !a.restored {
		return screenLoading
	}
	return screenFor(a.chat.State().Phase)
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		if a.limitForm != nil {
			a.limitForm = a.limitForm.WithWidth(a.formWidth())
		}
		return a, nil

	case tickMsg:
		a.now = time.Time(msg)
		if a.chat.ExpireRateLimit(a.now) {
			a.log.Debug("rate limit window over")
		}
		return a, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		a.syncTranscript()
		return a, cmd

	case restoredMsg:
		a.restored = true
		if msg.err != nil {
			a.flash = "Could not restore the previous session: " + msg.err.Error()
		}
		cmd := a.enterScreen()
		return a, cmd

	case invoiceMsg:
		if msg.handle == nil {
			return a, nil
		}
		return a, waitPaymentCmd(msg.handle)

	case paymentMsg:
		return a.handlePayment(msg.res)

	case configuredMsg:
		if msg.err == nil {
			a.pay.ResetPayment()
		}
		a.syncTranscript()
		cmd := a.enterScreen()
		return a, cmd

	case chatMsg:
		a.syncTranscript()
		cmd := a.enterScreen()
		return a, cmd

	case copiedMsg:
		if msg.err != nil {
			a.flash = "Copy failed: " + msg.err.Error()
		} else {
			a.flash = "Invoice copied to clipboard"
		}
		return a, nil

	case checkedMsg:
		switch {
		case msg.err != nil:
			a.flash = "Status check failed: " + msg.err.Error()
		case msg.paid:
			a.flash = "Payment found, opening session..."
			return a, configureCmd(a.ctx, a.chat, a.chat.State().Limit)
		default:
			a.flash = "Not paid yet"
		}
		return a, nil

	case tea.KeyMsg:
		key := msg.String()

		// Global: quit
		if key == "ctrl+c" {
			return a, tea.Quit
		}
		if !a.restored {
			return a, nil
		}

		if a.showHelp {
			a.showHelp = false
			return a, nil
		}

		a.flash = ""
		switch a.screen() {
		case screenPlans:
			return a.updatePlans(msg)
		case screenLimit:
			return a.updateLimit(msg)
		case screenPayment:
			return a.updatePayment(msg)
		case screenChat:
			return a.updateChat(msg)
		}
		return a, nil
	}

	// Forward unhandled messages to the active widget (cursor blinks, etc.)
	switch a.screen() {
	case screenLimit:
		if a.limitForm != nil {
			return a.updateLimitForm(msg)
		}
	case screenChat:
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd
	}
	return a, nil
}

// enterScreen prepares the widgets of whatever screen the phase now maps to.
func (a *App) enterScreen() tea.Cmd {
	switch a.screen() {
	case screenLimit:
		if a.limitForm == nil {
			return a.openLimitForm()
		}
	case screenChat:
		a.limitForm = nil
		a.syncTranscript()
		a.transcript.GotoBottom()
		return a.input.Focus()
	case screenPlans:
		a.limitForm = nil
		a.input.Blur()
	}
	return nil
}

func (a App) handlePayment(res payment.Result) (tea.Model, tea.Cmd) {
	switch res.Outcome {
	case payment.Settled:
		st := a.chat.State()
		a.log.Info("payment settled", "plan", st.Plan, "limit", st.Limit, "checks", res.Checks)
		return a, configureCmd(a.ctx, a.chat, st.Limit)
	case payment.Cancelled:
		return a, nil
	default:
		a.log.Warn("payment not completed", "outcome", res.Outcome, "err", res.Err)
		return a, nil
	}
}

func (a App) contentWidth() int {
	return min(a.width, maxContentWidth)
}

func (a *App) resize() {
	cw := a.contentWidth()
	a.transcript.Width = cw
	a.transcript.Height = max(a.height-headerHeight-chatChromeLines, 3)
	a.input.Width = max(cw-4, 10)
	a.rendered = ""
	a.syncTranscript()
}

// syncTranscript pushes the transcript into the viewport when it changed,
// following the bottom if the user was already there.
func (a *App) syncTranscript() {
	content := renderTranscript(a.chat.State(), a.contentWidth(), a.spinner.View())
	if content == a.rendered {
		return
	}
	follow := a.transcript.AtBottom() || a.rendered == ""
	a.rendered = content
	a.transcript.SetContent(content)
	if follow {
		a.transcript.GotoBottom()
	}
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return a.viewTooNarrow()
	}
	if a.showHelp {
		return a.viewHelp()
	}

	var body string
	switch a.screen() {
	case screenLoading:
		return a.viewLoading()
	case screenPlans:
		body = a.viewPlans()
	case screenLimit:
		body = a.viewLimit()
	case screenPayment:
		body = a.viewPayment()
	case screenChat:
		body = a.viewChat()
	}

	t := theme.Active
	out := a.viewHeader() + "\n" + body
	h := max(a.height-1, 1)
	out = padHeight(truncateHeight(out, h), h)
	out = fillLinesWithBackground(out, a.width, t.Background)
	return out + "\n" + components.RenderStatusBar(a.width, a.hints(), a.statusInfo())
}

func (a App) viewHeader() string {
	t := theme.Active
	st := a.chat.State()

	logo := lipgloss.NewStyle().Foreground(t.Accent).Bold(true).Render("⚡ lnchat")
	model := lipgloss.NewStyle().Foreground(t.TextMuted).Render(" · " + st.SelectedModel)
	phase := lipgloss.NewStyle().Foreground(t.TextDim).Render(st.Phase.String())

	left := logo + model
	gap := max(a.width-lipgloss.Width(left)-lipgloss.Width(phase)-2, 1)
	return " " + left + strings.Repeat(" ", gap) + phase + " "
}

func (a App) hints() string {
	switch a.screen() {
	case screenPlans:
		return "[←→] choose  [enter] select  [?] help  [q]uit"
	case screenLimit:
		return "[enter] confirm  [esc] back  [ctrl+c] quit"
	case screenPayment:
		return "[c]opy invoice  [p] check now  [r] new invoice  [esc] cancel"
	case screenChat:
		if a.chat.State().Phase.Terminal() {
			return "[n] new session  [ctrl+c] quit"
		}
		return "[enter] send  [^r] retry  [^s] refresh  [^e] end  [^n] new  [pgup/pgdn] scroll"
	}
	return ""
}

func (a App) statusInfo() string {
	if a.flash != "" {
		return a.flash
	}
	st := a.chat.State()
	if st.Phase != chat.PhaseActive {
		return ""
	}
	return fmt.Sprintf("%d calls", st.TotalCalls)
}

func (a App) viewTooNarrow() string {
	h := max(a.height, 5)
	msg := fmt.Sprintf(
		"\n  Terminal too narrow (%d cols)\n\n  lnchat needs at least %d columns.\n",
		a.width,
		minTerminalWidth,
	)
	return padHeight(truncateHeight(msg, h), h)
}

func (a App) viewLoading() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(2, 4)

	logoStyle := lipgloss.NewStyle().
		Foreground(t.Accent).
		Background(t.Surface).
		Bold(true)

	subtitleStyle := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Background(t.Surface)

	var b strings.Builder
	b.WriteString(logoStyle.Render("⚡ lnchat"))
	b.WriteString(subtitleStyle.Render(" · Lightning-paid chat"))
	b.WriteString("\n\n")
	b.WriteString(a.spinner.View())
	b.WriteString(subtitleStyle.Render(" Checking for an open session..."))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewHelp() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(1, 3)

	titleStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	sectionStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	keyStyle := lipgloss.NewStyle().Foreground(t.Yellow).Background(t.Surface).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)

	sections := []struct {
		name     string
		bindings []struct{ key, desc string }
	}{
		{"Plans", []struct{ key, desc string }{
			{"← →", "Choose a plan"},
			{"Enter", "Select plan and set a limit"},
		}},
		{"Payment", []struct{ key, desc string }{
			{"c", "Copy the invoice"},
			{"p", "Check payment now"},
			{"r", "New invoice after expiry or error"},
			{"Esc", "Cancel and go back"},
		}},
		{"Chat", []struct{ key, desc string }{
			{"Enter", "Send message"},
			{"^r", "Retry the last message"},
			{"^s", "Refresh remaining quota"},
			{"^e", "End the session"},
			{"^n", "Start over with a new plan"},
			{"PgUp PgDn", "Scroll transcript"},
		}},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("⚡ Keyboard Shortcuts"))
	b.WriteString("\n\n")
	for _, s := range sections {
		b.WriteString(sectionStyle.Render(s.name))
		b.WriteString("\n")
		for _, bind := range s.bindings {
			fmt.Fprintf(&b, "  %s  %s\n",
				keyStyle.Render(fmt.Sprintf("%-10s", bind.key)),
				descStyle.Render(bind.desc))
		}
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("Press any key to close"))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func truncateHeight(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:limit], "\n")
}

func padHeight(s string, h int) string {
	lines := strings.Split(s, "\n")
	if len(lines) >= h {
		return s
	}
	return s + strings.Repeat("\n", h-len(lines))
}

// fillLinesWithBackground pads each line to width w with background color.
func fillLinesWithBackground(s string, w int, bg lipgloss.Color) string {
	lines := strings.Split(s, "\n")

	var result strings.Builder
	for i, line := range lines {
		placed := lipgloss.PlaceHorizontal(w, lipgloss.Left, line,
			lipgloss.WithWhitespaceBackground(bg))
		result.WriteString(placed)
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}

// centerBlock horizontally centers a rendered block within width w.
func centerBlock(s string, w int) string {
	return lipgloss.PlaceHorizontal(w, lipgloss.Center, s)
}
