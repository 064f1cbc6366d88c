package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/tui"
	"github.com/lightningmodel/lnchat/internal/tui/theme"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Launch the interactive chat (default)",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(_ *cobra.Command, _ []string) error {
	if flagConfig == "" && !config.Exists() {
		fmt.Println("  No config found, running first-time setup.")
		if err := runSetup(nil, nil); err != nil {
			return err
		}
	}

	d, err := openDeps(true)
	if err != nil {
		return err
	}
	defer d.Close()

	theme.SetActive(d.cfg.Appearance.Theme)

	// Force TrueColor profile so all background styling produces ANSI codes
	lipgloss.SetColorProfile(termenv.TrueColor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := tui.NewApp(ctx, tui.Deps{
		Chat:    d.chat,
		Payment: d.payment,
		Config:  d.cfg,
		Log:     d.log.With("component", "tui"),
	})
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
