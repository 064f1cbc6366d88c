package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lightningmodel/lnchat/internal/api"
	"github.com/lightningmodel/lnchat/internal/cli"
	"github.com/lightningmodel/lnchat/internal/config"
)

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message in the open session and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(_ *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return errors.New("message is empty")
	}

	ctx := context.Background()
	d, err := restore(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.chat.SendMessage(ctx, text); err != nil {
		st := d.chat.State()
		if st.Err != "" {
			fmt.Println(cli.RenderError(st.Err))
		}
		var rl *api.RateLimitError
		if errors.As(err, &rl) {
			fmt.Printf("  Try again in %s.\n", cli.FormatCountdown(st.RateLimit.RetryAfter))
		}
		return err
	}

	st := d.chat.State()
	if n := len(st.Messages); n > 0 && st.Messages[n-1].Role == api.RoleAssistant {
		fmt.Println()
		fmt.Println(cli.RenderMessage(api.RoleAssistant, st.Messages[n-1].Content))
	}

	switch st.Plan {
	case config.PlanRequest:
		fmt.Printf("  %s requests left\n", cli.FormatRemaining(st.RequestsRemaining))
	case config.PlanToken:
		fmt.Printf("  %s tokens left\n", cli.FormatRemaining(st.TokensRemaining))
	}
	if banner := st.Banner(); banner != "" {
		fmt.Println(cli.RenderWarning(banner))
	}
	return nil
}
