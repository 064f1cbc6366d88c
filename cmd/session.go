package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lightningmodel/lnchat/internal/cli"
	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or end the open chat session",
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the open session and its remaining quota",
	Args:  cobra.NoArgs,
	RunE:  runSessionStatus,
}

var sessionEndCmd = &cobra.Command{
	Use:     "end",
	Aliases: []string{"terminate"},
	Short:   "Terminate the open session",
	Args:    cobra.NoArgs,
	RunE:    runSessionEnd,
}

var sessionConfigCmd = &cobra.Command{
	Use:   "config <key=value>...",
	Short: "Change settings of the open session, e.g. total_requests_limit=200",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSessionConfig,
}

var sessionHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the transcript of the open session",
	Args:  cobra.NoArgs,
	RunE:  runSessionHistory,
}

func init() {
	sessionCmd.AddCommand(sessionStatusCmd, sessionEndCmd, sessionHistoryCmd, sessionConfigCmd)
	rootCmd.AddCommand(sessionCmd)
}

var errNoSession = errors.New("no open session; buy one with: lnchat buy <token|request> <limit>")

// restore opens the deps and picks up the persisted session.
func restore(ctx context.Context) (*deps, error) {
	d, err := openDeps(false)
	if err != nil {
		return nil, err
	}
	if err := d.chat.Restore(ctx); err != nil {
		d.Close()
		return nil, err
	}
	if d.chat.State().Status == nil {
		d.Close()
		return nil, errNoSession
	}
	return d, nil
}

func runSessionStatus(_ *cobra.Command, _ []string) error {
	d, err := restore(context.Background())
	if err != nil {
		return err
	}
	defer d.Close()

	fmt.Println()
	printSession(d)
	return nil
}

// printSession prints the session summary and quota.
func printSession(d *deps) {
	st := d.chat.State()
	s := st.Status

	state := "active"
	if banner := st.Banner(); banner != "" {
		state = banner
	}
	pairs := []cli.KV{
		{Key: "Plan", Value: string(st.Plan)},
		{Key: "Model", Value: st.SelectedModel},
		{Key: "State", Value: state},
	}
	var bar string
	switch st.Plan {
	case config.PlanRequest:
		pairs = append(pairs,
			cli.KV{Key: "Requests used", Value: cli.FormatNumber(s.RequestCount)},
			cli.KV{Key: "Requests left", Value: cli.FormatRemaining(st.RequestsRemaining)},
		)
		if s.TotalRequestsLimit != nil && st.RequestsRemaining != nil {
			bar = cli.RenderQuotaBar(*st.RequestsRemaining, *s.TotalRequestsLimit, 30)
		}
	case config.PlanToken:
		pairs = append(pairs,
			cli.KV{Key: "Tokens used", Value: cli.FormatTokens(s.TokenCount)},
			cli.KV{Key: "Tokens left", Value: cli.FormatRemaining(st.TokensRemaining)},
		)
		if s.TotalTokenLimit != nil && st.TokensRemaining != nil {
			bar = cli.RenderQuotaBar(*st.TokensRemaining, *s.TotalTokenLimit, 30)
		}
	}
	if s.RateLimitRPM > 0 {
		pairs = append(pairs, cli.KV{Key: "Rate limit", Value: fmt.Sprintf("%d/min, %d/day", s.RateLimitRPM, s.RateLimitRPD)})
	}
	if s.CreatedAt != nil {
		pairs = append(pairs, cli.KV{Key: "Opened", Value: s.CreatedAt.Local().Format("2006-01-02 15:04")})
	}
	if at, err := d.db.UpdatedAt(session.TokenKey); err == nil {
		pairs = append(pairs, cli.KV{Key: "Token saved", Value: at.Local().Format("2006-01-02 15:04")})
	}

	fmt.Print(cli.RenderKV(pairs))
	if bar != "" {
		fmt.Println()
		fmt.Println("  " + bar)
	}
	fmt.Println()
}

func runSessionEnd(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	d, err := restore(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.chat.EndSession(ctx); err != nil {
		return err
	}
	fmt.Println("  Session terminated.")
	return nil
}

func runSessionHistory(_ *cobra.Command, _ []string) error {
	d, err := restore(context.Background())
	if err != nil {
		return err
	}
	defer d.Close()

	msgs := d.chat.State().Messages
	if len(msgs) == 0 {
		fmt.Println("\n  No messages yet.")
		return nil
	}
	fmt.Println()
	for _, m := range msgs {
		fmt.Println(cli.RenderMessage(m.Role, m.Content))
	}
	return nil
}

// parsePatch turns key=value arguments into a config patch. Integers and
// booleans keep their JSON types.
func parsePatch(args []string) (map[string]any, error) {
	patch := make(map[string]any, len(args))
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%q: want key=value", arg)
		}
		switch {
		case val == "true" || val == "false":
			patch[key] = val == "true"
		default:
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				patch[key] = n
			} else {
				patch[key] = val
			}
		}
	}
	return patch, nil
}

func runSessionConfig(_ *cobra.Command, args []string) error {
	patch, err := parsePatch(args)
	if err != nil {
		return err
	}
	ctx := context.Background()
	d, err := restore(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.client.UpdateConfig(ctx, patch); err != nil {
		return err
	}
	if err := d.chat.RefreshStatus(ctx); err != nil {
		d.log.Warn("status refresh after config update failed", "err", err)
	}
	fmt.Println("  Session updated.")
	fmt.Println()
	printSession(d)
	return nil
}
