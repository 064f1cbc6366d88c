package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/lightningmodel/lnchat/internal/api"
	"github.com/lightningmodel/lnchat/internal/cli"
	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/session"
	"github.com/lightningmodel/lnchat/internal/store"
)

var flagCheck bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&flagCheck, "check", false, "Probe the chat service health endpoint")
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := config.Path()
	if flagConfig != "" {
		path = flagConfig
	}
	fmt.Printf("  Config file: %s\n", path)
	if config.Exists() || flagConfig != "" {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	rates := cfg.EffectiveRates()
	fmt.Println("  [General]")
	fmt.Print(cli.RenderKV([]cli.KV{
		{Key: "Model", Value: cfg.General.DefaultModel},
		{Key: "Request limit", Value: cli.FormatNumber(cfg.DefaultLimit(config.PlanRequest))},
		{Key: "Token limit", Value: cli.FormatNumber(cfg.DefaultLimit(config.PlanToken))},
		{Key: "State db", Value: config.StatePath(cfg)},
	}))
	fmt.Println()

	fmt.Println("  [API]")
	fmt.Print(cli.RenderKV([]cli.KV{
		{Key: "Base URL", Value: cfg.API.BaseURL},
		{Key: "Timeout", Value: cli.FormatDuration(int64(cfg.API.TimeoutSeconds))},
	}))
	fmt.Println()

	fmt.Println("  [Invoice]")
	inv := []cli.KV{
		{Key: "Mode", Value: cfg.Invoice.Mode},
		{Key: "Expiry", Value: cli.FormatDuration(int64(cfg.Invoice.ExpirySeconds))},
		{Key: "Minimum", Value: cli.FormatSats(cfg.Invoice.MinAmountSats)},
		{Key: "Poll", Value: fmt.Sprintf("every %s, give up after %s",
			cfg.Invoice.PollInterval(), cfg.Invoice.PollTimeout())},
		{Key: "On poll error", Value: cfg.Invoice.PollErrorPolicy},
	}
	if cfg.Invoice.Mode != config.InvoiceModeDev {
		inv = append(inv,
			cli.KV{Key: "REST host", Value: cfg.Invoice.RESTHost},
			cli.KV{Key: "Macaroon", Value: maskSecret(cfg.Invoice.Macaroon)},
		)
	}
	fmt.Print(cli.RenderKV(inv))
	fmt.Println()

	fmt.Println("  [Pricing]")
	fmt.Print(cli.RenderKV([]cli.KV{
		{Key: "Per token", Value: cli.FormatRate(rates.TokenBTC)},
		{Key: "Per request", Value: cli.FormatRate(rates.RequestBTC)},
	}))
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	if flagCheck {
		checkHealth(cfg)
	}

	fmt.Println("  Run `lnchat setup` to reconfigure.")
	return nil
}

// checkHealth probes /health without touching the persisted session.
func checkHealth(cfg config.Config) {
	client := api.NewClient(cfg.API.BaseURL, session.NewStore(store.NewMemory()),
		api.WithTimeout(5*time.Second))
	h, err := client.Health(context.Background())
	fmt.Println("  [Service]")
	if err != nil {
		fmt.Println("    " + cli.RenderError(err.Error()))
		fmt.Println()
		return
	}
	pairs := []cli.KV{{Key: "Status", Value: h.Status}}
	names := make([]string, 0, len(h.Services))
	for name := range h.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pairs = append(pairs, cli.KV{Key: name, Value: h.Services[name]})
	}
	fmt.Print(cli.RenderKV(pairs))
	fmt.Println()
}

func maskSecret(s string) string {
	if s == "" {
		return "not configured"
	}
	if len(s) <= 12 {
		return "****"
	}
	return s[:6] + "..." + s[len(s)-4:]
}
