package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lightningmodel/lnchat/internal/cli"
	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/lnd"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List plans, rates and preset prices",
	Args:  cobra.NoArgs,
	RunE:  runPlans,
}

var priceCmd = &cobra.Command{
	Use:   "price <token|request> <limit>",
	Short: "Show what a limit costs in sats",
	Args:  cobra.ExactArgs(2),
	RunE:  runPrice,
}

func init() {
	rootCmd.AddCommand(plansCmd, priceCmd)
}

func runPlans(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rates := cfg.EffectiveRates()

	fmt.Println()
	fmt.Println(cli.RenderTitle("LNCHAT PLANS  " + cfg.General.DefaultModel))
	fmt.Println()

	for _, p := range config.Plans {
		rows := make([][]string, 0, len(config.Presets(p.Kind)))
		for _, limit := range config.Presets(p.Kind) {
			sats, err := lnd.CalculatePaymentAmount(p.Kind, limit, rates)
			if err != nil {
				return err
			}
			rows = append(rows, []string{
				cli.FormatNumber(limit) + " " + p.Kind.Unit(),
				cli.FormatSats(sats),
				cli.FormatSatsAsBTC(sats),
			})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   fmt.Sprintf("%s  %s %s", p.Name, cli.FormatRate(rates.Rate(p.Kind)), p.Unit),
			Headers: []string{"Limit", "Price", "BTC"},
			Rows:    rows,
		}))
		fmt.Println()
	}
	return nil
}

// parsePurchase reads the <plan> <limit> argument pair.
func parsePurchase(args []string) (config.PlanKind, int64, error) {
	plan, err := config.ParsePlanKind(args[0])
	if err != nil {
		return "", 0, err
	}
	limit, err := strconv.ParseInt(strings.ReplaceAll(args[1], ",", ""), 10, 64)
	if err != nil || limit <= 0 {
		return "", 0, fmt.Errorf("limit %q: want a positive whole number", args[1])
	}
	return plan, limit, nil
}

func runPrice(_ *cobra.Command, args []string) error {
	plan, limit, err := parsePurchase(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sats, err := lnd.CalculatePaymentAmount(plan, limit, cfg.EffectiveRates())
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(cli.RenderKV([]cli.KV{
		{Key: "Plan", Value: plan.Unit()},
		{Key: "Limit", Value: cli.FormatNumber(limit)},
		{Key: "Rate", Value: cli.FormatRate(cfg.EffectiveRates().Rate(plan))},
		{Key: "Price", Value: cli.RenderSats(sats) + "  " + cli.FormatSatsAsBTC(sats)},
	}))
	fmt.Println()
	return nil
}
