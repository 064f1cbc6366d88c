// Package cmd implements the lnchat CLI commands.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagAPIURL  string
	flagStateDB string
	flagDev     bool
	flagQuiet   bool
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "lnchat",
	Short: "Pay-per-use AI chat, paid with Lightning",
	Long: "Buy a metered chat session with a Lightning invoice, then chat until the\n" +
		"request or token limit you paid for is used up.",
	SilenceUsage: true,
	RunE:         runChat,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default "+"$XDG_CONFIG_HOME/lnchat/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "Chat service base URL, e.g. http://localhost:8000/api/v1")
	rootCmd.PersistentFlags().StringVar(&flagStateDB, "state-db", "", "Path of the local state database")
	rootCmd.PersistentFlags().BoolVar(&flagDev, "dev", false, "Use mock invoices that settle immediately")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Only log errors")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug detail")
}
