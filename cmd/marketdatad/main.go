package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logPretty  bool
)

// rootCmd is the base command for the market-data access layer's CLI
// entry point: a background "serve" process and a one-shot "quote" debug
// command, per SPEC_FULL.md §10's CLI section.
var rootCmd = &cobra.Command{
	Use:   "marketdatad",
	Short: "Resilient multi-provider market-data access layer",
	Long: `marketdatad fronts two or more external quote/fundamentals providers
behind a single facade: cache-aside orchestration, rate limiting, health
monitoring, cost tracking, and selection-strategy-driven fallback.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("marketdatad - run 'marketdatad serve' to start the health monitor and metrics listener")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/marketdata.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", true, "use human-readable console logging instead of JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(quoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
