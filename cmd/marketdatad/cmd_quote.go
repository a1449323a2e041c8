package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leonwooster/StockPlatform1-sub001/internal/logging"
)

var quoteTimeout time.Duration

var quoteCmd = &cobra.Command{
	Use:   "quote <SYMBOL>",
	Short: "Fetch a single quote through the facade for local debugging",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuote,
}

func init() {
	quoteCmd.Flags().DurationVar(&quoteTimeout, "timeout", 10*time.Second, "request deadline propagated to the facade call")
}

func runQuote(cmd *cobra.Command, args []string) error {
	logging.New(logLevel, logPretty)

	c, err := buildCore(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), quoteTimeout)
	defer cancel()

	q, err := c.facade.Quote(ctx, args[0])
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
