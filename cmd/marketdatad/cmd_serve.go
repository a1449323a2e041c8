package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leonwooster/StockPlatform1-sub001/internal/logging"
)

var metricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the health monitor loop and the Prometheus metrics listener",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address for the Prometheus metrics HTTP listener")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.New(logLevel, logPretty)

	c, err := buildCore(configPath)
	if err != nil {
		return err
	}

	c.monitor.Start()
	defer c.monitor.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.metrics.Handler())
	server := &http.Server{Addr: metricsAddr, Handler: mux}

	go func() {
		logger.Info().Str("addr", metricsAddr).Msg("metrics listener starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics listener stopped unexpectedly")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
