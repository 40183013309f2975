// Command sensorserver listens for one sensor client at a time, buffers its
// CSV records in memory and serves them with metrics over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/sensorstream/config"
)

var (
	configPath         string
	portOverride       int
	logLevelOverride   string
	printExampleConfig bool
)

var rootCmd = &cobra.Command{
	Use:          "sensorserver",
	Short:        "receive a CSV sensor stream over TCP",
	Long:         "sensorserver accepts one TCP sensor client at a time and buffers every CSV record it sends until the END line.",
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	flags.IntVar(&portOverride, "port", 0, "TCP port for the sensor stream (overrides config)")
	flags.StringVar(&logLevelOverride, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	flags.BoolVar(&printExampleConfig, "print-example-config", false, "print an example YAML config and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if printExampleConfig {
		_, _ = fmt.Fprint(cmd.OutOrStdout(), config.ExampleYAML())
		return nil
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = portOverride
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevelOverride
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, log)
}
