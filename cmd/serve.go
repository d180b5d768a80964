package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/chainproto/internal/daemon"
	"firestige.xyz/chainproto/internal/processor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chainproto daemon in foreground",
	Long: `Run the chainproto daemon process in foreground.

The daemon:
  1. Loads global configuration from the config file
  2. Initializes logging and the metrics server
  3. Starts the HTTP (or Kafka) broadcast connector and the httpapi
     control-plane server
  4. Auto-deploys any chain configs found under chains_dir
  5. Handles signals for graceful shutdown (SIGTERM, SIGINT) and
     config reload (SIGHUP)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	reg := processor.NewRegistry()

	d, err := daemon.New(configFile, reg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Fprintf(os.Stdout, "chainproto daemon started (config=%s)\n", configFile)
	return d.Run()
}
