// Package cmd implements CLI commands using the cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	apiAddr    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "chainprotoctl",
	Short: "chainproto - distributed chain orchestrator control plane",
	Long: `chainprotoctl controls a chainproto daemon: a per-host supervisor that
deploys and runs data-processing chains across a fleet, distributing
chain stages to remote hosts over HTTP or Kafka and reporting node
status back to a monitoring agent.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and parses flags.
// Called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/chainproto/config.yml",
		"daemon config file path (serve)")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:8080",
		"chainproto daemon HTTP API base address (deploy, status)")
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
