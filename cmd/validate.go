package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/chainproto/internal/config"
)

var validateConfigFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a chain configuration file",
	Long: `Validate a chain configuration file (JSON or YAML) without deploying it.

File format is auto-detected from extension (.json, .yaml, .yml).

Examples:
  chainprotoctl validate -f chain.json
  chainprotoctl validate -f chain.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate()
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "file", "f", "",
		"chain configuration file to validate (required)")
	validateCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(validateCmd)
}

func runValidate() error {
	data, err := os.ReadFile(validateConfigFile)
	if err != nil {
		exitWithError(fmt.Sprintf("failed to read file %s", validateConfigFile), err)
	}

	chain, err := config.ParseChainConfigAuto(data, validateConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("VALID: chain %q — %d node(s)\n", chain[0].ChainID, len(chain))
	return nil
}
