package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/chainproto/internal/config"
	"firestige.xyz/chainproto/internal/model"
)

var deployFile string

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy and start a chain from a config file",
	Long: `Deploy and start a chain against a running chainproto daemon.

Reads a chain config file (JSON or YAML, auto-detected from extension),
then calls the daemon's /chain/create-and-start endpoint to create,
deploy, and start it in one request.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeploy(cmd.Context())
	},
}

func init() {
	deployCmd.Flags().StringVarP(&deployFile, "file", "f", "", "chain config file (required)")
	deployCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(deployCmd)
}

type deployRequest struct {
	Chain model.ChainConfig `json:"chain"`
	Data  model.Data        `json:"data"`
}

func runDeploy(ctx context.Context) error {
	chain, err := config.LoadChainConfigFile(deployFile)
	if err != nil {
		exitWithError("failed to load chain config", err)
	}

	body, err := json.Marshal(deployRequest{Chain: chain, Data: model.Data{Origin: "cli-deploy"}})
	if err != nil {
		exitWithError("failed to marshal request", err)
	}

	httpCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(httpCtx, http.MethodPost, apiAddr+"/chain/create-and-start", bytes.NewReader(body))
	if err != nil {
		exitWithError("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		exitWithError("failed to reach daemon", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		exitWithError(fmt.Sprintf("daemon returned %d", resp.StatusCode), fmt.Errorf("%s", respBody))
	}

	fmt.Printf("chain deployed: %s\n", respBody)
	return nil
}
