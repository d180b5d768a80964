package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <chain-id>",
	Short: "Show a chain's per-node status summary",
	Long: `Query a running chainproto daemon's Monitoring Agent for the last
known status of every node reported for a chain.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(ctx context.Context, chainID string) error {
	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(httpCtx, http.MethodGet, apiAddr+"/chain/status?chainId="+chainID, nil)
	if err != nil {
		exitWithError("failed to build request", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		exitWithError("failed to reach daemon", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		exitWithError(fmt.Sprintf("daemon returned %d", resp.StatusCode), fmt.Errorf("%s", body))
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
	return nil
}
