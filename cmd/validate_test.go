package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunValidate_ValidChain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.json")
	content := `[{"chainId":"chain-1","index":0,"location":"local","services":["svc-a"]}]`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write chain config: %v", err)
	}

	validateConfigFile = path
	if err := runValidate(); err != nil {
		t.Fatalf("runValidate: %v", err)
	}
}

func TestRootCmd_HasExpectedSubcommands(t *testing.T) {
	want := map[string]bool{"serve": false, "deploy": false, "status": false, "validate": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}
