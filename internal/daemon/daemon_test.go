package daemon

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"firestige.xyz/chainproto/internal/model"
	"firestige.xyz/chainproto/internal/processor"
)

func writeDaemonConfig(t *testing.T, tmpDir string) string {
	t.Helper()
	configPath := filepath.Join(tmpDir, "config.yml")
	configContent := `
chainproto:
  node:
    hostname: test-daemon-001
  control:
    pid_file: ` + filepath.Join(tmpDir, "chainprotod.pid") + `
  transport:
    listen: 127.0.0.1:18180
  log:
    level: debug
    format: text
  metrics:
    enabled: false
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configPath
}

func TestDaemon_StartStopIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeDaemonConfig(t, tmpDir)

	reg := processor.NewRegistry()
	reg.Register("svc-a", func(ctx context.Context, p processor.Payload) (model.Data, error) {
		return p.Data, nil
	})

	d, err := New(configPath, reg)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	if err := d.Start(); err != nil {
		t.Fatalf("failed to start daemon: %v", err)
	}

	pidFile := filepath.Join(tmpDir, "chainprotod.pid")
	if _, err := os.Stat(pidFile); os.IsNotExist(err) {
		t.Errorf("PID file was not created: %s", pidFile)
	}

	time.Sleep(100 * time.Millisecond)
	resp, err := http.Get("http://127.0.0.1:18180/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected healthz 200, got %d", resp.StatusCode)
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- d.Run()
	}()

	time.Sleep(100 * time.Millisecond)
	d.TriggerShutdown()

	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("daemon.Run() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop within timeout")
	}

	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Errorf("PID file was not removed after shutdown: %s", pidFile)
	}
}
