package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
chainproto:
  node:
    hostname: host-a
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "host-a", cfg.Node.Hostname)
	assert.Equal(t, "host-a", cfg.Node.UID)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "http", cfg.Transport.Connector.Type)
	assert.Equal(t, ":8080", cfg.Transport.Listen)
	assert.Equal(t, 8, cfg.EventBus.PartitionCount)
}

func TestLoad_RejectsInvalidLogLevel(t *testing.T) {
	path := writeConfigFile(t, `
chainproto:
  log:
    level: verbose
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsKafkaConnectorWithoutBrokers(t *testing.T) {
	path := writeConfigFile(t, `
chainproto:
  transport:
    connector:
      type: kafka
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_AcceptsValidKafkaConnector(t *testing.T) {
	path := writeConfigFile(t, `
chainproto:
  transport:
    connector:
      type: kafka
      kafka:
        brokers: ["localhost:9092"]
        topic: chainproto-broadcast
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Transport.Connector.Kafka.Brokers)
}
