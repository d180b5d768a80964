// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// GlobalConfig is the top-level static configuration for one supervisor
// host. Maps to the `chainproto:` root key in YAML.
type GlobalConfig struct {
	Node       NodeConfig       `mapstructure:"node"`
	Control    ControlConfig    `mapstructure:"control"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	EventBus   EventBusConfig   `mapstructure:"event_bus"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
	DataDir    string           `mapstructure:"data_dir"`
	ChainsDir  string           `mapstructure:"chains_dir"` // directory of chain configs to load at startup
}

// ─── Node Identity ───

// NodeConfig contains this host's supervisor identity.
type NodeConfig struct {
	UID      string            `mapstructure:"uid"`      // empty = derived from hostname
	IP       string            `mapstructure:"ip"`       // empty = auto-detect
	Hostname string            `mapstructure:"hostname"` // empty = os.Hostname()
	Tags     map[string]string `mapstructure:"tags"`
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings for the daemon.
type ControlConfig struct {
	PIDFile string `mapstructure:"pid_file"`
}

// ─── Transport ───

// TransportConfig configures the HTTP API the supervisor listens on and
// the broadcast.Connector it uses to reach other hosts.
type TransportConfig struct {
	Listen    string          `mapstructure:"listen"` // e.g. ":8080"
	Connector ConnectorConfig `mapstructure:"connector"`
}

// ConnectorConfig selects and configures the outbound broadcast.Connector.
type ConnectorConfig struct {
	Type  string               `mapstructure:"type"` // "http" | "kafka"
	HTTP  HTTPConnectorConfig  `mapstructure:"http"`
	Kafka KafkaConnectorConfig `mapstructure:"kafka"`
}

// HTTPConnectorConfig configures httpconnector.Connector.
type HTTPConnectorConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// KafkaConnectorConfig configures kafkaconnector.Connector.
type KafkaConnectorConfig struct {
	Brokers []string   `mapstructure:"brokers"`
	Topic   string     `mapstructure:"topic"`
	SASL    SASLConfig `mapstructure:"sasl"`
	TLS     TLSConfig  `mapstructure:"tls"`
}

// SASLConfig contains SASL authentication settings.
type SASLConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Mechanism string `mapstructure:"mechanism"` // PLAIN | SCRAM-SHA-256 | SCRAM-SHA-512
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// TLSConfig contains TLS settings.
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CACert             string `mapstructure:"ca_cert"`
	ClientCert         string `mapstructure:"client_cert"`
	ClientKey          string `mapstructure:"client_key"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// ─── Monitoring Agent ───

// MonitoringConfig configures the Monitoring Agent. DefaultHost is
// loaded but not consumed by the daemon: no node falls back to it when
// its own monitoringHost is empty.
type MonitoringConfig struct {
	DefaultHost     string `mapstructure:"default_host"`
	CleanupInterval string `mapstructure:"cleanup_interval"` // e.g. "1m"
}

// ─── Event Bus ───

// EventBusConfig sizes the in-process signal bus partitions.
type EventBusConfig struct {
	PartitionCount int `mapstructure:"partition_count"`
	QueueSize      int `mapstructure:"queue_size"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics server settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure
// `chainproto: ...`.
type configRoot struct {
	Chainproto GlobalConfig `mapstructure:"chainproto"`
}

// Load loads configuration from file. The YAML file uses `chainproto:`
// as root key; env vars use CHAINPROTO_ prefix (e.g. CHAINPROTO_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Chainproto

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("chainproto.control.pid_file", "/var/run/chainproto.pid")

	v.SetDefault("chainproto.transport.listen", ":8080")
	v.SetDefault("chainproto.transport.connector.type", "http")
	v.SetDefault("chainproto.transport.connector.http.timeout_seconds", 10)

	v.SetDefault("chainproto.monitoring.cleanup_interval", "1m")

	v.SetDefault("chainproto.event_bus.partition_count", 8)
	v.SetDefault("chainproto.event_bus.queue_size", 256)

	v.SetDefault("chainproto.metrics.enabled", true)
	v.SetDefault("chainproto.metrics.listen", ":9091")
	v.SetDefault("chainproto.metrics.path", "/metrics")

	v.SetDefault("chainproto.log.level", "info")
	v.SetDefault("chainproto.log.format", "json")
	v.SetDefault("chainproto.log.outputs.file.enabled", false)
	v.SetDefault("chainproto.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("chainproto.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("chainproto.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("chainproto.log.outputs.file.rotation.compress", true)

	v.SetDefault("chainproto.data_dir", "/var/lib/chainproto")
}

// ValidateAndApplyDefaults validates configuration and applies runtime
// defaults: log level/format, node hostname/IP auto-detection, and
// connector-type consistency.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}
	if cfg.Node.UID == "" {
		cfg.Node.UID = cfg.Node.Hostname
	}

	resolvedIP, err := resolveNodeIP(&cfg.Node)
	if err != nil {
		return err
	}
	cfg.Node.IP = resolvedIP

	switch cfg.Transport.Connector.Type {
	case "http":
	case "kafka":
		if len(cfg.Transport.Connector.Kafka.Brokers) == 0 {
			return fmt.Errorf("transport.connector.kafka.brokers is required when connector.type=kafka")
		}
		if cfg.Transport.Connector.Kafka.Topic == "" {
			return fmt.Errorf("transport.connector.kafka.topic is required when connector.type=kafka")
		}
	default:
		return fmt.Errorf("unsupported transport.connector.type: %s (must be http or kafka)", cfg.Transport.Connector.Type)
	}

	return nil
}

// resolveNodeIP resolves the node IP address.
// Priority: explicit config/env value → auto-detect → error.
func resolveNodeIP(node *NodeConfig) (string, error) {
	if node.IP != "" {
		return node.IP, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("cannot resolve node IP: failed to list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			if ip4[0] == 169 && ip4[1] == 254 {
				continue
			}
			return ip4.String(), nil
		}
	}

	return "", fmt.Errorf("cannot resolve node IP: set CHAINPROTO_NODE_IP or chainproto.node.ip")
}
