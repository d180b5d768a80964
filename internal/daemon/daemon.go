// Package daemon implements the chainproto daemon lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"firestige.xyz/chainproto/internal/broadcast"
	"firestige.xyz/chainproto/internal/broadcast/httpconnector"
	"firestige.xyz/chainproto/internal/broadcast/kafkaconnector"
	"firestige.xyz/chainproto/internal/config"
	"firestige.xyz/chainproto/internal/eventbus"
	logpkg "firestige.xyz/chainproto/internal/log"
	"firestige.xyz/chainproto/internal/metrics"
	"firestige.xyz/chainproto/internal/processor"
	"firestige.xyz/chainproto/internal/reporting"
	"firestige.xyz/chainproto/internal/supervisor"
	"firestige.xyz/chainproto/internal/transport/httpapi"
)

// Daemon manages the chainproto daemon process lifecycle.
type Daemon struct {
	config     *config.GlobalConfig
	configPath string
	pidFile    string

	registry   *processor.Registry
	supervisor *supervisor.Supervisor

	httpServer    *httpapi.Server
	metricsServer *metrics.Server // nil if metrics disabled

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal // promoted from Run() local for cleanup in Stop()
}

// New creates a new Daemon instance. registry is the caller's
// processor.Registry, populated with every service this host hosts
// before Start is called.
func New(configPath string, registry *processor.Registry) (*Daemon, error) {
	globalConfig, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	d := &Daemon{
		config:       globalConfig,
		configPath:   configPath,
		pidFile:      globalConfig.Control.PIDFile,
		registry:     registry,
		shutdownChan: make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting chainproto daemon",
		"hostname", d.config.Node.Hostname,
		"uid", d.config.Node.UID,
		"config", d.configPath,
	)

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	connector, err := d.buildConnector()
	if err != nil {
		return fmt.Errorf("failed to build broadcast connector: %w", err)
	}

	cleanupInterval, err := time.ParseDuration(d.config.Monitoring.CleanupInterval)
	if err != nil {
		slog.Warn("invalid monitoring.cleanup_interval, defaulting to 1m",
			"value", d.config.Monitoring.CleanupInterval, "error", err)
		cleanupInterval = time.Minute
	}
	bus := eventbus.NewSignalBus(d.config.EventBus.PartitionCount, d.config.EventBus.QueueSize)
	monitor, err := reporting.NewMonitor(bus, cleanupInterval)
	if err != nil {
		return fmt.Errorf("failed to start monitoring agent: %w", err)
	}

	d.supervisor = supervisor.New(supervisor.Config{
		UID:       d.config.Node.UID,
		Registry:  d.registry,
		Connector: connector,
		Resolver:  broadcast.NewDefaultHostResolver(),
		Bus:       bus,
		Monitor:   monitor,
	})

	d.httpServer = httpapi.New(d.config.Transport.Listen, d.supervisor)
	if err := d.httpServer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start httpapi server: %w", err)
	}

	if d.config.ChainsDir != "" {
		chains, err := config.LoadChainConfigDir(d.config.ChainsDir)
		if err != nil {
			slog.Warn("failed to load chains_dir, skipping auto-deploy", "dir", d.config.ChainsDir, "error", err)
		}
		for _, chain := range chains {
			if err := d.supervisor.CreateChain(chain); err != nil {
				slog.Error("auto-deploy: create chain failed", "error", err)
				continue
			}
			chainID := chain[0].ChainID
			if err := d.supervisor.DeployChain(chainID); err != nil {
				slog.Error("auto-deploy: deploy chain failed", "chain_id", chainID, "error", err)
			}
		}
	}

	slog.Info("daemon started successfully")
	return nil
}

// Stop performs graceful shutdown of all daemon components.
func (d *Daemon) Stop() {
	slog.Info("initiating graceful shutdown")

	if d.httpServer != nil {
		slog.Info("stopping httpapi server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.httpServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping httpapi server", "error", err)
		}
		cancel()
	}

	if d.metricsServer != nil {
		slog.Info("stopping metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
		cancel()
	}

	d.cancel()

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}

	slog.Info("daemon stopped gracefully")
}

// Run runs the daemon main loop, blocking until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. TriggerShutdown called by an embedding caller
//  3. SIGHUP triggers config reload
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				d.Stop()
				return nil

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				} else {
					slog.Info("configuration reloaded successfully")
				}
			}

		case <-d.shutdownChan:
			slog.Info("shutdown triggered by command")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			slog.Info("context cancelled", "error", d.ctx.Err())
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload reloads the global configuration.
// Hot-reloadable: log level/format.
// Cold (requires restart): node identity, transport listen addresses,
// connector type.
func (d *Daemon) Reload() error {
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	oldConfig := d.config
	oldLevel := oldConfig.Log.Level
	oldFormat := oldConfig.Log.Format
	d.config = newConfig

	hotReloaded := []string{}
	if err := d.initLogging(); err != nil {
		slog.Error("failed to reinitialize logging", "error", err)
	} else if newConfig.Log.Level != oldLevel || newConfig.Log.Format != oldFormat {
		hotReloaded = append(hotReloaded, "log")
	}

	requiresRestart := []string{}
	if newConfig.Node.Hostname != oldConfig.Node.Hostname {
		requiresRestart = append(requiresRestart, "node.hostname")
	}
	if newConfig.Transport.Listen != oldConfig.Transport.Listen {
		requiresRestart = append(requiresRestart, "transport.listen")
	}
	if newConfig.Transport.Connector.Type != oldConfig.Transport.Connector.Type {
		requiresRestart = append(requiresRestart, "transport.connector.type")
	}

	slog.Info("configuration reloaded",
		"hot_reloaded", hotReloaded,
		"requires_restart", requiresRestart,
	)

	return nil
}

// TriggerShutdown triggers graceful shutdown from an external caller.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// Supervisor returns the daemon's running Supervisor, for embedding
// callers (e.g. a CLI) that need to dispatch signals directly.
func (d *Daemon) Supervisor() *supervisor.Supervisor {
	return d.supervisor
}

func (d *Daemon) initLogging() error {
	if err := logpkg.Init(d.config.Log); err != nil {
		return err
	}
	slog.Debug("logging initialized", "level", d.config.Log.Level, "format", d.config.Log.Format)
	return nil
}

// buildConnector constructs the broadcast.Connector selected by
// transport.connector.type.
func (d *Daemon) buildConnector() (broadcast.Connector, error) {
	cc := d.config.Transport.Connector
	switch cc.Type {
	case "", "http":
		timeout := time.Duration(cc.HTTP.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		return httpconnector.New(timeout), nil
	case "kafka":
		return kafkaconnector.New(kafkaconnector.Config{
			Brokers: cc.Kafka.Brokers,
			Topic:   cc.Kafka.Topic,
			SASL: kafkaconnector.SASLConfig{
				Enabled:   cc.Kafka.SASL.Enabled,
				Mechanism: cc.Kafka.SASL.Mechanism,
				Username:  cc.Kafka.SASL.Username,
				Password:  cc.Kafka.SASL.Password,
			},
			TLS: kafkaconnector.TLSConfig{
				Enabled:            cc.Kafka.TLS.Enabled,
				InsecureSkipVerify: cc.Kafka.TLS.InsecureSkipVerify,
			},
		})
	default:
		return nil, fmt.Errorf("unsupported transport.connector.type %q", cc.Type)
	}
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	slog.Info("metrics server started", "addr", d.config.Metrics.Listen, "path", d.config.Metrics.Path)
	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file written", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file removed", "path", d.pidFile)
	return nil
}
