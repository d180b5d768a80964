// Package metrics implements Prometheus metrics for the orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChainsActive tracks the number of chains currently deployed on
	// this host.
	ChainsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainproto_chains_active",
			Help: "Number of chains currently deployed on this host",
		},
	)

	// NodeStatus tracks a node's current lifecycle state as a gauge,
	// mirroring the teacher's zero-old/set-new pattern for state gauges.
	NodeStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainproto_node_status",
			Help: "Current status of a node (0=inactive, 1=active for the labeled status)",
		},
		[]string{"chain", "node", "status"},
	)

	// NodeProcessedTotal counts successful pipeline runs per node.
	NodeProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainproto_node_processed_total",
			Help: "Total number of data envelopes successfully processed by a node",
		},
		[]string{"chain", "node"},
	)

	// NodeErrorsTotal counts processor failures per node.
	NodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainproto_node_errors_total",
			Help: "Total number of processor failures encountered by a node",
		},
		[]string{"chain", "node"},
	)

	// PipelineLatencySeconds measures per-node pipeline run latency.
	PipelineLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainproto_pipeline_latency_seconds",
			Help:    "Latency of a node's pipeline run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
		[]string{"chain", "node"},
	)

	// BroadcastErrorsTotal counts failed remote broadcast/invoke calls by
	// transport and kind (setup, pre, invoke, status).
	BroadcastErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainproto_broadcast_errors_total",
			Help: "Total number of failed broadcast operations",
		},
		[]string{"transport", "kind"},
	)

	// MonitoredChains tracks how many chains the Monitoring Agent
	// currently holds a live summary for.
	MonitoredChains = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainproto_monitored_chains",
			Help: "Number of chains with a live summary in the monitoring agent's cache",
		},
	)
)

// NodeStatusValue represents a node status as a numeric gauge value.
const (
	NodeStatusInactive = 0
	NodeStatusActive   = 1
)
