package pipeline

import (
	"sync/atomic"
)

// Metrics contains per-pipeline counters.
type Metrics struct {
	ChainID   string
	NodeIndex int

	Received  atomic.Uint64
	Processed atomic.Uint64
	Errors    atomic.Uint64
}

// NewMetrics creates a new metrics instance.
func NewMetrics(chainID string, nodeIndex int) *Metrics {
	return &Metrics{
		ChainID:   chainID,
		NodeIndex: nodeIndex,
	}
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	m.Received.Store(0)
	m.Processed.Store(0)
	m.Errors.Store(0)
}
