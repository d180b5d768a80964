// Package reporting implements the Reporting Agent (attached to each
// node, publishes status onto the local-signal bus) and the Monitoring
// Agent (attached to a supervisor, aggregates global-signal events into
// a per-chain summary).
package reporting

import (
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/chainproto/internal/eventbus"
	"firestige.xyz/chainproto/internal/metrics"
)

// Agent is the Reporting Agent: a thin wrapper a node uses to publish
// its own status transitions onto both signal buses.
type Agent struct {
	bus     *eventbus.SignalBus
	chainID string
	nodeID  string
}

// NewAgent binds a Reporting Agent to one node.
func NewAgent(bus *eventbus.SignalBus, chainID, nodeID string) *Agent {
	return &Agent{bus: bus, chainID: chainID, nodeID: nodeID}
}

// Report publishes a status event for this node on the local-signal
// bus, and additionally on the in-process global-signal bus when
// forwardGlobal is set. Nothing in this package sends the event to a
// remote monitoring host; the global-signal bus is consumed in process,
// by the supervisor's Monitor.
func (a *Agent) Report(index, count int, status string, forwardGlobal bool) {
	ev := eventbus.StatusEvent{
		ChainID: a.chainID,
		NodeID:  a.nodeID,
		Index:   index,
		Count:   count,
		Status:  status,
	}
	if err := a.bus.PublishLocal(ev); err != nil {
		slog.Warn("reporting agent: local publish failed", "chain_id", a.chainID, "node_id", a.nodeID, "error", err)
	}
	if forwardGlobal {
		if err := a.bus.PublishGlobal(ev); err != nil {
			slog.Warn("reporting agent: global publish failed", "chain_id", a.chainID, "node_id", a.nodeID, "error", err)
		}
	}
}

// ReportEvent publishes a named lifecycle event (e.g. NODE_END_OF_PIPELINE,
// CHILD_CHAIN_STARTED) unconditionally on both signal buses. Unlike
// Report's state-machine statuses, these are spec-named occurrences a
// monitoring agent should always see regardless of whether a monitoring
// host is configured, so forwarding is never gated.
func (a *Agent) ReportEvent(index, count int, event string) {
	a.Report(index, count, event, true)
}

// Summary is the Monitoring Agent's per-chain aggregate: the last known
// status of every node reported for a chainId.
type Summary struct {
	ChainID    string
	NodeStatus map[string]string
	UpdatedAt  time.Time
}

// summaryTTL bounds how long a chain's summary survives with no new
// status events before the Monitoring Agent forgets it.
const summaryTTL = 30 * time.Minute

// Monitor is the Monitoring Agent: subscribes to the global-signal bus
// and keeps a TTL-bounded per-chain summary so status queries (the
// httpapi /chain/status route) can be answered without re-walking the
// bus.
type Monitor struct {
	store *cache.Cache
}

// NewMonitor subscribes to bus's global-signal topic and starts
// aggregating. cleanupInterval controls how often expired chain
// summaries are swept.
func NewMonitor(bus *eventbus.SignalBus, cleanupInterval time.Duration) (*Monitor, error) {
	m := &Monitor{store: cache.New(summaryTTL, cleanupInterval)}
	if err := bus.SubscribeGlobal(m.onEvent); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Monitor) onEvent(ev eventbus.StatusEvent) error {
	var summary Summary
	if existing, ok := m.store.Get(ev.ChainID); ok {
		summary = existing.(Summary)
	} else {
		summary = Summary{ChainID: ev.ChainID, NodeStatus: make(map[string]string)}
	}
	summary.NodeStatus[ev.NodeID] = ev.Status
	summary.UpdatedAt = time.Now()
	m.store.Set(ev.ChainID, summary, cache.DefaultExpiration)
	metrics.MonitoredChains.Set(float64(m.store.ItemCount()))
	return nil
}

// Summary returns the current aggregate for chainID, if any status has
// been reported for it within the TTL window.
func (m *Monitor) Summary(chainID string) (Summary, bool) {
	v, ok := m.store.Get(chainID)
	if !ok {
		return Summary{}, false
	}
	return v.(Summary), true
}
