package reporting

import (
	"testing"
	"time"

	"firestige.xyz/chainproto/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentReport_LocalOnly(t *testing.T) {
	bus := eventbus.NewSignalBus(1, 8)
	defer bus.Close()

	var gotLocal, gotGlobal bool
	require.NoError(t, bus.SubscribeLocal(func(ev eventbus.StatusEvent) error {
		gotLocal = true
		return nil
	}))
	require.NoError(t, bus.SubscribeGlobal(func(ev eventbus.StatusEvent) error {
		gotGlobal = true
		return nil
	}))

	agent := NewAgent(bus, "chain-1", "node-0")
	agent.Report(0, 1, "IN_PROGRESS", false)

	require.Eventually(t, func() bool { return gotLocal }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, gotGlobal)
}

func TestAgentReport_ForwardsGlobal(t *testing.T) {
	bus := eventbus.NewSignalBus(1, 8)
	defer bus.Close()

	var gotGlobal bool
	require.NoError(t, bus.SubscribeGlobal(func(ev eventbus.StatusEvent) error {
		gotGlobal = true
		return nil
	}))

	agent := NewAgent(bus, "chain-1", "node-0")
	agent.Report(0, 1, "COMPLETED", true)

	require.Eventually(t, func() bool { return gotGlobal }, time.Second, 5*time.Millisecond)
}

func TestMonitorAggregatesPerChain(t *testing.T) {
	bus := eventbus.NewSignalBus(1, 8)
	defer bus.Close()

	mon, err := NewMonitor(bus, time.Minute)
	require.NoError(t, err)

	agentA := NewAgent(bus, "chain-1", "node-0")
	agentB := NewAgent(bus, "chain-1", "node-1")
	agentA.Report(0, 2, "COMPLETED", true)
	agentB.Report(1, 2, "IN_PROGRESS", true)

	require.Eventually(t, func() bool {
		s, ok := mon.Summary("chain-1")
		return ok && len(s.NodeStatus) == 2
	}, time.Second, 5*time.Millisecond)

	s, ok := mon.Summary("chain-1")
	require.True(t, ok)
	assert.Equal(t, "COMPLETED", s.NodeStatus["node-0"])
	assert.Equal(t, "IN_PROGRESS", s.NodeStatus["node-1"])
}

func TestMonitorUnknownChain(t *testing.T) {
	bus := eventbus.NewSignalBus(1, 8)
	defer bus.Close()

	mon, err := NewMonitor(bus, time.Minute)
	require.NoError(t, err)

	_, ok := mon.Summary("does-not-exist")
	assert.False(t, ok)
}
