package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	b := NewInMemoryBus(4, 16)
	defer b.Close()

	var mu sync.Mutex
	var got []string

	require.NoError(t, b.Subscribe("chain-events", func(e *Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Payload.(string))
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(&Event{Topic: "chain-events", Key: "chain-1", Payload: "msg"}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 5
	}, time.Second, 5*time.Millisecond)
}

func TestInMemoryBus_SameKeyPreservesOrder(t *testing.T) {
	b := NewInMemoryBus(1, 64)
	defer b.Close()

	var mu sync.Mutex
	var order []int

	require.NoError(t, b.Subscribe("ordered", func(e *Event) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, e.Payload.(int))
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(&Event{Topic: "ordered", Key: "same-key", Payload: i}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 10
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestInMemoryBus_ClosedRejectsPublish(t *testing.T) {
	b := NewInMemoryBus(1, 4)
	require.NoError(t, b.Close())

	err := b.Publish(&Event{Topic: "x", Key: "k"})
	require.Error(t, err)
}

func TestSignalBus_LocalAndGlobalAreIndependent(t *testing.T) {
	s := NewSignalBus(2, 16)
	defer s.Close()

	var mu sync.Mutex
	var localCount, globalCount int

	require.NoError(t, s.SubscribeLocal(func(ev StatusEvent) error {
		mu.Lock()
		defer mu.Unlock()
		localCount++
		return nil
	}))
	require.NoError(t, s.SubscribeGlobal(func(ev StatusEvent) error {
		mu.Lock()
		defer mu.Unlock()
		globalCount++
		return nil
	}))

	require.NoError(t, s.PublishLocal(StatusEvent{ChainID: "c1", Status: "IN_PROGRESS"}))
	require.NoError(t, s.PublishGlobal(StatusEvent{ChainID: "c1", Status: "COMPLETED"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return localCount == 1 && globalCount == 1
	}, time.Second, 5*time.Millisecond)
}
