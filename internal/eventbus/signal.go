package eventbus

// Topic names for the two signal buses a Node's reporting agent and a
// supervisor's monitoring agent exchange status over.
const (
	TopicLocalSignal  = "local-signal"
	TopicGlobalSignal = "global-signal"
)

// StatusEvent is the payload carried on both signal topics: a status
// change for one node within one chain.
type StatusEvent struct {
	ChainID string
	NodeID  string
	Index   int
	Count   int
	Status  string
}

// SignalBus wraps a Bus with the chainId-partitioned, status-event
// shaped publish/subscribe calls used by the reporting and monitoring
// agents.
type SignalBus struct {
	bus Bus
}

// NewSignalBus creates a SignalBus backed by a fresh in-memory Bus.
func NewSignalBus(partitionCount, queueSize int) *SignalBus {
	return &SignalBus{bus: NewInMemoryBus(partitionCount, queueSize)}
}

// PublishLocal emits a status event on the local-signal topic, keyed by
// chainId so all events for one chain land on the same partition and
// preserve their order.
func (s *SignalBus) PublishLocal(ev StatusEvent) error {
	return s.bus.Publish(&Event{Topic: TopicLocalSignal, Key: ev.ChainID, Payload: ev})
}

// PublishGlobal emits a status event on the global-signal topic.
func (s *SignalBus) PublishGlobal(ev StatusEvent) error {
	return s.bus.Publish(&Event{Topic: TopicGlobalSignal, Key: ev.ChainID, Payload: ev})
}

// SubscribeLocal registers handler for every local-signal event.
func (s *SignalBus) SubscribeLocal(handler func(StatusEvent) error) error {
	return s.bus.Subscribe(TopicLocalSignal, func(event *Event) error {
		ev, ok := event.Payload.(StatusEvent)
		if !ok {
			return nil
		}
		return handler(ev)
	})
}

// SubscribeGlobal registers handler for every global-signal event.
func (s *SignalBus) SubscribeGlobal(handler func(StatusEvent) error) error {
	return s.bus.Subscribe(TopicGlobalSignal, func(event *Event) error {
		ev, ok := event.Payload.(StatusEvent)
		if !ok {
			return nil
		}
		return handler(ev)
	})
}

// Close shuts the underlying bus down.
func (s *SignalBus) Close() error { return s.bus.Close() }

// Stats returns the underlying bus's counters.
func (s *SignalBus) Stats() *Stats { return s.bus.GetStats() }
