package eventbus

import "context"

// Event is one message published onto the bus.
type Event struct {
	Topic   string
	Key     string // partitioning key: chainId
	Payload any
}

// Handler processes one event. A returned error is logged but never
// stops the owning partition's consumer loop.
type Handler func(event *Event) error

// partition is one FIFO worker goroutine and its bound queue.
type partition struct {
	id      int
	queue   chan *Event
	ctx     context.Context
	cancel  context.CancelFunc
	handler Handler
}
