// Package statusmanager tracks a node's lifecycle state and the FIFO
// queue of signals waiting to be applied to it.
package statusmanager

import (
	"fmt"
	"log/slog"
	"sync"

	"firestige.xyz/chainproto/internal/core"
	"firestige.xyz/chainproto/internal/model"
)

// State is a node's lifecycle state.
type State string

const (
	StatePending    State = "PENDING"
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateSuspended  State = "SUSPENDED"
	StateFailed     State = "FAILED"
)

// Signal is one queued instruction for a node: a bare kind plus an
// optional data payload (e.g. the Data envelope to run through the
// node's pipeline for NODE_RUN).
type Signal struct {
	Kind string
	Data any
}

// validTransitions enumerates the state machine's allowed edges. A
// transition not listed here is rejected with ErrStateViolation.
var validTransitions = map[State]map[State]bool{
	StatePending:    {StateInProgress: true, StateFailed: true},
	StateInProgress: {StateCompleted: true, StateSuspended: true, StateFailed: true},
	StateSuspended:  {StateInProgress: true, StateFailed: true},
	StateCompleted:  {},
	StateFailed:     {},
}

// suspendedStash holds the queue snapshot taken at suspend time, to be
// replayed in full before any signal enqueued after resume runs.
type suspendedStash struct {
	queue []Signal
}

// SuspendedState is the Go realization of spec's "Suspended state":
// the pipeline-batch generator's position and the input data in flight
// at the moment execution stashed itself at a batch boundary. Resume
// restores it (or discards it in favor of an explicit resumePayload)
// to finalize the node without re-running any pipeline.
type SuspendedState struct {
	// GeneratorCursor is the index of the next pipeline that would have
	// run had suspension not intervened.
	GeneratorCursor int
	// LastBatch is the index of the last batch that ran to completion
	// before the suspend took effect.
	LastBatch int
	// Data is execute's input at the point of suspension.
	Data model.Data
}

// Manager owns one node's state and its FIFO signal queue. It is safe
// for concurrent use.
type Manager struct {
	mu    sync.Mutex
	nodeID string
	state  State
	queue  []Signal
	stash  *suspendedStash

	suspendRequested bool
	suspended        *SuspendedState
}

// New returns a Manager starting in StatePending.
func New(nodeID string) *Manager {
	return &Manager{nodeID: nodeID, state: StatePending}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves the node to a new state, rejecting edges not present
// in validTransitions.
func (m *Manager) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to)
}

func (m *Manager) transitionLocked(to State) error {
	allowed, ok := validTransitions[m.state]
	if !ok || !allowed[to] {
		return fmt.Errorf("%w: node %s cannot move from %s to %s", core.ErrStateViolation, m.nodeID, m.state, to)
	}
	slog.Debug("node state transition", "node_id", m.nodeID, "from", m.state, "to", to)
	m.state = to
	return nil
}

// Enqueue appends a signal to the FIFO queue. Enqueue never blocks and
// never drops: queue growth is bounded only by how fast Dequeue drains it.
func (m *Manager) Enqueue(sig Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, sig)
}

// Dequeue pops the oldest queued signal. ok is false when the queue is
// empty.
func (m *Manager) Dequeue() (sig Signal, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Signal{}, false
	}
	sig, m.queue = m.queue[0], m.queue[1:]
	return sig, true
}

// Len reports the number of signals currently queued.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Suspend transitions to StateSuspended and stashes the remaining queue
// so it can be restored verbatim on Resume. New signals enqueued while
// suspended accumulate behind the stash.
func (m *Manager) Suspend() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transitionLocked(StateSuspended); err != nil {
		return err
	}
	m.stash = &suspendedStash{queue: m.queue}
	m.queue = nil
	return nil
}

// Resume transitions back to StateInProgress and prepends the stashed
// queue ahead of anything enqueued while suspended.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stash == nil {
		return fmt.Errorf("%w: node %s resumed without a prior suspend", core.ErrStateViolation, m.nodeID)
	}
	if err := m.transitionLocked(StateInProgress); err != nil {
		return err
	}
	m.queue = append(m.stash.queue, m.queue...)
	m.stash = nil
	return nil
}

// RequestSuspend marks that the node's in-flight execute should stash
// its SuspendedState and transition to StateSuspended at its next batch
// boundary. It does not itself transition state: per spec §4.3/§5,
// suspension is a checkpoint the pipeline-batch generator observes
// between batches, not an instruction the signal dispatcher can apply
// synchronously mid-batch.
func (m *Manager) RequestSuspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspendRequested = true
}

// SuspendRequested reports and clears any pending batch-boundary suspend
// request.
func (m *Manager) SuspendRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.suspendRequested
	m.suspendRequested = false
	return v
}

// StashSuspension transitions to StateSuspended and stores state for a
// later Resume to pick up.
func (m *Manager) StashSuspension(state SuspendedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transitionLocked(StateSuspended); err != nil {
		return err
	}
	m.suspended = &state
	return nil
}

// PopSuspended returns and clears the stashed SuspendedState, if any.
func (m *Manager) PopSuspended() (SuspendedState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.suspended == nil {
		return SuspendedState{}, false
	}
	s := *m.suspended
	m.suspended = nil
	return s, true
}
