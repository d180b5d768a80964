// Package supervisor implements the per-host singleton that owns node
// and chain registries and dispatches the orchestrator's signal
// protocol, translating it into node lifecycle calls.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"firestige.xyz/chainproto/internal/broadcast"
	"firestige.xyz/chainproto/internal/core"
	"firestige.xyz/chainproto/internal/eventbus"
	"firestige.xyz/chainproto/internal/metrics"
	"firestige.xyz/chainproto/internal/model"
	"firestige.xyz/chainproto/internal/node"
	"firestige.xyz/chainproto/internal/processor"
	"firestige.xyz/chainproto/internal/reporting"
)

// Signal method names, the HTTP/control-plane equivalent of the
// teacher's command-dispatch method strings.
const (
	SignalNodeSetup                   = "NODE_SETUP"
	SignalNodeCreate                  = "NODE_CREATE"
	SignalNodeDelete                  = "NODE_DELETE"
	SignalNodeRun                     = "NODE_RUN"
	SignalNodeSendData                = "NODE_SEND_DATA"
	SignalNodePre                     = "NODE_PRE"
	SignalNodeSuspend                 = "NODE_SUSPEND"
	SignalNodeResume                  = "NODE_RESUME"
	SignalChainPrepare                = "CHAIN_PREPARE"
	SignalChainStart                  = "CHAIN_START"
	SignalChainStartPendingOccurrence = "CHAIN_START_PENDING_OCCURRENCE"
	SignalChainDeploy                 = "CHAIN_DEPLOY"
)

// Request is one inbound signal, whatever transport delivered it.
type Request struct {
	Signal  string
	ChainID string
	NodeID  string
	Config  model.NodeConfig
	Chain   model.ChainConfig
	Data    model.Data

	// ResumePayload is NODE_RESUME's optional resumePayload: when set, it
	// replaces the suspended node's stashed data outright rather than
	// letting the node finalize with what it had in flight at suspend
	// time. Nil means "resume with the stashed data".
	ResumePayload *model.Data
}

// Supervisor is the per-host singleton owning every chain and node this
// host is responsible for.
type Supervisor struct {
	uid string

	registry  *processor.Registry
	connector broadcast.Connector
	resolver  broadcast.HostResolver
	bus       *eventbus.SignalBus
	monitor   *reporting.Monitor

	mu            sync.RWMutex
	nodes         map[string]*node.Node // nodeId -> Node
	chains        map[string]model.ChainConfig
	childChains   map[string][]model.ChainConfig
	pendingChains map[string]model.ChainConfig // prepared but not yet started
	chainNodeIDs  map[string][]string          // chainId -> deployed local node IDs, in declaration order
	started       bool
}

// Config bundles the collaborators a Supervisor needs at construction.
type Config struct {
	UID       string
	Registry  *processor.Registry
	Connector broadcast.Connector
	Resolver  broadcast.HostResolver
	Bus       *eventbus.SignalBus
	Monitor   *reporting.Monitor
}

var (
	instance *Supervisor
	initOnce sync.Once
)

func newSupervisor(cfg Config) *Supervisor {
	return &Supervisor{
		uid:           cfg.UID,
		registry:      cfg.Registry,
		connector:     cfg.Connector,
		resolver:      cfg.Resolver,
		bus:           cfg.Bus,
		monitor:       cfg.Monitor,
		nodes:         make(map[string]*node.Node),
		chains:        make(map[string]model.ChainConfig),
		childChains:   make(map[string][]model.ChainConfig),
		pendingChains: make(map[string]model.ChainConfig),
		chainNodeIDs:  make(map[string][]string),
		started:       true,
	}
}

// buildHooks bundles the collaborators every Node this supervisor owns
// shares, including the two callbacks that let a Node reach back into the
// supervisor's own node registry without this package importing node and
// node importing supervisor in turn.
func (s *Supervisor) buildHooks() node.Hooks {
	return node.Hooks{
		Registry:  s.registry,
		Connector: s.connector,
		Resolver:  s.resolver,
		Bus:       s.bus,
		LocalDispatch: func(ctx context.Context, nodeID string, data model.Data) error {
			return s.runLocalNode(ctx, nodeID, data)
		},
		DeleteNode: func(nodeID string) {
			s.mu.Lock()
			delete(s.nodes, nodeID)
			s.mu.Unlock()
		},
	}
}

// publishEvent publishes a named lifecycle event directly onto the
// global-signal bus, for chain/node-level occurrences that have no
// natural per-node reporting.Agent to go through.
func (s *Supervisor) publishEvent(chainID, nodeID string, index, count int, status string) {
	if err := s.bus.PublishGlobal(eventbus.StatusEvent{
		ChainID: chainID,
		NodeID:  nodeID,
		Index:   index,
		Count:   count,
		Status:  status,
	}); err != nil {
		slog.Warn("supervisor: global publish failed", "chain_id", chainID, "node_id", nodeID, "status", status, "error", err)
	}
}

// newNodeID generates a UUIDv7 node identifier, time-ordered so a
// chain's node IDs sort in creation order even across hosts.
func newNodeID(chainID string, index int) string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the system clock/entropy source is
		// unavailable; fall back to a deterministic id rather than
		// crash the supervisor.
		return fmt.Sprintf("%s-%d", chainID, index)
	}
	return id.String()
}

// Init creates the process-wide Supervisor singleton. Calling it more
// than once is a no-op; use Get to retrieve the instance from anywhere
// else in the process.
func Init(cfg Config) *Supervisor {
	initOnce.Do(func() {
		instance = newSupervisor(cfg)
	})
	return instance
}

// Get returns the process-wide Supervisor, or nil if Init was never
// called.
func Get() *Supervisor { return instance }

// New builds an independent Supervisor instance outside the process-wide
// singleton, for tests that need isolated state.
func New(cfg Config) *Supervisor { return newSupervisor(cfg) }

// CreateChain registers a chain configuration without building any
// nodes yet. A duplicate chainId is rejected as a state violation.
func (s *Supervisor) CreateChain(cfg model.ChainConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	chainID := cfg[0].ChainID
	if _, exists := s.chains[chainID]; exists {
		return fmt.Errorf("%w: chain %q already exists", core.ErrStateViolation, chainID)
	}
	s.chains[chainID] = cfg
	metrics.ChainsActive.Set(float64(len(s.chains)))
	slog.Info("chain created", "chain_id", chainID, "nodes", len(cfg))
	return nil
}

// PrepareChainDistribution splits cfg into the local nodes this host
// will run and the remote NODE_SETUP calls it must issue, without
// starting anything yet.
func (s *Supervisor) PrepareChainDistribution(ctx context.Context, chainID string) error {
	s.mu.RLock()
	cfg, ok := s.chains[chainID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: chain %q not found", core.ErrRoutingMiss, chainID)
	}

	for _, n := range cfg {
		if n.Location != model.LocationRemote {
			continue
		}
		if len(n.Services) == 0 {
			continue
		}
		host, err := s.resolver.Resolve(ctx, n.Services[0].TargetID, n.Services[0].Meta)
		if err != nil {
			return fmt.Errorf("%w: resolving host for node %d of chain %q: %v", core.ErrRoutingMiss, n.Index, chainID, err)
		}
		if err := s.connector.BroadcastSetup(ctx, host, n); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.pendingChains[chainID] = cfg
	s.mu.Unlock()
	s.publishEvent(chainID, "", 0, len(cfg), "CHAIN_NOTIFIED")
	return nil
}

// DeployChain builds local Node instances for every local-location stage
// of a prepared chain. Per spec §4.5, each local node is linked to its
// next hop (local or remote) before construction: NextLocation/
// NextTargetID/NextMeta are computed here, once the generated local node
// IDs needed for a local->local link actually exist, rather than in
// PrepareChainDistribution where they would not yet be known.
func (s *Supervisor) DeployChain(chainID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.pendingChains[chainID]
	if !ok {
		cfg, ok = s.chains[chainID]
		if !ok {
			return fmt.Errorf("%w: chain %q not found", core.ErrRoutingMiss, chainID)
		}
	}

	hooks := s.buildHooks()

	localIDs := make([]string, len(cfg))
	for i, n := range cfg {
		if n.Location == model.LocationLocal {
			localIDs[i] = newNodeID(chainID, n.Index)
		}
	}

	var nodeIDs []string
	for i, n := range cfg {
		if n.Location != model.LocationLocal {
			continue
		}
		if i+1 < len(cfg) {
			next := cfg[i+1]
			n.NextLocation = next.Location
			if next.Location == model.LocationLocal {
				n.NextTargetID = localIDs[i+1]
			} else if len(next.Services) > 0 {
				n.NextTargetID = next.Services[0].TargetID
				n.NextMeta = next.Services[0].Meta
			}
		}
		inst, err := node.New(localIDs[i], chainID, n, hooks)
		if err != nil {
			return fmt.Errorf("deploying node %d of chain %q: %w", i, chainID, err)
		}
		s.nodes[localIDs[i]] = inst
		nodeIDs = append(nodeIDs, localIDs[i])
	}
	s.chainNodeIDs[chainID] = nodeIDs
	delete(s.pendingChains, chainID)
	slog.Info("chain deployed", "chain_id", chainID)
	s.publishEvent(chainID, "", 0, len(cfg), "CHAIN_DEPLOYED")
	return nil
}

// StartChain starts chainID's first local node with data; every
// subsequent hop, local or remote, is reached through that node's own
// moveToNextNode hand-off (see internal/node), following the
// NextLocation/NextTargetID links DeployChain computed. This replaces an
// earlier imperative walk over every local node, which never followed a
// trailing local node into a following remote segment.
func (s *Supervisor) StartChain(ctx context.Context, chainID string, data model.Data) error {
	s.mu.RLock()
	cfg, ok := s.chains[chainID]
	nodeIDs, deployed := s.chainNodeIDs[chainID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: chain %q not found", core.ErrRoutingMiss, chainID)
	}
	hasLocal := false
	for _, n := range cfg {
		if n.Location == model.LocationLocal {
			hasLocal = true
			break
		}
	}
	if hasLocal && !deployed {
		return fmt.Errorf("%w: chain %q has not been deployed", core.ErrRoutingMiss, chainID)
	}
	if len(nodeIDs) == 0 {
		return nil
	}
	return s.runLocalNode(ctx, nodeIDs[0], data)
}

// runLocalNode enqueues a NODE_RUN signal on a locally-deployed node and
// drains its queue. It is both StartChain's entry point and the
// node.Hooks.LocalDispatch callback a Node calls to hand off to its next
// local hop.
func (s *Supervisor) runLocalNode(ctx context.Context, nodeID string, data model.Data) error {
	s.mu.RLock()
	inst, ok := s.nodes[nodeID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: node %q not deployed", core.ErrRoutingMiss, nodeID)
	}
	inst.EnqueueSignal(SignalNodeRun, data)
	return inst.Run(ctx)
}

// StartPendingChain runs CHAIN_START_PENDING_OCCURRENCE: it starts a
// chain that was deployed ahead of any data arriving, using a seed Data
// envelope whose Origin is the chainId. No initial data is stored with
// the chain at deploy time.
func (s *Supervisor) StartPendingChain(ctx context.Context, chainID string) error {
	return s.StartChain(ctx, chainID, model.Data{Origin: chainID})
}

// HandleRequest is the single signal dispatcher the httpapi transport
// funnels inbound traffic through.
func (s *Supervisor) HandleRequest(ctx context.Context, req Request) (model.Data, error) {
	switch req.Signal {
	case SignalChainPrepare:
		return model.Data{}, s.PrepareChainDistribution(ctx, req.ChainID)
	case SignalChainDeploy:
		if len(req.Chain) > 0 {
			if err := s.CreateChain(req.Chain); err != nil {
				return model.Data{}, err
			}
		}
		return model.Data{}, s.DeployChain(req.ChainID)
	case SignalChainStart:
		return model.Data{}, s.StartChain(ctx, req.ChainID, req.Data)
	case SignalChainStartPendingOccurrence:
		return model.Data{}, s.StartPendingChain(ctx, req.ChainID)
	case SignalNodeSetup:
		inst, err := node.New(req.NodeID, req.ChainID, req.Config, s.buildHooks())
		if err != nil {
			return model.Data{}, err
		}
		s.mu.Lock()
		s.nodes[req.NodeID] = inst
		s.mu.Unlock()
		s.publishEvent(req.ChainID, req.NodeID, req.Config.Index, req.Config.Count, "NODE_SETUP_COMPLETED")
		return model.Data{}, nil
	case SignalNodeRun, SignalNodeSendData:
		s.mu.RLock()
		inst, ok := s.nodes[req.NodeID]
		s.mu.RUnlock()
		if !ok {
			return model.Data{}, fmt.Errorf("%w: node %q not found", core.ErrRoutingMiss, req.NodeID)
		}
		inst.EnqueueSignal(SignalNodeRun, req.Data)
		if err := inst.Run(ctx); err != nil {
			return model.Data{}, err
		}
		if len(inst.Output) > 0 {
			return inst.Output[len(inst.Output)-1], nil
		}
		return model.Data{}, nil
	case SignalNodePre:
		return s.dispatchNodeSignal(ctx, req.NodeID, SignalNodePre, nil)
	case SignalNodeSuspend:
		return s.dispatchNodeSignal(ctx, req.NodeID, SignalNodeSuspend, nil)
	case SignalNodeResume:
		return s.dispatchNodeSignal(ctx, req.NodeID, SignalNodeResume, req.ResumePayload)
	case SignalNodeDelete:
		s.mu.Lock()
		delete(s.nodes, req.NodeID)
		s.mu.Unlock()
		return model.Data{}, nil
	case SignalNodeCreate:
		inst, err := node.New(req.NodeID, req.ChainID, req.Config, s.buildHooks())
		if err != nil {
			return model.Data{}, err
		}
		s.mu.Lock()
		s.nodes[req.NodeID] = inst
		s.mu.Unlock()
		s.publishEvent(req.ChainID, req.NodeID, req.Config.Index, req.Config.Count, "NODE_SETUP_COMPLETED")
		return model.Data{}, nil
	default:
		return model.Data{}, fmt.Errorf("%w: unknown signal %q", core.ErrConfigInvalid, req.Signal)
	}
}

func (s *Supervisor) dispatchNodeSignal(ctx context.Context, nodeID, kind string, data any) (model.Data, error) {
	s.mu.RLock()
	inst, ok := s.nodes[nodeID]
	s.mu.RUnlock()
	if !ok {
		return model.Data{}, fmt.Errorf("%w: node %q not found", core.ErrRoutingMiss, nodeID)
	}
	inst.EnqueueSignal(kind, data)
	return model.Data{}, inst.Run(ctx)
}

// RunPreStage runs the first non-empty sub-chain of pre synchronously
// and returns its final output, the receiving side of a remote node's
// BroadcastPre call: this host hosts the pre sub-chain's services, so it
// executes them directly rather than dispatching through an
// already-registered node. Each config in the sub-chain threads its
// output into the next, mirroring node.runPreStage's local branch.
func (s *Supervisor) RunPreStage(ctx context.Context, chainID string, pre [][]model.NodeConfig) (model.Data, error) {
	hooks := s.buildHooks()
	for _, sub := range pre {
		if len(sub) == 0 {
			continue
		}
		data := model.Data{Origin: chainID}
		for i, cfg := range sub {
			n, err := node.New(fmt.Sprintf("%s-pre-%d", chainID, i), chainID, cfg, hooks)
			if err != nil {
				return model.Data{}, err
			}
			out, err := n.RunOnce(ctx, data)
			if err != nil {
				return model.Data{}, err
			}
			data = out
		}
		return data, nil
	}
	return model.Data{}, nil
}

// PublishRemoteStatus re-publishes a status event received over the
// wire (from another host's NodeStatusBroadcast) onto this host's
// global-signal bus, so the local Monitoring Agent aggregates it the
// same way it would a locally-reported event.
func (s *Supervisor) PublishRemoteStatus(ev eventbus.StatusEvent) error {
	return s.bus.PublishGlobal(ev)
}

// Monitor exposes the Monitoring Agent for status queries.
func (s *Supervisor) Monitor() *reporting.Monitor { return s.monitor }

// UID returns this host's supervisor identifier, used as the target id
// other hosts resolve when addressing this node's local services.
func (s *Supervisor) UID() string { return s.uid }
