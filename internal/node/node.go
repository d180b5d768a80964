// Package node implements the per-stage execution unit of a chain: a
// state machine wrapping one or more pipelines, a FIFO signal queue, and
// the local/remote hand-off logic to the next hop.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"firestige.xyz/chainproto/internal/broadcast"
	"firestige.xyz/chainproto/internal/core"
	"firestige.xyz/chainproto/internal/eventbus"
	"firestige.xyz/chainproto/internal/metrics"
	"firestige.xyz/chainproto/internal/model"
	"firestige.xyz/chainproto/internal/pipeline"
	"firestige.xyz/chainproto/internal/processor"
	"firestige.xyz/chainproto/internal/reporting"
	"firestige.xyz/chainproto/internal/statusmanager"
)

// pipelineBatchSize is how many of a node's own pipelines (one per
// configured service) run concurrently at a time, per spec §4.3 step 3's
// batch generator. Distinct from children.go's childBatchSize, which
// bounds sibling child-chain node fan-out instead.
const pipelineBatchSize = 3

// Hooks are the collaborators a Node needs but does not own: the
// processor registry, the outbound transport, host resolution, and the
// supervisor-owned callbacks a node cannot reach directly without a
// circular import.
type Hooks struct {
	Registry  *processor.Registry
	Connector broadcast.Connector
	Resolver  broadcast.HostResolver
	Bus       *eventbus.SignalBus

	// LocalDispatch hands data off to the next local node in the chain.
	// Set by the supervisor that owns the node registry; a Node never
	// imports the supervisor package, so this function value is the only
	// path from "next hop is local" to actually running it.
	LocalDispatch func(ctx context.Context, nodeID string, data model.Data) error

	// DeleteNode asks the supervisor to drop this node from its registry
	// once an AUTO_DELETE node has finished hand-off.
	DeleteNode func(nodeID string)
}

// Node is one stage of a chain.
type Node struct {
	ID      string
	ChainID string
	Config  model.NodeConfig

	status    *statusmanager.Manager
	pipelines []*pipeline.Pipeline
	reporter  *reporting.Agent
	hooks     Hooks

	mu       sync.Mutex
	// Output collects every pipeline's result in pipeline order. Only
	// Output[0] is forwarded to the next hop; the rest are kept for
	// introspection and never forwarded or aggregated.
	Output   []model.Data
	Progress float64

	children []*Node
}

// New builds a Node bound to cfg, one pipeline per configured service.
// A config referencing an unregistered service still builds (Registry.Build
// tolerates that per spec §4.1); the tolerant Digest is what actually
// surfaces the miss, at run time, as an empty Data rather than a hard
// construction failure.
func New(id, chainID string, cfg model.NodeConfig, hooks Hooks) (*Node, error) {
	pipelines := make([]*pipeline.Pipeline, 0, len(cfg.Services))
	for _, svc := range cfg.Services {
		p, err := hooks.Registry.Build(svc)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, pipeline.New(pipeline.Config{
			ChainID:    chainID,
			NodeIndex:  cfg.Index,
			Processors: []*processor.Processor{p},
		}))
	}

	n := &Node{
		ID:        id,
		ChainID:   chainID,
		Config:    cfg,
		status:    statusmanager.New(id),
		pipelines: pipelines,
		hooks:     hooks,
	}
	n.reporter = reporting.NewAgent(hooks.Bus, chainID, id)

	for _, sig := range cfg.SignalQueue {
		n.status.Enqueue(statusmanager.Signal{Kind: sig})
	}

	return n, nil
}

// State returns the node's current lifecycle state.
func (n *Node) State() statusmanager.State { return n.status.State() }

// EnqueueSignal appends a signal to the node's FIFO queue. Callers
// (typically a supervisor dispatching an inbound request) enqueue a
// signal and then call Run to drain it.
func (n *Node) EnqueueSignal(kind string, data any) {
	n.status.Enqueue(statusmanager.Signal{Kind: kind, Data: data})
}

// report publishes the node's current state, forwarding to the
// global-signal bus whenever a monitoring host is configured.
func (n *Node) report(status string) {
	n.reporter.Report(n.Config.Index, n.Config.Count, status, n.Config.MonitoringHost != "")

	nodeLabel := strconv.Itoa(n.Config.Index)
	for _, s := range []string{"PENDING", "IN_PROGRESS", "COMPLETED", "SUSPENDED", "FAILED", "DELETED"} {
		v := metrics.NodeStatusInactive
		if s == status {
			v = metrics.NodeStatusActive
		}
		metrics.NodeStatus.WithLabelValues(n.ChainID, nodeLabel, s).Set(float64(v))
	}
}

// Run executes the node's main loop: drain the signal queue until it is
// empty, handling each in order. A node never runs two signals
// concurrently with itself, matching the spec's serial execution
// guarantee per node.
func (n *Node) Run(ctx context.Context) error {
	if err := n.status.Transition(statusmanager.StateInProgress); err != nil {
		return err
	}
	n.report("IN_PROGRESS")

	for {
		sig, ok := n.status.Dequeue()
		if !ok {
			break
		}
		if err := n.handle(ctx, sig); err != nil {
			n.status.Transition(statusmanager.StateFailed)
			n.report("FAILED")
			return err
		}
	}
	return nil
}

func (n *Node) handle(ctx context.Context, sig statusmanager.Signal) error {
	switch sig.Kind {
	case "NODE_RUN":
		data, _ := sig.Data.(model.Data)
		return n.execute(ctx, data)
	case "NODE_PRE":
		_, _, err := n.runPreStage(ctx)
		return err
	case "NODE_SUSPEND":
		// Only a flag: the actual transition happens at the next batch
		// boundary inside execute, never synchronously here. Applying it
		// immediately could suspend a node before a queued NODE_RUN even
		// starts, corrupting the later COMPLETED transition.
		n.status.RequestSuspend()
		return nil
	case "NODE_RESUME":
		return n.resume(ctx, sig.Data)
	default:
		slog.Debug("node: ignoring unknown signal", "node_id", n.ID, "kind", sig.Kind)
		return nil
	}
}

// execute runs the pre-stage merge, then the pipeline-batch generator,
// then (unless the batch generator suspended) deploys any child chain
// and moves on to the next hop.
func (n *Node) execute(ctx context.Context, data model.Data) error {
	merged, err := n.mergePreStage(ctx, data)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.ID, err)
	}

	suspended, err := n.runPipelineBatches(ctx, merged)
	if err != nil {
		return err
	}
	if suspended {
		return nil
	}

	// The first pipeline's result is the value handed to the child chain
	// and the next hop; the other pipelines' results stay on Output.
	n.mu.Lock()
	var out model.Data
	if len(n.Output) > 0 {
		out = n.Output[0]
	}
	n.mu.Unlock()
	if len(n.Config.ChainConfig) > 0 {
		if err := n.runChildChain(ctx, out); err != nil {
			return err
		}
	}

	if err := n.status.Transition(statusmanager.StateCompleted); err != nil {
		return err
	}
	n.report("COMPLETED")

	return n.moveToNextNode(ctx, out)
}

// lastOutput returns the most recently appended pipeline result, or a
// zero Data if none has run yet.
func (n *Node) lastOutput() model.Data {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Output) == 0 {
		return model.Data{}
	}
	return n.Output[len(n.Output)-1]
}

// runPipelineBatches is the pipeline-batch generator of spec §4.3 step 3:
// the node's pipelines run in groups of pipelineBatchSize, each group
// concurrently, groups one after another. Progress accumulates by
// 1/len(pipelines) per completed pipeline, so it sums to 1.0 across every
// batch regardless of how the pipelines are grouped. After each batch, a
// pending suspend request (set by NODE_SUSPEND) is honored at that
// boundary: the generator stashes its position and input data and
// returns early rather than starting the next batch.
func (n *Node) runPipelineBatches(ctx context.Context, data model.Data) (suspended bool, err error) {
	total := len(n.pipelines)
	for start := 0; start < total; start += pipelineBatchSize {
		end := start + pipelineBatchSize
		if end > total {
			end = total
		}
		batch := n.pipelines[start:end]

		results := make([]model.Data, len(batch))
		errs := make([]error, len(batch))
		var wg sync.WaitGroup
		for i, p := range batch {
			wg.Add(1)
			go func(i int, p *pipeline.Pipeline) {
				defer wg.Done()
				out, err := p.Run(ctx, data)
				results[i] = out
				errs[i] = err
			}(i, p)
		}
		wg.Wait()

		for i, runErr := range errs {
			if runErr != nil {
				return false, fmt.Errorf("node %s: %w", n.ID, runErr)
			}
			n.mu.Lock()
			n.Output = append(n.Output, results[i])
			n.Progress += 1.0 / float64(total)
			n.mu.Unlock()
		}

		if n.status.SuspendRequested() {
			if err := n.status.StashSuspension(statusmanager.SuspendedState{
				GeneratorCursor: end,
				LastBatch:       start / pipelineBatchSize,
				Data:            data,
			}); err != nil {
				return false, err
			}
			n.report("SUSPENDED")
			return true, nil
		}
	}
	return false, nil
}

// RunOnce drives this node's full batch generator once and returns the
// last pipeline's result, without touching the signal queue or lifecycle
// state. Used by a supervisor to execute a pre-stage sub-chain node
// directly, the remote-host counterpart of runPreStage's local branch.
func (n *Node) RunOnce(ctx context.Context, data model.Data) (model.Data, error) {
	return n.runAllPipelines(ctx, data)
}

// runAllPipelines drives this node's full batch generator once, ignoring
// suspension (pre-stage sub-chains and child chains are not individually
// suspendable), and returns the last pipeline's result. children.go and
// the local branch of runPreStage both use this as their single entry
// point into a node's pipelines.
func (n *Node) runAllPipelines(ctx context.Context, data model.Data) (model.Data, error) {
	if _, err := n.runPipelineBatches(ctx, data); err != nil {
		return model.Data{}, err
	}
	return n.lastOutput(), nil
}

// mergePreStage folds a pre-stage sub-chain's result into data per
// spec §4.3 step 1's normative merge: if data already carries
// additionalData, the pre-stage result is appended to it; otherwise the
// original data moves wholesale to origin and a fresh additionalData
// slice is started with just the pre-stage result in it.
func (n *Node) mergePreStage(ctx context.Context, data model.Data) (model.Data, error) {
	preData, ok, err := n.runPreStage(ctx)
	if err != nil {
		return model.Data{}, err
	}
	if !ok {
		return data, nil
	}
	if len(data.AdditionalData) > 0 {
		data.AdditionalData = append(data.AdditionalData, preData)
		return data, nil
	}
	return model.Data{
		Origin:         data,
		AdditionalData: []any{preData},
	}, nil
}

// runPreStage broadcasts or runs only the first non-empty pre slice, per
// the resolved reading of the spec's pre[][] field: later entries are
// dead configuration. ok is false when there was no pre-stage to run.
func (n *Node) runPreStage(ctx context.Context) (preData model.Data, ok bool, err error) {
	for _, sub := range n.Config.Pre {
		if len(sub) == 0 {
			continue
		}
		if n.Config.Location == model.LocationRemote && n.hooks.Connector != nil {
			meta := sub[0].Services[0].Meta
			host, err := n.hooks.Resolver.Resolve(ctx, sub[0].Services[0].TargetID, meta)
			if err != nil {
				return model.Data{}, false, err
			}
			out, err := n.hooks.Connector.BroadcastPre(ctx, host, n.ChainID, sub)
			if err != nil {
				return model.Data{}, false, err
			}
			return out, true, nil
		}

		// Local pre-stage: thread the sub-chain's nodes serially, the
		// same way runSerial threads a child chain, and fold the final
		// node's output back up for the caller to merge.
		data := model.Data{Origin: n.ID}
		for i, preCfg := range sub {
			child, err := New(fmt.Sprintf("%s-pre-%d", n.ID, i), n.ChainID, preCfg, n.hooks)
			if err != nil {
				return model.Data{}, false, err
			}
			out, err := child.runAllPipelines(ctx, data)
			if err != nil {
				return model.Data{}, false, err
			}
			data = out
		}
		return data, true, nil
	}
	return model.Data{}, false, nil
}

// resume finalizes a suspended node without re-running any remaining
// pipeline batch, per spec's literal "if resuming, skip step 3"
// instruction. An inbound resumePayload (carried as sig.Data) wins over
// the stashed SuspendedState's data when both are present.
func (n *Node) resume(ctx context.Context, sigData any) error {
	suspended, ok := n.status.PopSuspended()
	if !ok {
		return fmt.Errorf("%w: node %s resumed without a prior suspend", core.ErrStateViolation, n.ID)
	}

	resumeData := suspended.Data
	if payload, ok := sigData.(*model.Data); ok && payload != nil {
		resumeData = *payload
	}

	n.mu.Lock()
	n.Output = []model.Data{resumeData}
	n.Progress = 1.0
	n.mu.Unlock()

	n.report("IN_PROGRESS")

	if err := n.status.Transition(statusmanager.StateCompleted); err != nil {
		return err
	}
	n.report("COMPLETED")

	return n.moveToNextNode(ctx, resumeData)
}

// moveToNextNode forwards out to the next hop, local or remote, reports
// end-of-pipeline when there is no next hop, and applies the node's
// deletion policy once hand-off succeeds.
func (n *Node) moveToNextNode(ctx context.Context, out model.Data) error {
	if n.Config.NextTargetID == "" {
		n.reporter.ReportEvent(n.Config.Index, n.Config.Count, "NODE_END_OF_PIPELINE")
		return n.applyDeletionPolicy(ctx)
	}

	switch n.Config.NextLocation {
	case model.LocationRemote:
		host, err := n.hooks.Resolver.Resolve(ctx, n.Config.NextTargetID, n.Config.NextMeta)
		if err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
		if _, err := n.hooks.Connector.Invoke(ctx, host, n.Config.NextTargetID, n.ChainID, out); err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
	case model.LocationLocal:
		if n.hooks.LocalDispatch != nil {
			if err := n.hooks.LocalDispatch(ctx, n.Config.NextTargetID, out); err != nil {
				return fmt.Errorf("node %s: %w", n.ID, err)
			}
		}
	}

	return n.applyDeletionPolicy(ctx)
}

// applyDeletionPolicy reports whether this node should be torn down
// after completion. PERSISTANT always wins over AUTO_DELETE; a node with
// neither bit set is left in place but flagged as pending deletion for a
// supervisor or operator to reap explicitly.
func (n *Node) applyDeletionPolicy(ctx context.Context) error {
	if n.Config.ChainType.HasPersistent() {
		return nil
	}
	if n.Config.ChainType.HasAutoDelete() {
		n.report("DELETED")
		if n.hooks.DeleteNode != nil {
			n.hooks.DeleteNode(n.ID)
		}
		return nil
	}
	n.reporter.ReportEvent(n.Config.Index, n.Config.Count, "NODE_PENDING_DELETION")
	return nil
}
