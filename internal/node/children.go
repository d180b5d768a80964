package node

import (
	"context"
	"fmt"
	"sync"

	"firestige.xyz/chainproto/internal/model"
)

// childBatchSize is how many sibling child-chain nodes are started and
// joined concurrently at a time, bounding fan-out the way the teacher's
// Task bounds goroutines with a WaitGroup per batch. Distinct from
// pipelineBatchSize, which bounds one node's own pipelines instead.
const childBatchSize = 3

// runChildChain deploys the node's nested ChainConfig. A ChildModeParallel
// chain is fire-and-forget: it is fanned out in batches of childBatchSize
// and left running in the background while this node's own execute
// continues, per spec §8 scenario 3. Any other ChildMode runs the nested
// nodes serially, one at a time, and blocks until they finish.
func (n *Node) runChildChain(ctx context.Context, seed model.Data) error {
	children := make([]*Node, 0, len(n.Config.ChainConfig))
	for i, cfg := range n.Config.ChainConfig {
		cfg := cfg
		cfg.RootConfig = &n.Config
		child, err := New(fmt.Sprintf("%s-child-%d", n.ID, i), n.ChainID, cfg, n.hooks)
		if err != nil {
			return err
		}
		children = append(children, child)
	}
	n.mu.Lock()
	n.children = children
	n.mu.Unlock()

	n.reporter.ReportEvent(n.Config.Index, n.Config.Count, "CHILD_CHAIN_STARTED")

	if n.Config.ChildMode == model.ChildModeParallel {
		detached := context.WithoutCancel(ctx)
		go func() {
			if err := runBatched(detached, children, seed); err != nil {
				n.report("FAILED")
				return
			}
			n.reporter.ReportEvent(n.Config.Index, n.Config.Count, "CHILD_CHAIN_COMPLETED")
		}()
		return nil
	}

	if err := runSerial(ctx, children, seed); err != nil {
		return err
	}
	n.reporter.ReportEvent(n.Config.Index, n.Config.Count, "CHILD_CHAIN_COMPLETED")
	return nil
}

// runSerial executes each child node's pipelines in declaration order,
// threading each child's output into the next child's input.
func runSerial(ctx context.Context, children []*Node, seed model.Data) error {
	data := seed
	for _, child := range children {
		out, err := child.runAllPipelines(ctx, data)
		if err != nil {
			return fmt.Errorf("child node %s: %w", child.ID, err)
		}
		data = out
	}
	return nil
}

// runBatched executes children in fixed-size concurrent batches: every
// node in a batch starts together and the call blocks until the whole
// batch completes before the next batch is started. This bounds
// concurrent fan-out to childBatchSize regardless of how many children a
// chain declares.
func runBatched(ctx context.Context, children []*Node, seed model.Data) error {
	for start := 0; start < len(children); start += childBatchSize {
		end := start + childBatchSize
		if end > len(children) {
			end = len(children)
		}
		batch := children[start:end]

		var wg sync.WaitGroup
		errs := make([]error, len(batch))
		for i, child := range batch {
			wg.Add(1)
			go func(i int, child *Node) {
				defer wg.Done()
				_, err := child.runAllPipelines(ctx, seed)
				errs[i] = err
			}(i, child)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return fmt.Errorf("batched child chain: %w", err)
			}
		}
	}
	return nil
}
