// Package pipeline folds a Data envelope through an ordered chain of
// processors.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"firestige.xyz/chainproto/internal/metrics"
	"firestige.xyz/chainproto/internal/model"
	"firestige.xyz/chainproto/internal/processor"
)

// Pipeline is a single-threaded, ordered list of processors bound to a
// node. Run folds the input Data through each processor left-to-right,
// aborting on the first error.
type Pipeline struct {
	chainID    string
	nodeIndex  int
	processors []*processor.Processor
	metrics    *Metrics
}

// Config describes a pipeline instance.
type Config struct {
	ChainID    string
	NodeIndex  int
	Processors []*processor.Processor
}

// New builds a Pipeline from a resolved processor list, in the order
// they should run.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		chainID:    cfg.ChainID,
		nodeIndex:  cfg.NodeIndex,
		processors: cfg.Processors,
		metrics:    NewMetrics(cfg.ChainID, cfg.NodeIndex),
	}
}

// Run folds data through every processor in order. On the first
// processor error the fold stops and the error is returned unwrapped
// (it already carries ErrProcessorFailure via processor.Digest).
func (p *Pipeline) Run(ctx context.Context, in model.Data) (model.Data, error) {
	start := time.Now()
	nodeLabel := strconv.Itoa(p.nodeIndex)
	p.metrics.Received.Add(1)
	out := in
	for _, proc := range p.processors {
		select {
		case <-ctx.Done():
			return model.Data{}, fmt.Errorf("pipeline %s/%d: %w", p.chainID, p.nodeIndex, ctx.Err())
		default:
		}

		next, err := proc.Digest(ctx, out)
		if err != nil {
			p.metrics.Errors.Add(1)
			metrics.NodeErrorsTotal.WithLabelValues(p.chainID, nodeLabel).Inc()
			slog.Debug("pipeline stage failed", "chain_id", p.chainID, "node_index", p.nodeIndex, "target", proc.Target(), "error", err)
			return model.Data{}, err
		}
		out = next
		p.metrics.Processed.Add(1)
	}
	metrics.NodeProcessedTotal.WithLabelValues(p.chainID, nodeLabel).Inc()
	metrics.PipelineLatencySeconds.WithLabelValues(p.chainID, nodeLabel).Observe(time.Since(start).Seconds())
	return out, nil
}

// Stats returns pipeline-local counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:  p.metrics.Received.Load(),
		Processed: p.metrics.Processed.Load(),
		Errors:    p.metrics.Errors.Load(),
	}
}

// Stats represents pipeline run counters.
type Stats struct {
	Received  uint64
	Processed uint64
	Errors    uint64
}
