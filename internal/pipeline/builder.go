package pipeline

import (
	"firestige.xyz/chainproto/internal/processor"
)

// Builder provides a fluent interface for building pipelines, an
// alternative to using Config directly.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithChainID sets the owning chain id.
func (b *Builder) WithChainID(chainID string) *Builder {
	b.config.ChainID = chainID
	return b
}

// WithNodeIndex sets the owning node's index.
func (b *Builder) WithNodeIndex(index int) *Builder {
	b.config.NodeIndex = index
	return b
}

// WithProcessors sets the processor chain, in run order.
func (b *Builder) WithProcessors(processors ...*processor.Processor) *Builder {
	b.config.Processors = processors
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() *Pipeline {
	return New(b.config)
}
