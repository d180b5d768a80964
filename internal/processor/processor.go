// Package processor implements the single-stage unit of work that a
// pipeline folds data through.
package processor

import (
	"context"
	"fmt"
	"log/slog"

	"firestige.xyz/chainproto/internal/core"
	"firestige.xyz/chainproto/internal/model"
)

// Payload is what a ProcessCallback receives: the running Data envelope
// plus the resolver/configuration metadata attached to this stage's
// service entry.
type Payload struct {
	Data model.Data
	Meta *model.PipelineMeta
}

// ProcessCallback is the externally injected unit of work a Processor
// dispatches to. Callers register one per targetId via Register; the
// orchestrator never knows what the callback actually does.
type ProcessCallback func(ctx context.Context, p Payload) (model.Data, error)

// PreProcessCallback is a pre-stage callback, registered per targetId
// with Registry.RegisterPre and looked up with Registry.PreHook. Neither
// the node nor the supervisor invokes it when running a pre-stage.
type PreProcessCallback func(ctx context.Context, p Payload) (model.Data, error)

// Processor binds one ServiceConfig to its registered callback and runs
// it, translating a callback error into ErrProcessorFailure.
type Processor struct {
	target string
	meta   *model.PipelineMeta
	fn     ProcessCallback
}

// New builds a Processor bound to a resolved callback. fn may be nil
// (Registry.Build passes nil for an unregistered non-URL target); Digest
// then tolerates the missing callback as described below.
func New(target string, meta *model.PipelineMeta, fn ProcessCallback) *Processor {
	return &Processor{target: target, meta: meta, fn: fn}
}

// Target returns the service id this processor was bound to.
func (p *Processor) Target() string { return p.target }

// Digest invokes the bound callback and wraps any error with
// ErrProcessorFailure so callers can distinguish it from other error
// kinds without inspecting strings. A missing callback (no Register call
// ever bound this target) is tolerated per spec §4.1: it is logged and
// passed through as an empty Data value rather than aborting the
// pipeline, distinct from a registered callback that itself returns an
// error, which remains a hard failure.
func (p *Processor) Digest(ctx context.Context, data model.Data) (model.Data, error) {
	if p.fn == nil {
		slog.Warn("processor: no callback bound, tolerating and passing through", "target", p.target)
		return model.Data{}, nil
	}
	out, err := p.fn(ctx, Payload{Data: data, Meta: p.meta})
	if err != nil {
		return model.Data{}, fmt.Errorf("%w: service %q: %v", core.ErrProcessorFailure, p.target, err)
	}
	return out, nil
}
