package processor

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"firestige.xyz/chainproto/internal/model"
)

// Registry maps a service target id to the callback invoked on its
// behalf, mirroring the teacher's plugin-factory registration pattern
// but for externally injected callbacks rather than compiled-in plugins.
type Registry struct {
	mu          sync.RWMutex
	callbacks   map[string]ProcessCallback
	preHooks    map[string]PreProcessCallback
	httpTimeout time.Duration
}

// NewRegistry returns an empty Registry. Service targetIds that are
// never explicitly Register-ed but look like an http(s) URL fall back
// to an httpcallback built on demand, so a chain config can name an
// external endpoint directly without a daemon restart to wire it up.
func NewRegistry() *Registry {
	return &Registry{
		callbacks:   make(map[string]ProcessCallback),
		preHooks:    make(map[string]PreProcessCallback),
		httpTimeout: 10 * time.Second,
	}
}

// Register binds a ProcessCallback to a service target id, overwriting
// any previous binding.
func (r *Registry) Register(target string, fn ProcessCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[target] = fn
}

// RegisterPre binds a PreProcessCallback to a service target id.
func (r *Registry) RegisterPre(target string, fn PreProcessCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preHooks[target] = fn
}

// Build resolves a ServiceConfig into a bound Processor. A target with
// neither a registered callback nor an http(s) URL shape is still built,
// with a nil callback: Digest tolerates that per spec §4.1 rather than
// failing the chain at setup time over a callback that may be registered
// later by a different component.
func (r *Registry) Build(svc model.ServiceConfig) (*Processor, error) {
	r.mu.RLock()
	fn, ok := r.callbacks[svc.TargetID]
	timeout := r.httpTimeout
	r.mu.RUnlock()
	if !ok {
		if strings.HasPrefix(svc.TargetID, "http://") || strings.HasPrefix(svc.TargetID, "https://") {
			fn = NewHTTPCallback(svc.TargetID, timeout)
		} else {
			slog.Warn("registry: no callback registered for target, building tolerant processor", "target", svc.TargetID)
		}
	}
	return New(svc.TargetID, svc.Meta, fn), nil
}

// PreHook returns the registered PreProcessCallback for a target, if any.
func (r *Registry) PreHook(target string) (PreProcessCallback, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.preHooks[target]
	return fn, ok
}
