// Package broadcast abstracts the transport a supervisor uses to
// distribute chain configuration and node status across hosts. The core
// orchestrator depends only on these interfaces; the default
// implementations live in httpconnector and kafkaconnector.
package broadcast

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"firestige.xyz/chainproto/internal/core"
	"firestige.xyz/chainproto/internal/eventbus"
	"firestige.xyz/chainproto/internal/model"
)

// BroadcastSetup sends a remote NODE_SETUP: the target host should
// create a node for the given chainId/index ahead of data arriving.
type BroadcastSetup interface {
	BroadcastSetup(ctx context.Context, host string, cfg model.NodeConfig) error
}

// BroadcastPre sends a remote pre-stage sub-chain to be run ahead of the
// main chain, per spec's "first non-empty pre slice only" rule. The
// remote host runs the sub-chain and returns its result so the caller
// can fold it into the pre-stage merge the same way a local sub-chain's
// output would be.
type BroadcastPre interface {
	BroadcastPre(ctx context.Context, host string, chainID string, pre []model.NodeConfig) (model.Data, error)
}

// RemoteService invokes a service on a remote host, at-least-once,
// keyed by (targetId, chainId) so a retried call is idempotent from the
// caller's perspective as long as the remote service itself dedupes.
type RemoteService interface {
	Invoke(ctx context.Context, host string, targetID, chainID string, data model.Data) (model.Data, error)
}

// NodeStatusBroadcast forwards a node status event to a remote
// monitoring host.
type NodeStatusBroadcast interface {
	BroadcastStatus(ctx context.Context, host string, ev eventbus.StatusEvent) error
}

// HostResolver maps a service targetId to the host that should run it.
// meta.Resolver wins when set (spec §4.7's normative hostResolver(targetId,
// meta) contract); the default in-process registry is replaced by a real
// directory lookup in multi-host deployments.
type HostResolver interface {
	Resolve(ctx context.Context, targetID string, meta *model.PipelineMeta) (host string, err error)
}

// DefaultHostResolver is a static targetId->host directory, populated
// from chain config at deploy time, consulted only when meta carries no
// resolver override.
type DefaultHostResolver struct {
	mu        sync.RWMutex
	directory map[string]string
}

// NewDefaultHostResolver builds an empty resolver; use Set to populate
// it as nodes are deployed.
func NewDefaultHostResolver() *DefaultHostResolver {
	return &DefaultHostResolver{directory: make(map[string]string)}
}

// Set records that targetID resolves to host.
func (r *DefaultHostResolver) Set(targetID, host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.directory[targetID] = host
}

// Resolve returns meta.Resolver when set, otherwise a directory entry for
// targetID, otherwise the scheme+host+port of targetID parsed as a URL.
// If no host can be determined at all, it returns ErrRoutingMiss so the
// caller can drop the message with a warning rather than dereference an
// empty host (spec §4.7).
func (r *DefaultHostResolver) Resolve(ctx context.Context, targetID string, meta *model.PipelineMeta) (string, error) {
	if meta != nil && meta.Resolver != "" {
		return meta.Resolver, nil
	}

	r.mu.RLock()
	host, ok := r.directory[targetID]
	r.mu.RUnlock()
	if ok {
		return host, nil
	}

	raw := targetID
	if !strings.Contains(raw, "://") {
		// Force net/url to parse a bare host:port as authority rather
		// than (invalidly) as a relative path with a colon in it.
		raw = "//" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: cannot determine a host for target %q", core.ErrRoutingMiss, targetID)
	}
	if u.Scheme == "" {
		return u.Host, nil
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}

// Connector bundles everything a supervisor needs from a transport.
// Concrete transports (httpconnector, kafkaconnector) implement all
// four; the supervisor depends only on this interface so transports are
// swappable.
type Connector interface {
	BroadcastSetup
	BroadcastPre
	RemoteService
	NodeStatusBroadcast
}
