// Package model defines the wire and in-memory data types that flow
// between supervisors, nodes, and pipelines.
package model

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"firestige.xyz/chainproto/internal/core"
)

// Location says where a NodeConfig's node should be created.
type Location string

const (
	LocationLocal  Location = "local"
	LocationRemote Location = "remote"
)

// ChildMode says how a node's nested chain config should be treated.
type ChildMode string

const (
	ChildModeNormal   ChildMode = "normal"
	ChildModeParallel ChildMode = "parallel"
	ChildModePre      ChildMode = "pre"
)

// ChainType is a bitmask carried on NodeConfig. Only the two bits below
// are given meaning; other bits are accepted and preserved but never
// consulted (spec §9 "chainType bit semantics... reserved").
type ChainType int

const (
	// ChainTypePersistent keeps a node alive after hand-off regardless of
	// AUTO_DELETE.
	ChainTypePersistent ChainType = 1 << iota
	// ChainTypeAutoDelete requests supervisor-driven deletion after
	// hand-off, when PERSISTANT is not set.
	ChainTypeAutoDelete
)

func (t ChainType) HasPersistent() bool { return t&ChainTypePersistent != 0 }
func (t ChainType) HasAutoDelete() bool { return t&ChainTypeAutoDelete != 0 }

// PipelineConfiguration is the opaque configuration map carried by
// PipelineMeta, passed through to the process callback unchanged.
type PipelineConfiguration struct {
	Params                      map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	InfrastructureConfiguration map[string]any `json:"infrastructureConfiguration,omitempty" yaml:"infrastructureConfiguration,omitempty"`
	DataExchange                map[string]any `json:"dataExchange,omitempty" yaml:"dataExchange,omitempty"`
}

// PipelineMeta carries resolver/configuration metadata alongside a
// ServiceConfig.
type PipelineMeta struct {
	Resolver      string                 `json:"resolver,omitempty" yaml:"resolver,omitempty"`
	Configuration *PipelineConfiguration `json:"configuration,omitempty" yaml:"configuration,omitempty"`
}

// ServiceConfig names one outbound service a processor should invoke.
type ServiceConfig struct {
	TargetID string        `json:"targetId" yaml:"targetId"`
	Meta     *PipelineMeta `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// rawService is the wire shape for NodeConfig.Services: each element is
// either a bare target-id string or a {targetId, meta?} object, per the
// chain-config JSON schema.
type rawService struct {
	TargetID string        `json:"targetId" yaml:"targetId"`
	Meta     *PipelineMeta `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// NodeConfig is one stage of a ChainConfig. Field shapes mirror the data
// model table: chainId/index/count/location/services/monitoringHost/
// chainType/childMode plus optional sub-configs.
type NodeConfig struct {
	ChainID        string          `json:"chainId,omitempty" yaml:"chainId,omitempty"`
	Index          int             `json:"index" yaml:"index"`
	Count          int             `json:"count" yaml:"count"`
	Location       Location        `json:"location" yaml:"location"`
	Services       []ServiceConfig `json:"services" yaml:"services"`
	MonitoringHost string          `json:"monitoringHost,omitempty" yaml:"monitoringHost,omitempty"`
	ChainType      ChainType       `json:"chainType,omitempty" yaml:"chainType,omitempty"`
	ChildMode      ChildMode       `json:"childMode,omitempty" yaml:"childMode,omitempty"`

	// Pre holds nested pre-stage chains. Per the resolved open question,
	// only the first non-empty inner slice is ever broadcast; later
	// entries are accepted but never consulted.
	Pre [][]NodeConfig `json:"pre,omitempty" yaml:"pre,omitempty"`

	// ChainConfig holds a nested child chain (serial or parallel,
	// selected by ChildMode) deployed by this node at execute time.
	ChainConfig []NodeConfig `json:"chainConfig,omitempty" yaml:"chainConfig,omitempty"`
	// RootConfig is the parent node config a child chain was deployed
	// from; used to report CHILD_CHAIN_STARTED/COMPLETED back onto it.
	RootConfig *NodeConfig `json:"rootConfig,omitempty" yaml:"rootConfig,omitempty"`

	NextTargetID string        `json:"nextTargetId,omitempty" yaml:"nextTargetId,omitempty"`
	NextMeta     *PipelineMeta `json:"nextMeta,omitempty" yaml:"nextMeta,omitempty"`
	// NextLocation says whether NextTargetID is hosted by this same
	// supervisor (LOCAL) or must be reached through the broadcast
	// connector (REMOTE). Computed by the supervisor's DeployChain from
	// the following stage of the chain; never set by hand in a chain config.
	NextLocation Location `json:"nextLocation,omitempty" yaml:"nextLocation,omitempty"`

	// SignalQueue holds signals to enqueue immediately at setConfig time.
	SignalQueue []string `json:"signalQueue,omitempty" yaml:"signalQueue,omitempty"`

	// Dependencies is reserved metadata: declared, never consulted by
	// scheduling (spec §9).
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// UnmarshalJSON accepts spec's chain-config schema where each services[]
// element is either a bare string or a {targetId, meta?} object.
func (n *NodeConfig) UnmarshalJSON(data []byte) error {
	type alias NodeConfig
	aux := struct {
		Services []json.RawMessage `json:"services"`
		*alias
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n.Services = make([]ServiceConfig, 0, len(aux.Services))
	for _, raw := range aux.Services {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			n.Services = append(n.Services, ServiceConfig{TargetID: s})
			continue
		}
		var rs rawService
		if err := json.Unmarshal(raw, &rs); err != nil {
			return fmt.Errorf("chainproto: invalid service entry: %w", err)
		}
		n.Services = append(n.Services, ServiceConfig{TargetID: rs.TargetID, Meta: rs.Meta})
	}
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON: each services[] element may be a
// bare string or a {targetId, meta?} mapping.
func (n *NodeConfig) UnmarshalYAML(value *yaml.Node) error {
	type alias NodeConfig
	aux := struct {
		Services []yaml.Node `yaml:"services"`
		*alias
	}{alias: (*alias)(n)}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	n.Services = make([]ServiceConfig, 0, len(aux.Services))
	for _, raw := range aux.Services {
		if raw.Kind == yaml.ScalarNode {
			var s string
			if err := raw.Decode(&s); err != nil {
				return fmt.Errorf("chainproto: invalid service entry: %w", err)
			}
			n.Services = append(n.Services, ServiceConfig{TargetID: s})
			continue
		}
		var rs rawService
		if err := raw.Decode(&rs); err != nil {
			return fmt.Errorf("chainproto: invalid service entry: %w", err)
		}
		n.Services = append(n.Services, ServiceConfig{TargetID: rs.TargetID, Meta: rs.Meta})
	}
	return nil
}

// Data is the envelope carried through a pipeline and between nodes.
// Origin is polymorphic per spec's normative {origin?, additionalData?[]}
// merge shape: most stages set it to a plain chainId/nodeId string
// identifying the producer, but the pre-stage merge (see node.mergePreStage)
// moves an entire prior Data value there instead when additionalData was
// still empty. AdditionalData is an ordered list of enrichment values a
// pre-stage or processor appends for a later stage to read back.
type Data struct {
	Origin         any   `json:"origin,omitempty" yaml:"origin,omitempty"`
	Payload        any   `json:"payload,omitempty" yaml:"payload,omitempty"`
	AdditionalData []any `json:"additionalData,omitempty" yaml:"additionalData,omitempty"`
}

// ChainConfig is an ordered list of node configurations.
type ChainConfig []NodeConfig

// Validate checks the invariants enforced at deploy time (spec §7
// "config-invalid at deploy aborts the deploy").
func (c ChainConfig) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: empty chain config", core.ErrConfigInvalid)
	}
	for i, n := range c {
		if len(n.Services) == 0 {
			return fmt.Errorf("%w: node[%d] has no services", core.ErrConfigInvalid, i)
		}
		for _, svc := range n.Services {
			if svc.TargetID == "" {
				return fmt.Errorf("%w: node[%d] has a service with empty targetId", core.ErrConfigInvalid, i)
			}
		}
		if n.Location != LocationLocal && n.Location != LocationRemote {
			return fmt.Errorf("%w: node[%d] has unknown location %q", core.ErrConfigInvalid, i, n.Location)
		}
	}
	return nil
}
