// Package core defines sentinel errors shared across the orchestrator.
package core

import "errors"

// Sentinel errors following the error-kind taxonomy of the orchestrator's
// error handling design: config-invalid, routing-miss, transport,
// processor-failure, state-violation.
var (
	// ErrConfigInvalid marks a malformed chain or node configuration:
	// missing chainId, empty service list, unknown service.
	ErrConfigInvalid = errors.New("chainproto: invalid configuration")

	// ErrRoutingMiss marks a lookup failure: no node for (targetId, chainId),
	// or no host resolvable for a targetId.
	ErrRoutingMiss = errors.New("chainproto: routing miss")

	// ErrTransport marks a failed outbound broadcast/remote call.
	ErrTransport = errors.New("chainproto: transport error")

	// ErrProcessorFailure marks a processor callback failure.
	ErrProcessorFailure = errors.New("chainproto: processor failure")

	// ErrStateViolation marks an invalid state transition: resume without
	// suspension, duplicate deploy of the same chainId, and similar.
	ErrStateViolation = errors.New("chainproto: state violation")

	// ErrDaemonNotRunning marks a control command issued to a supervisor
	// that has not completed startup.
	ErrDaemonNotRunning = errors.New("chainproto: daemon not running")
)
