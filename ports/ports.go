// Package ports defines the interfaces a Router uses to talk to the
// outside world without depending on any concrete backend.
package ports

import "context"

// DynamicState is the serializable snapshot of a Router's dynamic-tagged
// fields exchanged with a Dynamic backend: enabled, hosts, compile_rules,
// auto_disable_rules, default_upstream and overrides.
type DynamicState struct {
	Enabled          bool
	Hosts            []string
	CompileRules     bool
	AutoDisableRules bool
	DefaultUpstream  string
	Overrides        []string
}

// Dynamic is satisfied by every remote-control backend (redis, etcd,
// zookeeper, ...) a Router can be wired to. Each Dynamic instance is
// already scoped to a single router's state — it does not take the
// Router as a parameter the way the original Python `Dynamic` methods
// take `router`, since Go callers instead hold the Router and call
// through to their own Dynamic field.
type Dynamic interface {
	// CanConnect reports whether this backend is usable at all (e.g. its
	// address is configured), independent of whether it is presently
	// reachable.
	CanConnect() bool
	Connect(ctx context.Context) error
	IsConnected() bool
	Disconnect(ctx context.Context) error
	Load(ctx context.Context) (DynamicState, error)
	Save(ctx context.Context, state DynamicState) error
	// Watch invokes onChange whenever the backend observes a change to
	// the watched state, until ctx is cancelled. It returns once the
	// watch loop has been started (or immediately with an error), not
	// once it has stopped.
	Watch(ctx context.Context, onChange func(DynamicState)) error
}
