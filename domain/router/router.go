// Package router implements the Router: a named bundle of settings,
// request schema and upstream-selection rules that a fronting dispatcher
// consults per request, with dynamic-tagged fields reloadable at runtime
// from a remote Dynamic backend.
package router

import (
	"context"
	"sync/atomic"

	"github.com/artpar/selector/domain/dsl"
	"github.com/artpar/selector/domain/rule"
	"github.com/artpar/selector/domain/rumperr"
	"github.com/artpar/selector/domain/schema"
	"github.com/artpar/selector/domain/upstream"
	"github.com/artpar/selector/ports"
	"github.com/rs/zerolog"
)

// dynamicState is the atomically-swapped snapshot of a Router's
// dynamic-tagged fields: enabled, hosts, compile_rules, auto_disable_rules,
// default_upstream, overrides. Everything else on Router (name, request
// schema, static rules) is set once and never swapped.
type dynamicState struct {
	enabled          bool
	hostPatterns     []string
	hosts            []compiledHostPattern
	compileRules     bool
	autoDisableRules bool
	defaultUpstream  *upstream.Upstream
	overrides        *rule.Rules
}

// Router is one named upstream-selection unit.
type Router struct {
	Name          string
	RequestSchema *schema.Schema
	// Rules is the static (non-dynamic) rule list, seeded once from
	// config and never mutated remotely.
	Rules *rule.Rules

	state   atomic.Pointer[dynamicState]
	dynamic ports.Dynamic
	logger  zerolog.Logger

	cancelWatch context.CancelFunc
}

// New builds a Router named name over sch, with an empty static rule list
// and default dynamic settings (enabled, rules compiled, auto-disable on,
// no hosts, no default upstream, no overrides).
func New(name string, sch *schema.Schema, logger zerolog.Logger) *Router {
	r := &Router{
		Name:          name,
		RequestSchema: sch,
		logger:        logger.With().Str("router", name).Logger(),
	}
	r.Rules = rule.New(rule.Options{RequestSchema: sch, Logger: r.logger, Compile: true, AutoDisable: true})
	r.state.Store(&dynamicState{
		enabled:          true,
		compileRules:     true,
		autoDisableRules: true,
		overrides:        rule.New(rule.Options{RequestSchema: sch, Logger: r.logger, Compile: true, AutoDisable: true}),
	})
	return r
}

// SetDynamic attaches the Dynamic backend this Router will connect/load/
// save/watch through. Passing nil makes the Router static.
func (r *Router) SetDynamic(d ports.Dynamic) {
	r.dynamic = d
}

// Configure replaces the current dynamic-tagged field snapshot with a
// freshly built one, atomically. hostPatterns are compiled; a compile
// error leaves the existing state untouched and is returned.
func (r *Router) Configure(enabled bool, hostPatterns []string, compileRules, autoDisableRules bool, defaultUpstream *upstream.Upstream, overrides *rule.Rules) error {
	hosts, err := compileHostPatterns(hostPatterns)
	if err != nil {
		return err
	}
	if overrides == nil {
		overrides = rule.New(rule.Options{RequestSchema: r.RequestSchema, Logger: r.logger})
	}
	overrides.SetCompile(compileRules)
	overrides.SetAutoDisable(autoDisableRules)
	// compile_rules/auto_disable_rules govern both `rules` and `overrides`.
	r.Rules.SetCompile(compileRules)
	r.Rules.SetAutoDisable(autoDisableRules)
	r.state.Store(&dynamicState{
		enabled:          enabled,
		hostPatterns:     hostPatterns,
		hosts:            hosts,
		compileRules:     compileRules,
		autoDisableRules: autoDisableRules,
		defaultUpstream:  defaultUpstream,
		overrides:        overrides,
	})
	return nil
}

// Enabled reports the current enabled dynamic field.
func (r *Router) Enabled() bool { return r.state.Load().enabled }

// HostPatterns returns the current host pattern text list.
func (r *Router) HostPatterns() []string {
	st := r.state.Load()
	out := make([]string, len(st.hostPatterns))
	copy(out, st.hostPatterns)
	return out
}

// MatchMe reports whether this Router should handle a request with the
// given Host header value. A disabled router, or one with no configured
// host patterns, never matches.
func (r *Router) MatchMe(host string) bool {
	st := r.state.Load()
	if !st.enabled {
		return false
	}
	return matchAnyHost(st.hosts, host)
}

// MatchUpstream resolves the Upstream for req: overrides first, then the
// static rules, then the dynamic default_upstream — the first of those
// three that produces a non-nil Upstream wins.
func (r *Router) MatchUpstream(req *schema.Request) (*upstream.Upstream, error) {
	st := r.state.Load()

	if up, err := st.overrides.Match(req, nil); err != nil {
		return nil, err
	} else if up != nil {
		return up, nil
	}

	if up, err := r.Rules.Match(req, nil); err != nil {
		return nil, err
	} else if up != nil {
		return up, nil
	}

	return st.defaultUpstream, nil
}

// IsDynamic reports whether a Dynamic backend is attached and usable.
func (r *Router) IsDynamic() bool {
	return r.dynamic != nil && r.dynamic.CanConnect()
}

// IsConnected reports whether the attached Dynamic backend is currently
// connected.
func (r *Router) IsConnected() bool {
	return r.IsDynamic() && r.dynamic.IsConnected()
}

// Connect connects to the Dynamic backend, failing with
// rumperr.ErrRouterNotDynamic if none is usable.
func (r *Router) Connect(ctx context.Context) error {
	if !r.IsDynamic() {
		return rumperr.ErrRouterNotDynamic
	}
	return r.dynamic.Connect(ctx)
}

// Disconnect disconnects from the Dynamic backend, stopping any active
// watch, if connected.
func (r *Router) Disconnect(ctx context.Context) error {
	r.Stop()
	if !r.IsConnected() {
		return nil
	}
	return r.dynamic.Disconnect(ctx)
}

// Load pulls the current remote state and applies it via Configure,
// failing with rumperr.ErrRouterNotConnected if not connected.
func (r *Router) Load(ctx context.Context) error {
	if !r.IsConnected() {
		return rumperr.ErrRouterNotConnected
	}
	state, err := r.dynamic.Load(ctx)
	if err != nil {
		return &rumperr.RemoteIOError{Op: "load", Err: err}
	}
	return r.applyState(state)
}

// Save pushes the Router's current dynamic state to the remote backend,
// failing with rumperr.ErrRouterNotConnected if not connected.
func (r *Router) Save(ctx context.Context) error {
	if !r.IsConnected() {
		return rumperr.ErrRouterNotConnected
	}
	if err := r.dynamic.Save(ctx, r.snapshotState()); err != nil {
		return &rumperr.RemoteIOError{Op: "save", Err: err}
	}
	return nil
}

// Watch starts a background watch on the Dynamic backend: each observed
// change is loaded and applied via Configure. The watch runs until Stop
// is called or the Router is disconnected.
func (r *Router) Watch(ctx context.Context) error {
	if !r.IsConnected() {
		return rumperr.ErrRouterNotConnected
	}
	watchCtx, cancel := context.WithCancel(ctx)
	r.cancelWatch = cancel
	return r.dynamic.Watch(watchCtx, func(state ports.DynamicState) {
		if err := r.applyState(state); err != nil {
			r.logger.Error().Err(err).Msg("failed to apply dynamic state change")
			return
		}
		r.logger.Info().Msg("router reloaded from dynamic backend")
	})
}

// Stop cancels any in-flight Watch.
func (r *Router) Stop() {
	if r.cancelWatch != nil {
		r.cancelWatch()
		r.cancelWatch = nil
	}
}

func (r *Router) snapshotState() ports.DynamicState {
	st := r.state.Load()
	overrides := make([]string, 0, st.overrides.Len())
	for i := 0; i < st.overrides.Len(); i++ {
		overrides = append(overrides, st.overrides.Get(i).String())
	}
	defaultUpstream := ""
	if st.defaultUpstream != nil {
		defaultUpstream = st.defaultUpstream.String()
	}
	return ports.DynamicState{
		Enabled:          st.enabled,
		Hosts:            st.hostPatterns,
		CompileRules:     st.compileRules,
		AutoDisableRules: st.autoDisableRules,
		DefaultUpstream:  defaultUpstream,
		Overrides:        overrides,
	}
}

func (r *Router) applyState(state ports.DynamicState) error {
	var defaultUpstream *upstream.Upstream
	if state.DefaultUpstream != "" {
		u, err := dsl.ParseUpstream(state.DefaultUpstream)
		if err != nil {
			return err
		}
		defaultUpstream = u
	}
	overrides := rule.New(rule.Options{RequestSchema: r.RequestSchema, Logger: r.logger, AutoDisable: state.AutoDisableRules})
	for _, line := range state.Overrides {
		if err := overrides.Append(line); err != nil {
			return err
		}
	}
	return r.Configure(state.Enabled, state.Hosts, state.CompileRules, state.AutoDisableRules, defaultUpstream, overrides)
}
