package router

import (
	"context"
	"sync"
	"testing"

	"github.com/artpar/selector/domain/dsl"
	"github.com/artpar/selector/domain/rule"
	"github.com/artpar/selector/domain/schema"
	"github.com/artpar/selector/ports"
	"github.com/rs/zerolog"
)

func testSchema() *schema.Schema {
	return schema.NewRequestSchema()
}

func newRouter(t *testing.T) *Router {
	t.Helper()
	return New("test", testSchema(), zerolog.Nop())
}

func TestMatchMeExact(t *testing.T) {
	r := newRouter(t)
	if err := r.Configure(true, []string{"api.example.com"}, true, true, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !r.MatchMe("api.example.com:443") {
		t.Fatal("expected exact host match with port stripped")
	}
	if r.MatchMe("other.example.com") {
		t.Fatal("expected no match for different host")
	}
}

func TestMatchMeWildcard(t *testing.T) {
	r := newRouter(t)
	if err := r.Configure(true, []string{`[a-z0-9-]+\.example\.com$`}, true, true, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !r.MatchMe("api.example.com") {
		t.Fatal("expected subdomain match")
	}
	if r.MatchMe("example.com") {
		t.Fatal("expected a subdomain segment to be required")
	}
}

func TestMatchMeRegex(t *testing.T) {
	r := newRouter(t)
	if err := r.Configure(true, []string{`api-\d+\.example\.com$`}, true, true, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !r.MatchMe("API-7.EXAMPLE.COM") {
		t.Fatal("expected case-insensitive regex match")
	}
	if r.MatchMe("api-x.example.com") {
		t.Fatal("expected non-matching host to be rejected")
	}
}

func TestMatchMeIsPrefixAnchoredNotFullMatch(t *testing.T) {
	r := newRouter(t)
	if err := r.Configure(true, []string{`api\.example\.com`}, true, true, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !r.MatchMe("api.example.com.evil.test") {
		t.Fatal("expected a host pattern to match as a prefix, per host.match semantics")
	}
	if r.MatchMe("xapi.example.com") {
		t.Fatal("expected the match to still anchor at the start of the host")
	}
}

func TestMatchMeEmptyHostsNeverMatches(t *testing.T) {
	r := newRouter(t)
	if r.MatchMe("anything") {
		t.Fatal("expected empty hosts list to never match")
	}
}

func TestMatchMeDisabledNeverMatches(t *testing.T) {
	r := newRouter(t)
	if err := r.Configure(false, []string{"api.example.com"}, true, true, nil, nil); err != nil {
		t.Fatal(err)
	}
	if r.MatchMe("api.example.com") {
		t.Fatal("expected disabled router to never match")
	}
}

func TestMatchUpstreamPrecedence(t *testing.T) {
	sch := testSchema()
	r := New("test", sch, zerolog.Nop())

	r.Rules.Append(mustParseRule(t, sch, `method = "GET" => http://rules:80,1`))

	overrides := rule.New(rule.Options{RequestSchema: sch})
	overrides.Append(mustParseRule(t, sch, `method = "GET" => http://overrides:80,1`))

	defaultUp, _ := dsl.ParseUpstream("http://default:80,1")
	if err := r.Configure(true, nil, true, true, defaultUp, overrides); err != nil {
		t.Fatal(err)
	}

	req := schema.NewRequest(map[string]interface{}{"REQUEST_METHOD": "GET"}, sch)
	up, err := r.MatchUpstream(req)
	if err != nil {
		t.Fatal(err)
	}
	if up.String() != "http://overrides:80,1" {
		t.Fatalf("expected overrides to win, got %v", up)
	}
}

func TestMatchUpstreamFallsBackToRulesThenDefault(t *testing.T) {
	sch := testSchema()
	r := New("test", sch, zerolog.Nop())
	r.Rules.Append(mustParseRule(t, sch, `method = "GET" => http://rules:80,1`))
	defaultUp, _ := dsl.ParseUpstream("http://default:80,1")
	if err := r.Configure(true, nil, true, true, defaultUp, nil); err != nil {
		t.Fatal(err)
	}

	req := schema.NewRequest(map[string]interface{}{"REQUEST_METHOD": "GET"}, sch)
	up, err := r.MatchUpstream(req)
	if err != nil {
		t.Fatal(err)
	}
	if up.String() != "http://rules:80,1" {
		t.Fatalf("expected rules to win over default, got %v", up)
	}

	req2 := schema.NewRequest(map[string]interface{}{"REQUEST_METHOD": "POST"}, sch)
	up2, err := r.MatchUpstream(req2)
	if err != nil {
		t.Fatal(err)
	}
	if up2.String() != "http://default:80,1" {
		t.Fatalf("expected default fallback, got %v", up2)
	}
}

func mustParseRule(t *testing.T, sch *schema.Schema, text string) *rule.Rule {
	t.Helper()
	e, u, err := dsl.ParseRule(text, sch)
	if err != nil {
		t.Fatal(err)
	}
	return &rule.Rule{Expr: e, Up: u}
}

// fakeDynamic is an in-memory ports.Dynamic used to exercise Router's
// connect/load/save/watch lifecycle without a real backend.
type fakeDynamic struct {
	mu        sync.Mutex
	connected bool
	state     ports.DynamicState
	watchers  []func(ports.DynamicState)
}

func (f *fakeDynamic) CanConnect() bool { return true }

func (f *fakeDynamic) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeDynamic) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeDynamic) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeDynamic) Load(ctx context.Context) (ports.DynamicState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeDynamic) Save(ctx context.Context, state ports.DynamicState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	return nil
}

func (f *fakeDynamic) Watch(ctx context.Context, onChange func(ports.DynamicState)) error {
	f.mu.Lock()
	f.watchers = append(f.watchers, onChange)
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
	}()
	return nil
}

func (f *fakeDynamic) push(state ports.DynamicState) {
	f.mu.Lock()
	f.state = state
	watchers := append([]func(ports.DynamicState){}, f.watchers...)
	f.mu.Unlock()
	for _, w := range watchers {
		w(state)
	}
}

func TestRouterDynamicLifecycle(t *testing.T) {
	sch := testSchema()
	r := New("test", sch, zerolog.Nop())
	fd := &fakeDynamic{state: ports.DynamicState{Enabled: true, Hosts: []string{"api.example.com"}}}
	r.SetDynamic(fd)

	if !r.IsDynamic() {
		t.Fatal("expected router to be dynamic")
	}
	if err := r.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !r.IsConnected() {
		t.Fatal("expected connected")
	}
	if err := r.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !r.MatchMe("api.example.com") {
		t.Fatal("expected loaded host pattern to take effect")
	}

	if err := r.Watch(context.Background()); err != nil {
		t.Fatal(err)
	}
	fd.push(ports.DynamicState{Enabled: true, Hosts: []string{"other.example.com"}})

	// Watch callback runs synchronously on push in this fake, so the
	// state should already be applied.
	if !r.MatchMe("other.example.com") {
		t.Fatal("expected watch callback to apply new state")
	}

	if err := r.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.IsConnected() {
		t.Fatal("expected disconnected")
	}
}

func TestRouterNotDynamicErrors(t *testing.T) {
	r := newRouter(t)
	if err := r.Connect(context.Background()); err == nil {
		t.Fatal("expected error connecting a non-dynamic router")
	}
}

func TestRouterNotConnectedErrors(t *testing.T) {
	r := newRouter(t)
	fd := &fakeDynamic{}
	r.SetDynamic(fd)
	if err := r.Load(context.Background()); err == nil {
		t.Fatal("expected error loading before connect")
	}
}
