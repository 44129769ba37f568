package zookeeper

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/selector/ports"
)

func TestNewDefaultsSessionTimeout(t *testing.T) {
	b := New(Config{Hosts: []string{"localhost:2181"}, Root: "/selector/test"}, zerolog.Nop())
	if b.cfg.SessionTimeout != 15*time.Second {
		t.Fatalf("expected default session timeout of 15s, got %v", b.cfg.SessionTimeout)
	}
}

func TestCanConnectRequiresHostsAndRoot(t *testing.T) {
	cases := []struct {
		cfg  Config
		want bool
	}{
		{Config{Hosts: []string{"localhost:2181"}, Root: "/selector/test"}, true},
		{Config{Hosts: nil, Root: "/selector/test"}, false},
		{Config{Hosts: []string{"localhost:2181"}, Root: ""}, false},
	}
	for _, tc := range cases {
		b := New(tc.cfg, zerolog.Nop())
		if got := b.CanConnect(); got != tc.want {
			t.Fatalf("CanConnect(%+v) = %v, want %v", tc.cfg, got, tc.want)
		}
	}
}

func TestIsConnectedBeforeConnect(t *testing.T) {
	b := New(Config{Hosts: []string{"localhost:2181"}, Root: "/selector/test"}, zerolog.Nop())
	if b.IsConnected() {
		t.Fatal("expected not connected before Connect is called")
	}
}

func TestEncodeDecodeConfigRoundTrip(t *testing.T) {
	state := ports.DynamicState{
		Enabled:          true,
		Hosts:            []string{"api.example.com", "*.example.com"},
		CompileRules:     true,
		AutoDisableRules: false,
		DefaultUpstream:  "http://default:80,1",
	}
	data := encodeConfig(state)
	got, err := decodeConfig(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled != state.Enabled {
		t.Fatalf("Enabled: got %v, want %v", got.Enabled, state.Enabled)
	}
	if got.CompileRules != state.CompileRules {
		t.Fatalf("CompileRules: got %v, want %v", got.CompileRules, state.CompileRules)
	}
	if got.AutoDisableRules != state.AutoDisableRules {
		t.Fatalf("AutoDisableRules: got %v, want %v", got.AutoDisableRules, state.AutoDisableRules)
	}
	if got.DefaultUpstream != state.DefaultUpstream {
		t.Fatalf("DefaultUpstream: got %q, want %q", got.DefaultUpstream, state.DefaultUpstream)
	}
	if len(got.Hosts) != len(state.Hosts) || got.Hosts[0] != state.Hosts[0] || got.Hosts[1] != state.Hosts[1] {
		t.Fatalf("Hosts: got %v, want %v", got.Hosts, state.Hosts)
	}
}

func TestDecodeConfigEmptyHosts(t *testing.T) {
	got, err := decodeConfig([]byte("enabled=true\nhosts=\ncompile_rules=false\nauto_disable_rules=false\ndefault_upstream=\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Hosts) != 0 {
		t.Fatalf("expected no hosts, got %v", got.Hosts)
	}
}

func TestSplitNonEmptyLines(t *testing.T) {
	lines := splitNonEmptyLines("method = \"GET\" => http://a:80,1\n\n  \nmethod = \"POST\" => http://b:80,1\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != `method = "GET" => http://a:80,1` || lines[1] != `method = "POST" => http://b:80,1` {
		t.Fatalf("unexpected lines: %v", lines)
	}
}
