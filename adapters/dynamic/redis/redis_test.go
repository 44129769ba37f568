package redis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/selector/ports"
)

func TestNewDefaultsWatchTimeout(t *testing.T) {
	b := New(Config{URL: "redis://localhost:6379", Key: "routers/test"}, zerolog.Nop())
	if b.cfg.WatchTimeout != time.Second {
		t.Fatalf("expected default watch timeout of 1s, got %v", b.cfg.WatchTimeout)
	}
}

func TestCanConnectRequiresURLAndKey(t *testing.T) {
	cases := []struct {
		cfg  Config
		want bool
	}{
		{Config{URL: "redis://localhost:6379", Key: "k"}, true},
		{Config{URL: "", Key: "k"}, false},
		{Config{URL: "redis://localhost:6379", Key: ""}, false},
	}
	for _, tc := range cases {
		b := New(tc.cfg, zerolog.Nop())
		if got := b.CanConnect(); got != tc.want {
			t.Fatalf("CanConnect(%+v) = %v, want %v", tc.cfg, got, tc.want)
		}
	}
}

func TestIsConnectedBeforeConnect(t *testing.T) {
	b := New(Config{URL: "redis://localhost:6379", Key: "k"}, zerolog.Nop())
	if b.IsConnected() {
		t.Fatal("expected not connected before Connect is called")
	}
}

func TestDisconnectWithoutConnectIsNoop(t *testing.T) {
	b := New(Config{URL: "redis://localhost:6379", Key: "k"}, zerolog.Nop())
	if err := b.Disconnect(nil); err != nil {
		t.Fatalf("expected no error disconnecting an unconnected backend, got %v", err)
	}
}

// TestDynamicStateJSONRoundTrip exercises the JSON encoding Load/Save rely on without a
// live Redis server, confirming ports.DynamicState survives marshal/
// unmarshal unchanged.
func TestDynamicStateJSONRoundTrip(t *testing.T) {
	state := ports.DynamicState{
		Enabled:          true,
		Hosts:            []string{"api.example.com", "*.example.com"},
		CompileRules:     true,
		AutoDisableRules: false,
		DefaultUpstream:  "http://default:80,1",
		Overrides:        []string{`method = "GET" => http://a:80,1`},
	}
	data, err := json.Marshal(state)
	if err != nil {
		t.Fatal(err)
	}
	var got ports.DynamicState
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Enabled != state.Enabled || len(got.Hosts) != len(state.Hosts) || got.DefaultUpstream != state.DefaultUpstream {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, state)
	}
}
