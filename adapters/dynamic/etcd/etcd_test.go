package etcd

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewDefaultsDialTimeout(t *testing.T) {
	b := New(Config{Endpoints: []string{"localhost:2379"}, Key: "routers/test"}, zerolog.Nop())
	if b.cfg.DialTimeout != 5*time.Second {
		t.Fatalf("expected default dial timeout of 5s, got %v", b.cfg.DialTimeout)
	}
}

func TestCanConnectRequiresEndpointsAndKey(t *testing.T) {
	cases := []struct {
		cfg  Config
		want bool
	}{
		{Config{Endpoints: []string{"localhost:2379"}, Key: "k"}, true},
		{Config{Endpoints: nil, Key: "k"}, false},
		{Config{Endpoints: []string{"localhost:2379"}, Key: ""}, false},
	}
	for _, tc := range cases {
		b := New(tc.cfg, zerolog.Nop())
		if got := b.CanConnect(); got != tc.want {
			t.Fatalf("CanConnect(%+v) = %v, want %v", tc.cfg, got, tc.want)
		}
	}
}

func TestIsConnectedBeforeConnect(t *testing.T) {
	b := New(Config{Endpoints: []string{"localhost:2379"}, Key: "k"}, zerolog.Nop())
	if b.IsConnected() {
		t.Fatal("expected not connected before Connect is called")
	}
}

func TestDisconnectWithoutConnectIsNoop(t *testing.T) {
	b := New(Config{Endpoints: []string{"localhost:2379"}, Key: "k"}, zerolog.Nop())
	if err := b.Disconnect(nil); err != nil {
		t.Fatalf("expected no error disconnecting an unconnected backend, got %v", err)
	}
}
