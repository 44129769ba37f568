package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/selector/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
logging:
  level: debug
  format: console

routers:
  - name: api
    request_schema: http
    hosts:
      - "api.example.com"
    default_upstream: "http://backend:8080,1"
    rules:
      - 'method = "GET" => http://reader:8080,1'
`

	cfg := writeAndLoad(t, content)

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
	if len(cfg.Routers) != 1 {
		t.Fatalf("len(Routers) = %d, want 1", len(cfg.Routers))
	}
	r := cfg.Routers[0]
	if r.Name != "api" {
		t.Errorf("Routers[0].Name = %s, want api", r.Name)
	}
	if r.RequestSchema != "http" {
		t.Errorf("Routers[0].RequestSchema = %s, want http", r.RequestSchema)
	}
	if len(r.Hosts) != 1 || r.Hosts[0] != "api.example.com" {
		t.Errorf("Routers[0].Hosts = %v, want [api.example.com]", r.Hosts)
	}
	if len(r.Rules) != 1 {
		t.Fatalf("len(Routers[0].Rules) = %d, want 1", len(r.Rules))
	}
}

func TestLoad_Defaults(t *testing.T) {
	content := `
routers:
  - name: api
`

	cfg := writeAndLoad(t, content)

	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %s, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("default Logging.Format = %s, want json", cfg.Logging.Format)
	}
	if cfg.Admin.Addr != ":9090" {
		t.Errorf("default Admin.Addr = %s, want :9090", cfg.Admin.Addr)
	}
	if cfg.Routers[0].RequestSchema != "http" {
		t.Errorf("default RequestSchema = %s, want http", cfg.Routers[0].RequestSchema)
	}
	if cfg.Routers[0].Disabled {
		t.Error("expected a router with no `disabled` key to default to enabled")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	os.Setenv("TEST_DEFAULT_UPSTREAM", "http://env-test:3000,1")
	defer os.Unsetenv("TEST_DEFAULT_UPSTREAM")

	content := `
routers:
  - name: api
    default_upstream: "${TEST_DEFAULT_UPSTREAM}"
`

	cfg := writeAndLoad(t, content)

	if cfg.Routers[0].DefaultUpstream != "http://env-test:3000,1" {
		t.Errorf("DefaultUpstream = %s, want http://env-test:3000,1", cfg.Routers[0].DefaultUpstream)
	}
}

func TestLoad_NoRouters(t *testing.T) {
	content := `
logging:
  level: info
`
	_, err := writeAndLoadErr(t, content)
	if err == nil {
		t.Fatal("expected error for no routers configured")
	}
}

func TestLoad_DuplicateRouterNames(t *testing.T) {
	content := `
routers:
  - name: api
  - name: api
`
	_, err := writeAndLoadErr(t, content)
	if err == nil {
		t.Fatal("expected error for duplicate router name")
	}
}

func TestLoad_MissingRouterName(t *testing.T) {
	content := `
routers:
  - request_schema: http
`
	_, err := writeAndLoadErr(t, content)
	if err == nil {
		t.Fatal("expected error for missing router name")
	}
}

func TestLoad_InvalidLoggingLevel(t *testing.T) {
	content := `
logging:
  level: verbose
routers:
  - name: api
`
	_, err := writeAndLoadErr(t, content)
	if err == nil {
		t.Fatal("expected error for invalid logging.level")
	}
}

func TestLoad_DynamicRedisRequiresURLAndKey(t *testing.T) {
	content := `
routers:
  - name: api
    dynamic:
      backend: redis
      redis:
        channel: updates
`
	_, err := writeAndLoadErr(t, content)
	if err == nil {
		t.Fatal("expected error for redis dynamic config missing url/key")
	}
}

func TestLoad_DynamicRedisDefaultsWatchTimeout(t *testing.T) {
	content := `
routers:
  - name: api
    dynamic:
      backend: redis
      redis:
        url: "redis://localhost:6379"
        key: "routers/api"
`
	cfg := writeAndLoad(t, content)
	d := cfg.Routers[0].Dynamic
	if d.Redis.WatchTimeout != time.Second {
		t.Errorf("default Redis.WatchTimeout = %v, want 1s", d.Redis.WatchTimeout)
	}
}

func TestLoad_InvalidDynamicBackend(t *testing.T) {
	content := `
routers:
  - name: api
    dynamic:
      backend: carrier-pigeon
`
	_, err := writeAndLoadErr(t, content)
	if err == nil {
		t.Fatal("expected error for unknown dynamic.backend")
	}
}

// Helpers

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return config.Load(path)
}
