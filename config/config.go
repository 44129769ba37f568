// Package config provides static configuration loading and validation for
// a fleet of Routers, seeding each from YAML (name, request schema, host
// patterns, static rules, optional Dynamic backend) before the Dynamic
// protocol (if any) takes over that Router's dynamic-tagged fields.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Logging LoggingConfig  `yaml:"logging"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Admin   AdminConfig    `yaml:"admin"`
	Routers []RouterConfig `yaml:"routers"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig toggles creation of the Prometheus match-metrics
// collector. The admin router serves /metrics whether or not it is enabled.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AdminConfig configures the read-only debug/admin HTTP surface.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// RouterConfig seeds one Router's static fields and initial dynamic
// snapshot. request_schema names a registered schema ("http" is the only
// builtin); rules is the static rule list. hosts/compile_rules/
// auto_disable_rules/default_upstream are the Router's dynamic-tagged
// fields' starting values — a Dynamic backend, once connected and loaded,
// supersedes them.
type RouterConfig struct {
	Name          string `yaml:"name"`
	RequestSchema string `yaml:"request_schema"`
	// Disabled, not Enabled: a bool's zero value is false, so "absent from
	// YAML" and "explicitly false" are indistinguishable after unmarshal.
	// Phrasing the field as Disabled makes the common case (omitted ==
	// enabled) the zero value instead of requiring a default-correction
	// pass.
	Disabled         bool     `yaml:"disabled"`
	Hosts            []string `yaml:"hosts"`
	CompileRules     bool           `yaml:"compile_rules"`
	AutoDisableRules bool           `yaml:"auto_disable_rules"`
	DefaultUpstream  string         `yaml:"default_upstream"`
	Rules            []string       `yaml:"rules"`
	Dynamic          *DynamicConfig `yaml:"dynamic,omitempty"`
}

// DynamicConfig selects and configures one C7 backend for a Router.
type DynamicConfig struct {
	Backend   string                  `yaml:"backend"` // "redis", "etcd" or "zookeeper"
	Redis     *RedisDynamicConfig     `yaml:"redis,omitempty"`
	Etcd      *EtcdDynamicConfig      `yaml:"etcd,omitempty"`
	Zookeeper *ZookeeperDynamicConfig `yaml:"zookeeper,omitempty"`
}

// RedisDynamicConfig mirrors adapters/dynamic/redis.Config.
type RedisDynamicConfig struct {
	URL          string        `yaml:"url"`
	Channel      string        `yaml:"channel"`
	Key          string        `yaml:"key"`
	WatchTimeout time.Duration `yaml:"watch_timeout"`
}

// EtcdDynamicConfig mirrors adapters/dynamic/etcd.Config.
type EtcdDynamicConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	Key         string        `yaml:"key"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ZookeeperDynamicConfig mirrors adapters/dynamic/zookeeper.Config.
type ZookeeperDynamicConfig struct {
	Hosts          []string      `yaml:"hosts"`
	Root           string        `yaml:"root"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

// Load reads, expands environment variables in, parses, defaults and
// validates the YAML config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Admin.Addr == "" {
		cfg.Admin.Addr = ":9090"
	}

	for i := range cfg.Routers {
		r := &cfg.Routers[i]
		if r.RequestSchema == "" {
			r.RequestSchema = "http"
		}
		if r.Dynamic != nil {
			setDynamicDefaults(r.Dynamic)
		}
	}
}

func setDynamicDefaults(d *DynamicConfig) {
	switch d.Backend {
	case "redis":
		if d.Redis != nil && d.Redis.WatchTimeout == 0 {
			d.Redis.WatchTimeout = time.Second
		}
	case "etcd":
		if d.Etcd != nil && d.Etcd.DialTimeout == 0 {
			d.Etcd.DialTimeout = 5 * time.Second
		}
	case "zookeeper":
		if d.Zookeeper != nil && d.Zookeeper.SessionTimeout == 0 {
			d.Zookeeper.SessionTimeout = 15 * time.Second
		}
	}
}

func validate(cfg *Config) error {
	if len(cfg.Routers) == 0 {
		return fmt.Errorf("at least one router must be configured")
	}

	seen := make(map[string]bool, len(cfg.Routers))
	for i, r := range cfg.Routers {
		if r.Name == "" {
			return fmt.Errorf("routers[%d].name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate router name %q", r.Name)
		}
		seen[r.Name] = true

		if r.Dynamic != nil {
			if err := validateDynamic(r.Name, r.Dynamic); err != nil {
				return err
			}
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", cfg.Logging.Level)
	}

	return nil
}

func validateDynamic(routerName string, d *DynamicConfig) error {
	switch d.Backend {
	case "redis":
		if d.Redis == nil || d.Redis.URL == "" || d.Redis.Key == "" {
			return fmt.Errorf("router %q: dynamic.redis requires url and key", routerName)
		}
	case "etcd":
		if d.Etcd == nil || len(d.Etcd.Endpoints) == 0 || d.Etcd.Key == "" {
			return fmt.Errorf("router %q: dynamic.etcd requires endpoints and key", routerName)
		}
	case "zookeeper":
		if d.Zookeeper == nil || len(d.Zookeeper.Hosts) == 0 || d.Zookeeper.Root == "" {
			return fmt.Errorf("router %q: dynamic.zookeeper requires hosts and root", routerName)
		}
	default:
		return fmt.Errorf("router %q: dynamic.backend must be one of redis/etcd/zookeeper, got %q", routerName, d.Backend)
	}
	return nil
}
