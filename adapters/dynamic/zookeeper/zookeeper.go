// Package zookeeper implements a ports.Dynamic backend backed by two
// znodes under a configured root: "config" (key=value settings, one per
// line) and "overrides" (newline-delimited rule DSL text). Grounded on
// rump.router.zookeeper.Zookeeper, whose ConfigParser-based config node
// and raw-text overrides node are reproduced here without the Python
// original's section-per-router layout, since one Backend already owns
// exactly one router's root path.
package zookeeper

import (
	"context"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/rs/zerolog"

	"github.com/artpar/selector/ports"
)

// Config configures a Backend.
type Config struct {
	Hosts          []string
	Root           string
	SessionTimeout time.Duration
}

// Backend is a ports.Dynamic implementation storing a Router's dynamic
// state across two Zookeeper znodes beneath Config.Root.
type Backend struct {
	cfg    Config
	logger zerolog.Logger

	mu   sync.Mutex
	conn *zk.Conn
}

// New builds a Backend. cfg.SessionTimeout defaults to fifteen seconds.
func New(cfg Config, logger zerolog.Logger) *Backend {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 15 * time.Second
	}
	return &Backend{cfg: cfg, logger: logger.With().Str("dynamic", "zookeeper").Logger()}
}

func (b *Backend) CanConnect() bool {
	return len(b.cfg.Hosts) > 0 && b.cfg.Root != ""
}

func (b *Backend) Connect(ctx context.Context) error {
	conn, events, err := zk.Connect(b.cfg.Hosts, b.cfg.SessionTimeout)
	if err != nil {
		return err
	}
	go func() {
		for range events {
			// session events (connecting/connected/expired) are not
			// individually actionable here; the zk client reconnects on
			// its own and Watch re-arms after any stream interruption.
		}
	}()
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	b.logger.Info().Strs("hosts", b.cfg.Hosts).Str("root", b.cfg.Root).Msg("connected")
	return nil
}

func (b *Backend) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

func (b *Backend) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	return nil
}

func (b *Backend) configPath() string    { return path.Join(b.cfg.Root, "config") }
func (b *Backend) overridesPath() string { return path.Join(b.cfg.Root, "overrides") }

// ensurePath creates p and any missing parent znodes as empty persistent
// nodes.
func (b *Backend) ensurePath(p string) error {
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	cur := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		cur += "/" + part
		exists, _, err := b.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := b.conn.Create(cur, []byte{}, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
				return err
			}
		}
	}
	return nil
}

func (b *Backend) Load(ctx context.Context) (ports.DynamicState, error) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	var state ports.DynamicState
	if data, _, err := conn.Get(b.configPath()); err == nil {
		cfg, err := decodeConfig(data)
		if err != nil {
			return ports.DynamicState{}, err
		}
		state = cfg
	} else if err != zk.ErrNoNode {
		return ports.DynamicState{}, err
	}
	if data, _, err := conn.Get(b.overridesPath()); err == nil {
		state.Overrides = splitNonEmptyLines(string(data))
	} else if err != zk.ErrNoNode {
		return ports.DynamicState{}, err
	}
	return state, nil
}

func (b *Backend) Save(ctx context.Context, state ports.DynamicState) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	if err := b.ensurePath(b.configPath()); err != nil {
		return err
	}
	if _, stat, err := conn.Get(b.configPath()); err != nil {
		return err
	} else if _, err := conn.Set(b.configPath(), encodeConfig(state), stat.Version); err != nil {
		return err
	}

	if err := b.ensurePath(b.overridesPath()); err != nil {
		return err
	}
	overridesText := strings.Join(state.Overrides, "\n")
	if _, stat, err := conn.Get(b.overridesPath()); err != nil {
		return err
	} else if _, err := conn.Set(b.overridesPath(), []byte(overridesText), stat.Version); err != nil {
		return err
	}
	return nil
}

// Watch arms a GetW watch on both znodes, re-arming after every fire
// (Zookeeper watches are one-shot) and invoking onChange with the freshly
// reloaded combined state on each data change.
func (b *Backend) Watch(ctx context.Context, onChange func(ports.DynamicState)) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	if err := b.ensurePath(b.configPath()); err != nil {
		return err
	}
	if err := b.ensurePath(b.overridesPath()); err != nil {
		return err
	}

	watchPath := func(p string) {
		go func() {
			for {
				if ctx.Err() != nil {
					return
				}
				_, _, eventCh, err := conn.GetW(p)
				if err != nil {
					b.logger.Error().Err(err).Str("path", p).Msg("failed to arm watch")
					return
				}
				select {
				case <-ctx.Done():
					return
				case ev := <-eventCh:
					if ev.Err != nil {
						b.logger.Error().Err(ev.Err).Str("path", p).Msg("watch event error")
						continue
					}
					if ev.Type != zk.EventNodeDataChanged {
						continue
					}
					state, err := b.Load(ctx)
					if err != nil {
						b.logger.Error().Err(err).Msg("failed to reload after watch fire")
						continue
					}
					onChange(state)
				}
			}
		}()
	}
	watchPath(b.configPath())
	watchPath(b.overridesPath())
	return nil
}

func splitNonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// encodeConfig renders the non-overrides fields of state as key=value
// lines, one per field, matching the original's ConfigParser section
// without the section header (a Backend's root already scopes one
// router).
func encodeConfig(state ports.DynamicState) []byte {
	var b strings.Builder
	b.WriteString("enabled=" + strconv.FormatBool(state.Enabled) + "\n")
	b.WriteString("hosts=" + strings.Join(state.Hosts, ",") + "\n")
	b.WriteString("compile_rules=" + strconv.FormatBool(state.CompileRules) + "\n")
	b.WriteString("auto_disable_rules=" + strconv.FormatBool(state.AutoDisableRules) + "\n")
	b.WriteString("default_upstream=" + state.DefaultUpstream + "\n")
	return []byte(b.String())
}

// decodeConfig parses the key=value text encodeConfig produces.
func decodeConfig(data []byte) (ports.DynamicState, error) {
	var state ports.DynamicState
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		switch k {
		case "enabled":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return state, err
			}
			state.Enabled = b
		case "hosts":
			if v != "" {
				state.Hosts = strings.Split(v, ",")
			}
		case "compile_rules":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return state, err
			}
			state.CompileRules = b
		case "auto_disable_rules":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return state, err
			}
			state.AutoDisableRules = b
		case "default_upstream":
			state.DefaultUpstream = v
		}
	}
	return state, nil
}
