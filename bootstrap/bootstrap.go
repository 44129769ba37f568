// Package bootstrap wires configuration, the Router fleet, their Dynamic
// backends and the admin/observability HTTP server into a runnable App.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adminhttp "github.com/artpar/selector/adapters/http"
	"github.com/artpar/selector/adapters/dynamic/etcd"
	"github.com/artpar/selector/adapters/dynamic/redis"
	"github.com/artpar/selector/adapters/dynamic/zookeeper"
	"github.com/artpar/selector/adapters/metrics"
	"github.com/artpar/selector/config"
	"github.com/artpar/selector/domain/dsl"
	"github.com/artpar/selector/domain/router"
	"github.com/artpar/selector/domain/rule"
	"github.com/artpar/selector/domain/schema"
	"github.com/artpar/selector/domain/upstream"
	"github.com/artpar/selector/ports"
	"github.com/rs/zerolog"
)

// WatchMode governs whether each Router's Dynamic watch runs under its own
// cancellation context (per-router) or a single shared one (shared), per
// the --watch-mode flag.
type WatchMode string

const (
	WatchModePerRouter WatchMode = "per-router"
	WatchModeShared    WatchMode = "shared"
)

// App represents the running selector service.
type App struct {
	Logger     zerolog.Logger
	Holder     *config.Holder
	Routers    []*router.Router
	Metrics    *metrics.Collector
	HTTPServer *http.Server

	watchMode   WatchMode
	watchCancel context.CancelFunc
}

// Options configures New/NewWithHotReload.
type Options struct {
	WatchMode WatchMode
}

// New builds an App from an already-loaded Config (no file watching).
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := setupLogger(cfg.Logging)

	a := &App{
		Logger:    logger,
		watchMode: opts.WatchMode,
	}
	if a.watchMode == "" {
		a.watchMode = WatchModePerRouter
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	routers, err := buildRouters(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build routers: %w", err)
	}
	a.Routers = routers
	a.connectAndLoad(context.Background())

	if cfg.Admin.Enabled {
		a.initHTTPServer(cfg.Admin)
	}

	return a, nil
}

// NewWithHotReload loads cfg from path via a config.Holder, which watches
// the file for changes and re-applies static router config on reload.
func NewWithHotReload(path string, opts Options) (*App, error) {
	bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	holder, err := config.NewHolder(path, bootLogger)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a, err := New(holder.Get(), opts)
	if err != nil {
		return nil, err
	}
	a.Holder = holder

	holder.OnChange(func(cfg *config.Config) {
		if err := a.applyStaticConfig(cfg); err != nil {
			a.Logger.Error().Err(err).Msg("failed to apply reloaded config")
		}
	})
	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to start config file watcher")
	}
	holder.WatchSignals()

	return a, nil
}

// buildRouters constructs one *router.Router per config.RouterConfig,
// seeded with its static rules/hosts/default-upstream, and attaches a
// Dynamic backend where configured.
func buildRouters(cfg *config.Config, logger zerolog.Logger) ([]*router.Router, error) {
	routers := make([]*router.Router, 0, len(cfg.Routers))
	for _, rc := range cfg.Routers {
		rt, err := buildRouter(rc, logger)
		if err != nil {
			return nil, fmt.Errorf("router %q: %w", rc.Name, err)
		}
		routers = append(routers, rt)
	}
	return routers, nil
}

func buildRouter(rc config.RouterConfig, logger zerolog.Logger) (*router.Router, error) {
	sch := schema.NewRequestSchema()
	rt := router.New(rc.Name, sch, logger)

	for _, line := range rc.Rules {
		if err := rt.Rules.Append(line); err != nil {
			return nil, fmt.Errorf("static rule %q: %w", line, err)
		}
	}

	var du *upstream.Upstream
	if rc.DefaultUpstream != "" {
		parsed, err := dsl.ParseUpstream(rc.DefaultUpstream)
		if err != nil {
			return nil, fmt.Errorf("default_upstream: %w", err)
		}
		du = parsed
	}

	overrides := rule.New(rule.Options{RequestSchema: sch, Logger: logger, AutoDisable: rc.AutoDisableRules})

	if err := rt.Configure(!rc.Disabled, rc.Hosts, rc.CompileRules, rc.AutoDisableRules, du, overrides); err != nil {
		return nil, err
	}

	if rc.Dynamic != nil {
		backend, err := buildDynamicBackend(*rc.Dynamic, logger)
		if err != nil {
			return nil, fmt.Errorf("dynamic backend: %w", err)
		}
		rt.SetDynamic(backend)
	}

	return rt, nil
}

func buildDynamicBackend(dc config.DynamicConfig, logger zerolog.Logger) (ports.Dynamic, error) {
	switch dc.Backend {
	case "redis":
		return redis.New(redis.Config{
			URL:          dc.Redis.URL,
			Channel:      dc.Redis.Channel,
			Key:          dc.Redis.Key,
			WatchTimeout: dc.Redis.WatchTimeout,
		}, logger), nil
	case "etcd":
		return etcd.New(etcd.Config{
			Endpoints:    dc.Etcd.Endpoints,
			Key:          dc.Etcd.Key,
			DialTimeout:  dc.Etcd.DialTimeout,
		}, logger), nil
	case "zookeeper":
		return zookeeper.New(zookeeper.Config{
			Hosts:          dc.Zookeeper.Hosts,
			Root:           dc.Zookeeper.Root,
			SessionTimeout: dc.Zookeeper.SessionTimeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown dynamic backend %q", dc.Backend)
	}
}

// connectAndLoad connects every dynamic Router, pulls its initial remote
// state, and starts its watch loop per a.watchMode. Errors are logged, not
// fatal — a router whose backend is briefly unreachable still serves its
// static configuration.
func (a *App) connectAndLoad(ctx context.Context) {
	watchCtx := ctx
	if a.watchMode == WatchModeShared {
		var cancel context.CancelFunc
		watchCtx, cancel = context.WithCancel(ctx)
		a.watchCancel = cancel
	}

	for _, rt := range a.Routers {
		if !rt.IsDynamic() {
			continue
		}
		if err := rt.Connect(ctx); err != nil {
			a.Logger.Warn().Err(err).Str("router", rt.Name).Msg("dynamic backend connect failed")
			continue
		}
		if err := rt.Load(ctx); err != nil {
			a.Logger.Warn().Err(err).Str("router", rt.Name).Msg("dynamic backend initial load failed")
		}

		rtCtx := watchCtx
		if a.watchMode == WatchModePerRouter {
			var cancel context.CancelFunc
			rtCtx, cancel = context.WithCancel(ctx)
			_ = cancel // Router.Watch owns cancellation via Router.Stop
		}
		if err := rt.Watch(rtCtx); err != nil {
			a.Logger.Warn().Err(err).Str("router", rt.Name).Msg("failed to start dynamic watch")
		}
	}
}

// applyStaticConfig re-applies each existing Router's enabled flag, hosts,
// compile/auto-disable flags and default upstream from a reloaded Config,
// and replaces its overrides with an empty list. The static rules list is
// not reloaded. Routers are matched by name; added/removed routers are
// not handled by hot reload (restart required), matching the teacher's own
// "the fleet shape is fixed at boot" convention for hot-reloadable config.
func (a *App) applyStaticConfig(cfg *config.Config) error {
	byName := make(map[string]config.RouterConfig, len(cfg.Routers))
	for _, rc := range cfg.Routers {
		byName[rc.Name] = rc
	}

	for _, rt := range a.Routers {
		rc, ok := byName[rt.Name]
		if !ok {
			continue
		}
		var du *upstream.Upstream
		if rc.DefaultUpstream != "" {
			parsed, err := dsl.ParseUpstream(rc.DefaultUpstream)
			if err != nil {
				return fmt.Errorf("router %q default_upstream: %w", rc.Name, err)
			}
			du = parsed
		}
		overrides := rule.New(rule.Options{RequestSchema: rt.RequestSchema, Logger: a.Logger, AutoDisable: rc.AutoDisableRules})
		if err := rt.Configure(!rc.Disabled, rc.Hosts, rc.CompileRules, rc.AutoDisableRules, du, overrides); err != nil {
			return fmt.Errorf("router %q: %w", rc.Name, err)
		}
	}

	if a.Metrics != nil {
		a.Metrics.ConfigReloads.Inc()
		a.Metrics.ConfigLastReload.SetToCurrentTime()
		a.Metrics.RoutersActive.Set(float64(len(a.Routers)))
	}
	return nil
}

func (a *App) initHTTPServer(adminCfg config.AdminConfig) {
	var metricsHandler http.Handler
	admin := adminhttp.NewAdminHandler(a.Routers, a.Metrics, a.Logger)
	r := adminhttp.NewRouter(admin, metricsHandler, true, a.Logger)

	a.HTTPServer = &http.Server{
		Addr:         adminCfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Run starts the admin HTTP server (if enabled) and blocks until an
// interrupt/terminate signal or server error, then shuts down cleanly.
func (a *App) Run() error {
	if a.HTTPServer == nil {
		a.Logger.Info().Msg("admin server disabled, running routers only")
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		return a.Shutdown()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting admin http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("admin server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the admin server, every Router's watch loop
// and the config file watcher.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.watchCancel != nil {
		a.watchCancel()
	}
	for _, rt := range a.Routers {
		rt.Stop()
		if rt.IsConnected() {
			if err := rt.Disconnect(ctx); err != nil {
				a.Logger.Error().Err(err).Str("router", rt.Name).Msg("dynamic backend disconnect error")
			}
		}
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("admin server shutdown error")
		}
	}

	if a.Holder != nil {
		a.Holder.Stop()
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
