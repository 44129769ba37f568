// Package redis implements a ports.Dynamic backend backed by a Redis key
// (state) and pub/sub channel (change notification), grounded on
// rump.router.redis.Redis (`_get`/`_set`/`watch` + `run_in_thread`).
package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/artpar/selector/ports"
)

// Config configures a Backend.
type Config struct {
	URL     string
	Channel string
	Key     string
	// WatchTimeout is the liveness-nudge interval used alongside the
	// pub/sub receive loop.
	WatchTimeout time.Duration
}

// Backend is a ports.Dynamic implementation using a Redis string key for
// state and a pub/sub channel to notify watchers of changes.
type Backend struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	client *goredis.Client
	pubsub *goredis.PubSub
}

// New builds a Backend. cfg.WatchTimeout defaults to one second.
func New(cfg Config, logger zerolog.Logger) *Backend {
	if cfg.WatchTimeout <= 0 {
		cfg.WatchTimeout = time.Second
	}
	return &Backend{cfg: cfg, logger: logger.With().Str("dynamic", "redis").Logger()}
}

func (b *Backend) CanConnect() bool {
	return b.cfg.URL != "" && b.cfg.Key != ""
}

func (b *Backend) Connect(ctx context.Context) error {
	opts, err := goredis.ParseURL(b.cfg.URL)
	if err != nil {
		return err
	}
	cli := goredis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.client = cli
	b.mu.Unlock()
	b.logger.Info().Str("url", b.cfg.URL).Msg("connected")
	return nil
}

func (b *Backend) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client != nil
}

func (b *Backend) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		b.pubsub.Close()
		b.pubsub = nil
	}
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

func (b *Backend) Load(ctx context.Context) (ports.DynamicState, error) {
	b.mu.Lock()
	cli := b.client
	b.mu.Unlock()

	text, err := cli.Get(ctx, b.cfg.Key).Result()
	if err == goredis.Nil {
		return ports.DynamicState{}, nil
	}
	if err != nil {
		return ports.DynamicState{}, err
	}
	var state ports.DynamicState
	if err := json.Unmarshal([]byte(text), &state); err != nil {
		return ports.DynamicState{}, err
	}
	return state, nil
}

func (b *Backend) Save(ctx context.Context, state ports.DynamicState) error {
	b.mu.Lock()
	cli := b.client
	b.mu.Unlock()

	text, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := cli.Set(ctx, b.cfg.Key, text, 0).Err(); err != nil {
		return err
	}
	return cli.Publish(ctx, b.cfg.Channel, text).Err()
}

// Watch subscribes to the configured channel and invokes onChange per
// message, decoded as a ports.DynamicState. A ticker alongside the
// receive loop serves only as a liveness nudge; it carries no payload.
func (b *Backend) Watch(ctx context.Context, onChange func(ports.DynamicState)) error {
	b.mu.Lock()
	cli := b.client
	pubsub := cli.Subscribe(ctx, b.cfg.Channel)
	b.pubsub = pubsub
	b.mu.Unlock()

	msgs := pubsub.Channel()
	go func() {
		ticker := time.NewTicker(b.cfg.WatchTimeout)
		defer ticker.Stop()
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var state ports.DynamicState
				if err := json.Unmarshal([]byte(msg.Payload), &state); err != nil {
					b.logger.Error().Err(err).Msg("invalid dynamic state payload")
					continue
				}
				onChange(state)
			case <-ticker.C:
			}
		}
	}()
	return nil
}
