// Package etcd implements a ports.Dynamic backend backed by a single etcd
// key, grounded on rump.router.etcd.Etcd (`_get`/`_set`/blocking `watch`).
package etcd

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"github.com/rs/zerolog"

	"github.com/artpar/selector/ports"
)

// Config configures a Backend.
type Config struct {
	Endpoints   []string
	Key         string
	DialTimeout time.Duration
}

// Backend is a ports.Dynamic implementation using a single etcd key as the
// state blob, watched for changes via etcd's native watch stream.
type Backend struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	client *clientv3.Client
}

// New builds a Backend. cfg.DialTimeout defaults to five seconds.
func New(cfg Config, logger zerolog.Logger) *Backend {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &Backend{cfg: cfg, logger: logger.With().Str("dynamic", "etcd").Logger()}
}

func (b *Backend) CanConnect() bool {
	return len(b.cfg.Endpoints) > 0 && b.cfg.Key != ""
}

func (b *Backend) Connect(ctx context.Context) error {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   b.cfg.Endpoints,
		DialTimeout: b.cfg.DialTimeout,
	})
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.client = cli
	b.mu.Unlock()
	b.logger.Info().Strs("endpoints", b.cfg.Endpoints).Msg("connected")
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

	resp, err := cli.Get(ctx, b.cfg.Key)
	if err != nil {
		return ports.DynamicState{}, err
	}
	if len(resp.Kvs) == 0 {
		return ports.DynamicState{}, nil
	}
	var state ports.DynamicState
	if err := json.Unmarshal(resp.Kvs[0].Value, &state); err != nil {
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
	_, err = cli.Put(ctx, b.cfg.Key, string(text))
	return err
}

// Watch arms a blocking etcd watch on the configured key and invokes
// onChange for each Put event, re-arming the watch whenever the stream
// closes. Unlike the original's timeout-driven watch loop, this does not
// fire the callback on a bare re-arm — only an actual observed change
// triggers onChange.
func (b *Backend) Watch(ctx context.Context, onChange func(ports.DynamicState)) error {
	b.mu.Lock()
	cli := b.client
	b.mu.Unlock()

	go func() {
		for ctx.Err() == nil {
			watchChan := cli.Watch(ctx, b.cfg.Key)
			for resp := range watchChan {
				if resp.Canceled {
					break
				}
				for _, ev := range resp.Events {
					if ev.Type != clientv3.EventTypePut {
						continue
					}
					var state ports.DynamicState
					if err := json.Unmarshal(ev.Kv.Value, &state); err != nil {
						b.logger.Error().Err(err).Msg("invalid dynamic state payload")
						continue
					}
					onChange(state)
				}
			}
		}
	}()
	return nil
}
