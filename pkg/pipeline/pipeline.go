// Package pipeline assembles the stages from configuration and exposes them
// as scheduler tasks. Both the long-running pipeline and graphctl build on it.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/alim08/coingraph/pkg/config"
	"github.com/alim08/coingraph/pkg/fetcher"
	"github.com/alim08/coingraph/pkg/graphstore"
	"github.com/alim08/coingraph/pkg/graphstore/memory"
	"github.com/alim08/coingraph/pkg/ledger"
	"github.com/alim08/coingraph/pkg/logger"
	"github.com/alim08/coingraph/pkg/pusher"
	"github.com/alim08/coingraph/pkg/records"
	"github.com/alim08/coingraph/pkg/redisclient"
	"github.com/alim08/coingraph/pkg/retention"
	"github.com/alim08/coingraph/pkg/scheduler"
	"github.com/alim08/coingraph/pkg/simulate"
)

// Task names.
const (
	TaskFetch    = "fetch"
	TaskPush     = "push"
	TaskSimulate = "simulate"
	TaskSweep    = "sweep"
)

type Pipeline struct {
	Config  *config.Config
	Records *records.Store
	Ledger  *ledger.Ledger
	Store   graphstore.Store
	// Cache is nil when REDIS_URL is unset.
	Cache *redisclient.Client

	Fetcher     *fetcher.Fetcher
	Pusher      *pusher.Pusher
	Synthesizer *simulate.Synthesizer
	Sweeper     *retention.Sweeper
}

// OpenStore connects the configured graph store and ensures its schema.
func OpenStore(ctx context.Context, cfg *config.Config) (graphstore.Store, error) {
	var store graphstore.Store
	switch cfg.Store {
	case config.StoreMemory:
		store = memory.New()
	case config.StoreNeo4j:
		s, err := graphstore.Open(ctx, graphstore.Config{
			URI:      cfg.Neo4j.URI,
			User:     cfg.Neo4j.User,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if err := store.EnsureSchema(ctx); err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

// OpenCache returns the snapshot cache, or nil when none is configured. An
// unreachable cache is logged, not fatal: publishing is best effort.
func OpenCache(ctx context.Context, cfg *config.Config) (*redisclient.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	c, err := redisclient.New(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		logger.Log.Warn("redis unreachable, samples will not be cached until it recovers", zap.Error(err))
	}
	return c, nil
}

// New opens the store and cache and assembles the pipeline.
func New(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cache, err := OpenCache(ctx, cfg)
	if err != nil {
		store.Close(ctx)
		return nil, err
	}
	p, err := Assemble(cfg, store, cache)
	if err != nil {
		closeAll(ctx, store, cache)
		return nil, err
	}
	return p, nil
}

// Assemble wires the stages around an already opened store. cache may be nil.
func Assemble(cfg *config.Config, store graphstore.Store, cache *redisclient.Client) (*Pipeline, error) {
	synth, err := simulate.New(store, simulate.Options{
		PoolSize:      cfg.WalletPoolSize,
		Deterministic: cfg.SimulateDeterministic,
	})
	if err != nil {
		return nil, err
	}

	recs := records.New(cfg.DataDir)
	l := ledger.New(cfg.LedgerPath)

	var pub fetcher.Publisher
	if cache != nil {
		pub = cache
	}

	return &Pipeline{
		Config:  cfg,
		Records: recs,
		Ledger:  l,
		Store:   store,
		Cache:   cache,
		Fetcher: fetcher.New(fetcher.Options{
			URL:     cfg.SourceURL,
			APIKey:  cfg.SourceAPIKey,
			Timeout: cfg.HTTPTimeout,
		}, recs, pub),
		Pusher:      pusher.New(recs, l, store),
		Synthesizer: synth,
		Sweeper:     retention.New(recs, l, cfg.RetentionWindow),
	}, nil
}

// Tasks returns the periodic stages. The sweeper is included only when a
// sweep interval is configured.
func (p *Pipeline) Tasks() []scheduler.Task {
	cfg := p.Config
	tasks := []scheduler.Task{
		{
			Name:     TaskFetch,
			Interval: cfg.FetchInterval,
			Run: func(ctx context.Context) error {
				_, err := p.Fetcher.Run(ctx)
				return err
			},
		},
		{
			Name:         TaskPush,
			Interval:     cfg.PushInterval,
			InitialDelay: cfg.PushInitialDelay,
			Run: func(ctx context.Context) error {
				_, err := p.Pusher.Run(ctx)
				return err
			},
		},
		{
			Name:     TaskSimulate,
			Interval: cfg.SimulateInterval,
			Run: func(ctx context.Context) error {
				_, err := p.Synthesizer.Run(ctx)
				return err
			},
		},
	}
	if cfg.SweepInterval > 0 {
		tasks = append(tasks, scheduler.Task{
			Name:     TaskSweep,
			Interval: cfg.SweepInterval,
			Run: func(ctx context.Context) error {
				_, err := p.Sweeper.Run(ctx)
				return err
			},
		})
	}
	return tasks
}

// Health checks the store when it supports a connectivity probe.
func (p *Pipeline) Health(ctx context.Context) error {
	if hc, ok := p.Store.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Close releases the store and cache.
func (p *Pipeline) Close(ctx context.Context) error {
	return closeAll(ctx, p.Store, p.Cache)
}

func closeAll(ctx context.Context, store graphstore.Store, cache *redisclient.Client) error {
	var errs []error
	if cache != nil {
		if err := cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if store != nil {
		if err := store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close graph store: %w", err))
		}
	}
	return errors.Join(errs...)
}
