// Package app assembles the engine's infrastructure from configuration.
// Both binaries build one App: the API serves it over HTTP, the worker
// drives its scheduled jobs.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/brainbites/progression-engine/config"
	"github.com/brainbites/progression-engine/internal/application/command"
	"github.com/brainbites/progression-engine/internal/application/eventhandler"
	"github.com/brainbites/progression-engine/internal/application/uow"
	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/leaderboard"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/infrastructure/catalog"
	"github.com/brainbites/progression-engine/internal/infrastructure/messaging"
	"github.com/brainbites/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/brainbites/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/brainbites/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/brainbites/progression-engine/internal/infrastructure/persistence/sqlite"
	"github.com/brainbites/progression-engine/internal/interface/http/handlers"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store is what every persistence driver provides.
type Store interface {
	uow.UnitOfWork
	badge.Catalog
	leaderboard.StandingsRepository
	progression.RegenIndex
	Ping(ctx context.Context) error
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

// ══════════════════════════════════════════════════════════════════════════════
// APP
// ══════════════════════════════════════════════════════════════════════════════

// App holds the assembled infrastructure.
type App struct {
	Config *config.Config
	Log    *logger.Logger

	Store Store
	UoW   uow.UnitOfWork
	Bus   *messaging.InMemoryEventBus
	Rules command.Rules

	// Cache is nil when Redis is disabled or unreachable.
	Cache leaderboard.Cache

	Health *handlers.CompositeHealthChecker

	closers []func()
}

// New connects every backend the configuration asks for. Redis and the
// broker are optional: a failure to reach them is logged and the engine runs
// without them. The store is mandatory.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if log == nil {
		log = logger.Nop()
	}

	rules, err := command.RulesFromConfig(cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("engine rules: %w", err)
	}

	a := &App{
		Config: cfg,
		Log:    log,
		Rules:  rules,
		Health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}

	// ─── 1. Store ────────────────────────────────────────────────────────────
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.Health.AddCheck("database", handlers.NewPingCheck(a.Store))

	a.UoW = uow.NewRetrying(a.Store, uow.RetryConfig{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
	}, log)

	// ─── 2. Badge catalog ────────────────────────────────────────────────────
	defs, err := catalog.Load(cfg.Engine.BadgeCatalogPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load badge catalog: %w", err)
	}
	if _, err := catalog.Seed(ctx, a.Store, defs, log); err != nil {
		a.Close()
		return nil, fmt.Errorf("seed badge catalog: %w", err)
	}

	// ─── 3. Event bus ────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	busCfg.AsyncMode = true
	a.Bus = messaging.NewInMemoryEventBus(busCfg)

	// ─── 4. Redis leaderboard cache ──────────────────────────────────────────
	if !cfg.Redis.Disabled {
		a.openCache(ctx)
	}

	// ─── 5. Broker ───────────────────────────────────────────────────────────
	if cfg.Broker.Enabled {
		if err := a.openBroker(); err != nil {
			a.Log.Warn("broker unavailable, events stay in process", logger.Err(err))
		}
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config.Database

	switch cfg.Driver {
	case config.DriverPostgres:
		opts := postgres.DefaultPoolOptions()
		if cfg.MaxOpenConns > 0 {
			opts.MaxConns = int32(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			opts.MinConns = int32(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			opts.MaxConnLifetime = cfg.ConnMaxLifetime
		}
		if cfg.ConnMaxIdleTime > 0 {
			opts.MaxConnIdleTime = cfg.ConnMaxIdleTime
		}

		conn, err := postgres.NewConnection(ctx, cfg.URL, opts)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, conn.Close)

		if cfg.AutoMigrate {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				return fmt.Errorf("migrate postgres: %w", err)
			}
		}
		a.Store = postgres.NewStore(conn, cfg.QueryTimeout)

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath, a.Log)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })

		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate sqlite: %w", err)
			}
		}
		a.Store = sqlite.NewStore(db, cfg.QueryTimeout)

	case config.DriverMemory:
		a.Log.Warn("using in-memory store, state is lost on exit")
		a.Store = memory.NewStore()

	default:
		return fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	a.Log.Info("store ready", logger.String("driver", cfg.Driver))
	return nil
}

func (a *App) openCache(ctx context.Context) {
	cfg := a.Config.Redis

	cache, err := redis.NewCache(redis.Config{
		URL:          cfg.URL,
		Host:         cfg.Host,
		Port:         cfg.Port,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err == nil {
		err = cache.Ping(ctx)
		if err != nil {
			_ = cache.Close()
		}
	}
	if err != nil {
		a.Log.Warn("redis unavailable, leaderboards are ranked from the store", logger.Err(err))
		return
	}
	a.closers = append(a.closers, func() { _ = cache.Close() })
	a.Health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))

	board := redis.NewLeaderboardCache(cache, cfg.LeaderboardTTL)
	a.Cache = board

	if err := eventhandler.NewOnScoreChangedHandler(board, a.Config.Features, a.Log).Register(a.Bus); err != nil {
		a.Log.Warn("failed to subscribe leaderboard cache to events", logger.Err(err))
	}
}

func (a *App) openBroker() error {
	cfg := a.Config.Broker

	conn, err := messaging.NewConnection(cfg.URL, cfg.Exchange, a.Log)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	a.closers = append(a.closers, func() { _ = conn.Close() })
	a.Health.AddOptionalCheck("broker", handlers.NewPingCheck(conn))

	publisher := messaging.NewAMQPPublisher(conn, messaging.AMQPPublisherConfigFrom(cfg), a.Log)
	if err := messaging.NewBrokerForwarder(publisher, a.Config.Features, a.Log).Register(a.Bus); err != nil {
		return fmt.Errorf("register broker forwarder: %w", err)
	}
	return nil
}

// CommandDeps returns the collaborators of every command handler.
func (a *App) CommandDeps() command.Deps {
	return command.Deps{
		UoW:       a.UoW,
		Publisher: a.Bus,
		Clock:     shared.SystemClock{},
		Features:  a.Config.Features,
		Logger:    a.Log,
	}
}

// Close drains pending events, then releases backends in reverse order of
// acquisition.
func (a *App) Close() {
	if a.Bus != nil {
		a.Bus.Drain()
		_ = a.Bus.Close()
		a.Bus = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
