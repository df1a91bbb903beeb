// Package main - точка входа HTTP API движка прогрессии BrainBites.
//
// API принимает события обучения (ответы, прочитанные карточки, покупки)
// и отдаёт состояние прогрессии: жизни, XP, серии, значки и лидерборд.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brainbites/progression-engine/config"
	"github.com/brainbites/progression-engine/internal/app"
	"github.com/brainbites/progression-engine/internal/infrastructure/scheduler/jobs"
	api "github.com/brainbites/progression-engine/internal/interface/http"
	"github.com/brainbites/progression-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─── 1. КОНФИГУРАЦИЯ ─────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ─── 2. ЛОГГЕР ───────────────────────────────────────────────────────────
	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting progression API",
		logger.String("version", cfg.App.Version),
		logger.String("environment", string(cfg.App.Environment)),
	)

	// ─── 3. ИНФРАСТРУКТУРА ───────────────────────────────────────────────────
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// Прогреваем кэш лидерборда, чтобы первые запросы не шли мимо Redis.
	if a.Cache != nil {
		if err := jobs.NewRebuildLeaderboardJob(a.Store, a.Cache, log).Run(ctx); err != nil {
			log.Warn("leaderboard cache warm-up failed", logger.Err(err))
		}
	}

	// ─── 4. HTTP СЕРВЕР ──────────────────────────────────────────────────────
	deps := api.NewDependencies(api.Wiring{
		Command:         a.CommandDeps(),
		Rules:           a.Rules,
		Catalog:         a.Store,
		Standings:       a.Store,
		Cache:           a.Cache,
		LeaderboardTopN: cfg.Engine.LeaderboardTopN,
		HealthChecker:   a.Health,
	})

	serverCfg := api.DefaultConfig()
	serverCfg.Addr = cfg.App.HTTPAddr
	server := api.NewServer(serverCfg, deps)
	errCh := server.StartAsync()

	// ─── 5. GRACEFUL SHUTDOWN ────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("http shutdown failed", logger.Err(err))
	}

	log.Info("shutdown completed")
	return nil
}

// setupLogger настраивает zap по конфигурации наблюдаемости.
func setupLogger(cfg *config.Config) (*logger.Logger, error) {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = logger.LevelDebug
	}
	log, err := logger.New(logger.Options{
		Environment: string(cfg.App.Environment),
		Level:       level,
		Format:      cfg.Observability.LogFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log.With(logger.String("service", cfg.App.Name)), nil
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.App.ShutdownTimeout > 0 {
		return cfg.App.ShutdownTimeout
	}
	return 30 * time.Second
}
