// Package main - точка входа фонового Worker движка прогрессии BrainBites.
//
// Worker отвечает за периодические задачи:
// - Восстановление жизней пользователей, ожидающих регенерации
// - Пересборка кэша лидерборда в Redis
//
// Запросы на чтение восстанавливают жизни лениво; Worker нужен, чтобы
// события восстановления публиковались и без активности пользователя.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/brainbites/progression-engine/config"
	"github.com/brainbites/progression-engine/internal/app"
	"github.com/brainbites/progression-engine/internal/application/command"
	"github.com/brainbites/progression-engine/internal/infrastructure/scheduler"
	"github.com/brainbites/progression-engine/internal/infrastructure/scheduler/jobs"
	"github.com/brainbites/progression-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
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
	log, err := logger.New(logger.Options{
		Environment: string(cfg.App.Environment),
		Level:       logger.ParseLevel(cfg.Observability.LogLevel),
		Format:      cfg.Observability.LogFormat,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log = log.With(logger.String("service", cfg.App.Name+"-worker"))
	defer func() { _ = log.Sync() }()

	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler disabled by configuration, nothing to do")
		return nil
	}

	// ─── 3. ИНФРАСТРУКТУРА ───────────────────────────────────────────────────
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// ─── 4. ПЛАНИРОВЩИК ──────────────────────────────────────────────────────
	schedCfg := scheduler.DefaultConfig()
	schedCfg.Logger = log
	if cfg.Scheduler.JobTimeout > 0 {
		schedCfg.JobTimeout = cfg.Scheduler.JobTimeout
	}
	sched := scheduler.New(schedCfg)

	regen := command.NewCheckRegenerationHandler(a.CommandDeps(), a.Rules)
	regenJob := jobs.NewRegenerateLivesJob(a.Store, regen, nil, cfg.Scheduler.BatchSize, log)
	if err := sched.Register(regenJob, cfg.Scheduler.RegenTickInterval); err != nil {
		return fmt.Errorf("register %s: %w", regenJob.Name(), err)
	}

	// Без Redis пересобирать нечего: лидерборд считается из хранилища.
	if a.Cache != nil {
		rebuild := jobs.NewRebuildLeaderboardJob(a.Store, a.Cache, log)
		if err := sched.Register(rebuild, cfg.Scheduler.RebuildLeaderboardInterval); err != nil {
			return fmt.Errorf("register %s: %w", rebuild.Name(), err)
		}
		if _, err := sched.RunNow(ctx, rebuild.Name()); err != nil {
			log.Warn("initial leaderboard rebuild failed", logger.Err(err))
		}
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() { _ = sched.Stop() }()

	for _, info := range sched.ListJobs() {
		log.Info("job scheduled",
			logger.String("job", info.Name),
			logger.Duration("every", info.Every),
		)
	}

	// ─── 5. GRACEFUL SHUTDOWN ────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}

	log.Info("shutdown completed")
	return nil
}
