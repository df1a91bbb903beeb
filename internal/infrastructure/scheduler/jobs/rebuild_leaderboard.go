package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/brainbites/progression-engine/internal/domain/leaderboard"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// RebuildLeaderboardJob refills the leaderboard cache from the store of
// record. Incremental score updates keep the cache fresh between runs; the
// rebuild repairs drift after missed events or an evicted cache.
type RebuildLeaderboardJob struct {
	standings leaderboard.StandingsRepository
	cache     leaderboard.Cache
	log       *logger.Logger

	lastStats atomic.Value // *RebuildStats
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt  time.Time
	Duration   time.Duration
	TotalUsers int
}

// NewRebuildLeaderboardJob creates a new rebuild leaderboard job.
func NewRebuildLeaderboardJob(standings leaderboard.StandingsRepository, cache leaderboard.Cache, log *logger.Logger) *RebuildLeaderboardJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RebuildLeaderboardJob{
		standings: standings,
		cache:     cache,
		log:       log.With(logger.Component("job"), logger.Operation("rebuild_leaderboard")),
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string { return "rebuild_leaderboard" }

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Rebuilds the cached leaderboards for every metric from stored standings"
}

// Run executes the rebuild job.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	standings, err := j.standings.ListStandings(ctx)
	if err != nil {
		return fmt.Errorf("list standings: %w", err)
	}
	if err := j.cache.Rebuild(ctx, standings); err != nil {
		return fmt.Errorf("rebuild cache: %w", err)
	}

	stats := &RebuildStats{
		StartedAt:  startedAt,
		Duration:   time.Since(startedAt),
		TotalUsers: len(standings),
	}
	j.lastStats.Store(stats)

	j.log.Info("leaderboard rebuilt",
		logger.Int("total_users", stats.TotalUsers),
		logger.Latency(stats.Duration),
	)
	return nil
}

// LastStats returns statistics of the most recent successful run, or nil.
func (j *RebuildLeaderboardJob) LastStats() *RebuildStats {
	if v, ok := j.lastStats.Load().(*RebuildStats); ok {
		return v
	}
	return nil
}
