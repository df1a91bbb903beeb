// Package jobs contains the periodic jobs run by the progression scheduler.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/brainbites/progression-engine/internal/application/command"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGENERATE LIVES JOB
// ══════════════════════════════════════════════════════════════════════════════

// Regenerator applies pending regeneration to one user.
type Regenerator interface {
	Handle(ctx context.Context, cmd command.CheckRegenerationCommand) (*command.LivesResult, error)
}

// RegenerateLivesJob walks every user below the lives maximum and applies
// time-based regeneration. Reads use the same code path, so the tick only
// makes stored state catch up for users who are not active.
type RegenerateLivesJob struct {
	index       progression.RegenIndex
	regenerator Regenerator
	clock       shared.Clock
	batchSize   int
	log         *logger.Logger

	lastStats atomic.Value // *RegenStats
}

// RegenStats contains statistics from one tick.
type RegenStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Scanned   int
	Restored  int
	Failed    int
}

// NewRegenerateLivesJob creates a new regeneration job.
func NewRegenerateLivesJob(
	index progression.RegenIndex,
	regenerator Regenerator,
	clock shared.Clock,
	batchSize int,
	log *logger.Logger,
) *RegenerateLivesJob {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RegenerateLivesJob{
		index:       index,
		regenerator: regenerator,
		clock:       clock,
		batchSize:   batchSize,
		log:         log.With(logger.Component("job"), logger.Operation("regenerate_lives")),
	}
}

// Name returns the job name.
func (j *RegenerateLivesJob) Name() string { return "regenerate_lives" }

// Description returns a human-readable description.
func (j *RegenerateLivesJob) Description() string {
	return "Restores lives for users whose regeneration timer elapsed"
}

// Run executes one tick. Every user in the tick is evaluated at the same
// instant. A failing user is logged and skipped.
func (j *RegenerateLivesJob) Run(ctx context.Context) error {
	now := j.clock.Now()
	stats := &RegenStats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	var (
		after    string
		firstErr error
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids, err := j.index.ListAwaitingLives(ctx, after, j.batchSize)
		if err != nil {
			return fmt.Errorf("list awaiting lives after %q: %w", after, err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			stats.Scanned++
			res, err := j.regenerator.Handle(ctx, command.CheckRegenerationCommand{UserID: id, Timestamp: now})
			if err != nil {
				// Deleted between the scan and the update.
				if shared.IsNotFound(err) {
					continue
				}
				stats.Failed++
				if firstErr == nil {
					firstErr = err
				}
				j.log.Warn("regeneration failed", logger.UserID(id), logger.Err(err))
				continue
			}
			stats.Restored += res.Restored
		}

		after = ids[len(ids)-1]
		if len(ids) < j.batchSize {
			break
		}
	}

	j.log.Info("regeneration tick completed",
		logger.Int("scanned", stats.Scanned),
		logger.Int("restored", stats.Restored),
		logger.Int("failed", stats.Failed),
	)
	if firstErr != nil {
		return fmt.Errorf("%d of %d users failed: %w", stats.Failed, stats.Scanned, firstErr)
	}
	return nil
}

// LastStats returns statistics of the most recent run, or nil.
func (j *RegenerateLivesJob) LastStats() *RegenStats {
	if v, ok := j.lastStats.Load().(*RegenStats); ok {
		return v
	}
	return nil
}
