// Package uow defines the per-user unit of work that every write goes through.
// Stores implement UnitOfWork; handlers only see the repositories bound to
// the transaction.
package uow

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/domain/streak"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// Repos are the repositories bound to one unit of work.
type Repos struct {
	Progression progression.Repository
	Streaks     streak.Repository
	Badges      badge.Repository
}

// Func is the body of a unit of work.
type Func func(ctx context.Context, repos Repos) error

// UnitOfWork serializes mutations of one user.
// Implementations commit when fn returns nil and roll back otherwise; two
// units of work for the same user never interleave.
type UnitOfWork interface {
	WithinUser(ctx context.Context, userID string, fn Func) error
}

// RetryConfig configures retries of units of work that lost a lock race.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns defaults suited to short row-lock waits.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// Retrying re-runs a unit of work when the store reports a retryable
// failure (serialization conflict, lock timeout, unavailable backend).
// Domain errors are returned on the first attempt.
type Retrying struct {
	inner   UnitOfWork
	retrier retry.Retry[struct{}]
	log     *logger.Logger
}

// NewRetrying wraps a UnitOfWork with exponential backoff retries.
func NewRetrying(inner UnitOfWork, cfg RetryConfig, log *logger.Logger) *Retrying {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Retrying{
		inner: inner,
		retrier: retry.New[struct{}](retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  cfg.InitialDelay,
			MaxDelay:      cfg.MaxDelay,
			Multiplier:    cfg.Multiplier,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   shared.IsRetryable,
		}),
		log: log.With(logger.Component("uow")),
	}
}

// WithinUser implements UnitOfWork.
func (r *Retrying) WithinUser(ctx context.Context, userID string, fn Func) error {
	var (
		attempt int
		last    error
	)
	_, err := r.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
		attempt++
		if attempt > 1 {
			r.log.Debug("retrying unit of work", logger.UserID(userID), logger.Int("attempt", attempt))
		}
		last = r.inner.WithinUser(ctx, userID, fn)
		return struct{}{}, last
	})
	if err == nil {
		return nil
	}
	// Callers match on the store's error kinds, not on the retrier's wrapper.
	if last != nil {
		return last
	}
	return err
}
