// Package command contains write operations (CQRS - Commands).
// Every command mutates exactly one user inside a uow.UnitOfWork and
// publishes its domain events only after the unit of work committed.
package command

import (
	"context"
	"time"

	"github.com/brainbites/progression-engine/config"
	"github.com/brainbites/progression-engine/internal/application/uow"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RULES
// ══════════════════════════════════════════════════════════════════════════════

// Rules are the tunable gamification rules shared by all handlers.
type Rules struct {
	// Policy is the single regeneration policy of the process.
	Policy progression.RegenPolicy

	// PurchaseOverflow is how many lives above MaxLives can be bought.
	PurchaseOverflow int

	// LifePrice is the XP cost of one life.
	LifePrice int

	// SubtopicUnlockPrice is the XP cost of unlocking a subtopic.
	SubtopicUnlockPrice int

	// CorrectAnswerXP is the reward per correct quiz answer.
	CorrectAnswerXP int

	// XPMultiplier scales quiz rewards.
	XPMultiplier float64

	// DailyCardQuota is the default quota for new users.
	DailyCardQuota int
}

// DefaultRules returns the legacy rules: 30 minute incremental regeneration,
// 10 XP per correct answer.
func DefaultRules() Rules {
	return Rules{
		Policy:              progression.NewIncrementalRegen(30 * time.Minute),
		LifePrice:           50,
		SubtopicUnlockPrice: 100,
		CorrectAnswerXP:     progression.LegacyCorrectAnswerXP,
		XPMultiplier:        1,
		DailyCardQuota:      progression.DefaultEverydayCardQuota,
	}
}

// RulesFromConfig builds Rules from the engine configuration.
func RulesFromConfig(cfg config.EngineConfig) (Rules, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return Rules{}, err
	}
	return Rules{
		Policy:              policy,
		PurchaseOverflow:    cfg.PurchaseOverflow,
		LifePrice:           cfg.LifePrice,
		SubtopicUnlockPrice: cfg.SubtopicUnlockPrice,
		CorrectAnswerXP:     cfg.CorrectAnswerXP,
		XPMultiplier:        cfg.XPMultiplier,
		DailyCardQuota:      cfg.DailyCardQuota,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED HANDLER PLUMBING
// ══════════════════════════════════════════════════════════════════════════════

// Deps are the collaborators every handler needs.
type Deps struct {
	UoW       uow.UnitOfWork
	Publisher shared.EventPublisher
	Clock     shared.Clock
	Features  *config.FeatureFlags
	Logger    *logger.Logger
}

type base struct {
	uow      uow.UnitOfWork
	events   shared.EventPublisher
	clock    shared.Clock
	features *config.FeatureFlags
	log      *logger.Logger
}

func newBase(d Deps, op string) base {
	if d.Clock == nil {
		d.Clock = shared.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return base{
		uow:      d.UoW,
		events:   d.Publisher,
		clock:    d.Clock,
		features: d.Features,
		log:      d.Logger.With(logger.Component("command"), logger.Operation(op)),
	}
}

// at returns ts, or the clock's time when ts is zero.
func (b base) at(ts time.Time) time.Time {
	if ts.IsZero() {
		return b.clock.Now()
	}
	return ts.UTC()
}

// publish sends committed events. Delivery failures are logged, never returned:
// the state change already happened.
func (b base) publish(ctx context.Context, events []shared.Event) {
	if b.events == nil {
		return
	}
	for _, e := range events {
		if e == nil {
			continue
		}
		if err := b.events.Publish(e); err != nil {
			logger.FromContext(ctx).Warn("failed to publish event",
				logger.String("event_type", string(e.EventType())),
				logger.UserID(e.AggregateID()),
				logger.Err(err),
			)
		}
	}
}

// fail logs a failed command at a level matching the error kind.
func (b base) fail(userID string, err error) {
	switch {
	case shared.IsConfiguration(err):
		b.log.Error("command failed", logger.UserID(userID), logger.Err(err))
	case shared.IsNotFound(err), shared.IsValidation(err), shared.IsStateConflict(err), shared.IsAlreadyExists(err):
		b.log.Debug("command rejected", logger.UserID(userID), logger.Err(err))
	default:
		b.log.Warn("command failed", logger.UserID(userID), logger.Err(err))
	}
}

// regenerate brings lives up to date before any other lives operation.
func regenerate(p *progression.UserProgression, policy progression.RegenPolicy, now time.Time) []shared.Event {
	out := p.CheckRegeneration(policy, now)
	if out.Restored == 0 {
		return nil
	}
	return []shared.Event{shared.NewLivesRegeneratedEvent(p.UserID, out.Restored, out.Lives, out.Policy, now)}
}

func requireUser(op, userID string) error {
	if _, err := shared.NewUserID(userID); err != nil {
		return shared.WrapError("command", op, shared.ErrInvalidID, "invalid user id", err).With("user_id", userID)
	}
	return nil
}
