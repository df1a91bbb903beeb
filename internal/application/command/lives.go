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
// LIVES COMMANDS
// Lose, regenerate and purchase lives. Each operation first applies pending
// regeneration so the timer baseline is current.
// ══════════════════════════════════════════════════════════════════════════════

// LivesResult is the lives state after a lives command.
type LivesResult struct {
	UserID string
	Lives  int
	XP     int

	// NextLifeAt is set while a regeneration timer runs.
	NextLifeAt *time.Time

	// Restored counts lives regenerated by this call.
	Restored int

	// TimerStarted is true when this loss started the regeneration timer.
	TimerStarted bool
}

func livesResult(p *progression.UserProgression, policy progression.RegenPolicy) *LivesResult {
	res := &LivesResult{UserID: p.UserID, Lives: p.Lives, XP: p.XP.Int()}
	if next, ok := p.NextLifeAt(policy); ok {
		res.NextLifeAt = &next
	}
	return res
}

// ── lose ─────────────────────────────────────────────────────────────────────

// LoseLifeCommand spends one life.
type LoseLifeCommand struct {
	UserID    string
	Timestamp time.Time
}

// LoseLifeHandler handles LoseLifeCommand.
type LoseLifeHandler struct {
	base
	policy progression.RegenPolicy
}

// NewLoseLifeHandler creates a new LoseLifeHandler.
func NewLoseLifeHandler(d Deps, rules Rules) *LoseLifeHandler {
	return &LoseLifeHandler{base: newBase(d, "lose_life"), policy: rules.Policy}
}

// Handle executes the command. With no lives left it fails with
// shared.ErrNoLivesRemaining and changes nothing.
func (h *LoseLifeHandler) Handle(ctx context.Context, cmd LoseLifeCommand) (*LivesResult, error) {
	if err := requireUser("LoseLife", cmd.UserID); err != nil {
		return nil, err
	}
	now := h.at(cmd.Timestamp)

	var (
		res    *LivesResult
		events []shared.Event
	)
	err := h.uow.WithinUser(ctx, cmd.UserID, func(ctx context.Context, r uow.Repos) error {
		events = nil

		p, err := r.Progression.Get(ctx, cmd.UserID)
		if err != nil {
			return err
		}

		events = append(events, regenerate(p, h.policy, now)...)

		loss, err := p.LoseLife(now)
		if err != nil {
			return err
		}
		if err := r.Progression.Save(ctx, p); err != nil {
			return err
		}

		events = append(events, shared.NewLifeLostEvent(p.UserID, loss.LivesLeft, loss.TimerStarted, now))
		res = livesResult(p, h.policy)
		res.TimerStarted = loss.TimerStarted
		return nil
	})
	if err != nil {
		h.fail(cmd.UserID, err)
		return nil, err
	}

	h.log.Debug("life lost", logger.UserID(cmd.UserID), logger.Lives(res.Lives))
	h.publish(ctx, events)
	return res, nil
}

// ── regenerate ───────────────────────────────────────────────────────────────

// CheckRegenerationCommand applies time-based regeneration to one user.
type CheckRegenerationCommand struct {
	UserID    string
	Timestamp time.Time
}

// CheckRegenerationHandler handles CheckRegenerationCommand.
// It is idempotent for a given timestamp and is shared by the read path and
// the periodic regeneration job.
type CheckRegenerationHandler struct {
	base
	policy progression.RegenPolicy
}

// NewCheckRegenerationHandler creates a new CheckRegenerationHandler.
func NewCheckRegenerationHandler(d Deps, rules Rules) *CheckRegenerationHandler {
	return &CheckRegenerationHandler{base: newBase(d, "check_regeneration"), policy: rules.Policy}
}

// Handle executes the command.
func (h *CheckRegenerationHandler) Handle(ctx context.Context, cmd CheckRegenerationCommand) (*LivesResult, error) {
	if err := requireUser("CheckRegeneration", cmd.UserID); err != nil {
		return nil, err
	}
	now := h.at(cmd.Timestamp)

	var (
		res    *LivesResult
		events []shared.Event
	)
	err := h.uow.WithinUser(ctx, cmd.UserID, func(ctx context.Context, r uow.Repos) error {
		events = nil

		p, err := r.Progression.Get(ctx, cmd.UserID)
		if err != nil {
			return err
		}

		out := p.CheckRegeneration(h.policy, now)
		if out.Changed() {
			if err := r.Progression.Save(ctx, p); err != nil {
				return err
			}
		}
		if out.Restored > 0 {
			events = append(events, shared.NewLivesRegeneratedEvent(p.UserID, out.Restored, out.Lives, out.Policy, now))
		}

		res = livesResult(p, h.policy)
		res.Restored = out.Restored
		return nil
	})
	if err != nil {
		h.fail(cmd.UserID, err)
		return nil, err
	}

	if res.Restored > 0 {
		h.log.Debug("lives regenerated", logger.UserID(cmd.UserID), logger.Int("restored", res.Restored), logger.Lives(res.Lives))
	}
	h.publish(ctx, events)
	return res, nil
}

// ── purchase ─────────────────────────────────────────────────────────────────

// PurchaseLifeCommand buys one life for the configured XP price.
type PurchaseLifeCommand struct {
	UserID    string
	Timestamp time.Time
}

// PurchaseLifeHandler handles PurchaseLifeCommand.
type PurchaseLifeHandler struct {
	base
	policy   progression.RegenPolicy
	price    int
	overflow int
}

// NewPurchaseLifeHandler creates a new PurchaseLifeHandler.
func NewPurchaseLifeHandler(d Deps, rules Rules) *PurchaseLifeHandler {
	return &PurchaseLifeHandler{
		base:     newBase(d, "purchase_life"),
		policy:   rules.Policy,
		price:    rules.LifePrice,
		overflow: rules.PurchaseOverflow,
	}
}

// Handle executes the command. Fails with shared.ErrLivesAtCapacity when no
// more lives can be held and with shared.ErrInsufficientXP when the balance
// does not cover the price.
func (h *PurchaseLifeHandler) Handle(ctx context.Context, cmd PurchaseLifeCommand) (*LivesResult, error) {
	if err := requireUser("PurchaseLife", cmd.UserID); err != nil {
		return nil, err
	}
	if !h.features.IsEnabled(config.FeatureLifePurchase, config.ForUser(cmd.UserID)) {
		return nil, shared.NewDomainError("command", "PurchaseLife", shared.ErrInvalidState, "life purchase is disabled").
			With("user_id", cmd.UserID)
	}
	now := h.at(cmd.Timestamp)

	var (
		res    *LivesResult
		events []shared.Event
	)
	err := h.uow.WithinUser(ctx, cmd.UserID, func(ctx context.Context, r uow.Repos) error {
		events = nil

		p, err := r.Progression.Get(ctx, cmd.UserID)
		if err != nil {
			return err
		}

		events = append(events, regenerate(p, h.policy, now)...)

		if err := p.PurchaseLife(h.price, h.overflow, now); err != nil {
			return err
		}
		if err := r.Progression.Save(ctx, p); err != nil {
			return err
		}

		if h.price > 0 {
			events = append(events, shared.NewXPDebitedEvent(p.UserID, h.price, p.XP.Int(), progression.ReasonLifePurchase, now))
		}
		events = append(events, shared.NewLifePurchasedEvent(p.UserID, h.price, p.Lives, p.XP.Int(), now))
		res = livesResult(p, h.policy)
		return nil
	})
	if err != nil {
		h.fail(cmd.UserID, err)
		return nil, err
	}

	h.log.Info("life purchased", logger.UserID(cmd.UserID), logger.Lives(res.Lives), logger.Balance(res.XP))
	h.publish(ctx, events)
	return res, nil
}
