package command

import (
	"context"
	"time"

	"github.com/brainbites/progression-engine/internal/application/uow"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// XPResult is the balance after an XP command.
type XPResult struct {
	UserID  string
	Amount  int
	Balance int
	Reason  string
}

// ChangeXPCommand credits or debits XP.
type ChangeXPCommand struct {
	UserID string

	// Amount must be positive.
	Amount int

	// Reason is recorded on the event (defaults per direction).
	Reason string

	Timestamp time.Time
}

// CreditXPHandler adds XP to a balance.
type CreditXPHandler struct {
	base
}

// NewCreditXPHandler creates a new CreditXPHandler.
func NewCreditXPHandler(d Deps) *CreditXPHandler {
	return &CreditXPHandler{base: newBase(d, "credit_xp")}
}

// Handle executes the command.
func (h *CreditXPHandler) Handle(ctx context.Context, cmd ChangeXPCommand) (*XPResult, error) {
	if cmd.Reason == "" {
		cmd.Reason = progression.ReasonManualCredit
	}
	return changeXP(ctx, h.base, cmd, func(p *progression.UserProgression, now time.Time) (shared.Event, error) {
		if err := p.Credit(cmd.Amount, now); err != nil {
			return nil, err
		}
		return shared.NewXPCreditedEvent(p.UserID, cmd.Amount, p.XP.Int(), cmd.Reason, now), nil
	})
}

// DebitXPHandler spends XP. The balance never goes negative: an uncovered
// amount fails with shared.ErrInsufficientXP carrying balance and requested.
type DebitXPHandler struct {
	base
}

// NewDebitXPHandler creates a new DebitXPHandler.
func NewDebitXPHandler(d Deps) *DebitXPHandler {
	return &DebitXPHandler{base: newBase(d, "debit_xp")}
}

// Handle executes the command.
func (h *DebitXPHandler) Handle(ctx context.Context, cmd ChangeXPCommand) (*XPResult, error) {
	if cmd.Reason == "" {
		cmd.Reason = progression.ReasonManualDebit
	}
	return changeXP(ctx, h.base, cmd, debit(cmd.Amount, cmd.Reason))
}

// ── subtopic unlock ──────────────────────────────────────────────────────────

// UnlockSubtopicCommand pays for a locked subtopic.
type UnlockSubtopicCommand struct {
	UserID     string
	SubtopicID string
	Timestamp  time.Time
}

// UnlockSubtopicHandler debits the configured unlock price.
// Content access itself is owned by the content service.
type UnlockSubtopicHandler struct {
	base
	price int
}

// NewUnlockSubtopicHandler creates a new UnlockSubtopicHandler.
func NewUnlockSubtopicHandler(d Deps, rules Rules) *UnlockSubtopicHandler {
	return &UnlockSubtopicHandler{base: newBase(d, "unlock_subtopic"), price: rules.SubtopicUnlockPrice}
}

// Handle executes the command.
func (h *UnlockSubtopicHandler) Handle(ctx context.Context, cmd UnlockSubtopicCommand) (*XPResult, error) {
	if cmd.SubtopicID == "" {
		return nil, shared.NewDomainError("command", "UnlockSubtopic", shared.ErrInvalidInput, "subtopic id is required").
			With("user_id", cmd.UserID)
	}

	apply := debit(h.price, progression.ReasonSubtopicUnlock)
	if h.price == 0 {
		apply = func(*progression.UserProgression, time.Time) (shared.Event, error) { return nil, nil }
	}

	res, err := changeXP(ctx, h.base, ChangeXPCommand{
		UserID:    cmd.UserID,
		Amount:    h.price,
		Reason:    progression.ReasonSubtopicUnlock,
		Timestamp: cmd.Timestamp,
	}, apply)
	if err != nil {
		return nil, err
	}

	h.log.Info("subtopic unlocked", logger.UserID(cmd.UserID), logger.String("subtopic_id", cmd.SubtopicID))
	return res, nil
}

func debit(amount int, reason string) func(*progression.UserProgression, time.Time) (shared.Event, error) {
	return func(p *progression.UserProgression, now time.Time) (shared.Event, error) {
		if err := p.Debit(amount, now); err != nil {
			return nil, err
		}
		return shared.NewXPDebitedEvent(p.UserID, amount, p.XP.Int(), reason, now), nil
	}
}

func changeXP(
	ctx context.Context,
	b base,
	cmd ChangeXPCommand,
	apply func(*progression.UserProgression, time.Time) (shared.Event, error),
) (*XPResult, error) {
	if err := requireUser("ChangeXP", cmd.UserID); err != nil {
		return nil, err
	}
	now := b.at(cmd.Timestamp)

	var (
		res   *XPResult
		event shared.Event
	)
	err := b.uow.WithinUser(ctx, cmd.UserID, func(ctx context.Context, r uow.Repos) error {
		p, err := r.Progression.Get(ctx, cmd.UserID)
		if err != nil {
			return err
		}
		if event, err = apply(p, now); err != nil {
			return err
		}
		if event != nil {
			if err := r.Progression.Save(ctx, p); err != nil {
				return err
			}
		}
		res = &XPResult{UserID: p.UserID, Amount: cmd.Amount, Balance: p.XP.Int(), Reason: cmd.Reason}
		return nil
	})
	if err != nil {
		b.fail(cmd.UserID, err)
		return nil, err
	}

	b.log.Debug("xp changed", logger.UserID(cmd.UserID), logger.XPAmount(cmd.Amount), logger.Balance(res.Balance))
	b.publish(ctx, []shared.Event{event})
	return res, nil
}
