package command

import (
	"context"
	"time"

	"github.com/brainbites/progression-engine/internal/application/uow"
	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE BADGES COMMAND
// Runs the badge engine against an activity snapshot, persists progress and
// awards every badge whose threshold was reached. Awarding is an
// insert-if-absent, so replays of the same snapshot never award twice.
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateBadgesCommand contains the snapshot to evaluate.
type EvaluateBadgesCommand struct {
	UserID    string
	Snapshot  badge.ActivitySnapshot
	Timestamp time.Time
}

// AwardedBadge is a badge earned by this evaluation.
type AwardedBadge struct {
	BadgeID  string
	Name     string
	Progress int
	EarnedAt time.Time
}

// BadgeEvaluationResult summarizes one evaluation.
type BadgeEvaluationResult struct {
	UserID string

	// Awarded lists badges newly earned by this call only.
	Awarded []AwardedBadge

	// Progress holds the progress of every evaluated badge.
	Progress map[string]int

	// ConfigErrors are badges skipped because of bad definitions.
	ConfigErrors []error

	// BadgeCount is the number of earned badges after the evaluation.
	BadgeCount int
}

// EvaluateBadgesHandler handles EvaluateBadgesCommand.
type EvaluateBadgesHandler struct {
	base
	catalog badge.Catalog
	engine  *badge.Engine
}

// NewEvaluateBadgesHandler creates a new EvaluateBadgesHandler.
func NewEvaluateBadgesHandler(d Deps, catalog badge.Catalog) *EvaluateBadgesHandler {
	return &EvaluateBadgesHandler{base: newBase(d, "evaluate_badges"), catalog: catalog, engine: badge.NewEngine()}
}

// Handle executes the command.
func (h *EvaluateBadgesHandler) Handle(ctx context.Context, cmd EvaluateBadgesCommand) (*BadgeEvaluationResult, error) {
	if err := requireUser("EvaluateBadges", cmd.UserID); err != nil {
		return nil, err
	}
	now := h.at(cmd.Timestamp)

	defs, err := h.catalog.List(ctx)
	if err != nil {
		h.fail(cmd.UserID, err)
		return nil, err
	}

	var (
		res    *BadgeEvaluationResult
		events []shared.Event
	)
	err = h.uow.WithinUser(ctx, cmd.UserID, func(ctx context.Context, r uow.Repos) error {
		if _, err := r.Progression.Get(ctx, cmd.UserID); err != nil {
			return err
		}
		res, events, err = evaluateBadges(ctx, r, h.engine, defs, cmd.UserID, cmd.Snapshot, now)
		return err
	})
	if err != nil {
		h.fail(cmd.UserID, err)
		return nil, err
	}

	h.reportConfigErrors(cmd.UserID, res.ConfigErrors)
	for _, a := range res.Awarded {
		h.log.Info("badge earned", logger.UserID(cmd.UserID), logger.BadgeID(a.BadgeID))
	}
	h.publish(ctx, events)
	return res, nil
}

func (b base) reportConfigErrors(userID string, errs []error) {
	for _, e := range errs {
		b.log.Error("badge definition skipped", logger.UserID(userID), logger.Err(e))
	}
}

// evaluateBadges runs inside an open unit of work.
func evaluateBadges(
	ctx context.Context,
	r uow.Repos,
	engine *badge.Engine,
	defs []badge.Definition,
	userID string,
	snapshot badge.ActivitySnapshot,
	now time.Time,
) (*BadgeEvaluationResult, []shared.Event, error) {
	earnedList, err := r.Badges.ListEarned(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	earned := make(map[string]bool, len(earnedList))
	for _, e := range earnedList {
		earned[e.BadgeID] = true
	}

	progress, err := r.Badges.GetProgress(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	ev := engine.Evaluate(defs, earned, progress, snapshot)

	res := &BadgeEvaluationResult{
		UserID:       userID,
		Progress:     make(map[string]int, len(ev.Outcomes)),
		ConfigErrors: ev.ConfigErrors,
		BadgeCount:   len(earnedList),
	}
	var events []shared.Event

	for _, o := range ev.Outcomes {
		res.Progress[o.Definition.ID] = o.Progress

		if o.NeedsSave() {
			if err := r.Badges.SaveProgress(ctx, userID, o.Definition.ID, o.Progress, now); err != nil {
				return nil, nil, err
			}
		}
		if !o.Reached {
			continue
		}

		inserted, err := r.Badges.AwardIfAbsent(ctx, badge.Earned{UserID: userID, BadgeID: o.Definition.ID, EarnedAt: now})
		if err != nil {
			return nil, nil, err
		}
		if !inserted {
			continue
		}

		res.BadgeCount++
		res.Awarded = append(res.Awarded, AwardedBadge{
			BadgeID:  o.Definition.ID,
			Name:     o.Definition.Name,
			Progress: o.Progress,
			EarnedAt: now,
		})
		events = append(events, shared.NewBadgeEarnedEvent(
			userID, o.Definition.ID, o.Definition.Name, o.Progress, o.Definition.Threshold, res.BadgeCount, now,
		))
	}

	return res, events, nil
}
