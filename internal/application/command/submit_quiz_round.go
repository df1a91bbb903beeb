package command

import (
	"context"
	"time"

	"github.com/brainbites/progression-engine/config"
	"github.com/brainbites/progression-engine/internal/application/uow"
	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/domain/streak"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT QUIZ ROUND COMMAND
// One quiz round end to end: statistics, XP reward, life loss on mistakes,
// both streaks and badge evaluation, all in a single unit of work.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitQuizRoundCommand contains a finished quiz round.
type SubmitQuizRoundCommand struct {
	UserID  string
	Correct int
	Total   int

	// Snapshot is the activity snapshot for badge evaluation.
	// Its CorrectQuizAnswers is raised to the stored quiz statistics.
	Snapshot badge.ActivitySnapshot

	Timestamp time.Time
}

// SubmitQuizRoundResult contains everything the round changed.
type SubmitQuizRoundResult struct {
	UserID string

	XPEarned int
	Balance  int

	Lives      int
	LifeLost   bool
	NextLifeAt *time.Time

	Correctness streak.CorrectnessUpdate
	DayStreak   streak.DayUpdate

	// Badges is nil when badge evaluation is switched off.
	Badges *BadgeEvaluationResult
}

// SubmitQuizRoundHandler handles SubmitQuizRoundCommand.
type SubmitQuizRoundHandler struct {
	base
	rules   Rules
	catalog badge.Catalog
	engine  *badge.Engine
}

// NewSubmitQuizRoundHandler creates a new SubmitQuizRoundHandler.
func NewSubmitQuizRoundHandler(d Deps, rules Rules, catalog badge.Catalog) *SubmitQuizRoundHandler {
	return &SubmitQuizRoundHandler{
		base:    newBase(d, "submit_quiz_round"),
		rules:   rules,
		catalog: catalog,
		engine:  badge.NewEngine(),
	}
}

// Handle executes the command. An imperfect round needs a life: with zero
// lives it fails with shared.ErrNoLivesRemaining before anything changes.
func (h *SubmitQuizRoundHandler) Handle(ctx context.Context, cmd SubmitQuizRoundCommand) (*SubmitQuizRoundResult, error) {
	if err := requireUser("SubmitQuizRound", cmd.UserID); err != nil {
		return nil, err
	}
	if cmd.Total <= 0 || cmd.Correct < 0 || cmd.Correct > cmd.Total {
		return nil, shared.NewDomainError("command", "SubmitQuizRound", shared.ErrInvalidInput, "invalid quiz round").
			With("correct", cmd.Correct).
			With("total", cmd.Total)
	}
	now := h.at(cmd.Timestamp)

	var defs []badge.Definition
	evaluate := h.features.IsEnabled(config.FeatureBadgesOnQuiz, config.ForUser(cmd.UserID))
	if evaluate {
		var err error
		if defs, err = h.catalog.List(ctx); err != nil {
			h.fail(cmd.UserID, err)
			return nil, err
		}
	}

	var (
		res    *SubmitQuizRoundResult
		events []shared.Event
	)
	err := h.uow.WithinUser(ctx, cmd.UserID, func(ctx context.Context, r uow.Repos) error {
		events = nil
		res = &SubmitQuizRoundResult{UserID: cmd.UserID}

		p, err := r.Progression.Get(ctx, cmd.UserID)
		if err != nil {
			return err
		}

		events = append(events, regenerate(p, h.rules.Policy, now)...)

		perfect := cmd.Correct == cmd.Total
		if !perfect {
			loss, err := p.LoseLife(now)
			if err != nil {
				return err
			}
			res.LifeLost = true
			events = append(events, shared.NewLifeLostEvent(p.UserID, loss.LivesLeft, loss.TimerStarted, now))
		}

		p.RecordQuizRound(cmd.Correct, cmd.Total, now)

		if reward := progression.QuizReward(cmd.Correct, h.rules.CorrectAnswerXP, h.rules.XPMultiplier); reward > 0 {
			if err := p.Credit(reward, now); err != nil {
				return err
			}
			res.XPEarned = reward
			events = append(events, shared.NewXPCreditedEvent(p.UserID, reward, p.XP.Int(), progression.ReasonQuizReward, now))
		}

		if err := r.Progression.Save(ctx, p); err != nil {
			return err
		}

		correctness, ev, err := touchCorrectness(ctx, r, cmd.UserID, cmd.Correct, cmd.Total, now)
		if err != nil {
			return err
		}
		res.Correctness = correctness
		events = append(events, ev)

		day, dayEvents, err := touchDay(ctx, r, cmd.UserID, now)
		if err != nil {
			return err
		}
		res.DayStreak = day
		events = append(events, dayEvents...)

		if evaluate {
			snapshot := cmd.Snapshot
			if snapshot.CorrectQuizAnswers < p.QuizCorrectAttempts {
				snapshot.CorrectQuizAnswers = p.QuizCorrectAttempts
			}
			badges, badgeEvents, err := evaluateBadges(ctx, r, h.engine, defs, cmd.UserID, snapshot, now)
			if err != nil {
				return err
			}
			res.Badges = badges
			events = append(events, badgeEvents...)
		}

		res.Balance = p.XP.Int()
		res.Lives = p.Lives
		if next, ok := p.NextLifeAt(h.rules.Policy); ok {
			res.NextLifeAt = &next
		}
		return nil
	})
	if err != nil {
		h.fail(cmd.UserID, err)
		return nil, err
	}

	if res.Badges != nil {
		h.reportConfigErrors(cmd.UserID, res.Badges.ConfigErrors)
	}
	h.log.Debug("quiz round recorded",
		logger.UserID(cmd.UserID),
		logger.Int("correct", cmd.Correct),
		logger.Int("total", cmd.Total),
		logger.XPAmount(res.XPEarned),
		logger.Lives(res.Lives),
	)
	h.publish(ctx, events)
	return res, nil
}
