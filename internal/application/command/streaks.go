package command

import (
	"context"
	"time"

	"github.com/brainbites/progression-engine/internal/application/uow"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/domain/streak"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// UpdateDayStreakCommand records activity for the day streak.
type UpdateDayStreakCommand struct {
	UserID    string
	Timestamp time.Time
}

// DayStreakResult is the day streak after an update.
type DayStreakResult struct {
	UserID string
	streak.DayUpdate
}

// UpdateDayStreakHandler handles UpdateDayStreakCommand.
type UpdateDayStreakHandler struct {
	base
}

// NewUpdateDayStreakHandler creates a new UpdateDayStreakHandler.
func NewUpdateDayStreakHandler(d Deps) *UpdateDayStreakHandler {
	return &UpdateDayStreakHandler{base: newBase(d, "update_day_streak")}
}

// Handle executes the command. Repeated activity on the same local day is a
// no-op for the counters.
func (h *UpdateDayStreakHandler) Handle(ctx context.Context, cmd UpdateDayStreakCommand) (*DayStreakResult, error) {
	if err := requireUser("UpdateDayStreak", cmd.UserID); err != nil {
		return nil, err
	}
	now := h.at(cmd.Timestamp)

	var (
		res    *DayStreakResult
		events []shared.Event
	)
	err := h.uow.WithinUser(ctx, cmd.UserID, func(ctx context.Context, r uow.Repos) error {
		if _, err := r.Progression.Get(ctx, cmd.UserID); err != nil {
			return err
		}
		upd, evs, err := touchDay(ctx, r, cmd.UserID, now)
		if err != nil {
			return err
		}
		res, events = &DayStreakResult{UserID: cmd.UserID, DayUpdate: upd}, evs
		return nil
	})
	if err != nil {
		h.fail(cmd.UserID, err)
		return nil, err
	}

	h.publish(ctx, events)
	return res, nil
}

// touchDay advances the day streak inside an open unit of work.
func touchDay(ctx context.Context, r uow.Repos, userID string, now time.Time) (streak.DayUpdate, []shared.Event, error) {
	day, err := r.Streaks.GetDay(ctx, userID)
	if err != nil {
		return streak.DayUpdate{}, nil, err
	}

	upd := day.UpdateDay(now)
	if upd.Duplicate {
		return upd, nil, nil
	}
	if err := r.Streaks.SaveDay(ctx, day); err != nil {
		return streak.DayUpdate{}, nil, err
	}

	var events []shared.Event
	if upd.Broken {
		events = append(events, shared.NewDayStreakBrokenEvent(userID, upd.PreviousStreak, now))
	}
	events = append(events, shared.NewDayStreakUpdatedEvent(userID, upd.Current, upd.Longest, now))
	return upd, events, nil
}

// ── correctness ──────────────────────────────────────────────────────────────

// UpdateCorrectnessStreakCommand records one quiz round for the correctness streak.
type UpdateCorrectnessStreakCommand struct {
	UserID    string
	Correct   int
	Total     int
	Timestamp time.Time
}

// UpdateCorrectnessStreakHandler handles UpdateCorrectnessStreakCommand.
type UpdateCorrectnessStreakHandler struct {
	base
}

// NewUpdateCorrectnessStreakHandler creates a new UpdateCorrectnessStreakHandler.
func NewUpdateCorrectnessStreakHandler(d Deps) *UpdateCorrectnessStreakHandler {
	return &UpdateCorrectnessStreakHandler{base: newBase(d, "update_correctness_streak")}
}

// Handle executes the command.
func (h *UpdateCorrectnessStreakHandler) Handle(ctx context.Context, cmd UpdateCorrectnessStreakCommand) (*streak.CorrectnessUpdate, error) {
	if err := requireUser("UpdateCorrectnessStreak", cmd.UserID); err != nil {
		return nil, err
	}
	now := h.at(cmd.Timestamp)

	var (
		res   streak.CorrectnessUpdate
		event shared.Event
	)
	err := h.uow.WithinUser(ctx, cmd.UserID, func(ctx context.Context, r uow.Repos) error {
		if _, err := r.Progression.Get(ctx, cmd.UserID); err != nil {
			return err
		}
		upd, ev, err := touchCorrectness(ctx, r, cmd.UserID, cmd.Correct, cmd.Total, now)
		if err != nil {
			return err
		}
		res, event = upd, ev
		return nil
	})
	if err != nil {
		h.fail(cmd.UserID, err)
		return nil, err
	}

	h.publish(ctx, []shared.Event{event})
	return &res, nil
}

func touchCorrectness(ctx context.Context, r uow.Repos, userID string, correct, total int, now time.Time) (streak.CorrectnessUpdate, shared.Event, error) {
	cs, err := r.Streaks.GetCorrectness(ctx, userID)
	if err != nil {
		return streak.CorrectnessUpdate{}, nil, err
	}
	upd, err := cs.UpdateCorrectness(correct, total, now)
	if err != nil {
		return streak.CorrectnessUpdate{}, nil, err
	}
	if err := r.Streaks.SaveCorrectness(ctx, cs); err != nil {
		return streak.CorrectnessUpdate{}, nil, err
	}
	return upd, shared.NewCorrectnessStreakUpdatedEvent(userID, upd.Count, upd.Max, upd.Perfect, now), nil
}

// ── card read ────────────────────────────────────────────────────────────────

// RecordCardReadCommand counts a read card and marks the day active.
type RecordCardReadCommand struct {
	UserID    string
	Timestamp time.Time
}

// RecordCardReadResult contains the counters after a card read.
type RecordCardReadResult struct {
	UserID    string
	ReadCards int
	DayStreak streak.DayUpdate
}

// RecordCardReadHandler handles RecordCardReadCommand.
type RecordCardReadHandler struct {
	base
}

// NewRecordCardReadHandler creates a new RecordCardReadHandler.
func NewRecordCardReadHandler(d Deps) *RecordCardReadHandler {
	return &RecordCardReadHandler{base: newBase(d, "record_card_read")}
}

// Handle executes the command.
func (h *RecordCardReadHandler) Handle(ctx context.Context, cmd RecordCardReadCommand) (*RecordCardReadResult, error) {
	if err := requireUser("RecordCardRead", cmd.UserID); err != nil {
		return nil, err
	}
	now := h.at(cmd.Timestamp)

	var (
		res    *RecordCardReadResult
		events []shared.Event
	)
	err := h.uow.WithinUser(ctx, cmd.UserID, func(ctx context.Context, r uow.Repos) error {
		p, err := r.Progression.Get(ctx, cmd.UserID)
		if err != nil {
			return err
		}
		read := p.RecordCardRead(now)
		if err := r.Progression.Save(ctx, p); err != nil {
			return err
		}

		upd, dayEvents, err := touchDay(ctx, r, cmd.UserID, now)
		if err != nil {
			return err
		}

		events = append([]shared.Event{shared.NewCardReadEvent(cmd.UserID, read, now)}, dayEvents...)
		res = &RecordCardReadResult{UserID: cmd.UserID, ReadCards: read, DayStreak: upd}
		return nil
	})
	if err != nil {
		h.fail(cmd.UserID, err)
		return nil, err
	}

	h.log.Debug("card read", logger.UserID(cmd.UserID), logger.Int("read_cards", res.ReadCards))
	h.publish(ctx, events)
	return res, nil
}
