package command

import (
	"context"
	"time"

	"github.com/brainbites/progression-engine/internal/application/uow"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/domain/streak"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER USER COMMAND
// Creates the progression record and both streaks for a new account.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterUserCommand contains the data to register a user.
type RegisterUserCommand struct {
	// UserID is issued by the identity service.
	UserID string

	// TimeZone is the IANA zone used for day streaks (empty means UTC).
	TimeZone string

	// CardQuota is the daily card goal (0 uses the configured default).
	CardQuota int

	// Timestamp defaults to now if zero.
	Timestamp time.Time
}

// RegisterUserResult contains the created records.
type RegisterUserResult struct {
	Progression *progression.UserProgression
	DayStreak   *streak.DayStreak
}

// RegisterUserHandler handles RegisterUserCommand.
type RegisterUserHandler struct {
	base
	defaultQuota int
}

// NewRegisterUserHandler creates a new RegisterUserHandler.
func NewRegisterUserHandler(d Deps, rules Rules) *RegisterUserHandler {
	return &RegisterUserHandler{base: newBase(d, "register_user"), defaultQuota: rules.DailyCardQuota}
}

// Handle executes the command. A second registration of the same id fails
// with shared.ErrUserExists.
func (h *RegisterUserHandler) Handle(ctx context.Context, cmd RegisterUserCommand) (*RegisterUserResult, error) {
	if err := requireUser("RegisterUser", cmd.UserID); err != nil {
		return nil, err
	}
	if cmd.CardQuota < 0 {
		return nil, shared.NewDomainError("command", "RegisterUser", shared.ErrInvalidInput, "card quota is negative").
			With("card_quota", cmd.CardQuota)
	}

	now := h.at(cmd.Timestamp)
	quota := cmd.CardQuota
	if quota == 0 {
		quota = h.defaultQuota
	}

	day := streak.NewDayStreak(cmd.UserID, "")
	if cmd.TimeZone != "" {
		if err := day.SetTimeZone(cmd.TimeZone); err != nil {
			return nil, err
		}
	}
	day.UpdatedAt = now

	p := progression.NewUserProgression(cmd.UserID, quota, now)

	err := h.uow.WithinUser(ctx, cmd.UserID, func(ctx context.Context, r uow.Repos) error {
		if err := r.Progression.Create(ctx, p); err != nil {
			return err
		}
		if err := r.Streaks.SaveDay(ctx, day); err != nil {
			return err
		}
		c := streak.NewCorrectnessStreak(cmd.UserID)
		c.UpdatedAt = now
		return r.Streaks.SaveCorrectness(ctx, c)
	})
	if err != nil {
		h.fail(cmd.UserID, err)
		return nil, err
	}

	h.log.Info("user registered", logger.UserID(cmd.UserID), logger.String("time_zone", day.TimeZone))
	h.publish(ctx, []shared.Event{shared.NewUserRegisteredEvent(cmd.UserID, day.TimeZone, p.Lives, now)})

	return &RegisterUserResult{Progression: p, DayStreak: day}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DELETE USER COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// DeleteUserCommand removes every record of a user.
type DeleteUserCommand struct {
	UserID    string
	Timestamp time.Time
}

// DeleteUserHandler handles DeleteUserCommand.
type DeleteUserHandler struct {
	base
}

// NewDeleteUserHandler creates a new DeleteUserHandler.
func NewDeleteUserHandler(d Deps) *DeleteUserHandler {
	return &DeleteUserHandler{base: newBase(d, "delete_user")}
}

// Handle executes the command.
func (h *DeleteUserHandler) Handle(ctx context.Context, cmd DeleteUserCommand) error {
	if err := requireUser("DeleteUser", cmd.UserID); err != nil {
		return err
	}
	now := h.at(cmd.Timestamp)

	err := h.uow.WithinUser(ctx, cmd.UserID, func(ctx context.Context, r uow.Repos) error {
		if _, err := r.Progression.Get(ctx, cmd.UserID); err != nil {
			return err
		}
		return r.Progression.Delete(ctx, cmd.UserID)
	})
	if err != nil {
		h.fail(cmd.UserID, err)
		return err
	}

	h.log.Info("user deleted", logger.UserID(cmd.UserID))
	h.publish(ctx, []shared.Event{shared.NewUserDeletedEvent(cmd.UserID, now)})
	return nil
}
