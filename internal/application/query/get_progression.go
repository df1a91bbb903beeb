package query

import (
	"context"
	"time"

	"github.com/brainbites/progression-engine/config"
	"github.com/brainbites/progression-engine/internal/application/command"
	"github.com/brainbites/progression-engine/internal/application/uow"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/domain/streak"
	"github.com/brainbites/progression-engine/pkg/logger"
	"github.com/brainbites/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESSION QUERY
// Жизни, XP, счётчики и обе серии пользователя. Перед чтением применяется
// ленивое восстановление жизней (идемпотентно).
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressionQuery содержит параметры запроса.
type GetProgressionQuery struct {
	UserID string
}

// ProgressionDTO - состояние пользователя.
type ProgressionDTO struct {
	UserID string `json:"user_id"`
	XP     int    `json:"xp"`

	Lives      int        `json:"lives"`
	MaxLives   int        `json:"max_lives"`
	NextLifeAt *time.Time `json:"next_life_at,omitempty"`

	EverydayCardQuota int `json:"everyday_card_quota"`
	ReadCards         int `json:"read_cards"`

	QuizTotalAttempts   int `json:"quiz_total_attempts"`
	QuizCorrectAttempts int `json:"quiz_correct_attempts"`

	DayStreak         DayStreakDTO         `json:"day_streak"`
	CorrectnessStreak CorrectnessStreakDTO `json:"correctness_streak"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DayStreakDTO - серия дней.
type DayStreakDTO struct {
	Current  int    `json:"current"`
	Longest  int    `json:"longest"`
	LastDate string `json:"last_date,omitempty"`
	TimeZone string `json:"time_zone"`
	AtRisk   bool   `json:"at_risk"`
}

// CorrectnessStreakDTO - серия идеальных раундов.
type CorrectnessStreakDTO struct {
	Count            int  `json:"count"`
	Max              int  `json:"max"`
	LastRoundPerfect bool `json:"last_round_perfect"`
}

// GetProgressionHandler обрабатывает запрос состояния пользователя.
type GetProgressionHandler struct {
	uow      uow.UnitOfWork
	regen    *command.CheckRegenerationHandler
	policy   progression.RegenPolicy
	features *config.FeatureFlags
	clock    shared.Clock
	log      *logger.Logger
}

// NewGetProgressionHandler создаёт обработчик. regen может быть nil, тогда
// восстановление выполняет только периодическая задача.
func NewGetProgressionHandler(
	u uow.UnitOfWork,
	regen *command.CheckRegenerationHandler,
	policy progression.RegenPolicy,
	features *config.FeatureFlags,
	clock shared.Clock,
	log *logger.Logger,
) *GetProgressionHandler {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetProgressionHandler{
		uow:      u,
		regen:    regen,
		policy:   policy,
		features: features,
		clock:    clock,
		log:      log.With(logger.Component("query"), logger.Operation("get_progression")),
	}
}

// Handle выполняет запрос. Неизвестный пользователь - shared.ErrUserNotFound.
func (h *GetProgressionHandler) Handle(ctx context.Context, q GetProgressionQuery) (*ProgressionDTO, error) {
	now := h.clock.Now()

	if h.regen != nil && h.features.IsEnabled(config.FeatureLazyRegeneration, config.ForUser(q.UserID)) {
		if _, err := h.regen.Handle(ctx, command.CheckRegenerationCommand{UserID: q.UserID, Timestamp: now}); err != nil {
			return nil, err
		}
	}

	var (
		p    *progression.UserProgression
		day  *streak.DayStreak
		corr *streak.CorrectnessStreak
	)
	err := h.uow.WithinUser(ctx, q.UserID, func(ctx context.Context, r uow.Repos) error {
		var err error
		if p, err = r.Progression.Get(ctx, q.UserID); err != nil {
			return err
		}
		if day, err = r.Streaks.GetDay(ctx, q.UserID); err != nil {
			return err
		}
		corr, err = r.Streaks.GetCorrectness(ctx, q.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	dto := &ProgressionDTO{
		UserID:              p.UserID,
		XP:                  p.XP.Int(),
		Lives:               p.Lives,
		MaxLives:            progression.MaxLives,
		EverydayCardQuota:   p.EverydayCardQuota,
		ReadCards:           p.ReadCards,
		QuizTotalAttempts:   p.QuizTotalAttempts,
		QuizCorrectAttempts: p.QuizCorrectAttempts,
		DayStreak: DayStreakDTO{
			Current:  day.Current,
			Longest:  day.Longest,
			TimeZone: day.TimeZone,
			AtRisk:   day.IsAtRisk(now),
		},
		CorrectnessStreak: CorrectnessStreakDTO{
			Count:            corr.Count,
			Max:              corr.Max,
			LastRoundPerfect: corr.LastRoundPerfect,
		},
		UpdatedAt: p.UpdatedAt,
	}
	if day.LastDate != nil {
		dto.DayStreak.LastDate = timeutil.FormatCivil(*day.LastDate)
	}
	if h.policy != nil {
		if next, ok := p.NextLifeAt(h.policy); ok {
			dto.NextLifeAt = &next
		}
	}
	return dto, nil
}
