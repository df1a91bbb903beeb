// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"time"

	"github.com/brainbites/progression-engine/config"
	"github.com/brainbites/progression-engine/internal/domain/leaderboard"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON SCORE CHANGED HANDLER
// Держит кэш лидерборда в актуальном состоянии между полными пересборками.
//
// Каждое событие несёт новое значение метрики целиком (баланс XP, число
// прочитанных карточек, число значков), поэтому обработчик идемпотентен:
// повторная доставка записывает то же значение.
//
// Кэш - ускоритель чтения, а не источник истины. Ошибка записи в Redis
// логируется и не возвращается: следующая пересборка всё исправит.
// ═══════════════════════════════════════════════════════════════════════════

// OnScoreChangedHandler обновляет кэш лидерборда по доменным событиям.
type OnScoreChangedHandler struct {
	cache    leaderboard.Cache
	features *config.FeatureFlags
	timeout  time.Duration
	logger   *logger.Logger
}

// NewOnScoreChangedHandler создаёт обработчик.
func NewOnScoreChangedHandler(cache leaderboard.Cache, features *config.FeatureFlags, log *logger.Logger) *OnScoreChangedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnScoreChangedHandler{
		cache:    cache,
		features: features,
		timeout:  2 * time.Second,
		logger:   log.With(logger.Component("eventhandler"), logger.String("handler", "on_score_changed")),
	}
}

// orderedSubscriber - шина, доставляющая события одного пользователя
// строго в порядке публикации.
type orderedSubscriber interface {
	SubscribeOrdered(eventType shared.EventType, handler shared.EventHandler) error
}

// Register подписывает обработчик на все события, меняющие метрики.
// Кэш хранит абсолютные значения, поэтому если шина умеет упорядоченную
// доставку, используется она: иначе старый баланс может перезаписать новый.
func (h *OnScoreChangedHandler) Register(bus shared.EventSubscriber) error {
	subscribe := bus.Subscribe
	if ob, ok := bus.(orderedSubscriber); ok {
		subscribe = ob.SubscribeOrdered
	}

	for _, t := range []shared.EventType{
		shared.EventUserRegistered,
		shared.EventUserDeleted,
		shared.EventXPCredited,
		shared.EventXPDebited,
		shared.EventLifePurchased,
		shared.EventCardRead,
		shared.EventBadgeEarned,
	} {
		if err := subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle обрабатывает событие. Реализует shared.EventHandler.
func (h *OnScoreChangedHandler) Handle(event shared.Event) error {
	if h.cache == nil || !h.features.IsEnabled(config.FeatureLeaderboardCache, nil) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	userID := event.AggregateID()

	var err error
	switch e := event.(type) {
	case shared.UserRegisteredEvent:
		for _, m := range leaderboard.Metrics() {
			if err = h.cache.SetScore(ctx, m, userID, 0); err != nil {
				break
			}
		}
	case shared.UserDeletedEvent:
		err = h.cache.Remove(ctx, userID)
	case shared.XPChangedEvent:
		err = h.cache.SetScore(ctx, leaderboard.MetricXP, userID, e.Balance)
	case shared.LifePurchasedEvent:
		err = h.cache.SetScore(ctx, leaderboard.MetricXP, userID, e.XPBalance)
	case shared.CardReadEvent:
		err = h.cache.SetScore(ctx, leaderboard.MetricReadCards, userID, e.ReadCards)
	case shared.BadgeEarnedEvent:
		err = h.cache.SetScore(ctx, leaderboard.MetricBadgeCount, userID, e.BadgeCount)
	default:
		h.logger.Warn("unexpected event type", logger.String("event_type", string(event.EventType())))
		return nil
	}

	if err != nil {
		h.logger.Warn("failed to update leaderboard cache",
			logger.UserID(userID),
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
	return nil
}
