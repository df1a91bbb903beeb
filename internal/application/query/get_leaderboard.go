// Package query contains read operations following CQRS pattern.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/brainbites/progression-engine/config"
	"github.com/brainbites/progression-engine/internal/domain/leaderboard"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Топ-N по одной метрике плюс позиция запрашивающего, если он вне топа.
// Сначала читает Redis, при промахе считает по хранилищу и прогревает кэш.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса лидерборда.
type GetLeaderboardQuery struct {
	// Metric - xp, readCards или badgeCount (допускаются синонимы).
	Metric string

	// UserID - запрашивающий пользователь (может отсутствовать в рейтинге).
	UserID string

	// TopN - размер топа (0 = значение по умолчанию).
	TopN int
}

// LeaderboardEntryDTO - запись лидерборда.
type LeaderboardEntryDTO struct {
	// Rank - позиция; равные значения делят позицию.
	Rank int `json:"rank"`

	// UserID - идентификатор пользователя.
	UserID string `json:"user_id"`

	// Value - значение метрики.
	Value int `json:"value"`

	// IsRequester - это запрашивающий пользователь.
	IsRequester bool `json:"is_requester"`
}

// GetLeaderboardResult содержит результат запроса лидерборда.
type GetLeaderboardResult struct {
	// Metric - каноническое имя метрики.
	Metric string `json:"metric"`

	// Entries - топ и, при необходимости, запрашивающий в конце.
	Entries []LeaderboardEntryDTO `json:"entries"`

	// Requester - позиция запрашивающего (nil, если его нет в рейтинге).
	Requester *LeaderboardEntryDTO `json:"requester,omitempty"`

	// TotalCount - всего пользователей в рейтинге.
	TotalCount int `json:"total_count"`

	// FromCache - ответ построен по Redis.
	FromCache bool `json:"from_cache"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetLeaderboardHandler обрабатывает запросы лидерборда.
type GetLeaderboardHandler struct {
	standings   leaderboard.StandingsRepository
	cache       leaderboard.Cache
	features    *config.FeatureFlags
	defaultTopN int
	clock       shared.Clock
	log         *logger.Logger
}

// NewGetLeaderboardHandler создаёт обработчик. cache может быть nil.
func NewGetLeaderboardHandler(
	standings leaderboard.StandingsRepository,
	cache leaderboard.Cache,
	features *config.FeatureFlags,
	defaultTopN int,
	log *logger.Logger,
) *GetLeaderboardHandler {
	if defaultTopN <= 0 {
		defaultTopN = leaderboard.DefaultTopN
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetLeaderboardHandler{
		standings:   standings,
		cache:       cache,
		features:    features,
		defaultTopN: defaultTopN,
		clock:       shared.SystemClock{},
		log:         log.With(logger.Component("query"), logger.Operation("get_leaderboard")),
	}
}

// Handle выполняет запрос. Неизвестная метрика - shared.ErrInvalidMetric.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	metric, err := leaderboard.ParseMetric(q.Metric)
	if err != nil {
		return nil, err
	}

	topN := q.TopN
	if topN <= 0 {
		topN = h.defaultTopN
	}

	if h.cache != nil && h.features.IsEnabled(config.FeatureLeaderboardCache, nil) {
		board, err := h.cache.Board(ctx, metric, q.UserID, topN)
		switch {
		case err == nil:
			return h.toResult(board, true), nil
		case errors.Is(err, leaderboard.ErrCacheMiss):
			h.log.Debug("leaderboard cache miss", logger.Metric(metric.String()))
		default:
			h.log.Warn("leaderboard cache failed, falling back to store", logger.Metric(metric.String()), logger.Err(err))
		}
	}

	standings, err := h.standings.ListStandings(ctx)
	if err != nil {
		return nil, err
	}

	board, err := leaderboard.Rank(standings, metric, q.UserID, topN)
	if err != nil {
		return nil, err
	}

	if h.cache != nil && h.features.IsEnabled(config.FeatureLeaderboardCache, nil) {
		if err := h.cache.Rebuild(ctx, standings); err != nil {
			h.log.Warn("failed to warm leaderboard cache", logger.Err(err))
		}
	}

	return h.toResult(board, false), nil
}

func (h *GetLeaderboardHandler) toResult(board *leaderboard.Board, fromCache bool) *GetLeaderboardResult {
	res := &GetLeaderboardResult{
		Metric:      board.Metric.String(),
		Entries:     make([]LeaderboardEntryDTO, 0, len(board.Top)+1),
		TotalCount:  board.Total,
		FromCache:   fromCache,
		GeneratedAt: h.clock.Now(),
	}
	for _, e := range board.Entries() {
		res.Entries = append(res.Entries, entryDTO(e))
	}
	if board.Requester != nil {
		dto := entryDTO(*board.Requester)
		res.Requester = &dto
	}
	return res
}

func entryDTO(e leaderboard.Entry) LeaderboardEntryDTO {
	return LeaderboardEntryDTO{
		Rank:        e.Rank.Int(),
		UserID:      e.UserID,
		Value:       e.Value,
		IsRequester: e.IsRequester,
	}
}
