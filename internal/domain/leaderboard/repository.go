package leaderboard

import (
	"context"
	"errors"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// StandingsRepository отдаёт значения метрик всех пользователей.
// Чтение без блокировок; достаточно снимка или eventual consistency.
type StandingsRepository interface {
	// ListStandings возвращает значения метрик всех пользователей.
	ListStandings(ctx context.Context) ([]Standing, error)
}

// ErrCacheMiss - кэш не прогрет для метрики.
var ErrCacheMiss = errors.New("leaderboard cache miss")

// Cache - быстрый путь чтения лидерборда (sorted sets в Redis).
// Семантика Board совпадает с Rank.
type Cache interface {
	// Board строит лидерборд из кэша. Непрогретый кэш - ErrCacheMiss.
	Board(ctx context.Context, metric Metric, requesterID string, topN int) (*Board, error)

	// SetScore обновляет значение метрики пользователя.
	SetScore(ctx context.Context, metric Metric, userID string, value int) error

	// Remove удаляет пользователя из всех метрик.
	Remove(ctx context.Context, userID string) error

	// Rebuild полностью пересобирает кэш по срезу значений.
	Rebuild(ctx context.Context, standings []Standing) error
}
