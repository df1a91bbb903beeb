package badge

import (
	"context"
	"time"
)

// Catalog - справочник описаний значков, общий для всех пользователей.
type Catalog interface {
	// List возвращает все описания в стабильном порядке (по ID).
	List(ctx context.Context) ([]Definition, error)

	// Get возвращает описание по ID. Отсутствие - shared.ErrBadgeNotFound.
	Get(ctx context.Context, badgeID string) (*Definition, error)

	// Upsert создаёт или заменяет описание (загрузка справочника).
	Upsert(ctx context.Context, def Definition) error
}

// Repository - прогресс и полученные значки одного пользователя.
type Repository interface {
	// GetProgress возвращает сохранённый прогресс по ID значка.
	GetProgress(ctx context.Context, userID string) (map[string]int, error)

	// SaveProgress записывает прогресс; хранилище оставляет максимум из старого и нового.
	SaveProgress(ctx context.Context, userID, badgeID string, value int, at time.Time) error

	// ListEarned возвращает полученные значки пользователя.
	ListEarned(ctx context.Context, userID string) ([]Earned, error)

	// AwardIfAbsent атомарно создаёт запись о получении, если её ещё нет.
	// Возвращает true, только если запись создана этим вызовом.
	AwardIfAbsent(ctx context.Context, e Earned) (bool, error)
}
