package streak

import "context"

// Repository определяет интерфейс хранения серий.
// Если строки ещё нет, Get* возвращают пустую серию, а не ошибку:
// серии создаются лениво при первой активности.
type Repository interface {
	// GetDay загружает дневную серию пользователя.
	GetDay(ctx context.Context, userID string) (*DayStreak, error)

	// SaveDay сохраняет дневную серию (upsert).
	SaveDay(ctx context.Context, s *DayStreak) error

	// GetCorrectness загружает серию квизов пользователя.
	GetCorrectness(ctx context.Context, userID string) (*CorrectnessStreak, error)

	// SaveCorrectness сохраняет серию квизов (upsert).
	SaveCorrectness(ctx context.Context, s *CorrectnessStreak) error
}
