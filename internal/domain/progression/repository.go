package progression

import "context"

// Repository определяет интерфейс хранения записей прогресса.
// Реализации внутри единицы работы уже держат блокировку пользователя.
type Repository interface {
	// Create сохраняет новую запись. Дубликат - shared.ErrUserExists.
	Create(ctx context.Context, p *UserProgression) error

	// Get загружает запись. Отсутствие - shared.ErrUserNotFound.
	Get(ctx context.Context, userID string) (*UserProgression, error)

	// Save перезаписывает изменяемые поля записи.
	Save(ctx context.Context, p *UserProgression) error

	// Delete удаляет запись и все зависимые строки пользователя.
	Delete(ctx context.Context, userID string) error
}

// RegenIndex находит пользователей, ожидающих восстановления жизней.
// Используется периодическим тиком; чтение без блокировок.
type RegenIndex interface {
	// ListAwaitingLives возвращает до limit идентификаторов с Lives < MaxLives,
	// упорядоченных по возрастанию и строго больших afterUserID.
	ListAwaitingLives(ctx context.Context, afterUserID string, limit int) ([]string, error)
}
