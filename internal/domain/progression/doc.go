// Package progression содержит доменную модель прогресса пользователя BrainBites.
//
// Пакет владеет записью UserProgression и двумя механизмами, которые её меняют:
//
//   - LivesRegulator: расход жизней, восстановление по таймеру, покупка за XP
//   - XPLedger: начисление и списание XP с проверкой баланса
//
// # Архитектурные принципы
//
//  1. Нулевые внешние зависимости - только стандартная библиотека Go
//  2. Чистые функции от (состояние, now) - время передаётся явно
//  3. Dependency Inversion - Repository реализуется в infrastructure
//
// Сериализация изменений одного пользователя (блокировка строки или
// эквивалент) - ответственность application-слоя, не домена.
//
// # Пример
//
//	p := NewUserProgression("user-1", DefaultEverydayCardQuota, now)
//	if _, err := p.LoseLife(now); err != nil {
//	    // shared.ErrNoLivesRemaining
//	}
//	out := p.CheckRegeneration(NewIncrementalRegen(time.Minute), now.Add(time.Minute))
package progression
