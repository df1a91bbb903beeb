package progression

import (
	"fmt"
	"strings"
	"time"

	"github.com/brainbites/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGENERATION POLICIES
// ══════════════════════════════════════════════════════════════════════════════

// Имена политик восстановления (значения конфигурации).
const (
	PolicyIncremental = "incremental"
	PolicyFullRestore = "full_restore"
)

// RegenPolicy определяет, сколько жизней вернуть за прошедшее время.
// В процессе используется ровно одна политика.
type RegenPolicy interface {
	// Name - имя политики для логов и событий.
	Name() string

	// Refill возвращает число восстановленных жизней (не больше недостающих)
	// и новую точку отсчёта таймера.
	Refill(lives int, since, now time.Time) (restored int, next time.Time)

	// NextAt - когда политика впервые что-то восстановит от точки since.
	NextAt(since time.Time) time.Time
}

// IncrementalRegen возвращает одну жизнь за каждый полный интервал.
type IncrementalRegen struct {
	Interval time.Duration
}

// NewIncrementalRegen создаёт инкрементальную политику.
func NewIncrementalRegen(interval time.Duration) IncrementalRegen {
	return IncrementalRegen{Interval: interval}
}

// Name implements RegenPolicy.
func (r IncrementalRegen) Name() string { return PolicyIncremental }

// Refill implements RegenPolicy. Точка отсчёта сдвигается ровно на n интервалов,
// поэтому остаток времени не теряется и повторный вызов с тем же now ничего не даёт.
func (r IncrementalRegen) Refill(lives int, since, now time.Time) (int, time.Time) {
	missing := MaxLives - lives
	if missing <= 0 || r.Interval <= 0 || now.Before(since) {
		return 0, since
	}

	n := int(now.Sub(since) / r.Interval)
	if n <= 0 {
		return 0, since
	}
	if n > missing {
		n = missing
	}
	return n, since.Add(time.Duration(n) * r.Interval)
}

// NextAt implements RegenPolicy.
func (r IncrementalRegen) NextAt(since time.Time) time.Time {
	return since.Add(r.Interval)
}

// FullRestoreRegen возвращает все жизни разом по истечении окна.
type FullRestoreRegen struct {
	Window time.Duration
}

// NewFullRestoreRegen создаёт политику полного восстановления.
func NewFullRestoreRegen(window time.Duration) FullRestoreRegen {
	return FullRestoreRegen{Window: window}
}

// Name implements RegenPolicy.
func (r FullRestoreRegen) Name() string { return PolicyFullRestore }

// Refill implements RegenPolicy.
func (r FullRestoreRegen) Refill(lives int, since, now time.Time) (int, time.Time) {
	missing := MaxLives - lives
	if missing <= 0 || now.Sub(since) < r.Window {
		return 0, since
	}
	return missing, now
}

// NextAt implements RegenPolicy.
func (r FullRestoreRegen) NextAt(since time.Time) time.Time {
	return since.Add(r.Window)
}

// ParseRegenPolicy собирает политику по имени из конфигурации.
// Неизвестное имя - ошибка конфигурации, молча подменять политику нельзя.
func ParseRegenPolicy(name string, interval, window time.Duration) (RegenPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicyIncremental, "":
		if interval <= 0 {
			return nil, shared.NewDomainError(domainName, "ParseRegenPolicy", shared.ErrConfiguration,
				"incremental regeneration needs a positive interval").With("interval", interval.String())
		}
		return NewIncrementalRegen(interval), nil
	case PolicyFullRestore:
		if window <= 0 {
			return nil, shared.NewDomainError(domainName, "ParseRegenPolicy", shared.ErrConfiguration,
				"full restore needs a positive window").With("window", window.String())
		}
		return NewFullRestoreRegen(window), nil
	default:
		return nil, shared.NewDomainError(domainName, "ParseRegenPolicy", shared.ErrConfiguration,
			fmt.Sprintf("unknown regeneration policy %q", name))
	}
}
