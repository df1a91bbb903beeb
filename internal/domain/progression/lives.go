package progression

import (
	"time"

	"github.com/brainbites/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIVES REGULATOR
// ══════════════════════════════════════════════════════════════════════════════

// LifeLoss - результат потери жизни.
type LifeLoss struct {
	// LivesLeft - сколько жизней осталось.
	LivesLeft int

	// TimerStarted - true, если эта потеря запустила таймер восстановления.
	TimerStarted bool
}

// RegenOutcome - результат проверки восстановления.
type RegenOutcome struct {
	// Restored - сколько жизней вернулось.
	Restored int

	// Lives - жизни после проверки.
	Lives int

	// TimerCleared - таймер сброшен, жизни полные.
	TimerCleared bool

	// TimerStarted - таймера не было, отсчёт начат с now.
	TimerStarted bool

	// Policy - применённая политика.
	Policy string
}

// Changed сообщает, изменила ли проверка запись.
func (o RegenOutcome) Changed() bool {
	return o.Restored > 0 || o.TimerCleared || o.TimerStarted
}

// LoseLife тратит одну жизнь.
// Таймер запускается только при переходе MaxLives -> MaxLives-1; уже идущий
// таймер последующие потери не перезапускают. Запись без таймера при неполном
// запасе чинит CheckRegeneration, а не LoseLife.
func (p *UserProgression) LoseLife(now time.Time) (LifeLoss, error) {
	if p.Lives <= 0 {
		return LifeLoss{}, shared.NewDomainError(domainName, "LoseLife", shared.ErrNoLivesRemaining, "no lives remaining").
			With("lives", p.Lives).
			With("max_lives", MaxLives)
	}

	fromFull := p.Lives == MaxLives
	p.Lives--
	p.UpdatedAt = now

	if fromFull {
		p.startTimer(now)
	}
	started := fromFull

	return LifeLoss{LivesLeft: p.Lives, TimerStarted: started}, nil
}

// CheckRegeneration восстанавливает жизни по прошедшему времени.
// Идемпотентна: повторный вызов с тем же now ничего не меняет.
func (p *UserProgression) CheckRegeneration(policy RegenPolicy, now time.Time) RegenOutcome {
	out := RegenOutcome{Lives: p.Lives, Policy: policy.Name()}

	if p.HasFullLives() {
		if p.LastLifeLostAt != nil {
			p.clearTimer()
			p.UpdatedAt = now
			out.TimerCleared = true
		}
		return out
	}

	// Жизней меньше максимума, а таймера нет (например, после импорта данных):
	// отсчёт начинается с текущего момента.
	if p.LastLifeLostAt == nil {
		p.startTimer(now)
		p.UpdatedAt = now
		out.TimerStarted = true
		return out
	}

	restored, next := policy.Refill(p.Lives, *p.LastLifeLostAt, now)
	if restored <= 0 {
		return out
	}

	p.Lives += restored
	p.UpdatedAt = now
	if p.Lives >= MaxLives {
		p.Lives = MaxLives
		p.clearTimer()
		out.TimerCleared = true
	} else {
		p.startTimer(next)
	}

	out.Restored = restored
	out.Lives = p.Lives
	return out
}

// PurchaseLife покупает одну жизнь за XP.
// overflow - сколько жизней сверх MaxLives разрешено покупать (0 по умолчанию).
// Баланс проверяется раньше запаса жизней: при нехватке XP ошибка всегда
// ErrInsufficientXP. Отказ по запасу XP не списывает.
func (p *UserProgression) PurchaseLife(cost, overflow int, now time.Time) error {
	if cost < 0 {
		return shared.NewDomainError(domainName, "PurchaseLife", shared.ErrInvalidAmount, "life price is negative").
			With("requested", cost)
	}
	if overflow < 0 {
		overflow = 0
	}

	if !p.XP.Covers(cost) {
		return shared.NewDomainError(domainName, "PurchaseLife", shared.ErrInsufficientXP, "insufficient xp").
			With("balance", p.XP.Int()).
			With("requested", cost)
	}

	capacity := MaxLives + overflow
	if p.Lives >= capacity {
		return shared.NewDomainError(domainName, "PurchaseLife", shared.ErrLivesAtCapacity, "lives already at capacity").
			With("lives", p.Lives).
			With("capacity", capacity)
	}

	if cost > 0 {
		if err := p.Debit(cost, now); err != nil {
			return err
		}
	}

	p.Lives++
	p.UpdatedAt = now
	if p.HasFullLives() {
		p.clearTimer()
	}
	return nil
}
