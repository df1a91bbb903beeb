package progression

import (
	"time"

	"github.com/brainbites/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MaxLives - максимальное число жизней, восстанавливаемых по таймеру.
	MaxLives = 5

	// DefaultEverydayCardQuota - дневная норма карточек по умолчанию.
	DefaultEverydayCardQuota = 10

	domainName = "progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER PROGRESSION ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// UserProgression - запись прогресса пользователя: жизни, XP и счётчики активности.
// Инвариант: Lives >= MaxLives => LastLifeLostAt == nil (нет ожидающего восстановления).
type UserProgression struct {
	// UserID - идентификатор пользователя (выдаётся сервисом идентификации).
	UserID string

	// XP - баланс опыта, всегда >= 0.
	XP shared.XP

	// Lives - текущее число жизней.
	Lives int

	// LastLifeLostAt - точка отсчёта таймера восстановления.
	LastLifeLostAt *time.Time

	// EverydayCardQuota - сколько карточек пользователь планирует читать в день.
	EverydayCardQuota int

	// ReadCards - сколько карточек прочитано всего (метрика лидерборда).
	ReadCards int

	// QuizTotalAttempts - всего ответов в квизах.
	QuizTotalAttempts int

	// QuizCorrectAttempts - правильных ответов в квизах.
	QuizCorrectAttempts int

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time
}

// NewUserProgression создаёт запись для нового аккаунта: полные жизни, 0 XP.
func NewUserProgression(userID string, quota int, now time.Time) *UserProgression {
	if quota <= 0 {
		quota = DefaultEverydayCardQuota
	}
	return &UserProgression{
		UserID:            userID,
		XP:                shared.MinXP,
		Lives:             MaxLives,
		EverydayCardQuota: quota,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Validate проверяет инварианты записи.
func (p *UserProgression) Validate() error {
	if p.UserID == "" {
		return shared.NewDomainError(domainName, "Validate", shared.ErrInvalidID, "user id is empty")
	}
	if !p.XP.IsValid() {
		return shared.NewDomainError(domainName, "Validate", shared.ErrNegativeValue, "xp is negative").
			With("xp", p.XP.Int())
	}
	if p.Lives < 0 {
		return shared.NewDomainError(domainName, "Validate", shared.ErrNegativeValue, "lives are negative").
			With("lives", p.Lives)
	}
	if p.Lives >= MaxLives && p.LastLifeLostAt != nil {
		return shared.NewDomainError(domainName, "Validate", shared.ErrInvalidState, "regeneration timer set at full lives").
			With("lives", p.Lives)
	}
	return nil
}

// HasFullLives возвращает true, если восстанавливать нечего.
func (p *UserProgression) HasFullLives() bool {
	return p.Lives >= MaxLives
}

// NextLifeAt возвращает время ближайшего восстановления по политике, если таймер запущен.
func (p *UserProgression) NextLifeAt(policy RegenPolicy) (time.Time, bool) {
	if p.HasFullLives() || p.LastLifeLostAt == nil {
		return time.Time{}, false
	}
	return policy.NextAt(*p.LastLifeLostAt), true
}

// RecordQuizRound учитывает раунд квиза в статистике ответов.
func (p *UserProgression) RecordQuizRound(correct, total int, now time.Time) {
	p.QuizTotalAttempts += total
	p.QuizCorrectAttempts += correct
	p.UpdatedAt = now
}

// RecordCardRead увеличивает счётчик прочитанных карточек.
func (p *UserProgression) RecordCardRead(now time.Time) int {
	p.ReadCards++
	p.UpdatedAt = now
	return p.ReadCards
}

// Clone возвращает независимую копию записи.
func (p *UserProgression) Clone() *UserProgression {
	cp := *p
	if p.LastLifeLostAt != nil {
		t := *p.LastLifeLostAt
		cp.LastLifeLostAt = &t
	}
	return &cp
}

func (p *UserProgression) clearTimer() {
	p.LastLifeLostAt = nil
}

func (p *UserProgression) startTimer(at time.Time) {
	t := at
	p.LastLifeLostAt = &t
}
