package progression

import (
	"time"

	"github.com/brainbites/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Причины изменения XP (попадают в события).
const (
	ReasonQuizReward     = "quiz_reward"
	ReasonManualCredit   = "manual_credit"
	ReasonSubtopicUnlock = "subtopic_unlock"
	ReasonLifePurchase   = "life_purchase"
	ReasonManualDebit    = "manual_debit"
)

// LegacyCorrectAnswerXP - награда за правильный ответ в исходной схеме.
const LegacyCorrectAnswerXP = 10

// Credit начисляет XP.
func (p *UserProgression) Credit(amount int, now time.Time) error {
	if amount <= 0 {
		return shared.NewDomainError(domainName, "Credit", shared.ErrInvalidAmount, "credit amount must be positive").
			With("requested", amount)
	}
	p.XP = p.XP.Add(amount)
	p.UpdatedAt = now
	return nil
}

// Debit списывает XP. Баланс никогда не уходит в минус.
func (p *UserProgression) Debit(amount int, now time.Time) error {
	if amount <= 0 {
		return shared.NewDomainError(domainName, "Debit", shared.ErrInvalidAmount, "debit amount must be positive").
			With("requested", amount)
	}
	if !p.XP.Covers(amount) {
		return shared.NewDomainError(domainName, "Debit", shared.ErrInsufficientXP, "insufficient xp").
			With("balance", p.XP.Int()).
			With("requested", amount)
	}
	p.XP = p.XP.Add(-amount)
	p.UpdatedAt = now
	return nil
}

// QuizReward считает награду за раунд: correct * perAnswer * multiplier.
func QuizReward(correct, perAnswer int, multiplier float64) int {
	if correct <= 0 || perAnswer <= 0 || multiplier <= 0 {
		return 0
	}
	return int(float64(correct*perAnswer) * multiplier)
}
