package badge

import (
	"time"

	"github.com/brainbites/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Definition - описание значка. Общие справочные данные, только чтение.
type Definition struct {
	// ID - идентификатор значка.
	ID string

	// Name - отображаемое имя.
	Name string

	// Description - описание условия.
	Description string

	// Criterion - критерий получения.
	Criterion Criterion

	// Threshold - порог прогресса для получения (> 0).
	Threshold int
}

// Validate проверяет описание значка. Любая ошибка - ошибка конфигурации.
func (d Definition) Validate() error {
	if d.ID == "" {
		return shared.NewDomainError(domainName, "ValidateDefinition", shared.ErrInvalidCriterion, "badge id is empty")
	}
	if err := d.Criterion.Validate(); err != nil {
		return shared.WrapError(domainName, "ValidateDefinition", shared.ErrInvalidCriterion, "invalid criterion", err).
			With("badge_id", d.ID)
	}
	if d.Threshold <= 0 {
		return shared.NewDomainError(domainName, "ValidateDefinition", shared.ErrInvalidCriterion, "threshold must be positive").
			With("badge_id", d.ID).
			With("threshold", d.Threshold)
	}
	return nil
}

// Progress - частичный прогресс пользователя по значку.
type Progress struct {
	UserID    string
	BadgeID   string
	Value     int
	UpdatedAt time.Time
}

// Earned - факт получения значка. Создаётся не более одного раза на пару (пользователь, значок).
type Earned struct {
	UserID   string
	BadgeID  string
	EarnedAt time.Time
}

// Status - значок глазами пользователя: описание, прогресс, получен ли.
type Status struct {
	Definition Definition
	Progress   int
	EarnedAt   *time.Time
}

// IsEarned - значок получен.
func (s Status) IsEarned() bool {
	return s.EarnedAt != nil
}

// Percent - прогресс в процентах, не больше 100.
func (s Status) Percent() int {
	if s.IsEarned() {
		return 100
	}
	if s.Definition.Threshold <= 0 {
		return 0
	}
	pct := s.Progress * 100 / s.Definition.Threshold
	if pct > 100 {
		pct = 100
	}
	return pct
}

// BuildStatuses собирает статусы по всем описаниям в исходном порядке.
func BuildStatuses(defs []Definition, progress map[string]int, earned []Earned) []Status {
	earnedAt := make(map[string]time.Time, len(earned))
	for _, e := range earned {
		earnedAt[e.BadgeID] = e.EarnedAt
	}

	out := make([]Status, 0, len(defs))
	for _, d := range defs {
		st := Status{Definition: d, Progress: progress[d.ID]}
		if at, ok := earnedAt[d.ID]; ok {
			t := at
			st.EarnedAt = &t
		}
		out = append(out, st)
	}
	return out
}
