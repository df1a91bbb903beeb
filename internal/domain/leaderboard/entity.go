// Package leaderboard содержит доменную модель лидерборда BrainBites.
// Лидерборд - чистое чтение по записям всех пользователей: сортировка
// по выбранной метрике, общий ранг при равенстве и срез топ-N плюс
// позиция запросившего пользователя.
package leaderboard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/brainbites/progression-engine/internal/domain/shared"
)

const domainName = "leaderboard"

// DefaultTopN - размер топа по умолчанию.
const DefaultTopN = 3

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Metric - метрика ранжирования.
type Metric string

const (
	// MetricXP - баланс опыта (категория XP).
	MetricXP Metric = "xp"

	// MetricReadCards - прочитанные карточки (категория CARDS).
	MetricReadCards Metric = "readCards"

	// MetricBadgeCount - полученные значки (категория BADGES).
	MetricBadgeCount Metric = "badgeCount"
)

// Metrics возвращает все поддерживаемые метрики.
func Metrics() []Metric {
	return []Metric{MetricXP, MetricReadCards, MetricBadgeCount}
}

// ParseMetric разбирает имя метрики, включая псевдонимы категорий.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "xp", "experience":
		return MetricXP, nil
	case "readcards", "read_cards", "cards":
		return MetricReadCards, nil
	case "badgecount", "badge_count", "badges":
		return MetricBadgeCount, nil
	}
	return "", shared.NewDomainError(domainName, "ParseMetric", shared.ErrInvalidMetric,
		fmt.Sprintf("unknown metric %q", name)).With("metric", name)
}

// String возвращает имя метрики.
func (m Metric) String() string {
	return string(m)
}

// Key - имя метрики в snake_case для ключей кэша и колонок.
func (m Metric) Key() string {
	switch m {
	case MetricReadCards:
		return "read_cards"
	case MetricBadgeCount:
		return "badge_count"
	default:
		return "xp"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STANDING / ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Standing - значения всех метрик одного пользователя.
type Standing struct {
	UserID     string
	XP         int
	ReadCards  int
	BadgeCount int
}

// Value возвращает значение выбранной метрики.
func (s Standing) Value(m Metric) int {
	switch m {
	case MetricReadCards:
		return s.ReadCards
	case MetricBadgeCount:
		return s.BadgeCount
	default:
		return s.XP
	}
}

// Entry - строка лидерборда.
type Entry struct {
	// Rank - место (1-based), общее для равных значений.
	Rank shared.Rank

	// UserID - пользователь.
	UserID string

	// Value - значение метрики.
	Value int

	// IsRequester - это запросивший пользователь.
	IsRequester bool
}

// Board - результат ранжирования.
type Board struct {
	// Metric - метрика ранжирования.
	Metric Metric

	// Top - топ-N записей.
	Top []Entry

	// Requester - запись запросившего (nil, если пользователь неизвестен).
	Requester *Entry

	// Total - всего пользователей в рейтинге.
	Total int
}

// RequesterInTop - запросивший уже есть в топе.
func (b *Board) RequesterInTop() bool {
	if b.Requester == nil {
		return false
	}
	for _, e := range b.Top {
		if e.UserID == b.Requester.UserID {
			return true
		}
	}
	return false
}

// Entries возвращает топ и, если запросивший вне топа, его запись в конце.
// Запросивший никогда не дублируется.
func (b *Board) Entries() []Entry {
	out := make([]Entry, len(b.Top), len(b.Top)+1)
	copy(out, b.Top)
	if b.Requester != nil && !b.RequesterInTop() {
		out = append(out, *b.Requester)
	}
	return out
}

// Ошибки построения рейтинга.
var (
	ErrNilEntry      = errors.New("leaderboard entry is nil")
	ErrDuplicateUser = errors.New("user already in ranking")
)
