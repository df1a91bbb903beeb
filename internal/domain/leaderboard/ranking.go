package leaderboard

import (
	"sort"

	"github.com/brainbites/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// Ranking - полный отсортированный список пользователей по одной метрике.
type Ranking struct {
	metric  Metric
	entries []*Entry
	byID    map[string]*Entry
}

// NewRanking создаёт пустой Ranking для метрики.
func NewRanking(metric Metric) *Ranking {
	return &Ranking{
		metric:  metric,
		entries: make([]*Entry, 0),
		byID:    make(map[string]*Entry),
	}
}

// Add добавляет запись в рейтинг (без автоматической сортировки).
func (r *Ranking) Add(entry *Entry) error {
	if entry == nil {
		return ErrNilEntry
	}
	if _, exists := r.byID[entry.UserID]; exists {
		return ErrDuplicateUser
	}

	r.entries = append(r.entries, entry)
	r.byID[entry.UserID] = entry
	return nil
}

// Sort сортирует по значению (по убыванию), при равенстве - по UserID
// (по возрастанию), и присваивает ранги: равные значения делят место,
// следующее место = 1 + число пользователей со строго большим значением.
func (r *Ranking) Sort() {
	sort.Slice(r.entries, func(i, j int) bool {
		if r.entries[i].Value != r.entries[j].Value {
			return r.entries[i].Value > r.entries[j].Value
		}
		return r.entries[i].UserID < r.entries[j].UserID
	})

	for i, entry := range r.entries {
		if i > 0 && entry.Value == r.entries[i-1].Value {
			entry.Rank = r.entries[i-1].Rank
		} else {
			entry.Rank = shared.Rank(i + 1)
		}
	}
}

// GetByID возвращает запись по ID пользователя.
func (r *Ranking) GetByID(userID string) *Entry {
	return r.byID[userID]
}

// Top возвращает топ-N записей.
func (r *Ranking) Top(n int) []*Entry {
	if n <= 0 {
		return nil
	}
	if n > len(r.entries) {
		n = len(r.entries)
	}
	result := make([]*Entry, n)
	copy(result, r.entries[:n])
	return result
}

// Count возвращает количество записей.
func (r *Ranking) Count() int {
	return len(r.entries)
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKER
// ══════════════════════════════════════════════════════════════════════════════

// Rank строит лидерборд по срезу значений всех пользователей.
// Неизвестный requesterID допустим: Board.Requester будет nil.
func Rank(standings []Standing, metric Metric, requesterID string, topN int) (*Board, error) {
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if topN <= 0 {
		topN = DefaultTopN
	}

	ranking := NewRanking(metric)
	for _, s := range standings {
		// Дубликаты в источнике игнорируются: первая запись побеждает.
		_ = ranking.Add(&Entry{UserID: s.UserID, Value: s.Value(metric)})
	}
	ranking.Sort()

	board := &Board{Metric: metric, Total: ranking.Count()}
	for _, e := range ranking.Top(topN) {
		entry := *e
		entry.IsRequester = entry.UserID == requesterID
		board.Top = append(board.Top, entry)
	}

	if requesterID != "" {
		if e := ranking.GetByID(requesterID); e != nil {
			entry := *e
			entry.IsRequester = true
			board.Requester = &entry
		}
	}

	return board, nil
}

// RankOf - место значения value среди values: 1 + число строго больших.
func RankOf(values []int, value int) shared.Rank {
	greater := 0
	for _, v := range values {
		if v > value {
			greater++
		}
	}
	return shared.Rank(greater + 1)
}
