// Package streak содержит два независимых счётчика серий пользователя:
// серию дней активности (в часовом поясе пользователя) и серию идеальных
// раундов квиза.
package streak

import (
	"time"

	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/pkg/timeutil"
)

const domainName = "streak"

// ══════════════════════════════════════════════════════════════════════════════
// DAY STREAK
// ══════════════════════════════════════════════════════════════════════════════

// DayStreak - серия календарных дней с активностью.
// Инвариант: Longest >= Current.
type DayStreak struct {
	// UserID - владелец серии.
	UserID string

	// Current - текущая серия дней.
	Current int

	// Longest - лучшая серия дней.
	Longest int

	// LastDate - последний засчитанный день (дата, полночь UTC).
	LastDate *time.Time

	// TimeZone - IANA-имя часового пояса пользователя.
	TimeZone string

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time
}

// DayUpdate - результат обновления дневной серии.
type DayUpdate struct {
	// Current и Longest - значения после обновления.
	Current int
	Longest int

	// Date - засчитанный день в поясе пользователя.
	Date time.Time

	// Continued - серия продолжена (вчера был засчитан).
	Continued bool

	// Broken - был пропуск, серия начата заново.
	Broken bool

	// PreviousStreak - длина серии до сброса (если Broken).
	PreviousStreak int

	// Duplicate - день уже был засчитан, счётчики не менялись.
	Duplicate bool
}

// NewDayStreak создаёт пустую серию.
func NewDayStreak(userID, timeZone string) *DayStreak {
	if !timeutil.ValidZone(timeZone) {
		timeZone = timeutil.DefaultZone
	}
	return &DayStreak{
		UserID:   userID,
		TimeZone: timeZone,
	}
}

// SetTimeZone меняет часовой пояс пользователя.
func (s *DayStreak) SetTimeZone(name string) error {
	if !timeutil.ValidZone(name) {
		return shared.NewDomainError(domainName, "SetTimeZone", shared.ErrInvalidInput, "unknown time zone").
			With("time_zone", name)
	}
	s.TimeZone = name
	return nil
}

// UpdateDay засчитывает активность в момент now.
func (s *DayStreak) UpdateDay(now time.Time) DayUpdate {
	loc, _ := timeutil.LoadLocation(s.TimeZone)
	today := timeutil.CivilDate(now, loc)

	upd := DayUpdate{Date: today}

	if s.LastDate == nil {
		s.Current = 1
	} else {
		switch diff := timeutil.DaysBetween(*s.LastDate, today); {
		case diff < 0:
			// Пояс сдвинулся на запад и "сегодня" оказалось раньше засчитанного дня.
			// Считаем это тем же днём и дату назад не двигаем.
			upd.Current, upd.Longest, upd.Date = s.Current, s.Longest, timeutil.Normalize(*s.LastDate)
			upd.Duplicate = true
			return upd
		case diff == 0:
			upd.Duplicate = true
		case diff == 1:
			s.Current++
			upd.Continued = true
		default:
			upd.PreviousStreak = s.Current
			upd.Broken = true
			s.Current = 1
		}
	}

	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	s.LastDate = &today
	s.UpdatedAt = now

	upd.Current = s.Current
	upd.Longest = s.Longest
	return upd
}

// IsAtRisk возвращает true, если сегодня ещё не засчитан, а вчера был:
// без активности до конца дня серия прервётся.
func (s *DayStreak) IsAtRisk(now time.Time) bool {
	if s.LastDate == nil || s.Current == 0 {
		return false
	}
	loc, _ := timeutil.LoadLocation(s.TimeZone)
	return timeutil.DaysBetween(*s.LastDate, timeutil.CivilDate(now, loc)) == 1
}

// ══════════════════════════════════════════════════════════════════════════════
// CORRECTNESS STREAK
// ══════════════════════════════════════════════════════════════════════════════

// CorrectnessStreak - серия правильных ответов в идущих подряд идеальных раундах.
// Инвариант: Max >= Count.
type CorrectnessStreak struct {
	// UserID - владелец серии.
	UserID string

	// Count - текущая серия правильных ответов.
	Count int

	// Max - лучшая серия.
	Max int

	// LastRoundPerfect - предыдущий раунд был без ошибок.
	LastRoundPerfect bool

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time
}

// CorrectnessUpdate - результат обновления серии квизов.
type CorrectnessUpdate struct {
	Count   int
	Max     int
	Perfect bool

	// Reset - идеальная серия оборвалась этим раундом.
	Reset bool
}

// NewCorrectnessStreak создаёт пустую серию.
func NewCorrectnessStreak(userID string) *CorrectnessStreak {
	return &CorrectnessStreak{UserID: userID}
}

// UpdateCorrectness учитывает раунд квиза с correct правильными из total.
// Идеальный раунд продолжает (или начинает) серию, любой другой обнуляет её.
func (s *CorrectnessStreak) UpdateCorrectness(correct, total int, now time.Time) (CorrectnessUpdate, error) {
	if total <= 0 || correct < 0 || correct > total {
		return CorrectnessUpdate{}, shared.NewDomainError(domainName, "UpdateCorrectness", shared.ErrInvalidInput, "invalid quiz round").
			With("correct", correct).
			With("total", total)
	}

	upd := CorrectnessUpdate{Perfect: correct == total}

	if upd.Perfect {
		if s.LastRoundPerfect {
			s.Count += correct
		} else {
			s.Count = correct
		}
		s.LastRoundPerfect = true
	} else {
		upd.Reset = s.LastRoundPerfect && s.Count > 0
		s.Count = 0
		s.LastRoundPerfect = false
	}

	if s.Count > s.Max {
		s.Max = s.Count
	}
	s.UpdatedAt = now

	upd.Count = s.Count
	upd.Max = s.Max
	return upd, nil
}
