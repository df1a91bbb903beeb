package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainbites/progression-engine/internal/domain/shared"
)

var day1 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestUpdateDay_ConsecutiveDaysIncrement(t *testing.T) {
	s := NewDayStreak("u1", "UTC")

	for i := 0; i < 5; i++ {
		upd := s.UpdateDay(day1.AddDate(0, 0, i))
		assert.Equal(t, i+1, upd.Current)
		assert.False(t, upd.Broken)
	}
	assert.Equal(t, 5, s.Longest)
}

func TestUpdateDay_TwoDayGapBreaks(t *testing.T) {
	s := NewDayStreak("u1", "UTC")
	s.UpdateDay(day1)
	s.UpdateDay(day1.AddDate(0, 0, 1))
	s.UpdateDay(day1.AddDate(0, 0, 2))

	upd := s.UpdateDay(day1.AddDate(0, 0, 4))
	assert.True(t, upd.Broken)
	assert.Equal(t, 3, upd.PreviousStreak)
	assert.Equal(t, 1, s.Current)
	assert.Equal(t, 3, s.Longest)
}

func TestUpdateDay_SameDayIsIdempotent(t *testing.T) {
	s := NewDayStreak("u1", "UTC")
	s.UpdateDay(day1)

	upd := s.UpdateDay(day1.Add(10 * time.Hour))
	assert.True(t, upd.Duplicate)
	assert.Equal(t, 1, s.Current)
	assert.Equal(t, 1, s.Longest)
}

func TestUpdateDay_UsesUserTimeZone(t *testing.T) {
	s := NewDayStreak("u1", "Asia/Almaty")

	// 09:00 UTC and 20:00 UTC on the same UTC day are different days in Almaty.
	s.UpdateDay(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	upd := s.UpdateDay(time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC))

	assert.True(t, upd.Continued)
	assert.Equal(t, 2, s.Current)
}

func TestUpdateDay_DateBehindStoredIsDuplicate(t *testing.T) {
	s := NewDayStreak("u1", "UTC")
	s.UpdateDay(day1.AddDate(0, 0, 1))
	stored := *s.LastDate

	upd := s.UpdateDay(day1)
	assert.True(t, upd.Duplicate)
	assert.Equal(t, stored, *s.LastDate)
	assert.Equal(t, 1, s.Current)
}

func TestUpdateDay_LongestNeverBelowCurrent(t *testing.T) {
	s := NewDayStreak("u1", "UTC")
	for i := 0; i < 30; i += 1 + i%3 {
		s.UpdateDay(day1.AddDate(0, 0, i))
		assert.GreaterOrEqual(t, s.Longest, s.Current)
	}
}

func TestNewDayStreak_InvalidZoneFallsBack(t *testing.T) {
	s := NewDayStreak("u1", "Nowhere/Special")
	assert.Equal(t, "UTC", s.TimeZone)

	err := s.SetTimeZone("Nowhere/Special")
	assert.True(t, shared.IsValidation(err))
	require.NoError(t, s.SetTimeZone("Europe/Berlin"))
}

func TestIsAtRisk(t *testing.T) {
	s := NewDayStreak("u1", "UTC")
	s.UpdateDay(day1)

	assert.False(t, s.IsAtRisk(day1))
	assert.True(t, s.IsAtRisk(day1.AddDate(0, 0, 1)))
	assert.False(t, s.IsAtRisk(day1.AddDate(0, 0, 2)))
}

func TestUpdateCorrectness(t *testing.T) {
	type round struct{ correct, total int }

	tests := []struct {
		name      string
		rounds    []round
		wantCount int
		wantMax   int
	}{
		{name: "single perfect round", rounds: []round{{5, 5}}, wantCount: 5, wantMax: 5},
		{name: "perfect rounds accumulate", rounds: []round{{5, 5}, {3, 3}}, wantCount: 8, wantMax: 8},
		{name: "imperfect round zeroes", rounds: []round{{5, 5}, {3, 4}}, wantCount: 0, wantMax: 5},
		{name: "perfect after imperfect restarts", rounds: []round{{5, 5}, {1, 4}, {2, 2}}, wantCount: 2, wantMax: 5},
		{name: "imperfect from start", rounds: []round{{2, 5}}, wantCount: 0, wantMax: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewCorrectnessStreak("u1")
			for _, r := range tt.rounds {
				_, err := s.UpdateCorrectness(r.correct, r.total, day1)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, s.Max, s.Count)
			}
			assert.Equal(t, tt.wantCount, s.Count)
			assert.Equal(t, tt.wantMax, s.Max)
		})
	}
}

func TestUpdateCorrectness_RejectsInvalidRounds(t *testing.T) {
	s := NewCorrectnessStreak("u1")

	for _, r := range [][2]int{{0, 0}, {-1, 3}, {4, 3}} {
		_, err := s.UpdateCorrectness(r[0], r[1], day1)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	}
	assert.Equal(t, 0, s.Count)
}

func TestUpdateCorrectness_ReportsReset(t *testing.T) {
	s := NewCorrectnessStreak("u1")
	_, _ = s.UpdateCorrectness(4, 4, day1)

	upd, err := s.UpdateCorrectness(2, 4, day1)
	require.NoError(t, err)
	assert.True(t, upd.Reset)
	assert.False(t, upd.Perfect)
}
