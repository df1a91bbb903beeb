package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainbites/progression-engine/internal/domain/shared"
)

func standings(xp ...int) []Standing {
	ids := []string{"alice", "bob", "carol", "dave", "erin", "frank"}
	out := make([]Standing, len(xp))
	for i, v := range xp {
		out[i] = Standing{UserID: ids[i], XP: v, ReadCards: v / 10, BadgeCount: i}
	}
	return out
}

func ranks(entries []Entry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Rank.Int()
	}
	return out
}

func TestRank_SharedRanks(t *testing.T) {
	board, err := Rank(standings(50, 50, 30, 10), MetricXP, "", 4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 3, 4}, ranks(board.Top))
}

func TestRank_TiesOrderedByUserID(t *testing.T) {
	in := []Standing{{UserID: "zed", XP: 10}, {UserID: "amy", XP: 10}, {UserID: "max", XP: 20}}

	board, err := Rank(in, MetricXP, "", 3)
	require.NoError(t, err)
	require.Len(t, board.Top, 3)
	assert.Equal(t, "max", board.Top[0].UserID)
	assert.Equal(t, "amy", board.Top[1].UserID)
	assert.Equal(t, "zed", board.Top[2].UserID)
}

func TestRank_RequesterOutsideTopAppended(t *testing.T) {
	board, err := Rank(standings(90, 80, 70, 60, 50), MetricXP, "erin", 3)
	require.NoError(t, err)

	entries := board.Entries()
	require.Len(t, entries, 4)
	last := entries[3]
	assert.Equal(t, "erin", last.UserID)
	assert.Equal(t, shared.Rank(5), last.Rank)
	assert.True(t, last.IsRequester)
}

func TestRank_RequesterInsideTopNotDuplicated(t *testing.T) {
	board, err := Rank(standings(90, 80, 70, 60), MetricXP, "bob", 3)
	require.NoError(t, err)

	entries := board.Entries()
	assert.Len(t, entries, 3)
	assert.True(t, entries[1].IsRequester)
	require.NotNil(t, board.Requester)
	assert.True(t, board.RequesterInTop())
}

func TestRank_UnknownRequesterTolerated(t *testing.T) {
	board, err := Rank(standings(90, 80), MetricXP, "ghost", 3)
	require.NoError(t, err)
	assert.Nil(t, board.Requester)
	assert.Len(t, board.Entries(), 2)
}

func TestRank_DefaultTopN(t *testing.T) {
	board, err := Rank(standings(6, 5, 4, 3, 2, 1), MetricXP, "", 0)
	require.NoError(t, err)
	assert.Len(t, board.Top, DefaultTopN)
	assert.Equal(t, 6, board.Total)
}

func TestRank_OtherMetrics(t *testing.T) {
	board, err := Rank(standings(90, 80, 70), MetricBadgeCount, "", 3)
	require.NoError(t, err)
	assert.Equal(t, "carol", board.Top[0].UserID)
	assert.Equal(t, 2, board.Top[0].Value)

	board, err = Rank(standings(90, 80, 70), MetricReadCards, "", 1)
	require.NoError(t, err)
	assert.Equal(t, 9, board.Top[0].Value)
}

func TestRank_InvalidMetric(t *testing.T) {
	_, err := Rank(standings(1), Metric("karma"), "", 3)
	assert.ErrorIs(t, err, shared.ErrInvalidMetric)
}

func TestParseMetric(t *testing.T) {
	for name, want := range map[string]Metric{
		"xp":          MetricXP,
		"XP":          MetricXP,
		"readCards":   MetricReadCards,
		"CARDS":       MetricReadCards,
		"badge_count": MetricBadgeCount,
		"BADGES":      MetricBadgeCount,
	} {
		got, err := ParseMetric(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseMetric("streak")
	assert.True(t, shared.IsValidation(err))
}

func TestRankOf(t *testing.T) {
	values := []int{50, 50, 30, 10}
	assert.Equal(t, shared.Rank(1), RankOf(values, 50))
	assert.Equal(t, shared.Rank(3), RankOf(values, 30))
	assert.Equal(t, shared.Rank(4), RankOf(values, 10))
}
