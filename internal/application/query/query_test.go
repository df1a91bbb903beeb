package query_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainbites/progression-engine/config"
	"github.com/brainbites/progression-engine/internal/application/command"
	"github.com/brainbites/progression-engine/internal/application/query"
	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/leaderboard"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/infrastructure/persistence/memory"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	store *memory.Store
	clock *shared.FixedClock
	deps  command.Deps
	rules command.Rules
}

func newEnv(t *testing.T, users map[string]int) *env {
	t.Helper()
	e := &env{store: memory.NewStore(), clock: &shared.FixedClock{T: t0}, rules: command.DefaultRules()}
	e.deps = command.Deps{UoW: e.store, Clock: e.clock, Features: config.NewFeatureFlags()}

	reg := command.NewRegisterUserHandler(e.deps, e.rules)
	credit := command.NewCreditXPHandler(e.deps)
	for id, xp := range users {
		_, err := reg.Handle(context.Background(), command.RegisterUserCommand{UserID: id})
		require.NoError(t, err)
		if xp > 0 {
			_, err = credit.Handle(context.Background(), command.ChangeXPCommand{UserID: id, Amount: xp})
			require.NoError(t, err)
		}
	}
	return e
}

// ── leaderboard ─────────────────────────────────────────────────────────────

func TestGetLeaderboard_SharedRanks(t *testing.T) {
	e := newEnv(t, map[string]int{"a": 50, "b": 50, "c": 30, "d": 10})
	h := query.NewGetLeaderboardHandler(e.store, nil, e.deps.Features, 0, nil)

	res, err := h.Handle(context.Background(), query.GetLeaderboardQuery{Metric: "xp", UserID: "d", TopN: 10})
	require.NoError(t, err)
	require.Len(t, res.Entries, 4)

	ranks := make([]int, 0, 4)
	ids := make([]string, 0, 4)
	for _, en := range res.Entries {
		ranks = append(ranks, en.Rank)
		ids = append(ids, en.UserID)
	}
	assert.Equal(t, []int{1, 1, 3, 4}, ranks)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	assert.True(t, res.Entries[3].IsRequester)
	assert.Equal(t, 4, res.TotalCount)
	assert.False(t, res.FromCache)
}

func TestGetLeaderboard_RequesterOutsideTop(t *testing.T) {
	e := newEnv(t, map[string]int{"a": 50, "b": 50, "c": 30, "d": 10})
	h := query.NewGetLeaderboardHandler(e.store, nil, e.deps.Features, 0, nil)

	res, err := h.Handle(context.Background(), query.GetLeaderboardQuery{Metric: "xp", UserID: "d"})
	require.NoError(t, err)
	require.Len(t, res.Entries, 4)
	assert.Equal(t, "d", res.Entries[3].UserID)
	require.NotNil(t, res.Requester)
	assert.Equal(t, 4, res.Requester.Rank)

	res, err = h.Handle(context.Background(), query.GetLeaderboardQuery{Metric: "xp", UserID: "ghost"})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 3)
	assert.Nil(t, res.Requester)
}

func TestGetLeaderboard_InvalidMetric(t *testing.T) {
	e := newEnv(t, nil)
	h := query.NewGetLeaderboardHandler(e.store, nil, e.deps.Features, 0, nil)

	_, err := h.Handle(context.Background(), query.GetLeaderboardQuery{Metric: "karma"})
	assert.ErrorIs(t, err, shared.ErrInvalidMetric)
}

type stubCache struct {
	board    *leaderboard.Board
	err      error
	rebuilds int
}

func (c *stubCache) Board(context.Context, leaderboard.Metric, string, int) (*leaderboard.Board, error) {
	return c.board, c.err
}
func (c *stubCache) SetScore(context.Context, leaderboard.Metric, string, int) error { return nil }
func (c *stubCache) Remove(context.Context, string) error                            { return nil }
func (c *stubCache) Rebuild(context.Context, []leaderboard.Standing) error {
	c.rebuilds++
	return nil
}

func TestGetLeaderboard_CachePaths(t *testing.T) {
	e := newEnv(t, map[string]int{"a": 20, "b": 10})

	hit := &stubCache{board: &leaderboard.Board{
		Metric: leaderboard.MetricXP,
		Top:    []leaderboard.Entry{{Rank: 1, UserID: "a", Value: 20}},
		Total:  2,
	}}
	res, err := query.NewGetLeaderboardHandler(e.store, hit, e.deps.Features, 1, nil).
		Handle(context.Background(), query.GetLeaderboardQuery{Metric: "xp"})
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Zero(t, hit.rebuilds)

	for _, cacheErr := range []error{leaderboard.ErrCacheMiss, errors.New("connection refused")} {
		c := &stubCache{err: cacheErr}
		res, err = query.NewGetLeaderboardHandler(e.store, c, e.deps.Features, 1, nil).
			Handle(context.Background(), query.GetLeaderboardQuery{Metric: "xp"})
		require.NoError(t, err)
		assert.False(t, res.FromCache)
		assert.Equal(t, 1, c.rebuilds)
		require.Len(t, res.Entries, 1)
		assert.Equal(t, "a", res.Entries[0].UserID)
	}

	flags := config.NewFeatureFlags()
	require.NoError(t, flags.DisableFeature(config.FeatureLeaderboardCache))
	c := &stubCache{board: hit.board}
	res, err = query.NewGetLeaderboardHandler(e.store, c, flags, 1, nil).
		Handle(context.Background(), query.GetLeaderboardQuery{Metric: "xp"})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Zero(t, c.rebuilds)
}

// ── progression ─────────────────────────────────────────────────────────────

func TestGetProgression_LazyRegeneration(t *testing.T) {
	e := newEnv(t, map[string]int{"u1": 0})
	lose := command.NewLoseLifeHandler(e.deps, e.rules)
	for i := 0; i < 2; i++ {
		_, err := lose.Handle(context.Background(), command.LoseLifeCommand{UserID: "u1"})
		require.NoError(t, err)
	}
	_, err := command.NewRecordCardReadHandler(e.deps).Handle(context.Background(), command.RecordCardReadCommand{UserID: "u1"})
	require.NoError(t, err)

	regen := command.NewCheckRegenerationHandler(e.deps, e.rules)
	h := query.NewGetProgressionHandler(e.store, regen, e.rules.Policy, e.deps.Features, e.clock, nil)

	dto, err := h.Handle(context.Background(), query.GetProgressionQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 3, dto.Lives)
	assert.Equal(t, progression.MaxLives, dto.MaxLives)
	require.NotNil(t, dto.NextLifeAt)
	assert.Equal(t, t0.Add(30*time.Minute), *dto.NextLifeAt)
	assert.Equal(t, 1, dto.ReadCards)
	assert.Equal(t, 1, dto.DayStreak.Current)
	assert.Equal(t, "2024-03-01", dto.DayStreak.LastDate)
	assert.Equal(t, "UTC", dto.DayStreak.TimeZone)

	e.clock.Advance(31 * time.Minute)
	dto, err = h.Handle(context.Background(), query.GetProgressionQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 4, dto.Lives)

	e.clock.Advance(time.Hour)
	dto, err = h.Handle(context.Background(), query.GetProgressionQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, progression.MaxLives, dto.Lives)
	assert.Nil(t, dto.NextLifeAt)
}

func TestGetProgression_UnknownUser(t *testing.T) {
	e := newEnv(t, nil)
	h := query.NewGetProgressionHandler(e.store, nil, e.rules.Policy, e.deps.Features, e.clock, nil)

	_, err := h.Handle(context.Background(), query.GetProgressionQuery{UserID: "ghost"})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

// ── badges ──────────────────────────────────────────────────────────────────

func TestGetBadges(t *testing.T) {
	e := newEnv(t, map[string]int{"u1": 0})
	ctx := context.Background()
	require.NoError(t, e.store.Upsert(ctx, badge.Definition{ID: "quiz-20", Name: "Quizzer", Criterion: badge.CorrectQuizAnswers(), Threshold: 20}))
	require.NoError(t, e.store.Upsert(ctx, badge.Definition{ID: "reader-5", Name: "Reader", Criterion: badge.ReadCards(), Threshold: 5}))

	_, err := command.NewEvaluateBadgesHandler(e.deps, e.store).Handle(ctx, command.EvaluateBadgesCommand{
		UserID:   "u1",
		Snapshot: badge.ActivitySnapshot{ReadCards: 6, CorrectQuizAnswers: 5},
	})
	require.NoError(t, err)

	h := query.NewGetBadgesHandler(e.store, e.store)
	res, err := h.Handle(ctx, query.GetBadgesQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, res.Badges, 2)
	assert.Equal(t, 1, res.EarnedCount)

	quiz := res.Badges[0]
	assert.Equal(t, "quiz-20", quiz.ID)
	assert.Equal(t, 5, quiz.Progress)
	assert.Equal(t, 25, quiz.Percent)
	assert.False(t, quiz.Earned)

	reader := res.Badges[1]
	assert.True(t, reader.Earned)
	require.NotNil(t, reader.EarnedAt)
	assert.Equal(t, 100, reader.Percent)

	one, err := h.HandleOne(ctx, query.GetBadgeQuery{UserID: "u1", BadgeID: "reader-5"})
	require.NoError(t, err)
	assert.True(t, one.Earned)

	_, err = h.HandleOne(ctx, query.GetBadgeQuery{UserID: "u1", BadgeID: "nope"})
	assert.ErrorIs(t, err, shared.ErrBadgeNotFound)

	_, err = h.Handle(ctx, query.GetBadgesQuery{UserID: "ghost"})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}
