//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/brainbites/progression-engine/internal/domain/leaderboard"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/infrastructure/persistence/redis"
)

func setupRedis(t *testing.T) *redis.Cache {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	cfg := redis.DefaultConfig()
	cfg.Host = host
	cfg.Port = port.Int()
	cache, err := redis.NewCache(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestIntegration_LeaderboardCache(t *testing.T) {
	ctx := context.Background()
	lc := redis.NewLeaderboardCache(setupRedis(t), time.Hour)

	t.Run("cold cache misses", func(t *testing.T) {
		_, err := lc.Board(ctx, leaderboard.MetricXP, "a", 3)
		assert.ErrorIs(t, err, leaderboard.ErrCacheMiss)
	})

	require.NoError(t, lc.Rebuild(ctx, []leaderboard.Standing{
		{UserID: "d", XP: 10, ReadCards: 1},
		{UserID: "b", XP: 50, ReadCards: 2, BadgeCount: 1},
		{UserID: "c", XP: 30, ReadCards: 3},
		{UserID: "a", XP: 50, ReadCards: 4},
	}))

	t.Run("competition ranks with id tie order", func(t *testing.T) {
		board, err := lc.Board(ctx, leaderboard.MetricXP, "", 4)
		require.NoError(t, err)
		require.Len(t, board.Top, 4)
		assert.Equal(t, 4, board.Total)

		var ids []string
		var ranks []shared.Rank
		for _, e := range board.Top {
			ids = append(ids, e.UserID)
			ranks = append(ranks, e.Rank)
		}
		assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
		assert.Equal(t, []shared.Rank{1, 1, 3, 4}, ranks)
	})

	t.Run("cut inside a tie keeps id order", func(t *testing.T) {
		board, err := lc.Board(ctx, leaderboard.MetricXP, "d", 1)
		require.NoError(t, err)
		require.Len(t, board.Top, 1)
		assert.Equal(t, "a", board.Top[0].UserID)
		require.NotNil(t, board.Requester)
		assert.Equal(t, shared.Rank(4), board.Requester.Rank)
		assert.Len(t, board.Entries(), 2)
	})

	t.Run("unknown requester", func(t *testing.T) {
		board, err := lc.Board(ctx, leaderboard.MetricReadCards, "ghost", 3)
		require.NoError(t, err)
		assert.Nil(t, board.Requester)
		assert.Equal(t, "a", board.Top[0].UserID)
	})

	t.Run("invalid metric", func(t *testing.T) {
		_, err := lc.Board(ctx, leaderboard.Metric("karma"), "", 3)
		assert.ErrorIs(t, err, shared.ErrInvalidMetric)
	})

	t.Run("set score and remove", func(t *testing.T) {
		require.NoError(t, lc.SetScore(ctx, leaderboard.MetricBadgeCount, "d", 5))
		board, err := lc.Board(ctx, leaderboard.MetricBadgeCount, "d", 1)
		require.NoError(t, err)
		assert.Equal(t, "d", board.Top[0].UserID)
		assert.True(t, board.Top[0].IsRequester)

		require.NoError(t, lc.Remove(ctx, "d"))
		board, err = lc.Board(ctx, leaderboard.MetricXP, "d", 5)
		require.NoError(t, err)
		assert.Equal(t, 3, board.Total)
		assert.Nil(t, board.Requester)
	})

	t.Run("meta", func(t *testing.T) {
		meta, err := lc.Meta(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, meta.TotalUsers)
	})
}
