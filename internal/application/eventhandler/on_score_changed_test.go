package eventhandler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainbites/progression-engine/config"
	"github.com/brainbites/progression-engine/internal/domain/leaderboard"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/infrastructure/messaging"
)

type fakeCache struct {
	mu      sync.Mutex
	scores  map[leaderboard.Metric]map[string]int
	removed []string
	err     error

	// delay holds SetScore for the given value before it writes.
	delay map[int]time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{scores: make(map[leaderboard.Metric]map[string]int)}
}

func (c *fakeCache) Board(context.Context, leaderboard.Metric, string, int) (*leaderboard.Board, error) {
	return nil, leaderboard.ErrCacheMiss
}

func (c *fakeCache) SetScore(_ context.Context, m leaderboard.Metric, userID string, v int) error {
	if d := c.delay[v]; d > 0 {
		time.Sleep(d)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.scores[m] == nil {
		c.scores[m] = make(map[string]int)
	}
	c.scores[m][userID] = v
	return nil
}

func (c *fakeCache) score(m leaderboard.Metric, userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scores[m][userID]
}

func (c *fakeCache) Remove(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, userID)
	return nil
}

func (c *fakeCache) Rebuild(context.Context, []leaderboard.Standing) error { return nil }

type subscriptions map[shared.EventType][]shared.EventHandler

func (s subscriptions) Subscribe(t shared.EventType, h shared.EventHandler) error {
	s[t] = append(s[t], h)
	return nil
}

func (s subscriptions) SubscribeAll(shared.EventHandler) error { return nil }

func TestOnScoreChanged_UpdatesEveryMetric(t *testing.T) {
	cache := newFakeCache()
	h := NewOnScoreChangedHandler(cache, config.NewFeatureFlags(), nil)
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	events := []shared.Event{
		shared.NewUserRegisteredEvent("u1", "UTC", 5, at),
		shared.NewXPCreditedEvent("u1", 40, 40, "quiz_reward", at),
		shared.NewLifePurchasedEvent("u1", 25, 5, 15, at),
		shared.NewCardReadEvent("u1", 7, at),
		shared.NewBadgeEarnedEvent("u1", "b1", "B1", 1, 1, 2, at),
	}
	for _, e := range events {
		require.NoError(t, h.Handle(e))
	}

	assert.Equal(t, 15, cache.scores[leaderboard.MetricXP]["u1"])
	assert.Equal(t, 7, cache.scores[leaderboard.MetricReadCards]["u1"])
	assert.Equal(t, 2, cache.scores[leaderboard.MetricBadgeCount]["u1"])

	require.NoError(t, h.Handle(shared.NewUserDeletedEvent("u1", at)))
	assert.Equal(t, []string{"u1"}, cache.removed)
}

func TestOnScoreChanged_CacheErrorsAreSwallowed(t *testing.T) {
	cache := newFakeCache()
	cache.err = errors.New("redis down")
	h := NewOnScoreChangedHandler(cache, config.NewFeatureFlags(), nil)

	err := h.Handle(shared.NewCardReadEvent("u1", 1, time.Now()))
	assert.NoError(t, err)
}

func TestOnScoreChanged_FeatureOff(t *testing.T) {
	cache := newFakeCache()
	flags := config.NewFeatureFlags()
	require.NoError(t, flags.DisableFeature(config.FeatureLeaderboardCache))
	h := NewOnScoreChangedHandler(cache, flags, nil)

	require.NoError(t, h.Handle(shared.NewCardReadEvent("u1", 1, time.Now())))
	assert.Empty(t, cache.scores)
}

func TestOnScoreChanged_Register(t *testing.T) {
	subs := subscriptions{}
	require.NoError(t, NewOnScoreChangedHandler(newFakeCache(), nil, nil).Register(subs))

	for _, tp := range []shared.EventType{shared.EventXPCredited, shared.EventXPDebited, shared.EventCardRead, shared.EventBadgeEarned} {
		assert.Len(t, subs[tp], 1, tp)
	}
	assert.Empty(t, subs[shared.EventLifeLost])
}

func TestOnScoreChanged_AsyncBusKeepsLatestBalance(t *testing.T) {
	cache := newFakeCache()
	cache.delay = map[int]time.Duration{10: 50 * time.Millisecond}

	bus := messaging.NewInMemoryEventBus(messaging.DefaultInMemoryEventBusConfig())
	defer bus.Close()

	h := NewOnScoreChangedHandler(cache, config.NewFeatureFlags(), nil)
	require.NoError(t, h.Register(bus))

	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(shared.NewXPCreditedEvent("u1", 10, 10, "quiz_reward", at)))
	require.NoError(t, bus.Publish(shared.NewXPCreditedEvent("u1", 10, 20, "quiz_reward", at)))
	bus.Drain()

	assert.Equal(t, 20, cache.score(leaderboard.MetricXP, "u1"))
}
