package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brainbites/progression-engine/internal/domain/leaderboard"
	"github.com/brainbites/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache serves leaderboards from Redis Sorted Sets.
//
// Architecture:
//   - Sorted Set "progression:leaderboard:{metric}" stores userID -> value
//   - String "progression:leaderboard:meta" marks the sets as built
//
// Equal scores come back from ZRANGEBYSCORE in lexicographic member order,
// which is the tie order of the leaderboard.
type LeaderboardCache struct {
	cache *Cache
	ttl   time.Duration
}

// LeaderboardMeta describes the last full rebuild.
type LeaderboardMeta struct {
	RebuiltAt  time.Time `json:"rebuilt_at"`
	TotalUsers int       `json:"total_users"`
}

const keyLeaderboardMeta = PrefixLeaderboard + "meta"

// NewLeaderboardCache creates a LeaderboardCache. ttl of 0 keeps the keys
// until the next rebuild.
func NewLeaderboardCache(cache *Cache, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{cache: cache, ttl: ttl}
}

func metricKey(m leaderboard.Metric) string {
	return PrefixLeaderboard + m.Key()
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// SetScore updates one user's value for one metric. O(log N).
func (l *LeaderboardCache) SetScore(ctx context.Context, metric leaderboard.Metric, userID string, value int) error {
	if userID == "" {
		return ErrCacheKeyEmpty
	}
	return l.cache.Client().ZAdd(ctx, metricKey(metric), redis.Z{
		Score:  float64(value),
		Member: userID,
	}).Err()
}

// Remove deletes the user from every metric.
func (l *LeaderboardCache) Remove(ctx context.Context, userID string) error {
	pipe := l.cache.Client().Pipeline()
	for _, m := range leaderboard.Metrics() {
		pipe.ZRem(ctx, metricKey(m), userID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Rebuild replaces every sorted set in one MULTI/EXEC transaction.
func (l *LeaderboardCache) Rebuild(ctx context.Context, standings []leaderboard.Standing) error {
	pipe := l.cache.Client().TxPipeline()

	for _, m := range leaderboard.Metrics() {
		key := metricKey(m)
		pipe.Del(ctx, key)

		members := make([]redis.Z, 0, len(standings))
		for _, s := range standings {
			if s.UserID == "" {
				continue
			}
			members = append(members, redis.Z{Score: float64(s.Value(m)), Member: s.UserID})
		}
		if len(members) == 0 {
			continue
		}
		pipe.ZAdd(ctx, key, members...)
		if l.ttl > 0 {
			pipe.Expire(ctx, key, l.ttl)
		}
	}

	meta, err := json.Marshal(LeaderboardMeta{RebuiltAt: time.Now().UTC(), TotalUsers: len(standings)})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	pipe.Set(ctx, keyLeaderboardMeta, meta, l.ttl)

	_, err = pipe.Exec(ctx)
	return err
}

// Meta returns the last rebuild metadata or leaderboard.ErrCacheMiss.
func (l *LeaderboardCache) Meta(ctx context.Context) (*LeaderboardMeta, error) {
	var meta LeaderboardMeta
	err := l.cache.Get(ctx, keyLeaderboardMeta, &meta)
	if errors.Is(err, ErrCacheMiss) {
		return nil, leaderboard.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Board builds the top-N of metric plus the requester's position.
// Returns leaderboard.ErrCacheMiss until the first Rebuild.
func (l *LeaderboardCache) Board(ctx context.Context, metric leaderboard.Metric, requesterID string, topN int) (*leaderboard.Board, error) {
	if _, err := leaderboard.ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if topN <= 0 {
		topN = leaderboard.DefaultTopN
	}
	if _, err := l.Meta(ctx); err != nil {
		return nil, err
	}

	client := l.cache.Client()
	key := metricKey(metric)

	total, err := client.ZCard(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	board := &leaderboard.Board{Metric: metric, Total: int(total)}
	top, err := l.top(ctx, key, topN)
	if err != nil {
		return nil, err
	}
	for i := range top {
		top[i].IsRequester = top[i].UserID == requesterID
	}
	board.Top = top

	if requesterID == "" {
		return board, nil
	}
	score, err := client.ZScore(ctx, key, requesterID).Result()
	if errors.Is(err, redis.Nil) {
		return board, nil
	}
	if err != nil {
		return nil, err
	}
	rank, err := l.rankOf(ctx, key, score)
	if err != nil {
		return nil, err
	}
	board.Requester = &leaderboard.Entry{
		Rank:        rank,
		UserID:      requesterID,
		Value:       int(score),
		IsRequester: true,
	}
	return board, nil
}

// top returns the first n entries ordered by value descending, then user id
// ascending. ZREVRANGE orders ties in reverse, so the last score group is
// refetched in ascending member order.
func (l *LeaderboardCache) top(ctx context.Context, key string, n int) ([]leaderboard.Entry, error) {
	client := l.cache.Client()

	head, err := client.ZRevRangeWithScores(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(head) == 0 {
		return nil, nil
	}

	boundary := head[len(head)-1].Score
	above := make([]redis.Z, 0, len(head))
	for _, z := range head {
		if z.Score > boundary {
			above = append(above, z)
		}
	}
	sort.SliceStable(above, func(i, j int) bool {
		if above[i].Score != above[j].Score {
			return above[i].Score > above[j].Score
		}
		return member(above[i]) < member(above[j])
	})

	bound := strconv.FormatFloat(boundary, 'f', -1, 64)
	tied, err := client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:    bound,
		Max:    bound,
		Offset: 0,
		Count:  int64(n - len(above)),
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]leaderboard.Entry, 0, n)
	for i, z := range above {
		rank := shared.Rank(i + 1)
		if i > 0 && z.Score == above[i-1].Score {
			rank = out[i-1].Rank
		}
		out = append(out, leaderboard.Entry{Rank: rank, UserID: member(z), Value: int(z.Score)})
	}
	tiedRank := shared.Rank(len(above) + 1)
	for _, id := range tied {
		out = append(out, leaderboard.Entry{Rank: tiedRank, UserID: id, Value: int(boundary)})
	}
	return out, nil
}

// rankOf is 1 + the number of members with a strictly greater score.
func (l *LeaderboardCache) rankOf(ctx context.Context, key string, score float64) (shared.Rank, error) {
	greater, err := l.cache.Client().ZCount(ctx, key, "("+strconv.FormatFloat(score, 'f', -1, 64), "+inf").Result()
	if err != nil {
		return shared.Unranked, err
	}
	return shared.Rank(greater + 1), nil
}

func member(z redis.Z) string {
	if s, ok := z.Member.(string); ok {
		return s
	}
	return fmt.Sprint(z.Member)
}

var _ leaderboard.Cache = (*LeaderboardCache)(nil)
