package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainbites/progression-engine/internal/application/uow"
	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/domain/streak"
	"github.com/brainbites/progression-engine/internal/infrastructure/persistence/sqlite"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) (*sqlite.DB, *sqlite.Store) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "progression.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db, sqlite.NewStore(db, 5*time.Second)
}

func create(t *testing.T, s *sqlite.Store, id string) {
	t.Helper()
	err := s.WithinUser(context.Background(), id, func(ctx context.Context, r uow.Repos) error {
		return r.Progression.Create(ctx, progression.NewUserProgression(id, 0, t0))
	})
	require.NoError(t, err)
}

func TestOpenAndMigrate(t *testing.T) {
	db, _ := openStore(t)
	ctx := context.Background()

	var journalMode string
	require.NoError(t, db.GetContext(ctx, &journalMode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", journalMode)

	var fk int
	require.NoError(t, db.GetContext(ctx, &fk, "PRAGMA foreign_keys"))
	assert.Equal(t, 1, fk)

	version, err := db.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	require.NoError(t, db.Migrate(ctx), "second run is a no-op")
}

func TestStore_ProgressionLifecycle(t *testing.T) {
	_, s := openStore(t)
	ctx := context.Background()

	create(t, s, "alice")

	err := s.WithinUser(ctx, "alice", func(ctx context.Context, r uow.Repos) error {
		return r.Progression.Create(ctx, progression.NewUserProgression("alice", 0, t0))
	})
	assert.ErrorIs(t, err, shared.ErrUserExists)

	err = s.WithinUser(ctx, "alice", func(ctx context.Context, r uow.Repos) error {
		p, err := r.Progression.Get(ctx, "alice")
		if err != nil {
			return err
		}
		if _, err := p.LoseLife(t0); err != nil {
			return err
		}
		if err := p.Credit(30, t0); err != nil {
			return err
		}
		return r.Progression.Save(ctx, p)
	})
	require.NoError(t, err)

	// A failing unit of work leaves nothing behind.
	err = s.WithinUser(ctx, "alice", func(ctx context.Context, r uow.Repos) error {
		p, err := r.Progression.Get(ctx, "alice")
		require.NoError(t, err)
		require.NoError(t, p.Credit(1000, t0))
		require.NoError(t, r.Progression.Save(ctx, p))
		return p.Debit(5000, t0)
	})
	require.ErrorIs(t, err, shared.ErrInsufficientXP)

	err = s.WithinUser(ctx, "alice", func(ctx context.Context, r uow.Repos) error {
		p, err := r.Progression.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 30, p.XP.Int())
		assert.Equal(t, 4, p.Lives)
		require.NotNil(t, p.LastLifeLostAt)
		assert.True(t, p.LastLifeLostAt.Equal(t0))
		return nil
	})
	require.NoError(t, err)

	err = s.WithinUser(ctx, "ghost", func(ctx context.Context, r uow.Repos) error {
		_, err := r.Progression.Get(ctx, "ghost")
		return err
	})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	err = s.WithinUser(ctx, "alice", func(ctx context.Context, r uow.Repos) error {
		_, err := r.Progression.Get(ctx, "bob")
		return err
	})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestStore_Streaks(t *testing.T) {
	_, s := openStore(t)
	ctx := context.Background()
	create(t, s, "alice")

	err := s.WithinUser(ctx, "alice", func(ctx context.Context, r uow.Repos) error {
		day, err := r.Streaks.GetDay(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 0, day.Current)
		require.NoError(t, day.SetTimeZone("Asia/Almaty"))
		day.UpdateDay(t0)
		if err := r.Streaks.SaveDay(ctx, day); err != nil {
			return err
		}

		c, err := r.Streaks.GetCorrectness(ctx, "alice")
		require.NoError(t, err)
		_, err = c.UpdateCorrectness(3, 3, t0)
		require.NoError(t, err)
		return r.Streaks.SaveCorrectness(ctx, c)
	})
	require.NoError(t, err)

	err = s.WithinUser(ctx, "alice", func(ctx context.Context, r uow.Repos) error {
		day, err := r.Streaks.GetDay(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 1, day.Current)
		assert.Equal(t, "Asia/Almaty", day.TimeZone)
		require.NotNil(t, day.LastDate)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *day.LastDate)

		c, err := r.Streaks.GetCorrectness(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 3, c.Count)
		assert.True(t, c.LastRoundPerfect)
		return nil
	})
	require.NoError(t, err)

	err = s.WithinUser(ctx, "ghost", func(ctx context.Context, r uow.Repos) error {
		return r.Streaks.SaveDay(ctx, streak.NewDayStreak("ghost", ""))
	})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestStore_Badges(t *testing.T) {
	_, s := openStore(t)
	ctx := context.Background()
	create(t, s, "alice")

	require.NoError(t, s.Upsert(ctx, badge.Definition{ID: "reader-1", Name: "Reader", Criterion: badge.ReadCards(), Threshold: 1}))
	require.NoError(t, s.Upsert(ctx, badge.Definition{ID: "topic-js", Name: "JS", Criterion: badge.ReadSpecificTopic("js"), Threshold: 3}))
	require.NoError(t, s.Upsert(ctx, badge.Definition{ID: "topic-js", Name: "JavaScript", Criterion: badge.ReadSpecificTopic("js"), Threshold: 3}))

	defs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "JavaScript", defs[1].Name)
	assert.Equal(t, "js", defs[1].Criterion.TopicID)

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, shared.ErrBadgeNotFound)

	err = s.WithinUser(ctx, "alice", func(ctx context.Context, r uow.Repos) error {
		require.NoError(t, r.Badges.SaveProgress(ctx, "alice", "topic-js", 2, t0))
		require.NoError(t, r.Badges.SaveProgress(ctx, "alice", "topic-js", 1, t0))
		progress, err := r.Badges.GetProgress(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 2, progress["topic-js"])
		return nil
	})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinUser(ctx, "alice", func(ctx context.Context, r uow.Repos) error {
				ok, err := r.Badges.AwardIfAbsent(ctx, badge.Earned{UserID: "alice", BadgeID: "reader-1", EarnedAt: t0})
				if ok {
					mu.Lock()
					inserted++
					mu.Unlock()
				}
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inserted)

	err = s.WithinUser(ctx, "alice", func(ctx context.Context, r uow.Repos) error {
		earned, err := r.Badges.ListEarned(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, earned, 1)
		assert.True(t, earned[0].EarnedAt.Equal(t0))
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ReadSide(t *testing.T) {
	_, s := openStore(t)
	ctx := context.Background()
	create(t, s, "alice")
	create(t, s, "bob")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinUser(ctx, "bob", func(ctx context.Context, r uow.Repos) error {
				p, err := r.Progression.Get(ctx, "bob")
				if err != nil {
					return err
				}
				if err := p.Credit(5, t0); err != nil {
					return err
				}
				return r.Progression.Save(ctx, p)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	err := s.WithinUser(ctx, "alice", func(ctx context.Context, r uow.Repos) error {
		p, err := r.Progression.Get(ctx, "alice")
		if err != nil {
			return err
		}
		if _, err := p.LoseLife(t0); err != nil {
			return err
		}
		if err := r.Progression.Save(ctx, p); err != nil {
			return err
		}
		_, err = r.Badges.AwardIfAbsent(ctx, badge.Earned{UserID: "alice", BadgeID: "reader-1", EarnedAt: t0})
		return err
	})
	require.NoError(t, err)

	standings, err := s.ListStandings(ctx)
	require.NoError(t, err)
	require.Len(t, standings, 2)
	assert.Equal(t, "alice", standings[0].UserID)
	assert.Equal(t, 1, standings[0].BadgeCount)
	assert.Equal(t, 100, standings[1].XP)

	ids, err := s.ListAwaitingLives(ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, ids)

	ids, err = s.ListAwaitingLives(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	err = s.WithinUser(ctx, "alice", func(ctx context.Context, r uow.Repos) error {
		return r.Progression.Delete(ctx, "alice")
	})
	require.NoError(t, err)

	standings, err = s.ListStandings(ctx)
	require.NoError(t, err)
	require.Len(t, standings, 1)
	assert.Equal(t, "bob", standings[0].UserID)
}
