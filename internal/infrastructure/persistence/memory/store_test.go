package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainbites/progression-engine/internal/application/uow"
	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func register(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.WithinUser(context.Background(), id, func(ctx context.Context, r uow.Repos) error {
		return r.Progression.Create(ctx, progression.NewUserProgression(id, 0, t0))
	})
	require.NoError(t, err)
}

func TestStore_CreateDuplicate(t *testing.T) {
	s := NewStore()
	register(t, s, "u1")

	err := s.WithinUser(context.Background(), "u1", func(ctx context.Context, r uow.Repos) error {
		return r.Progression.Create(ctx, progression.NewUserProgression("u1", 0, t0))
	})
	assert.ErrorIs(t, err, shared.ErrUserExists)
}

func TestStore_RollbackOnError(t *testing.T) {
	s := NewStore()
	register(t, s, "u1")
	boom := errors.New("boom")

	err := s.WithinUser(context.Background(), "u1", func(ctx context.Context, r uow.Repos) error {
		p, err := r.Progression.Get(ctx, "u1")
		require.NoError(t, err)
		require.NoError(t, p.Credit(100, t0))
		require.NoError(t, r.Progression.Save(ctx, p))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_ = s.WithinUser(context.Background(), "u1", func(ctx context.Context, r uow.Repos) error {
		p, err := r.Progression.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 0, p.XP.Int())
		return nil
	})
}

func TestStore_UnknownUser(t *testing.T) {
	s := NewStore()
	err := s.WithinUser(context.Background(), "ghost", func(ctx context.Context, r uow.Repos) error {
		_, err := r.Progression.Get(ctx, "ghost")
		return err
	})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
	assert.Equal(t, "ghost", shared.FieldsOf(err)["user_id"])
}

func TestStore_OtherUserRejected(t *testing.T) {
	s := NewStore()
	register(t, s, "u1")
	register(t, s, "u2")

	err := s.WithinUser(context.Background(), "u1", func(ctx context.Context, r uow.Repos) error {
		_, err := r.Progression.Get(ctx, "u2")
		return err
	})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestStore_BadgeProgressKeepsMaxAndAwardOnce(t *testing.T) {
	s := NewStore()
	register(t, s, "u1")
	ctx := context.Background()

	err := s.WithinUser(ctx, "u1", func(ctx context.Context, r uow.Repos) error {
		require.NoError(t, r.Badges.SaveProgress(ctx, "u1", "b1", 7, t0))
		require.NoError(t, r.Badges.SaveProgress(ctx, "u1", "b1", 3, t0))

		first, err := r.Badges.AwardIfAbsent(ctx, badge.Earned{UserID: "u1", BadgeID: "b1", EarnedAt: t0})
		require.NoError(t, err)
		assert.True(t, first)

		second, err := r.Badges.AwardIfAbsent(ctx, badge.Earned{UserID: "u1", BadgeID: "b1", EarnedAt: t0.Add(time.Hour)})
		require.NoError(t, err)
		assert.False(t, second)
		return nil
	})
	require.NoError(t, err)

	_ = s.WithinUser(ctx, "u1", func(ctx context.Context, r uow.Repos) error {
		progress, _ := r.Badges.GetProgress(ctx, "u1")
		assert.Equal(t, 7, progress["b1"])
		earned, _ := r.Badges.ListEarned(ctx, "u1")
		require.Len(t, earned, 1)
		assert.Equal(t, t0, earned[0].EarnedAt)
		return nil
	})

	standings, err := s.ListStandings(ctx)
	require.NoError(t, err)
	require.Len(t, standings, 1)
	assert.Equal(t, 1, standings[0].BadgeCount)
}

func TestStore_DeleteRemovesEverything(t *testing.T) {
	s := NewStore()
	register(t, s, "u1")
	ctx := context.Background()

	require.NoError(t, s.WithinUser(ctx, "u1", func(ctx context.Context, r uow.Repos) error {
		return r.Progression.Delete(ctx, "u1")
	}))

	standings, _ := s.ListStandings(ctx)
	assert.Empty(t, standings)
	assert.Empty(t, s.locks, "deleted user leaves no lock behind")
}

func TestStore_LocksReleasedAfterUnitsOfWork(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := []string{"u1", "u2", "u3"}[i%3]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithinUser(ctx, id, func(ctx context.Context, r uow.Repos) error {
				if _, err := r.Progression.Get(ctx, id); err == nil {
					return r.Progression.Delete(ctx, id)
				}
				return r.Progression.Create(ctx, progression.NewUserProgression(id, 0, t0))
			})
		}()
	}
	wg.Wait()

	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	assert.Empty(t, s.locks)
}

func TestStore_ListAwaitingLivesPaged(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		register(t, s, id)
	}
	for _, id := range []string{"a", "c", "d"} {
		require.NoError(t, s.WithinUser(ctx, id, func(ctx context.Context, r uow.Repos) error {
			p, err := r.Progression.Get(ctx, id)
			if err != nil {
				return err
			}
			if _, err := p.LoseLife(t0); err != nil {
				return err
			}
			return r.Progression.Save(ctx, p)
		}))
	}

	page, err := s.ListAwaitingLives(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, page)

	page, err = s.ListAwaitingLives(ctx, "c", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, page)
}

func TestStore_SerializesPerUser(t *testing.T) {
	s := NewStore()
	register(t, s, "u1")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithinUser(ctx, "u1", func(ctx context.Context, r uow.Repos) error {
				p, err := r.Progression.Get(ctx, "u1")
				if err != nil {
					return err
				}
				if err := p.Credit(1, t0); err != nil {
					return err
				}
				return r.Progression.Save(ctx, p)
			})
		}()
	}
	wg.Wait()

	standings, _ := s.ListStandings(ctx)
	assert.Equal(t, 50, standings[0].XP)
}

func TestStore_Catalog(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, badge.Definition{ID: "b2", Criterion: badge.ReadCards(), Threshold: 1}))
	require.NoError(t, s.Upsert(ctx, badge.Definition{ID: "b1", Criterion: badge.ReadCards(), Threshold: 1}))

	defs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b1", defs[0].ID)

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, shared.ErrBadgeNotFound)
}
