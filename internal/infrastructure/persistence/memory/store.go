// Package memory provides an in-process store used by tests and local
// development. Each unit of work holds a per-user mutex and works on a copy
// of the user's state that is swapped in on commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/brainbites/progression-engine/internal/application/uow"
	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/leaderboard"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/domain/streak"
)

const domainName = "memory"

// userState is everything stored for one user.
type userState struct {
	progression   *progression.UserProgression
	day           *streak.DayStreak
	correctness   *streak.CorrectnessStreak
	badgeProgress map[string]int
	earned        map[string]badge.Earned
}

func (s *userState) clone() *userState {
	cp := &userState{
		progression:   s.progression.Clone(),
		badgeProgress: make(map[string]int, len(s.badgeProgress)),
		earned:        make(map[string]badge.Earned, len(s.earned)),
	}
	if s.day != nil {
		cp.day = cloneDay(s.day)
	}
	if s.correctness != nil {
		c := *s.correctness
		cp.correctness = &c
	}
	for k, v := range s.badgeProgress {
		cp.badgeProgress[k] = v
	}
	for k, v := range s.earned {
		cp.earned[k] = v
	}
	return cp
}

// Store is a thread-safe in-memory implementation of every repository port.
type Store struct {
	mu      sync.RWMutex
	users   map[string]*userState
	catalog map[string]badge.Definition

	locksMu sync.Mutex
	locks   map[string]*userLock
}

// userLock serializes units of work for one user. The entry lives in
// Store.locks only while refs > 0.
type userLock struct {
	sync.Mutex
	refs int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:   make(map[string]*userState),
		catalog: make(map[string]badge.Definition),
		locks:   make(map[string]*userLock),
	}
}

func (s *Store) lockUser(userID string) *userLock {
	s.locksMu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.Lock()
	return l
}

func (s *Store) unlockUser(userID string, l *userLock) {
	l.Unlock()

	s.locksMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, userID)
	}
	s.locksMu.Unlock()
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// WithinUser implements uow.UnitOfWork.
func (s *Store) WithinUser(ctx context.Context, userID string, fn uow.Func) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.lockUser(userID)
	defer s.unlockUser(userID, l)

	s.mu.RLock()
	current := s.users[userID]
	s.mu.RUnlock()

	t := &tx{userID: userID}
	if current != nil {
		t.state = current.clone()
	}

	if err := fn(ctx, uow.Repos{
		Progression: progressionTx{t},
		Streaks:     streakTx{t},
		Badges:      badgeTx{t},
	}); err != nil {
		return err
	}

	if !t.dirty {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t.state == nil {
		delete(s.users, userID)
	} else {
		s.users[userID] = t.state
	}
	return nil
}

// tx is the staged state of one unit of work.
type tx struct {
	userID string
	state  *userState
	dirty  bool
}

func (t *tx) check(op, userID string) error {
	if userID != t.userID {
		return shared.NewDomainError(domainName, op, shared.ErrInvalidState, "user outside of the unit of work").
			With("user_id", userID).
			With("locked_user_id", t.userID)
	}
	return nil
}

func (t *tx) require(op, userID string) error {
	if err := t.check(op, userID); err != nil {
		return err
	}
	if t.state == nil {
		return shared.UserNotFound(domainName, op, userID)
	}
	return nil
}

// ── progression ──────────────────────────────────────────────────────────────

type progressionTx struct{ t *tx }

func (r progressionTx) Create(_ context.Context, p *progression.UserProgression) error {
	if err := r.t.check("Create", p.UserID); err != nil {
		return err
	}
	if r.t.state != nil {
		return shared.NewDomainError(domainName, "Create", shared.ErrUserExists, "user already exists").
			With("user_id", p.UserID)
	}
	r.t.state = &userState{
		progression:   p.Clone(),
		badgeProgress: make(map[string]int),
		earned:        make(map[string]badge.Earned),
	}
	r.t.dirty = true
	return nil
}

func (r progressionTx) Get(_ context.Context, userID string) (*progression.UserProgression, error) {
	if err := r.t.require("Get", userID); err != nil {
		return nil, err
	}
	return r.t.state.progression.Clone(), nil
}

func (r progressionTx) Save(_ context.Context, p *progression.UserProgression) error {
	if err := r.t.require("Save", p.UserID); err != nil {
		return err
	}
	r.t.state.progression = p.Clone()
	r.t.dirty = true
	return nil
}

func (r progressionTx) Delete(_ context.Context, userID string) error {
	if err := r.t.require("Delete", userID); err != nil {
		return err
	}
	r.t.state = nil
	r.t.dirty = true
	return nil
}

// ── streaks ──────────────────────────────────────────────────────────────────

type streakTx struct{ t *tx }

func (r streakTx) GetDay(_ context.Context, userID string) (*streak.DayStreak, error) {
	if err := r.t.check("GetDay", userID); err != nil {
		return nil, err
	}
	if r.t.state == nil || r.t.state.day == nil {
		return streak.NewDayStreak(userID, ""), nil
	}
	return cloneDay(r.t.state.day), nil
}

func (r streakTx) SaveDay(_ context.Context, s *streak.DayStreak) error {
	if err := r.t.require("SaveDay", s.UserID); err != nil {
		return err
	}
	r.t.state.day = cloneDay(s)
	r.t.dirty = true
	return nil
}

func (r streakTx) GetCorrectness(_ context.Context, userID string) (*streak.CorrectnessStreak, error) {
	if err := r.t.check("GetCorrectness", userID); err != nil {
		return nil, err
	}
	if r.t.state == nil || r.t.state.correctness == nil {
		return streak.NewCorrectnessStreak(userID), nil
	}
	c := *r.t.state.correctness
	return &c, nil
}

func (r streakTx) SaveCorrectness(_ context.Context, s *streak.CorrectnessStreak) error {
	if err := r.t.require("SaveCorrectness", s.UserID); err != nil {
		return err
	}
	c := *s
	r.t.state.correctness = &c
	r.t.dirty = true
	return nil
}

// ── badges ───────────────────────────────────────────────────────────────────

type badgeTx struct{ t *tx }

func (r badgeTx) GetProgress(_ context.Context, userID string) (map[string]int, error) {
	if err := r.t.check("GetProgress", userID); err != nil {
		return nil, err
	}
	out := make(map[string]int)
	if r.t.state != nil {
		for k, v := range r.t.state.badgeProgress {
			out[k] = v
		}
	}
	return out, nil
}

func (r badgeTx) SaveProgress(_ context.Context, userID, badgeID string, value int, _ time.Time) error {
	if err := r.t.require("SaveProgress", userID); err != nil {
		return err
	}
	if cur, ok := r.t.state.badgeProgress[badgeID]; !ok || value > cur {
		r.t.state.badgeProgress[badgeID] = value
		r.t.dirty = true
	}
	return nil
}

func (r badgeTx) ListEarned(_ context.Context, userID string) ([]badge.Earned, error) {
	if err := r.t.check("ListEarned", userID); err != nil {
		return nil, err
	}
	if r.t.state == nil {
		return nil, nil
	}
	return sortedEarned(r.t.state.earned), nil
}

func (r badgeTx) AwardIfAbsent(_ context.Context, e badge.Earned) (bool, error) {
	if err := r.t.require("AwardIfAbsent", e.UserID); err != nil {
		return false, err
	}
	if _, ok := r.t.state.earned[e.BadgeID]; ok {
		return false, nil
	}
	r.t.state.earned[e.BadgeID] = e
	r.t.dirty = true
	return true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// READ SIDE
// ══════════════════════════════════════════════════════════════════════════════

// List implements badge.Catalog.
func (s *Store) List(ctx context.Context) ([]badge.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]badge.Definition, 0, len(s.catalog))
	for _, d := range s.catalog {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get implements badge.Catalog.
func (s *Store) Get(ctx context.Context, badgeID string) (*badge.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.catalog[badgeID]
	if !ok {
		return nil, shared.NewDomainError(domainName, "GetBadge", shared.ErrBadgeNotFound, "badge not found").
			With("badge_id", badgeID)
	}
	return &d, nil
}

// Upsert implements badge.Catalog.
func (s *Store) Upsert(ctx context.Context, def badge.Definition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[def.ID] = def
	return nil
}

// ListStandings implements leaderboard.StandingsRepository.
func (s *Store) ListStandings(ctx context.Context) ([]leaderboard.Standing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]leaderboard.Standing, 0, len(s.users))
	for id, st := range s.users {
		out = append(out, leaderboard.Standing{
			UserID:     id,
			XP:         st.progression.XP.Int(),
			ReadCards:  st.progression.ReadCards,
			BadgeCount: len(st.earned),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ListAwaitingLives implements progression.RegenIndex.
func (s *Store) ListAwaitingLives(ctx context.Context, afterUserID string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, st := range s.users {
		if id > afterUserID && !st.progression.HasFullLives() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Ping always succeeds; it lets the store stand in for a database in health checks.
func (s *Store) Ping(context.Context) error {
	return nil
}

func cloneDay(d *streak.DayStreak) *streak.DayStreak {
	cp := *d
	if d.LastDate != nil {
		t := *d.LastDate
		cp.LastDate = &t
	}
	return &cp
}

func sortedEarned(m map[string]badge.Earned) []badge.Earned {
	out := make([]badge.Earned, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].BadgeID < out[j].BadgeID
		}
		return out[i].EarnedAt.Before(out[j].EarnedAt)
	})
	return out
}

var (
	_ uow.UnitOfWork                  = (*Store)(nil)
	_ badge.Catalog                   = (*Store)(nil)
	_ leaderboard.StandingsRepository = (*Store)(nil)
	_ progression.RegenIndex          = (*Store)(nil)
)
