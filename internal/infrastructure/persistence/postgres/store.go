package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/brainbites/progression-engine/internal/application/uow"
	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/domain/streak"
)

const domainName = "postgres"

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store implements the unit of work and the read side on PostgreSQL.
type Store struct {
	conn         *Connection
	queryTimeout time.Duration
}

// NewStore creates a new Store. queryTimeout bounds one unit of work
// (0 disables the bound).
func NewStore(conn *Connection, queryTimeout time.Duration) *Store {
	return &Store{conn: conn, queryTimeout: queryTimeout}
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// WithinUser implements uow.UnitOfWork.
//
// The transaction first takes a transaction-scoped advisory lock keyed by the
// user id, so two units of work for the same user queue up even before the
// user's row exists (registration). Rows read for update are locked again
// with FOR UPDATE for clarity against foreign writers.
func (s *Store) WithinUser(ctx context.Context, userID string, fn uow.Func) error {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(q pgx.Tx) error {
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
			return err
		}
		t := &tx{q: q, userID: userID}
		return fn(ctx, uow.Repos{
			Progression: progressionTx{t},
			Streaks:     streakTx{t},
			Badges:      badgeTx{t},
		})
	})
	return translate("WithinUser", err)
}

type tx struct {
	q      pgx.Tx
	userID string
}

func (t *tx) check(op, userID string) error {
	if userID != t.userID {
		return shared.NewDomainError(domainName, op, shared.ErrInvalidState, "user outside of the unit of work").
			With("user_id", userID).
			With("locked_user_id", t.userID)
	}
	return nil
}

// requireRow fails with ErrUserNotFound unless the progression row exists.
func (t *tx) requireRow(ctx context.Context, op, userID string) error {
	if err := t.check(op, userID); err != nil {
		return err
	}
	var exists bool
	if err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_progressions WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return shared.UserNotFound(domainName, op, userID)
	}
	return nil
}

// ── progression ──────────────────────────────────────────────────────────────

type progressionTx struct{ t *tx }

func (r progressionTx) Create(ctx context.Context, p *progression.UserProgression) error {
	if err := r.t.check("Create", p.UserID); err != nil {
		return err
	}
	_, err := r.t.q.Exec(ctx, `
		INSERT INTO user_progressions (
			user_id, xp, lives, last_life_lost_at, everyday_card_quota,
			read_cards, quiz_total_attempts, quiz_correct_attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.UserID, p.XP.Int(), p.Lives, p.LastLifeLostAt, p.EverydayCardQuota,
		p.ReadCards, p.QuizTotalAttempts, p.QuizCorrectAttempts, p.CreatedAt, p.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		return shared.WrapError(domainName, "Create", shared.ErrUserExists, "user already exists", err).
			With("user_id", p.UserID)
	}
	return err
}

func (r progressionTx) Get(ctx context.Context, userID string) (*progression.UserProgression, error) {
	if err := r.t.check("Get", userID); err != nil {
		return nil, err
	}
	p := &progression.UserProgression{UserID: userID}
	var xp int
	err := r.t.q.QueryRow(ctx, `
		SELECT xp, lives, last_life_lost_at, everyday_card_quota, read_cards,
		       quiz_total_attempts, quiz_correct_attempts, created_at, updated_at
		FROM user_progressions
		WHERE user_id = $1
		FOR UPDATE`, userID,
	).Scan(&xp, &p.Lives, &p.LastLifeLostAt, &p.EverydayCardQuota, &p.ReadCards,
		&p.QuizTotalAttempts, &p.QuizCorrectAttempts, &p.CreatedAt, &p.UpdatedAt)
	if IsNoRows(err) {
		return nil, shared.UserNotFound(domainName, "Get", userID)
	}
	if err != nil {
		return nil, err
	}
	p.XP = shared.XP(xp)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if p.LastLifeLostAt != nil {
		at := p.LastLifeLostAt.UTC()
		p.LastLifeLostAt = &at
	}
	return p, nil
}

func (r progressionTx) Save(ctx context.Context, p *progression.UserProgression) error {
	if err := r.t.check("Save", p.UserID); err != nil {
		return err
	}
	tag, err := r.t.q.Exec(ctx, `
		UPDATE user_progressions SET
			xp = $2, lives = $3, last_life_lost_at = $4, everyday_card_quota = $5,
			read_cards = $6, quiz_total_attempts = $7, quiz_correct_attempts = $8, updated_at = $9
		WHERE user_id = $1`,
		p.UserID, p.XP.Int(), p.Lives, p.LastLifeLostAt, p.EverydayCardQuota,
		p.ReadCards, p.QuizTotalAttempts, p.QuizCorrectAttempts, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.UserNotFound(domainName, "Save", p.UserID)
	}
	return nil
}

// Delete removes the progression row; streaks and badges go with it by cascade.
func (r progressionTx) Delete(ctx context.Context, userID string) error {
	if err := r.t.check("Delete", userID); err != nil {
		return err
	}
	tag, err := r.t.q.Exec(ctx, `DELETE FROM user_progressions WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.UserNotFound(domainName, "Delete", userID)
	}
	return nil
}

// ── streaks ──────────────────────────────────────────────────────────────────

type streakTx struct{ t *tx }

func (r streakTx) GetDay(ctx context.Context, userID string) (*streak.DayStreak, error) {
	if err := r.t.check("GetDay", userID); err != nil {
		return nil, err
	}
	s := &streak.DayStreak{UserID: userID}
	err := r.t.q.QueryRow(ctx, `
		SELECT current_streak, longest_streak, last_date, time_zone, updated_at
		FROM day_streaks WHERE user_id = $1`, userID,
	).Scan(&s.Current, &s.Longest, &s.LastDate, &s.TimeZone, &s.UpdatedAt)
	if IsNoRows(err) {
		return streak.NewDayStreak(userID, ""), nil
	}
	if err != nil {
		return nil, err
	}
	if s.LastDate != nil {
		d := time.Date(s.LastDate.Year(), s.LastDate.Month(), s.LastDate.Day(), 0, 0, 0, 0, time.UTC)
		s.LastDate = &d
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

func (r streakTx) SaveDay(ctx context.Context, s *streak.DayStreak) error {
	if err := r.t.requireRow(ctx, "SaveDay", s.UserID); err != nil {
		return err
	}
	_, err := r.t.q.Exec(ctx, `
		INSERT INTO day_streaks (user_id, current_streak, longest_streak, last_date, time_zone, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			last_date      = EXCLUDED.last_date,
			time_zone      = EXCLUDED.time_zone,
			updated_at     = EXCLUDED.updated_at`,
		s.UserID, s.Current, s.Longest, s.LastDate, s.TimeZone, s.UpdatedAt,
	)
	return err
}

func (r streakTx) GetCorrectness(ctx context.Context, userID string) (*streak.CorrectnessStreak, error) {
	if err := r.t.check("GetCorrectness", userID); err != nil {
		return nil, err
	}
	s := &streak.CorrectnessStreak{UserID: userID}
	err := r.t.q.QueryRow(ctx, `
		SELECT current_count, max_count, last_round_perfect, updated_at
		FROM correctness_streaks WHERE user_id = $1`, userID,
	).Scan(&s.Count, &s.Max, &s.LastRoundPerfect, &s.UpdatedAt)
	if IsNoRows(err) {
		return streak.NewCorrectnessStreak(userID), nil
	}
	if err != nil {
		return nil, err
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

func (r streakTx) SaveCorrectness(ctx context.Context, s *streak.CorrectnessStreak) error {
	if err := r.t.requireRow(ctx, "SaveCorrectness", s.UserID); err != nil {
		return err
	}
	_, err := r.t.q.Exec(ctx, `
		INSERT INTO correctness_streaks (user_id, current_count, max_count, last_round_perfect, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			current_count      = EXCLUDED.current_count,
			max_count          = EXCLUDED.max_count,
			last_round_perfect = EXCLUDED.last_round_perfect,
			updated_at         = EXCLUDED.updated_at`,
		s.UserID, s.Count, s.Max, s.LastRoundPerfect, s.UpdatedAt,
	)
	return err
}

// ── badges ───────────────────────────────────────────────────────────────────

type badgeTx struct{ t *tx }

func (r badgeTx) GetProgress(ctx context.Context, userID string) (map[string]int, error) {
	if err := r.t.check("GetProgress", userID); err != nil {
		return nil, err
	}
	rows, err := r.t.q.Query(ctx, `SELECT badge_id, value FROM badge_progress WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			id    string
			value int
		)
		if err := rows.Scan(&id, &value); err != nil {
			return nil, err
		}
		out[id] = value
	}
	return out, rows.Err()
}

// SaveProgress keeps the larger of the stored and the new value.
func (r badgeTx) SaveProgress(ctx context.Context, userID, badgeID string, value int, at time.Time) error {
	if err := r.t.requireRow(ctx, "SaveProgress", userID); err != nil {
		return err
	}
	_, err := r.t.q.Exec(ctx, `
		INSERT INTO badge_progress (user_id, badge_id, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, badge_id) DO UPDATE SET
			value      = GREATEST(badge_progress.value, EXCLUDED.value),
			updated_at = CASE WHEN EXCLUDED.value > badge_progress.value
			                  THEN EXCLUDED.updated_at ELSE badge_progress.updated_at END`,
		userID, badgeID, value, at,
	)
	return err
}

func (r badgeTx) ListEarned(ctx context.Context, userID string) ([]badge.Earned, error) {
	if err := r.t.check("ListEarned", userID); err != nil {
		return nil, err
	}
	rows, err := r.t.q.Query(ctx, `
		SELECT badge_id, earned_at FROM earned_badges
		WHERE user_id = $1
		ORDER BY earned_at, badge_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []badge.Earned
	for rows.Next() {
		e := badge.Earned{UserID: userID}
		if err := rows.Scan(&e.BadgeID, &e.EarnedAt); err != nil {
			return nil, err
		}
		e.EarnedAt = e.EarnedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// AwardIfAbsent relies on the (user_id, badge_id) primary key: the insert
// that loses the race affects no rows.
func (r badgeTx) AwardIfAbsent(ctx context.Context, e badge.Earned) (bool, error) {
	if err := r.t.requireRow(ctx, "AwardIfAbsent", e.UserID); err != nil {
		return false, err
	}
	tag, err := r.t.q.Exec(ctx, `
		INSERT INTO earned_badges (user_id, badge_id, earned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, badge_id) DO NOTHING`,
		e.UserID, e.BadgeID, e.EarnedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

var _ uow.UnitOfWork = (*Store)(nil)
