package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/brainbites/progression-engine/internal/application/uow"
	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/domain/streak"
	"github.com/brainbites/progression-engine/pkg/timeutil"
)

// Store implements the unit of work and the read side on SQLite.
type Store struct {
	db           *DB
	queryTimeout time.Duration
}

// NewStore creates a new Store. queryTimeout bounds one unit of work
// (0 disables the bound).
func NewStore(db *DB, queryTimeout time.Duration) *Store {
	return &Store{db: db, queryTimeout: queryTimeout}
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinUser implements uow.UnitOfWork. The pool holds a single connection
// and transactions begin IMMEDIATE, so units of work never interleave.
func (s *Store) WithinUser(ctx context.Context, userID string, fn uow.Func) error {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	q, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return translate("WithinUser", err)
	}

	t := &tx{q: q, userID: userID}
	err = fn(ctx, uow.Repos{
		Progression: progressionTx{t},
		Streaks:     streakTx{t},
		Badges:      badgeTx{t},
	})
	if err != nil {
		_ = q.Rollback()
		return translate("WithinUser", err)
	}
	return translate("WithinUser", q.Commit())
}

type tx struct {
	q      *sqlx.Tx
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

func (t *tx) requireRow(ctx context.Context, op, userID string) error {
	if err := t.check(op, userID); err != nil {
		return err
	}
	var exists bool
	if err := t.q.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM user_progressions WHERE user_id = ?)`, userID); err != nil {
		return err
	}
	if !exists {
		return shared.UserNotFound(domainName, op, userID)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// ── progression ──────────────────────────────────────────────────────────────

type progressionRow struct {
	UserID              string       `db:"user_id"`
	XP                  int          `db:"xp"`
	Lives               int          `db:"lives"`
	LastLifeLostAt      sql.NullTime `db:"last_life_lost_at"`
	EverydayCardQuota   int          `db:"everyday_card_quota"`
	ReadCards           int          `db:"read_cards"`
	QuizTotalAttempts   int          `db:"quiz_total_attempts"`
	QuizCorrectAttempts int          `db:"quiz_correct_attempts"`
	CreatedAt           time.Time    `db:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at"`
}

func toProgressionRow(p *progression.UserProgression) progressionRow {
	return progressionRow{
		UserID:              p.UserID,
		XP:                  p.XP.Int(),
		Lives:               p.Lives,
		LastLifeLostAt:      nullTime(p.LastLifeLostAt),
		EverydayCardQuota:   p.EverydayCardQuota,
		ReadCards:           p.ReadCards,
		QuizTotalAttempts:   p.QuizTotalAttempts,
		QuizCorrectAttempts: p.QuizCorrectAttempts,
		CreatedAt:           p.CreatedAt.UTC(),
		UpdatedAt:           p.UpdatedAt.UTC(),
	}
}

func (r progressionRow) toDomain() *progression.UserProgression {
	p := &progression.UserProgression{
		UserID:              r.UserID,
		XP:                  shared.XP(r.XP),
		Lives:               r.Lives,
		EverydayCardQuota:   r.EverydayCardQuota,
		ReadCards:           r.ReadCards,
		QuizTotalAttempts:   r.QuizTotalAttempts,
		QuizCorrectAttempts: r.QuizCorrectAttempts,
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}
	if r.LastLifeLostAt.Valid {
		at := r.LastLifeLostAt.Time.UTC()
		p.LastLifeLostAt = &at
	}
	return p
}

type progressionTx struct{ t *tx }

func (r progressionTx) Create(ctx context.Context, p *progression.UserProgression) error {
	if err := r.t.check("Create", p.UserID); err != nil {
		return err
	}
	_, err := r.t.q.NamedExecContext(ctx, `
		INSERT INTO user_progressions (
			user_id, xp, lives, last_life_lost_at, everyday_card_quota,
			read_cards, quiz_total_attempts, quiz_correct_attempts, created_at, updated_at
		) VALUES (
			:user_id, :xp, :lives, :last_life_lost_at, :everyday_card_quota,
			:read_cards, :quiz_total_attempts, :quiz_correct_attempts, :created_at, :updated_at
		)`, toProgressionRow(p))
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
	var row progressionRow
	err := r.t.q.GetContext(ctx, &row, `SELECT * FROM user_progressions WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.UserNotFound(domainName, "Get", userID)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r progressionTx) Save(ctx context.Context, p *progression.UserProgression) error {
	if err := r.t.check("Save", p.UserID); err != nil {
		return err
	}
	res, err := r.t.q.NamedExecContext(ctx, `
		UPDATE user_progressions SET
			xp = :xp, lives = :lives, last_life_lost_at = :last_life_lost_at,
			everyday_card_quota = :everyday_card_quota, read_cards = :read_cards,
			quiz_total_attempts = :quiz_total_attempts, quiz_correct_attempts = :quiz_correct_attempts,
			updated_at = :updated_at
		WHERE user_id = :user_id`, toProgressionRow(p))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.UserNotFound(domainName, "Save", p.UserID)
	}
	return nil
}

func (r progressionTx) Delete(ctx context.Context, userID string) error {
	if err := r.t.check("Delete", userID); err != nil {
		return err
	}
	res, err := r.t.q.ExecContext(ctx, `DELETE FROM user_progressions WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.UserNotFound(domainName, "Delete", userID)
	}
	return nil
}

// ── streaks ──────────────────────────────────────────────────────────────────

type dayRow struct {
	Current   int            `db:"current_streak"`
	Longest   int            `db:"longest_streak"`
	LastDate  sql.NullString `db:"last_date"`
	TimeZone  string         `db:"time_zone"`
	UpdatedAt time.Time      `db:"updated_at"`
}

type streakTx struct{ t *tx }

func (r streakTx) GetDay(ctx context.Context, userID string) (*streak.DayStreak, error) {
	if err := r.t.check("GetDay", userID); err != nil {
		return nil, err
	}
	var row dayRow
	err := r.t.q.GetContext(ctx, &row, `
		SELECT current_streak, longest_streak, last_date, time_zone, updated_at
		FROM day_streaks WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return streak.NewDayStreak(userID, ""), nil
	}
	if err != nil {
		return nil, err
	}

	s := &streak.DayStreak{
		UserID:    userID,
		Current:   row.Current,
		Longest:   row.Longest,
		TimeZone:  row.TimeZone,
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if row.LastDate.Valid {
		d, err := timeutil.ParseCivil(row.LastDate.String)
		if err != nil {
			return nil, err
		}
		s.LastDate = &d
	}
	return s, nil
}

func (r streakTx) SaveDay(ctx context.Context, s *streak.DayStreak) error {
	if err := r.t.requireRow(ctx, "SaveDay", s.UserID); err != nil {
		return err
	}
	var last sql.NullString
	if s.LastDate != nil {
		last = sql.NullString{String: timeutil.FormatCivil(*s.LastDate), Valid: true}
	}
	_, err := r.t.q.ExecContext(ctx, `
		INSERT INTO day_streaks (user_id, current_streak, longest_streak, last_date, time_zone, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_date      = excluded.last_date,
			time_zone      = excluded.time_zone,
			updated_at     = excluded.updated_at`,
		s.UserID, s.Current, s.Longest, last, s.TimeZone, s.UpdatedAt.UTC(),
	)
	return err
}

type correctnessRow struct {
	Count            int       `db:"current_count"`
	Max              int       `db:"max_count"`
	LastRoundPerfect bool      `db:"last_round_perfect"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r streakTx) GetCorrectness(ctx context.Context, userID string) (*streak.CorrectnessStreak, error) {
	if err := r.t.check("GetCorrectness", userID); err != nil {
		return nil, err
	}
	var row correctnessRow
	err := r.t.q.GetContext(ctx, &row, `
		SELECT current_count, max_count, last_round_perfect, updated_at
		FROM correctness_streaks WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return streak.NewCorrectnessStreak(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return &streak.CorrectnessStreak{
		UserID:           userID,
		Count:            row.Count,
		Max:              row.Max,
		LastRoundPerfect: row.LastRoundPerfect,
		UpdatedAt:        row.UpdatedAt.UTC(),
	}, nil
}

func (r streakTx) SaveCorrectness(ctx context.Context, s *streak.CorrectnessStreak) error {
	if err := r.t.requireRow(ctx, "SaveCorrectness", s.UserID); err != nil {
		return err
	}
	_, err := r.t.q.ExecContext(ctx, `
		INSERT INTO correctness_streaks (user_id, current_count, max_count, last_round_perfect, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			current_count      = excluded.current_count,
			max_count          = excluded.max_count,
			last_round_perfect = excluded.last_round_perfect,
			updated_at         = excluded.updated_at`,
		s.UserID, s.Count, s.Max, s.LastRoundPerfect, s.UpdatedAt.UTC(),
	)
	return err
}

// ── badges ───────────────────────────────────────────────────────────────────

type badgeTx struct{ t *tx }

func (r badgeTx) GetProgress(ctx context.Context, userID string) (map[string]int, error) {
	if err := r.t.check("GetProgress", userID); err != nil {
		return nil, err
	}
	var rows []struct {
		BadgeID string `db:"badge_id"`
		Value   int    `db:"value"`
	}
	if err := r.t.q.SelectContext(ctx, &rows, `SELECT badge_id, value FROM badge_progress WHERE user_id = ?`, userID); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.BadgeID] = row.Value
	}
	return out, nil
}

// SaveProgress keeps the larger of the stored and the new value.
func (r badgeTx) SaveProgress(ctx context.Context, userID, badgeID string, value int, at time.Time) error {
	if err := r.t.requireRow(ctx, "SaveProgress", userID); err != nil {
		return err
	}
	_, err := r.t.q.ExecContext(ctx, `
		INSERT INTO badge_progress (user_id, badge_id, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, badge_id) DO UPDATE SET
			value      = MAX(badge_progress.value, excluded.value),
			updated_at = CASE WHEN excluded.value > badge_progress.value
			                  THEN excluded.updated_at ELSE badge_progress.updated_at END`,
		userID, badgeID, value, at.UTC(),
	)
	return err
}

func (r badgeTx) ListEarned(ctx context.Context, userID string) ([]badge.Earned, error) {
	if err := r.t.check("ListEarned", userID); err != nil {
		return nil, err
	}
	var rows []struct {
		BadgeID  string    `db:"badge_id"`
		EarnedAt time.Time `db:"earned_at"`
	}
	err := r.t.q.SelectContext(ctx, &rows, `
		SELECT badge_id, earned_at FROM earned_badges
		WHERE user_id = ?
		ORDER BY earned_at, badge_id`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]badge.Earned, 0, len(rows))
	for _, row := range rows {
		out = append(out, badge.Earned{UserID: userID, BadgeID: row.BadgeID, EarnedAt: row.EarnedAt.UTC()})
	}
	return out, nil
}

// AwardIfAbsent relies on the (user_id, badge_id) primary key.
func (r badgeTx) AwardIfAbsent(ctx context.Context, e badge.Earned) (bool, error) {
	if err := r.t.requireRow(ctx, "AwardIfAbsent", e.UserID); err != nil {
		return false, err
	}
	res, err := r.t.q.ExecContext(ctx, `
		INSERT INTO earned_badges (user_id, badge_id, earned_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, badge_id) DO NOTHING`,
		e.UserID, e.BadgeID, e.EarnedAt.UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

var _ uow.UnitOfWork = (*Store)(nil)
