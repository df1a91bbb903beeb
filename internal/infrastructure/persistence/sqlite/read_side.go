package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/leaderboard"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
)

type definitionRow struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	Description   string `db:"description"`
	CriterionKind string `db:"criterion_kind"`
	TopicID       string `db:"topic_id"`
	Threshold     int    `db:"threshold"`
}

func (r definitionRow) toDomain() badge.Definition {
	return badge.Definition{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Criterion:   badge.Criterion{Kind: badge.Kind(r.CriterionKind), TopicID: r.TopicID},
		Threshold:   r.Threshold,
	}
}

// List implements badge.Catalog.
func (s *Store) List(ctx context.Context) ([]badge.Definition, error) {
	var rows []definitionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, description, criterion_kind, topic_id, threshold
		FROM badge_definitions
		ORDER BY id`)
	if err != nil {
		return nil, translate("ListBadges", err)
	}
	defs := make([]badge.Definition, 0, len(rows))
	for _, r := range rows {
		defs = append(defs, r.toDomain())
	}
	return defs, nil
}

// Get implements badge.Catalog.
func (s *Store) Get(ctx context.Context, badgeID string) (*badge.Definition, error) {
	var row definitionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, description, criterion_kind, topic_id, threshold
		FROM badge_definitions WHERE id = ?`, badgeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError(domainName, "GetBadge", shared.ErrBadgeNotFound, "badge not found").
			With("badge_id", badgeID)
	}
	if err != nil {
		return nil, translate("GetBadge", err)
	}
	d := row.toDomain()
	return &d, nil
}

// Upsert implements badge.Catalog.
func (s *Store) Upsert(ctx context.Context, d badge.Definition) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO badge_definitions (id, name, description, criterion_kind, topic_id, threshold, updated_at)
		VALUES (:id, :name, :description, :criterion_kind, :topic_id, :threshold, datetime('now'))
		ON CONFLICT (id) DO UPDATE SET
			name           = excluded.name,
			description    = excluded.description,
			criterion_kind = excluded.criterion_kind,
			topic_id       = excluded.topic_id,
			threshold      = excluded.threshold,
			updated_at     = excluded.updated_at`,
		definitionRow{
			ID:            d.ID,
			Name:          d.Name,
			Description:   d.Description,
			CriterionKind: string(d.Criterion.Kind),
			TopicID:       d.Criterion.TopicID,
			Threshold:     d.Threshold,
		})
	return translate("UpsertBadge", err)
}

// ListStandings implements leaderboard.StandingsRepository.
func (s *Store) ListStandings(ctx context.Context) ([]leaderboard.Standing, error) {
	var rows []struct {
		UserID     string `db:"user_id"`
		XP         int    `db:"xp"`
		ReadCards  int    `db:"read_cards"`
		BadgeCount int    `db:"badge_count"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.user_id, p.xp, p.read_cards, COUNT(e.badge_id) AS badge_count
		FROM user_progressions p
		LEFT JOIN earned_badges e ON e.user_id = p.user_id
		GROUP BY p.user_id
		ORDER BY p.user_id`)
	if err != nil {
		return nil, translate("ListStandings", err)
	}
	out := make([]leaderboard.Standing, 0, len(rows))
	for _, r := range rows {
		out = append(out, leaderboard.Standing{UserID: r.UserID, XP: r.XP, ReadCards: r.ReadCards, BadgeCount: r.BadgeCount})
	}
	return out, nil
}

// ListAwaitingLives implements progression.RegenIndex.
func (s *Store) ListAwaitingLives(ctx context.Context, afterUserID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT user_id FROM user_progressions
		WHERE lives < ? AND user_id > ?
		ORDER BY user_id
		LIMIT ?`, progression.MaxLives, afterUserID, limit)
	return ids, translate("ListAwaitingLives", err)
}

var (
	_ badge.Catalog                   = (*Store)(nil)
	_ leaderboard.StandingsRepository = (*Store)(nil)
	_ progression.RegenIndex          = (*Store)(nil)
)
