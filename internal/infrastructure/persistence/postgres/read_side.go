package postgres

import (
	"context"

	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/leaderboard"
	"github.com/brainbites/progression-engine/internal/domain/progression"
	"github.com/brainbites/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// List implements badge.Catalog.
func (s *Store) List(ctx context.Context) ([]badge.Definition, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, name, description, criterion_kind, topic_id, threshold
		FROM badge_definitions
		ORDER BY id`)
	if err != nil {
		return nil, translate("ListBadges", err)
	}
	defer rows.Close()

	var defs []badge.Definition
	for rows.Next() {
		var (
			d    badge.Definition
			kind string
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &kind, &d.Criterion.TopicID, &d.Threshold); err != nil {
			return nil, translate("ListBadges", err)
		}
		d.Criterion.Kind = badge.Kind(kind)
		defs = append(defs, d)
	}
	return defs, translate("ListBadges", rows.Err())
}

// Get implements badge.Catalog.
func (s *Store) Get(ctx context.Context, badgeID string) (*badge.Definition, error) {
	d := badge.Definition{ID: badgeID}
	var kind string
	err := s.conn.QueryRow(ctx, `
		SELECT name, description, criterion_kind, topic_id, threshold
		FROM badge_definitions WHERE id = $1`, badgeID,
	).Scan(&d.Name, &d.Description, &kind, &d.Criterion.TopicID, &d.Threshold)
	if IsNoRows(err) {
		return nil, shared.NewDomainError(domainName, "GetBadge", shared.ErrBadgeNotFound, "badge not found").
			With("badge_id", badgeID)
	}
	if err != nil {
		return nil, translate("GetBadge", err)
	}
	d.Criterion.Kind = badge.Kind(kind)
	return &d, nil
}

// Upsert implements badge.Catalog.
func (s *Store) Upsert(ctx context.Context, d badge.Definition) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO badge_definitions (id, name, description, criterion_kind, topic_id, threshold, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name           = EXCLUDED.name,
			description    = EXCLUDED.description,
			criterion_kind = EXCLUDED.criterion_kind,
			topic_id       = EXCLUDED.topic_id,
			threshold      = EXCLUDED.threshold,
			updated_at     = NOW()`,
		d.ID, d.Name, d.Description, string(d.Criterion.Kind), d.Criterion.TopicID, d.Threshold,
	)
	return translate("UpsertBadge", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD / REGENERATION INDEX
// ══════════════════════════════════════════════════════════════════════════════

// ListStandings implements leaderboard.StandingsRepository. Reads are not
// locked; a concurrent commit may or may not be visible.
func (s *Store) ListStandings(ctx context.Context) ([]leaderboard.Standing, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT p.user_id, p.xp, p.read_cards, COUNT(e.badge_id)
		FROM user_progressions p
		LEFT JOIN earned_badges e ON e.user_id = p.user_id
		GROUP BY p.user_id, p.xp, p.read_cards
		ORDER BY p.user_id`)
	if err != nil {
		return nil, translate("ListStandings", err)
	}
	defer rows.Close()

	var out []leaderboard.Standing
	for rows.Next() {
		var st leaderboard.Standing
		if err := rows.Scan(&st.UserID, &st.XP, &st.ReadCards, &st.BadgeCount); err != nil {
			return nil, translate("ListStandings", err)
		}
		out = append(out, st)
	}
	return out, translate("ListStandings", rows.Err())
}

// ListAwaitingLives implements progression.RegenIndex.
func (s *Store) ListAwaitingLives(ctx context.Context, afterUserID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.Query(ctx, `
		SELECT user_id FROM user_progressions
		WHERE lives < $1 AND user_id > $2
		ORDER BY user_id
		LIMIT $3`, progression.MaxLives, afterUserID, limit)
	if err != nil {
		return nil, translate("ListAwaitingLives", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translate("ListAwaitingLives", err)
		}
		ids = append(ids, id)
	}
	return ids, translate("ListAwaitingLives", rows.Err())
}

var (
	_ badge.Catalog                   = (*Store)(nil)
	_ leaderboard.StandingsRepository = (*Store)(nil)
	_ progression.RegenIndex          = (*Store)(nil)
)
