package query

import (
	"context"
	"time"

	"github.com/brainbites/progression-engine/internal/application/uow"
	"github.com/brainbites/progression-engine/internal/domain/badge"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET BADGES QUERY
// Все значки каталога глазами пользователя: прогресс, порог, дата получения.
// ══════════════════════════════════════════════════════════════════════════════

// GetBadgesQuery - запрос списка значков.
type GetBadgesQuery struct {
	UserID string
}

// GetBadgeQuery - запрос одного значка.
type GetBadgeQuery struct {
	UserID  string
	BadgeID string
}

// BadgeDTO - значок с прогрессом пользователя.
type BadgeDTO struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Criterion   string     `json:"criterion"`
	TopicID     string     `json:"topic_id,omitempty"`
	Threshold   int        `json:"threshold"`
	Progress    int        `json:"progress"`
	Percent     int        `json:"percent"`
	Earned      bool       `json:"earned"`
	EarnedAt    *time.Time `json:"earned_at,omitempty"`
}

// GetBadgesResult - список значков.
type GetBadgesResult struct {
	UserID      string     `json:"user_id"`
	Badges      []BadgeDTO `json:"badges"`
	EarnedCount int        `json:"earned_count"`
}

// GetBadgesHandler обрабатывает запросы значков.
type GetBadgesHandler struct {
	uow     uow.UnitOfWork
	catalog badge.Catalog
}

// NewGetBadgesHandler создаёт обработчик.
func NewGetBadgesHandler(u uow.UnitOfWork, catalog badge.Catalog) *GetBadgesHandler {
	return &GetBadgesHandler{uow: u, catalog: catalog}
}

// Handle возвращает все значки. Неизвестный пользователь - shared.ErrUserNotFound.
func (h *GetBadgesHandler) Handle(ctx context.Context, q GetBadgesQuery) (*GetBadgesResult, error) {
	defs, err := h.catalog.List(ctx)
	if err != nil {
		return nil, err
	}

	statuses, err := h.statuses(ctx, q.UserID, defs)
	if err != nil {
		return nil, err
	}

	res := &GetBadgesResult{UserID: q.UserID, Badges: make([]BadgeDTO, 0, len(statuses))}
	for _, st := range statuses {
		if st.IsEarned() {
			res.EarnedCount++
		}
		res.Badges = append(res.Badges, badgeDTO(st))
	}
	return res, nil
}

// HandleOne возвращает один значок. Неизвестный значок - shared.ErrBadgeNotFound.
func (h *GetBadgesHandler) HandleOne(ctx context.Context, q GetBadgeQuery) (*BadgeDTO, error) {
	def, err := h.catalog.Get(ctx, q.BadgeID)
	if err != nil {
		return nil, err
	}

	statuses, err := h.statuses(ctx, q.UserID, []badge.Definition{*def})
	if err != nil {
		return nil, err
	}
	dto := badgeDTO(statuses[0])
	return &dto, nil
}

func (h *GetBadgesHandler) statuses(ctx context.Context, userID string, defs []badge.Definition) ([]badge.Status, error) {
	var (
		progress map[string]int
		earned   []badge.Earned
	)
	err := h.uow.WithinUser(ctx, userID, func(ctx context.Context, r uow.Repos) error {
		if _, err := r.Progression.Get(ctx, userID); err != nil {
			return err
		}
		var err error
		if progress, err = r.Badges.GetProgress(ctx, userID); err != nil {
			return err
		}
		earned, err = r.Badges.ListEarned(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return badge.BuildStatuses(defs, progress, earned), nil
}

func badgeDTO(st badge.Status) BadgeDTO {
	return BadgeDTO{
		ID:          st.Definition.ID,
		Name:        st.Definition.Name,
		Description: st.Definition.Description,
		Criterion:   string(st.Definition.Criterion.Kind),
		TopicID:     st.Definition.Criterion.TopicID,
		Threshold:   st.Definition.Threshold,
		Progress:    st.Progress,
		Percent:     st.Percent(),
		Earned:      st.IsEarned(),
		EarnedAt:    st.EarnedAt,
	}
}
