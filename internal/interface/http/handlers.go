package http

import (
	"net/http"
	"time"

	"github.com/brainbites/progression-engine/internal/application/command"
	"github.com/brainbites/progression-engine/internal/application/query"
	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth is the liveness probe. Only critical checks fail it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// handleReady is the readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"reason": status.Message,
			"checks": status.Checks,
		})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// notConfigured answers 501 for routes whose handler was not wired.
func notConfigured(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "handler not configured", nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE BODIES
// ══════════════════════════════════════════════════════════════════════════════

type registerUserRequest struct {
	UserID    string `json:"user_id"`
	TimeZone  string `json:"time_zone"`
	CardQuota int    `json:"card_quota"`
}

type registerUserResponse struct {
	UserID            string `json:"user_id"`
	XP                int    `json:"xp"`
	Lives             int    `json:"lives"`
	EverydayCardQuota int    `json:"everyday_card_quota"`
	TimeZone          string `json:"time_zone"`
}

type xpRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

type xpResponse struct {
	UserID  string `json:"user_id"`
	Amount  int    `json:"amount"`
	Balance int    `json:"balance"`
	Reason  string `json:"reason"`
}

func toXPResponse(res *command.XPResult) xpResponse {
	return xpResponse{UserID: res.UserID, Amount: res.Amount, Balance: res.Balance, Reason: res.Reason}
}

type livesResponse struct {
	UserID       string     `json:"user_id"`
	Lives        int        `json:"lives"`
	XP           int        `json:"xp"`
	NextLifeAt   *time.Time `json:"next_life_at,omitempty"`
	Restored     int        `json:"restored"`
	TimerStarted bool       `json:"timer_started"`
}

func toLivesResponse(res *command.LivesResult) livesResponse {
	return livesResponse{
		UserID:       res.UserID,
		Lives:        res.Lives,
		XP:           res.XP,
		NextLifeAt:   res.NextLifeAt,
		Restored:     res.Restored,
		TimerStarted: res.TimerStarted,
	}
}

type dayStreakResponse struct {
	Current        int    `json:"current"`
	Longest        int    `json:"longest"`
	Date           string `json:"date,omitempty"`
	Continued      bool   `json:"continued"`
	Broken         bool   `json:"broken"`
	PreviousStreak int    `json:"previous_streak,omitempty"`
	Duplicate      bool   `json:"duplicate"`
}

func toDayStreakResponse(u streak.DayUpdate) dayStreakResponse {
	out := dayStreakResponse{
		Current:        u.Current,
		Longest:        u.Longest,
		Continued:      u.Continued,
		Broken:         u.Broken,
		PreviousStreak: u.PreviousStreak,
		Duplicate:      u.Duplicate,
	}
	if !u.Date.IsZero() {
		out.Date = u.Date.Format(time.DateOnly)
	}
	return out
}

type correctnessRequest struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

type correctnessResponse struct {
	Count   int  `json:"count"`
	Max     int  `json:"max"`
	Perfect bool `json:"perfect"`
	Reset   bool `json:"reset"`
}

func toCorrectnessResponse(u streak.CorrectnessUpdate) correctnessResponse {
	return correctnessResponse{Count: u.Count, Max: u.Max, Perfect: u.Perfect, Reset: u.Reset}
}

type cardReadResponse struct {
	UserID    string            `json:"user_id"`
	ReadCards int               `json:"read_cards"`
	DayStreak dayStreakResponse `json:"day_streak"`
}

// snapshotBody is the wire form of badge.ActivitySnapshot.
type snapshotBody struct {
	ReadCards          int                  `json:"read_cards"`
	CorrectQuizAnswers int                  `json:"correct_quiz_answers"`
	Subtopics          []subtopicBody       `json:"subtopics"`
	Topics             map[string]topicBody `json:"topics"`
}

type subtopicBody struct {
	SubtopicID  string `json:"subtopic_id"`
	TopicID     string `json:"topic_id"`
	ViewedCards int    `json:"viewed_cards"`
	TotalCards  int    `json:"total_cards"`
}

type topicBody struct {
	ReadCards       int `json:"read_cards"`
	QuizPassedCards int `json:"quiz_passed_cards"`
}

func (b snapshotBody) toSnapshot() badge.ActivitySnapshot {
	snap := badge.ActivitySnapshot{
		ReadCards:          b.ReadCards,
		CorrectQuizAnswers: b.CorrectQuizAnswers,
	}
	for _, st := range b.Subtopics {
		snap.Subtopics = append(snap.Subtopics, badge.SubtopicActivity{
			SubtopicID:  st.SubtopicID,
			TopicID:     st.TopicID,
			ViewedCards: st.ViewedCards,
			TotalCards:  st.TotalCards,
		})
	}
	if len(b.Topics) > 0 {
		snap.Topics = make(map[string]badge.TopicActivity, len(b.Topics))
		for id, t := range b.Topics {
			snap.Topics[id] = badge.TopicActivity{ReadCards: t.ReadCards, QuizPassedCards: t.QuizPassedCards}
		}
	}
	return snap
}

type evaluateBadgesRequest struct {
	Snapshot snapshotBody `json:"snapshot"`
}

type awardedBadgeResponse struct {
	BadgeID  string    `json:"badge_id"`
	Name     string    `json:"name"`
	Progress int       `json:"progress"`
	EarnedAt time.Time `json:"earned_at"`
}

type badgeEvaluationResponse struct {
	UserID       string                 `json:"user_id"`
	Awarded      []awardedBadgeResponse `json:"awarded"`
	Progress     map[string]int         `json:"progress"`
	ConfigErrors []string               `json:"config_errors,omitempty"`
	BadgeCount   int                    `json:"badge_count"`
}

func toBadgeEvaluationResponse(res *command.BadgeEvaluationResult) *badgeEvaluationResponse {
	if res == nil {
		return nil
	}
	out := &badgeEvaluationResponse{
		UserID:     res.UserID,
		Awarded:    make([]awardedBadgeResponse, 0, len(res.Awarded)),
		Progress:   res.Progress,
		BadgeCount: res.BadgeCount,
	}
	for _, a := range res.Awarded {
		out.Awarded = append(out.Awarded, awardedBadgeResponse{
			BadgeID:  a.BadgeID,
			Name:     a.Name,
			Progress: a.Progress,
			EarnedAt: a.EarnedAt,
		})
	}
	for _, err := range res.ConfigErrors {
		out.ConfigErrors = append(out.ConfigErrors, err.Error())
	}
	return out
}

type quizRoundRequest struct {
	Correct  int          `json:"correct"`
	Total    int          `json:"total"`
	Snapshot snapshotBody `json:"snapshot"`
}

type quizRoundResponse struct {
	UserID      string                   `json:"user_id"`
	XPEarned    int                      `json:"xp_earned"`
	Balance     int                      `json:"balance"`
	Lives       int                      `json:"lives"`
	LifeLost    bool                     `json:"life_lost"`
	NextLifeAt  *time.Time               `json:"next_life_at,omitempty"`
	Correctness correctnessResponse      `json:"correctness"`
	DayStreak   dayStreakResponse        `json:"day_streak"`
	Badges      *badgeEvaluationResponse `json:"badges,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// USER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRegisterUser handles POST /api/v1/users
func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	if s.deps.RegisterUser == nil {
		notConfigured(w, r)
		return
	}
	var req registerUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.RegisterUser.Handle(r.Context(), command.RegisterUserCommand{
		UserID:    req.UserID,
		TimeZone:  req.TimeZone,
		CardQuota: req.CardQuota,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, registerUserResponse{
		UserID:            res.Progression.UserID,
		XP:                res.Progression.XP.Int(),
		Lives:             res.Progression.Lives,
		EverydayCardQuota: res.Progression.EverydayCardQuota,
		TimeZone:          res.DayStreak.TimeZone,
	})
}

// handleDeleteUser handles DELETE /api/v1/users/{id}
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if s.deps.DeleteUser == nil {
		notConfigured(w, r)
		return
	}
	if err := s.deps.DeleteUser.Handle(r.Context(), command.DeleteUserCommand{UserID: r.PathValue("id")}); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetProgression handles GET /api/v1/users/{id}/progression
func (s *Server) handleGetProgression(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetProgression == nil {
		notConfigured(w, r)
		return
	}
	res, err := s.deps.GetProgression.Handle(r.Context(), query.GetProgressionQuery{UserID: r.PathValue("id")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIVES & XP HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleLoseLife handles POST /api/v1/users/{id}/lives/lose
func (s *Server) handleLoseLife(w http.ResponseWriter, r *http.Request) {
	if s.deps.LoseLife == nil {
		notConfigured(w, r)
		return
	}
	res, err := s.deps.LoseLife.Handle(r.Context(), command.LoseLifeCommand{UserID: r.PathValue("id")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toLivesResponse(res))
}

// handlePurchaseLife handles POST /api/v1/users/{id}/lives/purchase
func (s *Server) handlePurchaseLife(w http.ResponseWriter, r *http.Request) {
	if s.deps.PurchaseLife == nil {
		notConfigured(w, r)
		return
	}
	res, err := s.deps.PurchaseLife.Handle(r.Context(), command.PurchaseLifeCommand{UserID: r.PathValue("id")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toLivesResponse(res))
}

// handleCreditXP handles POST /api/v1/users/{id}/xp/credit
func (s *Server) handleCreditXP(w http.ResponseWriter, r *http.Request) {
	if s.deps.CreditXP == nil {
		notConfigured(w, r)
		return
	}
	var req xpRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.CreditXP.Handle(r.Context(), command.ChangeXPCommand{
		UserID: r.PathValue("id"),
		Amount: req.Amount,
		Reason: req.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toXPResponse(res))
}

// handleDebitXP handles POST /api/v1/users/{id}/xp/debit
func (s *Server) handleDebitXP(w http.ResponseWriter, r *http.Request) {
	if s.deps.DebitXP == nil {
		notConfigured(w, r)
		return
	}
	var req xpRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.DebitXP.Handle(r.Context(), command.ChangeXPCommand{
		UserID: r.PathValue("id"),
		Amount: req.Amount,
		Reason: req.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toXPResponse(res))
}

// handleUnlockSubtopic handles POST /api/v1/users/{id}/subtopics/{subtopicID}/unlock
func (s *Server) handleUnlockSubtopic(w http.ResponseWriter, r *http.Request) {
	if s.deps.UnlockSubtopic == nil {
		notConfigured(w, r)
		return
	}
	res, err := s.deps.UnlockSubtopic.Handle(r.Context(), command.UnlockSubtopicCommand{
		UserID:     r.PathValue("id"),
		SubtopicID: r.PathValue("subtopicID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toXPResponse(res))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY & STREAK HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRecordCardRead handles POST /api/v1/users/{id}/cards/read
func (s *Server) handleRecordCardRead(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecordCardRead == nil {
		notConfigured(w, r)
		return
	}
	res, err := s.deps.RecordCardRead.Handle(r.Context(), command.RecordCardReadCommand{UserID: r.PathValue("id")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, cardReadResponse{
		UserID:    res.UserID,
		ReadCards: res.ReadCards,
		DayStreak: toDayStreakResponse(res.DayStreak),
	})
}

// handleUpdateDayStreak handles POST /api/v1/users/{id}/streaks/day
func (s *Server) handleUpdateDayStreak(w http.ResponseWriter, r *http.Request) {
	if s.deps.UpdateDayStreak == nil {
		notConfigured(w, r)
		return
	}
	res, err := s.deps.UpdateDayStreak.Handle(r.Context(), command.UpdateDayStreakCommand{UserID: r.PathValue("id")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toDayStreakResponse(res.DayUpdate))
}

// handleUpdateCorrectness handles POST /api/v1/users/{id}/streaks/correctness
func (s *Server) handleUpdateCorrectness(w http.ResponseWriter, r *http.Request) {
	if s.deps.UpdateCorrectnessStreak == nil {
		notConfigured(w, r)
		return
	}
	var req correctnessRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.UpdateCorrectnessStreak.Handle(r.Context(), command.UpdateCorrectnessStreakCommand{
		UserID:  r.PathValue("id"),
		Correct: req.Correct,
		Total:   req.Total,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toCorrectnessResponse(*res))
}

// handleSubmitQuizRound handles POST /api/v1/users/{id}/quiz-rounds
func (s *Server) handleSubmitQuizRound(w http.ResponseWriter, r *http.Request) {
	if s.deps.SubmitQuizRound == nil {
		notConfigured(w, r)
		return
	}
	var req quizRoundRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.SubmitQuizRound.Handle(r.Context(), command.SubmitQuizRoundCommand{
		UserID:   r.PathValue("id"),
		Correct:  req.Correct,
		Total:    req.Total,
		Snapshot: req.Snapshot.toSnapshot(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, quizRoundResponse{
		UserID:      res.UserID,
		XPEarned:    res.XPEarned,
		Balance:     res.Balance,
		Lives:       res.Lives,
		LifeLost:    res.LifeLost,
		NextLifeAt:  res.NextLifeAt,
		Correctness: toCorrectnessResponse(res.Correctness),
		DayStreak:   toDayStreakResponse(res.DayStreak),
		Badges:      toBadgeEvaluationResponse(res.Badges),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE & LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleEvaluateBadges handles POST /api/v1/users/{id}/badges/evaluate
func (s *Server) handleEvaluateBadges(w http.ResponseWriter, r *http.Request) {
	if s.deps.EvaluateBadges == nil {
		notConfigured(w, r)
		return
	}
	var req evaluateBadgesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.EvaluateBadges.Handle(r.Context(), command.EvaluateBadgesCommand{
		UserID:   r.PathValue("id"),
		Snapshot: req.Snapshot.toSnapshot(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBadgeEvaluationResponse(res))
}

// handleGetBadges handles GET /api/v1/users/{id}/badges
func (s *Server) handleGetBadges(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetBadges == nil {
		notConfigured(w, r)
		return
	}
	res, err := s.deps.GetBadges.Handle(r.Context(), query.GetBadgesQuery{UserID: r.PathValue("id")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleGetBadge handles GET /api/v1/users/{id}/badges/{badgeID}
func (s *Server) handleGetBadge(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetBadges == nil {
		notConfigured(w, r)
		return
	}
	res, err := s.deps.GetBadges.HandleOne(r.Context(), query.GetBadgeQuery{
		UserID:  r.PathValue("id"),
		BadgeID: r.PathValue("badgeID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleGetLeaderboard handles GET /api/v1/leaderboard?metric=&user_id=&top=
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetLeaderboard == nil {
		notConfigured(w, r)
		return
	}
	top, err := getQueryParamInt(r, "top", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.GetLeaderboard.Handle(r.Context(), query.GetLeaderboardQuery{
		Metric: r.URL.Query().Get("metric"),
		UserID: r.URL.Query().Get("user_id"),
		TopN:   top,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}
