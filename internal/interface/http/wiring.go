package http

import (
	"github.com/brainbites/progression-engine/internal/application/command"
	"github.com/brainbites/progression-engine/internal/application/query"
	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/leaderboard"
	"github.com/brainbites/progression-engine/internal/interface/http/handlers"
)

// Wiring holds what it takes to build every handler the API serves.
type Wiring struct {
	Command   command.Deps
	Rules     command.Rules
	Catalog   badge.Catalog
	Standings leaderboard.StandingsRepository

	// Cache may be nil; leaderboards are then ranked from Standings.
	Cache leaderboard.Cache

	// LeaderboardTopN is the default top size.
	LeaderboardTopN int

	HealthChecker handlers.HealthChecker
}

// NewDependencies builds all command and query handlers from w.
func NewDependencies(w Wiring) Dependencies {
	d := w.Command
	regen := command.NewCheckRegenerationHandler(d, w.Rules)

	return Dependencies{
		RegisterUser:            command.NewRegisterUserHandler(d, w.Rules),
		DeleteUser:              command.NewDeleteUserHandler(d),
		LoseLife:                command.NewLoseLifeHandler(d, w.Rules),
		PurchaseLife:            command.NewPurchaseLifeHandler(d, w.Rules),
		CreditXP:                command.NewCreditXPHandler(d),
		DebitXP:                 command.NewDebitXPHandler(d),
		UnlockSubtopic:          command.NewUnlockSubtopicHandler(d, w.Rules),
		RecordCardRead:          command.NewRecordCardReadHandler(d),
		UpdateDayStreak:         command.NewUpdateDayStreakHandler(d),
		UpdateCorrectnessStreak: command.NewUpdateCorrectnessStreakHandler(d),
		SubmitQuizRound:         command.NewSubmitQuizRoundHandler(d, w.Rules, w.Catalog),
		EvaluateBadges:          command.NewEvaluateBadgesHandler(d, w.Catalog),

		GetProgression: query.NewGetProgressionHandler(d.UoW, regen, w.Rules.Policy, d.Features, d.Clock, d.Logger),
		GetBadges:      query.NewGetBadgesHandler(d.UoW, w.Catalog),
		GetLeaderboard: query.NewGetLeaderboardHandler(w.Standings, w.Cache, d.Features, w.LeaderboardTopN, d.Logger),

		HealthChecker: w.HealthChecker,
		Logger:        d.Logger,
	}
}
