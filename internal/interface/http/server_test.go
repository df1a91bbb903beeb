package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainbites/progression-engine/config"
	"github.com/brainbites/progression-engine/internal/application/command"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/infrastructure/catalog"
	"github.com/brainbites/progression-engine/internal/infrastructure/persistence/memory"
	api "github.com/brainbites/progression-engine/internal/interface/http"
	"github.com/brainbites/progression-engine/internal/interface/http/handlers"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
	Error     *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Fields  map[string]any `json:"fields"`
	} `json:"error"`
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
	clock   *shared.FixedClock
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.NewStore()
	_, err := catalog.Seed(context.Background(), store, catalog.Default(), nil)
	require.NoError(t, err)

	clock := &shared.FixedClock{T: t0}
	deps := api.NewDependencies(api.Wiring{
		Command: command.Deps{
			UoW:      store,
			Clock:    clock,
			Features: config.NewFeatureFlags(),
		},
		Rules:         command.DefaultRules(),
		Catalog:       store,
		Standings:     store,
		HealthChecker: handlers.NewNoopHealthChecker(),
	})
	srv := api.NewServer(api.DefaultConfig(), deps)
	return &testAPI{t: t, handler: srv.Handler(), clock: clock}
}

func (a *testAPI) do(method, path string, body any) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func (a *testAPI) register(id string) {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/api/v1/users", map[string]any{"user_id": id, "time_zone": "Asia/Almaty"})
	require.Equal(a.t, http.StatusCreated, code, "%+v", env.Error)
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestHealthAndRequestID(t *testing.T) {
	a := newTestAPI(t)

	code, env := a.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestUsers(t *testing.T) {
	a := newTestAPI(t)

	code, env := a.do(http.MethodPost, "/api/v1/users", map[string]any{"user_id": "alice", "time_zone": "Asia/Almaty"})
	require.Equal(t, http.StatusCreated, code)
	created := decode[map[string]any](t, env)
	assert.Equal(t, "alice", created["user_id"])
	assert.EqualValues(t, 5, created["lives"])
	assert.Equal(t, "Asia/Almaty", created["time_zone"])

	code, env = a.do(http.MethodPost, "/api/v1/users", map[string]any{"user_id": "alice"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "user_exists", env.Error.Code)

	code, env = a.do(http.MethodPost, "/api/v1/users", `{"user_id": "bob", "nickname": "b"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_input", env.Error.Code)

	code, _ = a.do(http.MethodDelete, "/api/v1/users/alice", nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, env = a.do(http.MethodGet, "/api/v1/users/alice/progression", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "user_not_found", env.Error.Code)
	assert.Equal(t, "alice", env.Error.Fields["user_id"])
}

func TestLivesAndXP(t *testing.T) {
	a := newTestAPI(t)
	a.register("alice")

	code, env := a.do(http.MethodPost, "/api/v1/users/alice/lives/purchase", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "insufficient_xp", env.Error.Code)

	for i := 0; i < 5; i++ {
		code, env = a.do(http.MethodPost, "/api/v1/users/alice/lives/lose", nil)
		require.Equal(t, http.StatusOK, code)
	}
	lives := decode[map[string]any](t, env)
	assert.EqualValues(t, 0, lives["lives"])
	assert.NotEmpty(t, lives["next_life_at"])

	code, env = a.do(http.MethodPost, "/api/v1/users/alice/lives/lose", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "no_lives_remaining", env.Error.Code)
	assert.EqualValues(t, 0, env.Error.Fields["lives"])

	code, env = a.do(http.MethodPost, "/api/v1/users/alice/xp/credit", map[string]any{"amount": 40})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 40, decode[map[string]any](t, env)["balance"])

	code, env = a.do(http.MethodPost, "/api/v1/users/alice/xp/debit", map[string]any{"amount": 100})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "insufficient_xp", env.Error.Code)
	assert.EqualValues(t, 40, env.Error.Fields["balance"])
	assert.EqualValues(t, 100, env.Error.Fields["requested"])

	code, env = a.do(http.MethodPost, "/api/v1/users/alice/xp/credit", map[string]any{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_amount", env.Error.Code)

	// Regeneration is applied lazily on read.
	a.clock.Advance(time.Hour)
	code, env = a.do(http.MethodGet, "/api/v1/users/alice/progression", nil)
	require.Equal(t, http.StatusOK, code)
	prog := decode[map[string]any](t, env)
	assert.EqualValues(t, 2, prog["lives"])
	assert.EqualValues(t, 40, prog["xp"])
}

func TestQuizRoundAndBadges(t *testing.T) {
	a := newTestAPI(t)
	a.register("alice")

	code, env := a.do(http.MethodPost, "/api/v1/users/alice/quiz-rounds", map[string]any{
		"correct":  3,
		"total":    3,
		"snapshot": map[string]any{"read_cards": 1},
	})
	require.Equal(t, http.StatusOK, code, "%+v", env.Error)
	round := decode[map[string]any](t, env)
	assert.EqualValues(t, 30, round["xp_earned"])
	assert.Equal(t, false, round["life_lost"])
	assert.EqualValues(t, 3, round["correctness"].(map[string]any)["count"])

	code, env = a.do(http.MethodGet, "/api/v1/users/alice/badges/first-card", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, decode[map[string]any](t, env)["earned"])

	code, env = a.do(http.MethodPost, "/api/v1/users/alice/badges/evaluate", map[string]any{
		"snapshot": map[string]any{"read_cards": 1},
	})
	require.Equal(t, http.StatusOK, code)
	eval := decode[map[string]any](t, env)
	assert.Empty(t, eval["awarded"], "a badge is awarded once")

	code, env = a.do(http.MethodGet, "/api/v1/users/alice/badges", nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[map[string]any](t, env)
	assert.EqualValues(t, 1, list["earned_count"])
	assert.Len(t, list["badges"], len(catalog.Default()))

	code, env = a.do(http.MethodGet, "/api/v1/users/alice/badges/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "badge_not_found", env.Error.Code)

	code, env = a.do(http.MethodPost, "/api/v1/users/alice/streaks/correctness", map[string]any{"correct": 1, "total": 2})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, decode[map[string]any](t, env)["reset"])
}

func TestActivity(t *testing.T) {
	a := newTestAPI(t)
	a.register("alice")

	code, env := a.do(http.MethodPost, "/api/v1/users/alice/cards/read", nil)
	require.Equal(t, http.StatusOK, code)
	read := decode[map[string]any](t, env)
	assert.EqualValues(t, 1, read["read_cards"])
	assert.EqualValues(t, 1, read["day_streak"].(map[string]any)["current"])

	code, env = a.do(http.MethodPost, "/api/v1/users/alice/streaks/day", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, decode[map[string]any](t, env)["duplicate"])

	code, env = a.do(http.MethodPost, "/api/v1/users/alice/xp/credit", map[string]any{"amount": 150})
	require.Equal(t, http.StatusOK, code)
	code, env = a.do(http.MethodPost, "/api/v1/users/alice/subtopics/closures/unlock", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 50, decode[map[string]any](t, env)["balance"])
}

func TestLeaderboard(t *testing.T) {
	a := newTestAPI(t)
	for id, xp := range map[string]int{"a": 50, "b": 50, "c": 30, "d": 10} {
		a.register(id)
		code, _ := a.do(http.MethodPost, "/api/v1/users/"+id+"/xp/credit", map[string]any{"amount": xp})
		require.Equal(t, http.StatusOK, code)
	}

	type board struct {
		Metric  string `json:"metric"`
		Entries []struct {
			Rank        int    `json:"rank"`
			UserID      string `json:"user_id"`
			Value       int    `json:"value"`
			IsRequester bool   `json:"is_requester"`
		} `json:"entries"`
		Requester  *struct{ Rank int } `json:"requester"`
		TotalCount int                 `json:"total_count"`
	}

	code, env := a.do(http.MethodGet, "/api/v1/leaderboard?metric=xp&top=4", nil)
	require.Equal(t, http.StatusOK, code)
	b := decode[board](t, env)
	require.Len(t, b.Entries, 4)
	var ranks []int
	var ids []string
	for _, e := range b.Entries {
		ranks = append(ranks, e.Rank)
		ids = append(ids, e.UserID)
	}
	assert.Equal(t, []int{1, 1, 3, 4}, ranks)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)

	code, env = a.do(http.MethodGet, "/api/v1/leaderboard?metric=xp&top=2&user_id=d", nil)
	require.Equal(t, http.StatusOK, code)
	b = decode[board](t, env)
	require.Len(t, b.Entries, 3)
	assert.Equal(t, "d", b.Entries[2].UserID)
	assert.True(t, b.Entries[2].IsRequester)
	require.NotNil(t, b.Requester)
	assert.Equal(t, 4, b.Requester.Rank)

	code, env = a.do(http.MethodGet, "/api/v1/leaderboard?metric=xp&user_id=ghost", nil)
	require.Equal(t, http.StatusOK, code)
	b = decode[board](t, env)
	assert.Len(t, b.Entries, 3)
	assert.Nil(t, b.Requester)

	code, env = a.do(http.MethodGet, "/api/v1/leaderboard?metric=karma", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_metric", env.Error.Code)

	code, env = a.do(http.MethodGet, "/api/v1/leaderboard?metric=xp&top=many", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_input", env.Error.Code)
}

func TestNotConfigured(t *testing.T) {
	srv := api.NewServer(api.DefaultConfig(), api.Dependencies{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard?metric=xp", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
