package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/bracket-progression/cache"
	"github.com/Dosada05/bracket-progression/middleware"
	"github.com/Dosada05/bracket-progression/models"
	"github.com/Dosada05/bracket-progression/repositories"
	"github.com/Dosada05/bracket-progression/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

var organizer = models.Actor{UserID: 50, Role: models.RoleOrganizer}

type testEnv struct {
	store      *repositories.MemoryStore
	tournament models.Tournament
	router     *chi.Mux
	semi1      int
	semi2      int
	final      int
}

// newTestEnv wires real services over a memory store with a four-player single-elimination bracket.
func newTestEnv(t *testing.T, actor *models.Actor) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store := repositories.NewMemoryStore()
	tournament := store.AddTournament(models.Tournament{
		Name:        "Club Night",
		Type:        models.TypeSingleElimination,
		Status:      models.StatusOngoing,
		OrganizerID: organizer.UserID,
	})
	p := func(v int) *int { return &v }
	ms := store.AddMatches(
		models.Match{TournamentID: tournament.ID, RoundNumber: 1, MatchNumber: 1, Player1ID: p(1), Player2ID: p(2)},
		models.Match{TournamentID: tournament.ID, RoundNumber: 1, MatchNumber: 2, Player1ID: p(3), Player2ID: p(4)},
		models.Match{TournamentID: tournament.ID, RoundNumber: 2, MatchNumber: 1},
	)

	advancement := services.NewAdvancementService(store, store.Tournaments(), time.Second, logger, nil)
	scores := services.NewScoreService(store, store.Tournaments(), advancement, nil, nil, logger, nil)
	tournaments := services.NewTournamentService(store.Tournaments(), store, store, logger)
	progression := services.NewProgressionService(store.Tournaments(), store)
	autoFix := services.NewAutoFixScheduler(advancement, cache.NewMemoryCooldown(), 30*time.Second, nil, logger, nil)

	mh := NewMatchHandler(scores, advancement, tournaments)
	th := NewTournamentHandler(tournaments, progression, advancement, autoFix)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor != nil {
				r = r.WithContext(middleware.WithActor(r.Context(), *actor))
			}
			next.ServeHTTP(w, r)
		})
	})
	router.Post("/matches/{matchID}/score", mh.SubmitScore)
	router.Post("/matches/{matchID}/advance", mh.AdvanceWinner)
	router.Get("/tournaments/{tournamentID}/progression", th.GetProgression)
	router.Post("/tournaments/{tournamentID}/autofix", th.AutoFix)
	router.Post("/tournaments/{tournamentID}/repair", th.Repair)

	return &testEnv{store: store, tournament: tournament, router: router, semi1: ms[0].ID, semi2: ms[1].ID, final: ms[2].ID}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec.Code, decoded
}

func scorePath(id int) string {
	return "/matches/" + strconv.Itoa(id) + "/score"
}

func tournamentPath(id int) string {
	return "/tournaments/" + strconv.Itoa(id)
}

func TestSubmitScoreHandler(t *testing.T) {
	tests := []struct {
		name       string
		actor      *models.Actor
		path       func(e *testEnv) string
		body       string
		wantStatus int
		wantCode   string
		// ошибка сервиса всегда сообщает, что счёт не сохранён
		notSaved   bool
	}{
		{
			name:       "winner recorded and advanced",
			actor:      &organizer,
			path:       func(e *testEnv) string { return scorePath(e.semi1) },
			body:       `{"score_player1": 5, "score_player2": 3}`,
			wantStatus: http.StatusOK,
			wantCode:   string(services.CodeSuccess),
		},
		{
			name:       "draw",
			actor:      &organizer,
			path:       func(e *testEnv) string { return scorePath(e.semi1) },
			body:       `{"score_player1": 2, "score_player2": 2}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   string(services.CodeInvalidScore),
			notSaved:   true,
		},
		{
			name:       "missing score",
			actor:      &organizer,
			path:       func(e *testEnv) string { return scorePath(e.semi1) },
			body:       `{"score_player1": 2}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   string(services.CodeInvalidInput),
		},
		{
			name:       "unknown match",
			actor:      &organizer,
			path:       func(*testEnv) string { return scorePath(999) },
			body:       `{"score_player1": 2, "score_player2": 1}`,
			wantStatus: http.StatusNotFound,
			wantCode:   string(services.CodeMatchNotFound),
			notSaved:   true,
		},
		{
			name:       "match not ready",
			actor:      &organizer,
			path:       func(e *testEnv) string { return scorePath(e.final) },
			body:       `{"score_player1": 2, "score_player2": 1}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   string(services.CodeInvalidInput),
			notSaved:   true,
		},
		{
			name:       "anonymous",
			path:       func(e *testEnv) string { return scorePath(e.semi1) },
			body:       `{"score_player1": 2, "score_player2": 1}`,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.actor)
			status, body := env.do(t, http.MethodPost, tt.path(env), tt.body)
			require.Equal(t, tt.wantStatus, status, body)
			if tt.wantCode != "" {
				require.Equal(t, tt.wantCode, body["code"])
			}
			if tt.notSaved {
				require.Equal(t, false, body["score_saved"])
			}
		})
	}
}

func TestSubmitScoreHandlerResult(t *testing.T) {
	env := newTestEnv(t, &organizer)
	status, body := env.do(t, http.MethodPost, scorePath(env.semi2), `{"score_player1": 1, "score_player2": 4}`)
	require.Equal(t, http.StatusOK, status)

	result := body["result"].(map[string]interface{})
	require.Equal(t, true, result["score_saved"])
	require.Equal(t, float64(4), result["winner_id"])
	require.Equal(t, false, result["bracket_pending"])

	final, err := env.store.GetByID(context.Background(), env.final)
	require.NoError(t, err)
	require.Equal(t, 4, *final.Player2ID)
}

func TestSubmitScoreHandlerDifferentResult(t *testing.T) {
	env := newTestEnv(t, &organizer)
	status, _ := env.do(t, http.MethodPost, scorePath(env.semi1), `{"score_player1": 3, "score_player2": 1}`)
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodPost, scorePath(env.semi1), `{"score_player1": 1, "score_player2": 3}`)
	require.Equal(t, http.StatusConflict, status, body)
	require.Equal(t, string(services.CodeMatchAlreadyCompleted), body["code"])
	require.Equal(t, false, body["score_saved"])

	semi, err := env.store.GetByID(context.Background(), env.semi1)
	require.NoError(t, err)
	require.Equal(t, 3, *semi.ScorePlayer1)
}

func TestMapServiceErrorInternalKeepsExtra(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/matches/1/score", nil)
	mapServiceErrorWithBody(rec, req, errors.New("pq: connection refused"), jsonResponse{"score_saved": false})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, string(services.CodeInternalError), body["code"])
	require.Equal(t, false, body["score_saved"])
	require.NotContains(t, body["error"], "connection refused")
}

func TestRepairAndAutoFixHandlers(t *testing.T) {
	stranger := models.Actor{UserID: 3, Role: models.RolePlayer}

	t.Run("stranger is forbidden", func(t *testing.T) {
		env := newTestEnv(t, &stranger)
		path := tournamentPath(env.tournament.ID)
		status, body := env.do(t, http.MethodPost, path+"/repair", "")
		require.Equal(t, http.StatusForbidden, status)
		require.Equal(t, string(services.CodeForbidden), body["code"])

		status, body = env.do(t, http.MethodPost, path+"/autofix", "")
		require.Equal(t, http.StatusOK, status, "no issues yet, nothing to forbid")
		require.Equal(t, string(services.DecisionNoIssues), body["result"].(map[string]interface{})["decision"])
	})

	t.Run("organizer repairs a lagging bracket", func(t *testing.T) {
		env := newTestEnv(t, &organizer)
		path := tournamentPath(env.tournament.ID)
		_, err := env.store.UpdateScore(context.Background(), env.semi1, 3, 0, nil)
		require.NoError(t, err)

		status, body := env.do(t, http.MethodGet, path+"/progression", "")
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, true, body["progression"].(map[string]interface{})["has_issues"])

		status, body = env.do(t, http.MethodPost, path+"/autofix", "")
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, string(services.DecisionRepaired), body["result"].(map[string]interface{})["decision"])

		status, body = env.do(t, http.MethodPost, path+"/autofix", "")
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, string(services.DecisionCooldown), body["result"].(map[string]interface{})["decision"])

		status, _ = env.do(t, http.MethodPost, path+"/repair", "")
		require.Equal(t, http.StatusOK, status, "manual repair ignores the cooldown")
	})

	t.Run("frozen tournament", func(t *testing.T) {
		env := newTestEnv(t, &organizer)
		path := tournamentPath(env.tournament.ID)
		require.NoError(t, env.store.Tournaments().UpdateStatus(context.Background(), env.tournament.ID,
			[]models.TournamentStatus{models.StatusOngoing}, models.StatusCancelled))

		status, body := env.do(t, http.MethodPost, path+"/repair", "")
		require.Equal(t, http.StatusConflict, status)
		require.Equal(t, string(services.CodeTournamentFrozen), body["code"])
	})
}

type failingPinger struct{ err error }

func (p failingPinger) PingContext(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil).Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(failingPinger{err: errors.New("connection refused")}).Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
