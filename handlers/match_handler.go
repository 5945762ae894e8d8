package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/bracket-progression/services"
)

type MatchHandler struct {
	scoreService       services.ScoreService
	advancementService services.AdvancementService
	tournamentService  services.TournamentService
}

func NewMatchHandler(
	scoreService services.ScoreService,
	advancementService services.AdvancementService,
	tournamentService services.TournamentService,
) *MatchHandler {
	return &MatchHandler{
		scoreService:       scoreService,
		advancementService: advancementService,
		tournamentService:  tournamentService,
	}
}

type submitScoreInput struct {
	ScorePlayer1 *int `json:"score_player1"`
	ScorePlayer2 *int `json:"score_player2"`
}

// SubmitScore: 200 означает, что счёт сохранён. Если сетка не догнала, в ответе
// bracket_pending=true и предупреждение; ошибка (4xx/5xx) означает, что счёт НЕ сохранён.
func (h *MatchHandler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var input submitScoreInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.ScorePlayer1 == nil || input.ScorePlayer2 == nil {
		badRequestResponse(w, r, errors.New("score_player1 and score_player2 are required"))
		return
	}

	result, err := h.scoreService.SubmitScore(r.Context(), actor, matchID, *input.ScorePlayer1, *input.ScorePlayer2)
	if err != nil {
		mapServiceErrorWithBody(w, r, err, jsonResponse{"score_saved": false})
		return
	}

	code := services.CodeSuccess
	if result.BracketPending {
		code = result.WarningCode
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result, "code": code}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) StartMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	match, err := h.scoreService.StartMatch(r.Context(), actor, matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// AdvanceWinner повторяет продвижение победителя одного матча (организатор или админ).
func (h *MatchHandler) AdvanceWinner(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if _, err := h.tournamentService.AuthorizeMatch(r.Context(), actor, matchID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	result, err := h.advancementService.AdvanceWinner(r.Context(), matchID)
	if err != nil {
		var extra jsonResponse
		if result != nil {
			extra = jsonResponse{"result": result}
		}
		mapServiceErrorWithBody(w, r, err, extra)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result, "code": services.CodeSuccess}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
