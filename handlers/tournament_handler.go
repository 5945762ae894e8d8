package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/bracket-progression/models"
	"github.com/Dosada05/bracket-progression/services"
)

type TournamentHandler struct {
	tournamentService  services.TournamentService
	progressionService services.ProgressionService
	advancementService services.AdvancementService
	autoFix            *services.AutoFixScheduler
}

func NewTournamentHandler(
	tournamentService services.TournamentService,
	progressionService services.ProgressionService,
	advancementService services.AdvancementService,
	autoFix *services.AutoFixScheduler,
) *TournamentHandler {
	return &TournamentHandler{
		tournamentService:  tournamentService,
		progressionService: progressionService,
		advancementService: advancementService,
		autoFix:            autoFix,
	}
}

func (h *TournamentHandler) GetTournament(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.GetTournament(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) GetRounds(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	bracket, err := h.tournamentService.Bracket(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"bracket": bracket}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) GetProgression(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	check, err := h.progressionService.Check(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"progression": check.Report, "checked_at": check.CheckedAt}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Repair запускает восстановление сетки вручную, без учёта cooldown.
func (h *TournamentHandler) Repair(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if _, err := h.tournamentService.Authorize(r.Context(), actor, tournamentID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	result, err := h.advancementService.RepairBracket(r.Context(), tournamentID)
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

// AutoFix проверяет сетку и передаёт результат планировщику авто-исправлений.
func (h *TournamentHandler) AutoFix(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	check, err := h.progressionService.Check(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	result, err := h.autoFix.Trigger(r.Context(), check.Tournament, check.Report, actor)
	if err != nil {
		mapServiceErrorWithBody(w, r, err, jsonResponse{"result": result, "progression": check.Report})
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result, "progression": check.Report}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type updateStatusInput struct {
	Status models.TournamentStatus `json:"status"`
}

func (h *TournamentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var input updateStatusInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Status == "" {
		badRequestResponse(w, r, errors.New("status is required"))
		return
	}

	tournament, err := h.tournamentService.UpdateStatus(r.Context(), actor, tournamentID, input.Status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
