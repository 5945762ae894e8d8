package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/bracket-progression/repositories"
)

// Общие ошибки сервисов и маппинга HTTP.
var (
	ErrNotFound         = errors.New("requested resource not found")
	ErrValidationFailed = errors.New("validation failed")

	// Ошибки подсчёта очков и продвижения по сетке
	ErrInvalidScore        = errors.New("scores must differ: elimination matches cannot end in a draw")
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchNotReady       = errors.New("match does not have both players assigned")
	ErrMatchStatusConflict = errors.New("match status does not allow this operation")
	ErrNoWinner            = errors.New("match has no winner to advance")
	ErrAdvancementConflict = errors.New("destination slot is occupied by a different player")
	ErrAdvancementTimeout  = errors.New("advancement timed out")
	ErrBracketShape        = errors.New("bracket layout does not match tournament type")

	// у матча уже другой результат, новый счёт НЕ сохранён
	ErrMatchAlreadyCompleted = errors.New("match already completed with a different result, score not saved")

	// Ошибки турниров
	ErrTournamentNotFound                = errors.New("tournament not found")
	ErrTournamentFrozen                  = errors.New("tournament is completed or cancelled")
	ErrTournamentInvalidStatus           = errors.New("invalid tournament status provided")
	ErrTournamentInvalidStatusTransition = errors.New("invalid tournament status transition")
	ErrUnsupportedTournamentType         = errors.New("tournament type has no elimination bracket")

	ErrForbiddenOperation = errors.New("operation not allowed for the current user")
)

// Code is the machine readable outcome of a core operation.
type Code string

const (
	CodeSuccess             Code = "success"
	CodeInvalidScore        Code = "invalid_score"
	CodeMatchNotFound       Code = "match_not_found"
	CodeTournamentFrozen    Code = "tournament_frozen"
	CodeAdvancementConflict Code = "advancement_conflict"
	CodeInternalError       Code = "internal_error"
	CodeForbidden           Code = "forbidden"
	CodeInvalidInput        Code = "invalid_input"
	CodeNotFound            Code = "not_found"

	// CodeMatchAlreadyCompleted rejects a result that differs from the stored one.
	CodeMatchAlreadyCompleted Code = "match_already_completed"
)

// ResultCode classifies err. Unknown errors, timeouts included, are internal errors.
func ResultCode(err error) Code {
	switch {
	case err == nil:
		return CodeSuccess
	case errors.Is(err, ErrInvalidScore):
		return CodeInvalidScore
	case errors.Is(err, ErrMatchNotFound):
		return CodeMatchNotFound
	case errors.Is(err, ErrTournamentFrozen):
		return CodeTournamentFrozen
	case errors.Is(err, ErrAdvancementConflict):
		return CodeAdvancementConflict
	case errors.Is(err, ErrMatchAlreadyCompleted):
		return CodeMatchAlreadyCompleted
	case errors.Is(err, ErrForbiddenOperation):
		return CodeForbidden
	case errors.Is(err, ErrTournamentNotFound), errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrMatchNotReady),
		errors.Is(err, ErrMatchStatusConflict),
		errors.Is(err, ErrNoWinner),
		errors.Is(err, ErrTournamentInvalidStatus),
		errors.Is(err, ErrTournamentInvalidStatusTransition),
		errors.Is(err, ErrUnsupportedTournamentType):
		return CodeInvalidInput
	default:
		return CodeInternalError
	}
}

// handleRepositoryError переводит ошибки репозиториев в ошибки сервисного слоя,
// сохраняя исходную ошибку в цепочке.
func handleRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var target error
	switch {
	case errors.Is(err, repositories.ErrEqualScores):
		target = ErrInvalidScore
	case errors.Is(err, repositories.ErrMatchNotFound):
		target = ErrMatchNotFound
	case errors.Is(err, repositories.ErrMatchNotReady):
		target = ErrMatchNotReady
	case errors.Is(err, repositories.ErrMatchStatusConflict):
		target = ErrMatchStatusConflict
	case errors.Is(err, repositories.ErrMatchAlreadyCompleted):
		target = ErrMatchAlreadyCompleted
	case errors.Is(err, repositories.ErrTournamentNotFound):
		target = ErrTournamentNotFound
	case errors.Is(err, repositories.ErrTournamentFrozen):
		target = ErrTournamentFrozen
	case errors.Is(err, repositories.ErrTournamentStatusConflict):
		target = ErrTournamentInvalidStatusTransition
	default:
		return err
	}
	return fmt.Errorf("%w: %w", target, err)
}
