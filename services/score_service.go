package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/bracket-progression/brackets"
	"github.com/Dosada05/bracket-progression/models"
	"github.com/Dosada05/bracket-progression/repositories"
)

// Broadcaster pushes realtime messages to observers of a tournament.
type Broadcaster interface {
	BroadcastTournament(tournamentID int, msgType string, payload interface{})
}

// Archiver stores a snapshot of a finished bracket.
type Archiver interface {
	Archive(ctx context.Context, tournament *models.Tournament, matches []models.Match) (string, error)
}

// ScoreResult separates "the score was saved" from "the bracket caught up". When ScoreSaved is
// true and BracketPending is set, the result stands and the bracket will be repaired later.
type ScoreResult struct {
	MatchID             int   `json:"match_id"`
	ScoreSaved          bool  `json:"score_saved"`
	WinnerID            *int  `json:"winner_id"`
	IsFinalMatch        bool  `json:"is_final_match"`
	TournamentCompleted bool  `json:"tournament_completed"`
	AdvancementsMade    int   `json:"advancements_made"`
	DestinationMatchIDs []int `json:"destination_match_ids"`
	// AlreadyRecorded is set when the identical result was stored before; nothing was advanced.
	AlreadyRecorded bool   `json:"already_recorded"`
	BracketPending  bool   `json:"bracket_pending"`
	Warning         string `json:"warning,omitempty"`
	WarningCode     Code   `json:"warning_code,omitempty"`
}

type ScoreService interface {
	SubmitScore(ctx context.Context, actor models.Actor, matchID, scorePlayer1, scorePlayer2 int) (*ScoreResult, error)
	StartMatch(ctx context.Context, actor models.Actor, matchID int) (*models.Match, error)
}

type scoreService struct {
	matchRepo      repositories.MatchRepository
	tournamentRepo repositories.TournamentRepository
	advancement    AdvancementService
	broadcaster    Broadcaster
	archiver       Archiver
	logger         *slog.Logger
	metrics        *Metrics
}

// NewScoreService: broadcaster и archiver необязательны (nil).
func NewScoreService(
	matchRepo repositories.MatchRepository,
	tournamentRepo repositories.TournamentRepository,
	advancement AdvancementService,
	broadcaster Broadcaster,
	archiver Archiver,
	logger *slog.Logger,
	metrics *Metrics,
) ScoreService {
	return &scoreService{
		matchRepo:      matchRepo,
		tournamentRepo: tournamentRepo,
		advancement:    advancement,
		broadcaster:    broadcaster,
		archiver:       archiver,
		logger:         logger,
		metrics:        metrics,
	}
}

func (s *scoreService) SubmitScore(ctx context.Context, actor models.Actor, matchID, scorePlayer1, scorePlayer2 int) (result *ScoreResult, err error) {
	defer func() {
		code := ResultCode(err)
		if err == nil && result != nil && result.BracketPending {
			code = result.WarningCode
		}
		s.metrics.scoreSubmitted(code)
	}()

	if scorePlayer1 < 0 || scorePlayer2 < 0 {
		return nil, fmt.Errorf("%w: scores must not be negative", ErrValidationFailed)
	}
	if scorePlayer1 == scorePlayer2 {
		return nil, fmt.Errorf("%w: %d:%d", ErrInvalidScore, scorePlayer1, scorePlayer2)
	}

	update, err := s.matchRepo.UpdateScore(ctx, matchID, scorePlayer1, scorePlayer2, userIDPtr(actor))
	if err != nil {
		// счёт не сохранён, дальше ничего не делаем
		return nil, handleRepositoryError(err)
	}

	match := update.Match
	result = &ScoreResult{
		MatchID:             matchID,
		ScoreSaved:          true,
		WinnerID:            match.WinnerID,
		DestinationMatchIDs: []int{},
	}
	if !update.Changed {
		result.AlreadyRecorded = true
		return result, nil
	}

	s.logger.InfoContext(ctx, "match score recorded",
		slog.Int("match_id", matchID),
		slog.Int("tournament_id", match.TournamentID),
		slog.Int("submitted_by", actor.UserID),
		slog.Int("winner_id", *match.WinnerID))
	s.broadcast(match.TournamentID, brackets.MessageMatchUpdated, match)

	tournament, err := s.tournamentRepo.GetByID(ctx, match.TournamentID)
	if err != nil {
		s.markPending(ctx, result, handleRepositoryError(err))
		return result, nil
	}
	s.markOngoing(ctx, tournament)

	switch tournament.Type {
	case models.TypeDoubleElimination:
		repair, err := s.advancement.RepairBracket(ctx, tournament.ID)
		if repair != nil {
			result.AdvancementsMade = repair.AdvancementsMade
			result.DestinationMatchIDs = repair.DestinationMatchIDs
			result.IsFinalMatch = repair.FinalMatchID == matchID
			result.TournamentCompleted = repair.TournamentCompleted && result.IsFinalMatch
		}
		if err != nil {
			s.markPending(ctx, result, err)
		}
	default:
		adv, err := s.advancement.AdvanceWinner(ctx, matchID)
		if adv != nil {
			result.AdvancementsMade = adv.AdvancementsMade
			result.DestinationMatchIDs = adv.DestinationMatchIDs
			result.IsFinalMatch = adv.IsFinalMatch
			result.TournamentCompleted = adv.TournamentCompleted
		}
		if err != nil {
			s.markPending(ctx, result, err)
		}
	}

	if result.TournamentCompleted {
		s.onCompleted(ctx, tournament.ID, match.WinnerID)
	}
	return result, nil
}

// markPending фиксирует частичный отказ: счёт записан, сетка догонит через авто-исправление.
func (s *scoreService) markPending(ctx context.Context, result *ScoreResult, err error) {
	result.BracketPending = true
	result.Warning = err.Error()
	result.WarningCode = ResultCode(err)
	s.logger.WarnContext(ctx, "score saved but bracket advancement failed",
		slog.Int("match_id", result.MatchID),
		slog.String("code", string(result.WarningCode)),
		slog.Any("error", err))
}

func (s *scoreService) markOngoing(ctx context.Context, tournament *models.Tournament) {
	if tournament.Status != models.StatusRegistrationClosed {
		return
	}
	err := s.tournamentRepo.UpdateStatus(ctx, tournament.ID,
		[]models.TournamentStatus{models.StatusRegistrationClosed}, models.StatusOngoing)
	if err != nil && !errors.Is(err, repositories.ErrTournamentStatusConflict) {
		s.logger.WarnContext(ctx, "failed to mark tournament ongoing",
			slog.Int("tournament_id", tournament.ID), slog.Any("error", err))
		return
	}
	tournament.Status = models.StatusOngoing
}

func (s *scoreService) onCompleted(ctx context.Context, tournamentID int, winnerID *int) {
	s.broadcast(tournamentID, brackets.MessageTournamentComplete, map[string]interface{}{
		"tournament_id": tournamentID,
		"winner_id":     winnerID,
	})
	if s.archiver == nil {
		return
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load completed tournament for archiving",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}
	matches, err := s.matchRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load matches for archiving",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}
	key, err := s.archiver.Archive(ctx, tournament, matches)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to archive bracket",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}
	s.logger.InfoContext(ctx, "bracket archived", slog.Int("tournament_id", tournamentID), slog.String("key", key))
}

func (s *scoreService) StartMatch(ctx context.Context, actor models.Actor, matchID int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, match.TournamentID)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	if !tournament.Status.IsActive() {
		return nil, fmt.Errorf("%w: tournament %d is %s", ErrTournamentFrozen, tournament.ID, tournament.Status)
	}
	if !match.IsFillable() {
		return nil, fmt.Errorf("%w: match %d", ErrMatchNotReady, matchID)
	}
	if match.Status == models.MatchStatusInProgress {
		return match, nil
	}
	if match.Status != models.MatchStatusScheduled {
		return nil, fmt.Errorf("%w: match %d is %s", ErrMatchStatusConflict, matchID, match.Status)
	}

	if err := s.matchRepo.UpdateStatus(ctx, matchID, models.MatchStatusScheduled, models.MatchStatusInProgress); err != nil {
		return nil, handleRepositoryError(err)
	}
	s.markOngoing(ctx, tournament)
	match.Status = models.MatchStatusInProgress

	s.logger.InfoContext(ctx, "match started", slog.Int("match_id", matchID), slog.Int("user_id", actor.UserID))
	s.broadcast(match.TournamentID, brackets.MessageMatchUpdated, match)
	return match, nil
}

func (s *scoreService) broadcast(tournamentID int, msgType string, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastTournament(tournamentID, msgType, payload)
}
