package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dosada05/bracket-progression/brackets"
	"github.com/Dosada05/bracket-progression/models"
	"github.com/Dosada05/bracket-progression/repositories"
	"golang.org/x/sync/errgroup"
)

// MatchView is a match enriched with player profiles for presentation. The core never reads it.
type MatchView struct {
	models.Match
	Player1 *models.PlayerProfile `json:"player1,omitempty"`
	Player2 *models.PlayerProfile `json:"player2,omitempty"`
	Winner  *models.PlayerProfile `json:"winner,omitempty"`
}

type RoundView struct {
	Number  int         `json:"round"`
	Matches []MatchView `json:"matches"`
}

type BranchView struct {
	Branch models.Branch `json:"bracket_type"`
	Rounds []RoundView   `json:"rounds"`
}

type BracketView struct {
	Tournament  *models.Tournament `json:"tournament"`
	TotalRounds int                `json:"total_rounds"`
	Branches    []BranchView       `json:"branches"`
}

type TournamentService interface {
	GetTournament(ctx context.Context, id int) (*models.Tournament, error)
	UpdateStatus(ctx context.Context, actor models.Actor, id int, next models.TournamentStatus) (*models.Tournament, error)
	Bracket(ctx context.Context, id int) (*BracketView, error)
	// Authorize returns the tournament if the actor is its organizer or an admin.
	Authorize(ctx context.Context, actor models.Actor, id int) (*models.Tournament, error)
	// AuthorizeMatch is Authorize for the tournament the match belongs to.
	AuthorizeMatch(ctx context.Context, actor models.Actor, matchID int) (*models.Match, error)
}

type tournamentService struct {
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	playerRepo     repositories.PlayerRepository
	logger         *slog.Logger
}

func NewTournamentService(
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	playerRepo repositories.PlayerRepository,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		playerRepo:     playerRepo,
		logger:         logger,
	}
}

func (s *tournamentService) GetTournament(ctx context.Context, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	return tournament, nil
}

func (s *tournamentService) Authorize(ctx context.Context, actor models.Actor, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	if !canManageTournament(actor, tournament) {
		return nil, ErrForbiddenOperation
	}
	return tournament, nil
}

func (s *tournamentService) AuthorizeMatch(ctx context.Context, actor models.Actor, matchID int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	if _, err := s.Authorize(ctx, actor, match.TournamentID); err != nil {
		return nil, err
	}
	return match, nil
}

func (s *tournamentService) UpdateStatus(ctx context.Context, actor models.Actor, id int, next models.TournamentStatus) (*models.Tournament, error) {
	if !isKnownStatus(next) {
		return nil, fmt.Errorf("%w: %q", ErrTournamentInvalidStatus, next)
	}
	tournament, err := s.Authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if tournament.Status == next {
		return tournament, nil
	}
	if !isValidStatusTransition(tournament.Status, next) {
		return nil, fmt.Errorf("%w: from %s to %s", ErrTournamentInvalidStatusTransition, tournament.Status, next)
	}

	// CAS по текущему статусу: параллельное изменение даст конфликт, а не перезапись
	err = s.tournamentRepo.UpdateStatus(ctx, id, []models.TournamentStatus{tournament.Status}, next)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	s.logger.InfoContext(ctx, "tournament status changed",
		slog.Int("tournament_id", id),
		slog.String("from", string(tournament.Status)),
		slog.String("to", string(next)),
		slog.Int("actor_id", actor.UserID))
	tournament.Status = next
	return tournament, nil
}

func (s *tournamentService) Bracket(ctx context.Context, id int) (*BracketView, error) {
	var (
		tournament *models.Tournament
		matches    []models.Match
	)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Загрузка турнира
	g.Go(func() error {
		t, err := s.tournamentRepo.GetByID(gCtx, id)
		if err != nil {
			return handleRepositoryError(err)
		}
		tournament = t
		return nil
	})

	// 2. Загрузка матчей
	g.Go(func() error {
		ms, err := s.matchRepo.ListByTournament(gCtx, id)
		if err != nil {
			return fmt.Errorf("failed to list matches of tournament %d: %w", id, err)
		}
		matches = ms
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// профили игроков нужны только для отображения: при ошибке отдаём сетку без них
	profiles, err := s.playerRepo.ListByIDs(ctx, playerIDs(matches))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load player profiles",
			slog.Int("tournament_id", id), slog.Any("error", err))
		profiles = map[int]models.PlayerProfile{}
	}

	view := &BracketView{
		Tournament:  tournament,
		TotalRounds: brackets.TotalRounds(matches),
		Branches:    make([]BranchView, 0, 3),
	}
	for _, br := range brackets.GroupByBranch(matches) {
		bv := BranchView{Branch: br.Branch, Rounds: make([]RoundView, 0, len(br.Rounds))}
		for _, r := range br.Rounds {
			rv := RoundView{Number: r.Number, Matches: make([]MatchView, 0, len(r.Matches))}
			for _, m := range r.Matches {
				rv.Matches = append(rv.Matches, MatchView{
					Match:   m,
					Player1: lookupProfile(profiles, m.Player1ID),
					Player2: lookupProfile(profiles, m.Player2ID),
					Winner:  lookupProfile(profiles, m.WinnerID),
				})
			}
			bv.Rounds = append(bv.Rounds, rv)
		}
		view.Branches = append(view.Branches, bv)
	}
	return view, nil
}

func playerIDs(matches []models.Match) []int {
	seen := make(map[int]struct{})
	ids := make([]int, 0)
	for _, m := range matches {
		for _, id := range []*int{m.Player1ID, m.Player2ID} {
			if id == nil {
				continue
			}
			if _, ok := seen[*id]; ok {
				continue
			}
			seen[*id] = struct{}{}
			ids = append(ids, *id)
		}
	}
	return ids
}

func lookupProfile(profiles map[int]models.PlayerProfile, id *int) *models.PlayerProfile {
	if id == nil {
		return nil
	}
	p, ok := profiles[*id]
	if !ok {
		return nil
	}
	return &p
}
