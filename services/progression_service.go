package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Dosada05/bracket-progression/brackets"
	"github.com/Dosada05/bracket-progression/models"
	"github.com/Dosada05/bracket-progression/repositories"
)

// ProgressionCheck is one evaluation of a tournament bracket.
type ProgressionCheck struct {
	Tournament models.Tournament          `json:"tournament"`
	Report     brackets.ProgressionReport `json:"report"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

type ProgressionService interface {
	Check(ctx context.Context, tournamentID int) (*ProgressionCheck, error)
}

type progressionService struct {
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	now            func() time.Time
}

func NewProgressionService(tournamentRepo repositories.TournamentRepository, matchRepo repositories.MatchRepository) ProgressionService {
	return &progressionService{tournamentRepo: tournamentRepo, matchRepo: matchRepo, now: time.Now}
}

// Check groups the current matches into rounds and runs the progression validator over them.
// Tournaments without an elimination bracket always report no issues.
func (s *progressionService) Check(ctx context.Context, tournamentID int) (*ProgressionCheck, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	check := &ProgressionCheck{Tournament: *tournament, CheckedAt: s.now()}
	if !tournament.Type.IsElimination() {
		check.Report = brackets.ProgressionReport{Issues: []string{}, Details: []brackets.Issue{}}
		return check, nil
	}

	matches, err := s.matchRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches of tournament %d: %w", tournamentID, err)
	}
	check.Report = brackets.ValidateBracket(tournament.Type, matches)
	return check, nil
}
