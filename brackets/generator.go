package brackets

import (
	"fmt"

	"github.com/Dosada05/bracket-progression/models"
)

// LayoutOptions tunes the skeleton produced by Layout.
type LayoutOptions struct {
	// GrandFinalReset adds the second grand final to a double-elimination layout.
	GrandFinalReset bool
}

// Layout returns the empty match positions of a bracket of the given size. It carries no seeding
// and no players; bracket generation stays with whoever materializes the matches.
func Layout(kind models.TournamentType, size int, opts LayoutOptions) ([]Position, error) {
	if size < 2 || size&(size-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBracketSize, size)
	}

	switch kind {
	case models.TypeSingleElimination:
		positions := make([]Position, 0, size-1)
		for r, count := 1, size/2; count >= 1; r, count = r+1, count/2 {
			for m := 1; m <= count; m++ {
				positions = append(positions, Position{Branch: models.BranchWinner, Round: r, MatchNumber: m})
			}
		}
		return positions, nil
	case models.TypeDoubleElimination:
		table, err := NewDoubleEliminationTable(size)
		if err != nil {
			return nil, err
		}
		positions := append(table.Positions(), GrandFinal)
		if opts.GrandFinalReset {
			positions = append(positions, GrandFinalReset)
		}
		return positions, nil
	default:
		return nil, fmt.Errorf("layout not supported for tournament type %q", kind)
	}
}

// MatchesFromLayout turns positions into unsaved scheduled matches of a tournament.
func MatchesFromLayout(tournamentID int, positions []Position) []models.Match {
	matches := make([]models.Match, 0, len(positions))
	for _, p := range positions {
		matches = append(matches, models.Match{
			TournamentID: tournamentID,
			RoundNumber:  p.Round,
			MatchNumber:  p.MatchNumber,
			Branch:       p.Branch,
			Status:       models.MatchStatusScheduled,
		})
	}
	return matches
}
