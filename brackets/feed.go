package brackets

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"

	"github.com/Dosada05/bracket-progression/models"
)

var ErrInvalidBracketSize = errors.New("bracket size must be a power of two and at least 2")

// Position addresses a match inside a bracket.
type Position struct {
	Branch      models.Branch `json:"bracket_type"`
	Round       int           `json:"round_number"`
	MatchNumber int           `json:"match_number"`
}

func (p Position) String() string {
	return fmt.Sprintf("%s/R%d/M%d", p.Branch, p.Round, p.MatchNumber)
}

// PositionOf returns the bracket position of a stored match.
func PositionOf(m *models.Match) Position {
	return Position{Branch: m.EffectiveBranch(), Round: m.RoundNumber, MatchNumber: m.MatchNumber}
}

// Destination is a slot in a downstream match.
type Destination struct {
	Position
	Slot models.Slot `json:"slot"`
}

// Feed lists where the winner and (double elimination only) the loser of a match go.
// A nil entry means the player leaves that path.
type Feed struct {
	Winner *Destination
	Loser  *Destination
}

// SlotForMatchNumber is the winner-to-slot parity convention: odd match numbers feed player1,
// even ones feed player2.
func SlotForMatchNumber(matchNumber int) models.Slot {
	if matchNumber%2 == 1 {
		return models.SlotPlayer1
	}
	return models.SlotPlayer2
}

// NextMatchNumber is the match number in the following round, ceil(m/2).
func NextMatchNumber(matchNumber int) int {
	return (matchNumber + 1) / 2
}

// SingleEliminationFeed returns the destination of the winner of (round, matchNumber).
// The second value is false when the round is the last one.
func SingleEliminationFeed(round, matchNumber, totalRounds int) (Destination, bool) {
	if round >= totalRounds {
		return Destination{}, false
	}
	return Destination{
		Position: Position{Branch: models.BranchWinner, Round: round + 1, MatchNumber: NextMatchNumber(matchNumber)},
		Slot:     SlotForMatchNumber(matchNumber),
	}, true
}

// BracketSizeFromMatches derives the bracket size from the number of winner-branch rounds.
func BracketSizeFromMatches(matches []models.Match) int {
	rounds := TotalRounds(FilterBranch(matches, models.BranchWinner))
	if rounds == 0 {
		return 0
	}
	return 1 << rounds
}

var GrandFinal = Position{Branch: models.BranchFinal, Round: 1, MatchNumber: 1}

// GrandFinalReset is the optional second grand final, played when the loser-branch champion
// wins the first one.
var GrandFinalReset = Position{Branch: models.BranchFinal, Round: 2, MatchNumber: 1}

// DoubleEliminationTable is the complete feed mapping of a double-elimination bracket of a fixed size.
//
// For size N = 2^k the winner branch has k rounds of N/2^r matches and the loser branch has 2(k-1)
// rounds. Losers of winner round 1 pair up in loser round 1. Losers of winner round r > 1 enter
// loser round 2(r-1) in slot 2, in reversed order on every other drop. Odd loser rounds feed the
// same match index of the next round in slot 1; even loser rounds halve like a regular bracket.
// Both branch champions meet in the grand final, winner-branch champion in slot 1.
type DoubleEliminationTable struct {
	size         int
	winnerRounds int
	loserRounds  int
	feeds        map[Position]Feed
}

func NewDoubleEliminationTable(size int) (*DoubleEliminationTable, error) {
	if size < 2 || size&(size-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBracketSize, size)
	}
	k := bits.TrailingZeros(uint(size))
	t := &DoubleEliminationTable{
		size:         size,
		winnerRounds: k,
		loserRounds:  2 * (k - 1),
		feeds:        make(map[Position]Feed),
	}

	for r := 1; r <= k; r++ {
		count := size >> r
		for m := 1; m <= count; m++ {
			var f Feed
			if r < k {
				f.Winner = &Destination{
					Position: Position{Branch: models.BranchWinner, Round: r + 1, MatchNumber: NextMatchNumber(m)},
					Slot:     SlotForMatchNumber(m),
				}
			} else {
				f.Winner = &Destination{Position: GrandFinal, Slot: models.SlotPlayer1}
			}
			f.Loser = t.dropDestination(r, m, count)
			t.feeds[Position{Branch: models.BranchWinner, Round: r, MatchNumber: m}] = f
		}
	}

	for lr := 1; lr <= t.loserRounds; lr++ {
		for m := 1; m <= t.LoserRoundSize(lr); m++ {
			var dest Destination
			switch {
			case lr == t.loserRounds:
				dest = Destination{Position: GrandFinal, Slot: models.SlotPlayer2}
			case lr%2 == 1:
				dest = Destination{
					Position: Position{Branch: models.BranchLoser, Round: lr + 1, MatchNumber: m},
					Slot:     models.SlotPlayer1,
				}
			default:
				dest = Destination{
					Position: Position{Branch: models.BranchLoser, Round: lr + 1, MatchNumber: NextMatchNumber(m)},
					Slot:     SlotForMatchNumber(m),
				}
			}
			t.feeds[Position{Branch: models.BranchLoser, Round: lr, MatchNumber: m}] = Feed{Winner: &dest}
		}
	}
	return t, nil
}

// dropDestination is where the loser of winner round r, match m goes.
func (t *DoubleEliminationTable) dropDestination(r, m, count int) *Destination {
	if t.loserRounds == 0 {
		return &Destination{Position: GrandFinal, Slot: models.SlotPlayer2}
	}
	if r == 1 {
		return &Destination{
			Position: Position{Branch: models.BranchLoser, Round: 1, MatchNumber: NextMatchNumber(m)},
			Slot:     SlotForMatchNumber(m),
		}
	}
	idx := m
	if (r-1)%2 == 1 {
		idx = count - m + 1
	}
	return &Destination{
		Position: Position{Branch: models.BranchLoser, Round: 2 * (r - 1), MatchNumber: idx},
		Slot:     models.SlotPlayer2,
	}
}

func (t *DoubleEliminationTable) Size() int         { return t.size }
func (t *DoubleEliminationTable) WinnerRounds() int { return t.winnerRounds }
func (t *DoubleEliminationTable) LoserRounds() int  { return t.loserRounds }

// LoserRoundSize returns the number of matches in loser round lr.
func (t *DoubleEliminationTable) LoserRoundSize(lr int) int {
	if lr < 1 || lr > t.loserRounds {
		return 0
	}
	j := (lr + 1) / 2
	return t.size >> (j + 1)
}

// Feed looks up the destinations of the match at pos. Grand final positions have no static feed.
func (t *DoubleEliminationTable) Feed(pos Position) (Feed, bool) {
	f, ok := t.feeds[pos]
	return f, ok
}

// Positions returns every winner and loser branch position in bracket order.
func (t *DoubleEliminationTable) Positions() []Position {
	out := make([]Position, 0, len(t.feeds))
	for p := range t.feeds {
		out = append(out, p)
	}
	SortPositions(out)
	return out
}

// SortPositions orders positions by branch (winner, loser, final), round, then match number.
func SortPositions(ps []Position) {
	rank := map[models.Branch]int{models.BranchWinner: 0, models.BranchLoser: 1, models.BranchFinal: 2}
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Branch != ps[j].Branch {
			return rank[ps[i].Branch] < rank[ps[j].Branch]
		}
		if ps[i].Round != ps[j].Round {
			return ps[i].Round < ps[j].Round
		}
		return ps[i].MatchNumber < ps[j].MatchNumber
	})
}
