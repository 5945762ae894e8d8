package brackets

import (
	"sort"

	"github.com/Dosada05/bracket-progression/models"
)

// Round is a derived view over matches sharing a round number, ordered by match number.
type Round struct {
	Number  int            `json:"round"`
	Matches []models.Match `json:"matches"`
}

// BranchRounds is the grouped view of one bracket branch.
type BranchRounds struct {
	Branch models.Branch `json:"bracket_type"`
	Rounds []Round       `json:"rounds"`
}

var branchOrder = []models.Branch{models.BranchWinner, models.BranchLoser, models.BranchFinal}

// GroupByRound partitions matches by round number. Rounds are returned in ascending order and
// matches inside a round are stably sorted by match number, so duplicate numbers keep input order.
func GroupByRound(matches []models.Match) []Round {
	if len(matches) == 0 {
		return []Round{}
	}

	byRound := make(map[int][]models.Match)
	numbers := make([]int, 0)
	for _, m := range matches {
		if _, seen := byRound[m.RoundNumber]; !seen {
			numbers = append(numbers, m.RoundNumber)
		}
		byRound[m.RoundNumber] = append(byRound[m.RoundNumber], m)
	}
	sort.Ints(numbers)

	rounds := make([]Round, 0, len(numbers))
	for _, n := range numbers {
		ms := byRound[n]
		sort.SliceStable(ms, func(i, j int) bool {
			return ms[i].MatchNumber < ms[j].MatchNumber
		})
		rounds = append(rounds, Round{Number: n, Matches: ms})
	}
	return rounds
}

// TotalRounds returns the highest round number, or 0 for an empty match list.
func TotalRounds(matches []models.Match) int {
	total := 0
	for _, m := range matches {
		if m.RoundNumber > total {
			total = m.RoundNumber
		}
	}
	return total
}

// GroupByBranch groups each branch separately. Branches without matches are omitted and the
// result is ordered winner, loser, final.
func GroupByBranch(matches []models.Match) []BranchRounds {
	byBranch := make(map[models.Branch][]models.Match)
	for _, m := range matches {
		b := m.EffectiveBranch()
		byBranch[b] = append(byBranch[b], m)
	}

	result := make([]BranchRounds, 0, len(byBranch))
	for _, b := range branchOrder {
		ms, ok := byBranch[b]
		if !ok {
			continue
		}
		result = append(result, BranchRounds{Branch: b, Rounds: GroupByRound(ms)})
	}
	return result
}

// FilterBranch returns the matches of a single branch, preserving order.
func FilterBranch(matches []models.Match, branch models.Branch) []models.Match {
	out := make([]models.Match, 0, len(matches))
	for _, m := range matches {
		if m.EffectiveBranch() == branch {
			out = append(out, m)
		}
	}
	return out
}
