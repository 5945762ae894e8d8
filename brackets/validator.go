package brackets

import (
	"fmt"

	"github.com/Dosada05/bracket-progression/models"
)

// Issue describes a pair of rounds where winners of the first were likely not propagated into
// the second. It is a heuristic and over-approximates on purpose.
type Issue struct {
	FromBranch       models.Branch `json:"from_branch"`
	FromRound        int           `json:"from_round"`
	ToBranch         models.Branch `json:"to_branch"`
	ToRound          int           `json:"to_round"`
	CompletedMatches int           `json:"completed_matches"`
	EmptyMatches     int           `json:"empty_matches"`
}

func (i Issue) String() string {
	from := fmt.Sprintf("round %d", i.FromRound)
	to := fmt.Sprintf("round %d", i.ToRound)
	if i.FromBranch != "" {
		from = fmt.Sprintf("%s %s", i.FromBranch, from)
		to = fmt.Sprintf("%s %s", i.ToBranch, to)
	}
	return fmt.Sprintf("%s has %d completed match(es) with a winner while %s has %d match(es) with an empty slot",
		from, i.CompletedMatches, to, i.EmptyMatches)
}

type ProgressionReport struct {
	HasIssues bool     `json:"has_issues"`
	Issues    []string `json:"issues"`
	Details   []Issue  `json:"details"`
}

func (r *ProgressionReport) add(issue Issue) {
	r.HasIssues = true
	r.Issues = append(r.Issues, issue.String())
	r.Details = append(r.Details, issue)
}

func newReport() ProgressionReport {
	return ProgressionReport{Issues: []string{}, Details: []Issue{}}
}

// Validate compares each adjacent pair of rounds. An issue is recorded when the earlier round
// has a completed match with a winner and the later round still has a match with an empty slot.
func Validate(rounds []Round) ProgressionReport {
	report := newReport()
	for i := 0; i+1 < len(rounds); i++ {
		if issue, ok := compareRounds(rounds[i], rounds[i+1]); ok {
			report.add(issue)
		}
	}
	return report
}

// ValidateBracket validates every branch of a bracket. For double elimination it also checks the
// cross-branch feeds: winner rounds into the loser rounds they drop players into, and both branch
// finals into the grand final.
func ValidateBracket(kind models.TournamentType, matches []models.Match) ProgressionReport {
	if kind != models.TypeDoubleElimination {
		return Validate(GroupByRound(FilterBranch(matches, models.BranchWinner)))
	}

	report := newReport()
	grouped := make(map[models.Branch][]Round)
	for _, br := range GroupByBranch(matches) {
		grouped[br.Branch] = br.Rounds
		for i := 0; i+1 < len(br.Rounds); i++ {
			if issue, ok := compareRounds(br.Rounds[i], br.Rounds[i+1]); ok {
				issue.FromBranch, issue.ToBranch = br.Branch, br.Branch
				report.add(issue)
			}
		}
	}

	winner, loser, final := grouped[models.BranchWinner], grouped[models.BranchLoser], grouped[models.BranchFinal]
	for _, wr := range winner {
		target := 1
		if wr.Number > 1 {
			target = 2 * (wr.Number - 1)
		}
		if lr, ok := findRound(loser, target); ok {
			if issue, found := compareRounds(wr, lr); found {
				issue.FromBranch, issue.ToBranch = models.BranchWinner, models.BranchLoser
				report.add(issue)
			}
		}
	}
	if gf, ok := findRound(final, 1); ok {
		for _, src := range []struct {
			branch models.Branch
			rounds []Round
		}{{models.BranchWinner, winner}, {models.BranchLoser, loser}} {
			if len(src.rounds) == 0 {
				continue
			}
			last := src.rounds[len(src.rounds)-1]
			if issue, found := compareRounds(last, gf); found {
				issue.FromBranch, issue.ToBranch = src.branch, models.BranchFinal
				report.add(issue)
			}
		}
	}
	return report
}

func compareRounds(current, next Round) (Issue, bool) {
	completed := 0
	for i := range current.Matches {
		if current.Matches[i].HasWinner() {
			completed++
		}
	}
	empty := 0
	for i := range next.Matches {
		if next.Matches[i].HasEmptySlot() {
			empty++
		}
	}
	if completed == 0 || empty == 0 {
		return Issue{}, false
	}
	return Issue{
		FromRound:        current.Number,
		ToRound:          next.Number,
		CompletedMatches: completed,
		EmptyMatches:     empty,
	}, true
}

func findRound(rounds []Round, number int) (Round, bool) {
	for _, r := range rounds {
		if r.Number == number {
			return r, true
		}
	}
	return Round{}, false
}
