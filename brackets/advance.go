package brackets

import (
	"errors"
	"fmt"

	"github.com/Dosada05/bracket-progression/models"
)

var (
	ErrNoWinner           = errors.New("match has no winner")
	ErrUnknownPosition    = errors.New("match position is not part of the bracket")
	ErrMissingDestination = errors.New("destination match does not exist")
	ErrNotElimination     = errors.New("tournament type has no elimination bracket")
)

// Placement is a player who has to occupy a destination slot.
type Placement struct {
	SourceMatchID      int
	Destination        Destination
	DestinationMatchID int
	PlayerID           int
	// Current is the occupant of the destination slot in the snapshot the plan was built from.
	Current *int
}

// Satisfied reports whether the snapshot already holds the expected player.
func (p Placement) Satisfied() bool {
	return p.Current != nil && *p.Current == p.PlayerID
}

// Conflicting reports whether the snapshot holds a different player. Slots are never cleared,
// so a conflicting snapshot stays conflicting.
func (p Placement) Conflicting() bool {
	return p.Current != nil && *p.Current != p.PlayerID
}

// Resolution describes what a completed match causes.
type Resolution struct {
	Placements []Placement
	// Final is set when the match decides the tournament.
	Final      bool
	ChampionID *int
}

// Plan indexes a snapshot of a tournament's matches by bracket position.
type Plan struct {
	kind        models.TournamentType
	byPosition  map[Position]*models.Match
	byID        map[int]*models.Match
	order       []Position
	totalRounds int
	table       *DoubleEliminationTable
}

func NewPlan(kind models.TournamentType, matches []models.Match) (*Plan, error) {
	if !kind.IsElimination() {
		return nil, fmt.Errorf("%w: %s", ErrNotElimination, kind)
	}

	p := &Plan{
		kind:       kind,
		byPosition: make(map[Position]*models.Match, len(matches)),
		byID:       make(map[int]*models.Match, len(matches)),
		order:      make([]Position, 0, len(matches)),
	}
	for i := range matches {
		m := &matches[i]
		pos := PositionOf(m)
		// при дубликатах позиции побеждает первый матч (по id из репозитория)
		if _, dup := p.byPosition[pos]; !dup {
			p.byPosition[pos] = m
			p.order = append(p.order, pos)
		}
		p.byID[m.ID] = m
	}
	SortPositions(p.order)

	switch kind {
	case models.TypeSingleElimination:
		p.totalRounds = TotalRounds(FilterBranch(matches, models.BranchWinner))
	case models.TypeDoubleElimination:
		size := BracketSizeFromMatches(matches)
		table, err := NewDoubleEliminationTable(size)
		if err != nil {
			return nil, err
		}
		p.table = table
	}
	return p, nil
}

func (p *Plan) Match(id int) (*models.Match, bool) {
	m, ok := p.byID[id]
	return m, ok
}

// Completed returns matches with a recorded winner in play order: winner branch, loser branch,
// then the grand final, each by round and match number.
func (p *Plan) Completed() []*models.Match {
	out := make([]*models.Match, 0)
	for _, pos := range p.order {
		if m := p.byPosition[pos]; m.HasWinner() {
			out = append(out, m)
		}
	}
	return out
}

// Resolve computes the placements (or tournament completion) caused by a completed match.
func (p *Plan) Resolve(m *models.Match) (Resolution, error) {
	if !m.HasWinner() {
		return Resolution{}, fmt.Errorf("%w: match %d", ErrNoWinner, m.ID)
	}
	if p.kind == models.TypeSingleElimination {
		return p.resolveSingle(m)
	}
	return p.resolveDouble(m)
}

func (p *Plan) resolveSingle(m *models.Match) (Resolution, error) {
	dest, ok := SingleEliminationFeed(m.RoundNumber, m.MatchNumber, p.totalRounds)
	if !ok {
		return Resolution{Final: true, ChampionID: copyID(m.WinnerID)}, nil
	}
	pl, err := p.placement(m, dest, *m.WinnerID)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Placements: []Placement{pl}}, nil
}

func (p *Plan) resolveDouble(m *models.Match) (Resolution, error) {
	pos := PositionOf(m)
	if pos.Branch == models.BranchFinal {
		return p.resolveGrandFinal(m, pos)
	}

	feed, ok := p.table.Feed(pos)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s in a %d-player bracket", ErrUnknownPosition, pos, p.table.Size())
	}

	var res Resolution
	if feed.Winner != nil {
		pl, err := p.placement(m, *feed.Winner, *m.WinnerID)
		if err != nil {
			return Resolution{}, err
		}
		res.Placements = append(res.Placements, pl)
	}
	if loser := m.LoserID(); feed.Loser != nil && loser != nil {
		pl, err := p.placement(m, *feed.Loser, *loser)
		if err != nil {
			return Resolution{}, err
		}
		res.Placements = append(res.Placements, pl)
	}
	return res, nil
}

// resolveGrandFinal: если первый финал выиграл чемпион верхней сетки (слот 1) или матча-реванша
// нет, турнир завершён. Иначе оба финалиста переходят в реванш на тех же слотах.
func (p *Plan) resolveGrandFinal(m *models.Match, pos Position) (Resolution, error) {
	done := Resolution{Final: true, ChampionID: copyID(m.WinnerID)}
	if pos != GrandFinal {
		if pos == GrandFinalReset {
			return done, nil
		}
		return Resolution{}, fmt.Errorf("%w: %s", ErrUnknownPosition, pos)
	}
	if m.WinnerSlot() == models.SlotPlayer1 {
		return done, nil
	}
	if _, ok := p.byPosition[GrandFinalReset]; !ok {
		return done, nil
	}
	if !m.IsFillable() {
		return done, nil
	}

	first, err := p.placement(m, Destination{Position: GrandFinalReset, Slot: models.SlotPlayer1}, *m.Player1ID)
	if err != nil {
		return Resolution{}, err
	}
	second, err := p.placement(m, Destination{Position: GrandFinalReset, Slot: models.SlotPlayer2}, *m.Player2ID)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Placements: []Placement{first, second}}, nil
}

func (p *Plan) placement(source *models.Match, dest Destination, playerID int) (Placement, error) {
	target, ok := p.byPosition[dest.Position]
	if !ok {
		return Placement{}, fmt.Errorf("%w: %s fed by match %d", ErrMissingDestination, dest.Position, source.ID)
	}
	return Placement{
		SourceMatchID:      source.ID,
		Destination:        dest,
		DestinationMatchID: target.ID,
		PlayerID:           playerID,
		Current:            copyID(target.PlayerInSlot(dest.Slot)),
	}, nil
}

func copyID(id *int) *int {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
