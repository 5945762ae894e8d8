package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/Dosada05/bracket-progression/brackets"
	"github.com/Dosada05/bracket-progression/models"
	"github.com/Dosada05/bracket-progression/repositories"
	"github.com/stretchr/testify/require"
)

// ------------------------
// Fake Advancement Service
// ------------------------

type FakeAdvancementService struct {
	mu    sync.Mutex
	trace []string

	AdvanceWinnerFunc func(ctx context.Context, matchID int) (*AdvanceResult, error)
	RepairBracketFunc func(ctx context.Context, tournamentID int) (*RepairResult, error)
}

func (f *FakeAdvancementService) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace = append(f.trace, step)
}

func (f *FakeAdvancementService) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.trace...)
}

func (f *FakeAdvancementService) AdvanceWinner(ctx context.Context, matchID int) (*AdvanceResult, error) {
	f.record("AdvanceWinner")
	if f.AdvanceWinnerFunc != nil {
		return f.AdvanceWinnerFunc(ctx, matchID)
	}
	return &AdvanceResult{MatchID: matchID, DestinationMatchIDs: []int{}}, nil
}

func (f *FakeAdvancementService) RepairBracket(ctx context.Context, tournamentID int) (*RepairResult, error) {
	f.record("RepairBracket")
	if f.RepairBracketFunc != nil {
		return f.RepairBracketFunc(ctx, tournamentID)
	}
	return &RepairResult{TournamentID: tournamentID, DestinationMatchIDs: []int{}}, nil
}

// ------------------------
// Fake Broadcaster
// ------------------------

type broadcast struct {
	TournamentID int
	Type         string
	Payload      interface{}
}

type FakeBroadcaster struct {
	mu   sync.Mutex
	sent []broadcast
}

func (f *FakeBroadcaster) BroadcastTournament(tournamentID int, msgType string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, broadcast{TournamentID: tournamentID, Type: msgType, Payload: payload})
}

func (f *FakeBroadcaster) Types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, b := range f.sent {
		out = append(out, b.Type)
	}
	return out
}

// ------------------------
// Fake Archiver
// ------------------------

type FakeArchiver struct {
	mu       sync.Mutex
	archived []int

	ArchiveFunc func(ctx context.Context, tournament *models.Tournament, matches []models.Match) (string, error)
}

func (f *FakeArchiver) Archive(ctx context.Context, tournament *models.Tournament, matches []models.Match) (string, error) {
	f.mu.Lock()
	f.archived = append(f.archived, tournament.ID)
	f.mu.Unlock()
	if f.ArchiveFunc != nil {
		return f.ArchiveFunc(ctx, tournament, matches)
	}
	return brackets.RoomForTournament(tournament.ID), nil
}

// ------------------------
// Fixtures
// ------------------------

var (
	admin     = models.Actor{UserID: 1000, Role: models.RoleAdmin}
	organizer = models.Actor{UserID: 500, Role: models.RoleOrganizer}
	stranger  = models.Actor{UserID: 777, Role: models.RolePlayer}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func intPtr(v int) *int { return &v }

// bracketFixture is a tournament seeded into a memory store. Players of the first winner round
// are 1..size in match order; everything else starts empty.
type bracketFixture struct {
	store      *repositories.MemoryStore
	tournament models.Tournament
	ids        map[brackets.Position]int
}

func newBracketFixture(t *testing.T, kind models.TournamentType, size int, opts brackets.LayoutOptions) *bracketFixture {
	t.Helper()
	store := repositories.NewMemoryStore()
	tournament := store.AddTournament(models.Tournament{
		Name:            "Spring Cup",
		Type:            kind,
		Status:          models.StatusRegistrationClosed,
		MaxParticipants: size,
		OrganizerID:     organizer.UserID,
	})

	positions, err := brackets.Layout(kind, size, opts)
	require.NoError(t, err)
	matches := brackets.MatchesFromLayout(tournament.ID, positions)
	for i := range matches {
		m := &matches[i]
		if m.Branch == models.BranchWinner && m.RoundNumber == 1 {
			m.Player1ID = intPtr(2*m.MatchNumber - 1)
			m.Player2ID = intPtr(2 * m.MatchNumber)
		}
	}

	f := &bracketFixture{store: store, tournament: tournament, ids: make(map[brackets.Position]int)}
	for _, m := range store.AddMatches(matches...) {
		f.ids[brackets.PositionOf(&m)] = m.ID
	}
	return f
}

func (f *bracketFixture) id(branch models.Branch, round, number int) int {
	return f.ids[brackets.Position{Branch: branch, Round: round, MatchNumber: number}]
}

func (f *bracketFixture) match(t *testing.T, id int) *models.Match {
	t.Helper()
	m, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return m
}

func (f *bracketFixture) currentTournament(t *testing.T) *models.Tournament {
	t.Helper()
	tournament, err := f.store.Tournaments().GetByID(context.Background(), f.tournament.ID)
	require.NoError(t, err)
	return tournament
}

// record writes a result straight into the store without advancing anyone, the way a lost
// advancement leaves the bracket.
func (f *bracketFixture) record(t *testing.T, id int, scorePlayer1, scorePlayer2 int) {
	t.Helper()
	_, err := f.store.UpdateScore(context.Background(), id, scorePlayer1, scorePlayer2, nil)
	require.NoError(t, err)
}

func (f *bracketFixture) advancement() AdvancementService {
	return NewAdvancementService(f.store, f.store.Tournaments(), 0, discardLogger(), nil)
}

// nextPlayable returns the first match in play order that has both players and no result.
func (f *bracketFixture) nextPlayable(t *testing.T) (*models.Match, bool) {
	t.Helper()
	matches, err := f.store.ListByTournament(context.Background(), f.tournament.ID)
	require.NoError(t, err)

	positions := make([]brackets.Position, 0, len(matches))
	byPos := make(map[brackets.Position]models.Match, len(matches))
	for _, m := range matches {
		p := brackets.PositionOf(&m)
		positions = append(positions, p)
		byPos[p] = m
	}
	brackets.SortPositions(positions)
	for _, p := range positions {
		m := byPos[p]
		if m.IsFillable() && m.Status != models.MatchStatusCompleted {
			return &m, true
		}
	}
	return nil, false
}

func sortedInts(v []int) []int {
	out := append([]int(nil), v...)
	sort.Ints(out)
	return out
}
