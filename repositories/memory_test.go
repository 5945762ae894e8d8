package repositories

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Dosada05/bracket-progression/models"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.ChangeEvent
	err    error
}

func (n *recordingNotifier) NotifyMatchesChanged(_ context.Context, event models.ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func seedPair(s *MemoryStore, status models.TournamentStatus) (models.Tournament, models.Match) {
	t := s.AddTournament(models.Tournament{Type: models.TypeSingleElimination, Status: status})
	p1, p2 := 10, 20
	m := s.AddMatches(models.Match{TournamentID: t.ID, RoundNumber: 1, MatchNumber: 1, Player1ID: &p1, Player2ID: &p2})[0]
	return t, m
}

func TestMemoryUpdateScore(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	s := NewMemoryStore(WithNotifier(notifier, nil))
	tournament, m := seedPair(s, models.StatusOngoing)
	submitter := 7

	_, err := s.UpdateScore(ctx, m.ID, 1, 1, nil)
	require.ErrorIs(t, err, ErrEqualScores)

	update, err := s.UpdateScore(ctx, m.ID, 1, 3, &submitter)
	require.NoError(t, err)
	require.True(t, update.Changed)
	require.Equal(t, 20, *update.Match.WinnerID)
	require.Equal(t, models.MatchStatusCompleted, update.Match.Status)

	same, err := s.UpdateScore(ctx, m.ID, 1, 3, &submitter)
	require.NoError(t, err)
	require.False(t, same.Changed)
	require.Equal(t, 1, s.Writes())

	_, err = s.UpdateScore(ctx, m.ID, 3, 1, &submitter)
	require.ErrorIs(t, err, ErrMatchAlreadyCompleted)
	stored, err := s.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 20, *stored.WinnerID)
	require.Equal(t, 1, s.Writes())

	require.Equal(t, []models.ChangeEvent{{TournamentID: tournament.ID, MatchID: m.ID, Operation: models.ChangeUpdate}}, notifier.events)

	_, err = s.UpdateScore(ctx, 999, 1, 0, nil)
	require.ErrorIs(t, err, ErrMatchNotFound)
}

func TestMemoryUpdateScoreFrozen(t *testing.T) {
	s := NewMemoryStore()
	_, m := seedPair(s, models.StatusCompleted)
	_, err := s.UpdateScore(context.Background(), m.ID, 2, 0, nil)
	require.ErrorIs(t, err, ErrTournamentFrozen)
	require.Zero(t, s.Writes())
}

func TestMemoryFillSlot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tournament, _ := seedPair(s, models.StatusOngoing)
	next := s.AddMatches(models.Match{TournamentID: tournament.ID, RoundNumber: 2, MatchNumber: 1})[0]

	res, err := s.FillSlot(ctx, next.ID, models.SlotPlayer1, 10)
	require.NoError(t, err)
	require.Equal(t, SlotFilled, res.Outcome)

	res, err = s.FillSlot(ctx, next.ID, models.SlotPlayer1, 10)
	require.NoError(t, err)
	require.Equal(t, SlotAlreadyFilled, res.Outcome)

	res, err = s.FillSlot(ctx, next.ID, models.SlotPlayer1, 30)
	require.NoError(t, err)
	require.Equal(t, SlotConflict, res.Outcome)
	require.Equal(t, 10, *res.ExistingPlayerID)
	require.Equal(t, 1, s.Writes(), "only the first fill writes")

	_, err = s.FillSlot(ctx, next.ID, models.Slot(3), 10)
	require.Error(t, err)
}

func TestMemoryFillSlotConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tournament, _ := seedPair(s, models.StatusOngoing)
	next := s.AddMatches(models.Match{TournamentID: tournament.ID, RoundNumber: 2, MatchNumber: 1})[0]

	var wg sync.WaitGroup
	outcomes := make(chan FillOutcome, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(player int) {
			defer wg.Done()
			res, err := s.FillSlot(ctx, next.ID, models.SlotPlayer2, player)
			if err == nil {
				outcomes <- res.Outcome
			}
		}(100 + i%2)
	}
	wg.Wait()
	close(outcomes)

	filled := 0
	for o := range outcomes {
		if o == SlotFilled {
			filled++
		}
	}
	require.Equal(t, 1, filled, "exactly one writer wins the slot")
}

func TestMemoryCreateMatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tournament := s.AddTournament(models.Tournament{Type: models.TypeDoubleElimination, Status: models.StatusRegistrationClosed})

	m := &models.Match{TournamentID: tournament.ID, RoundNumber: 1, MatchNumber: 1, Branch: models.BranchLoser}
	require.NoError(t, s.Create(ctx, nil, m))
	require.NotZero(t, m.ID)
	require.Equal(t, models.MatchStatusScheduled, m.Status)

	dup := &models.Match{TournamentID: tournament.ID, RoundNumber: 1, MatchNumber: 1, Branch: models.BranchLoser}
	require.ErrorIs(t, s.Create(ctx, nil, dup), ErrMatchPositionConflict)

	orphan := &models.Match{TournamentID: 999, RoundNumber: 1, MatchNumber: 1}
	require.ErrorIs(t, s.Create(ctx, nil, orphan), ErrMatchTournamentInvalid)
}

func TestMemoryTournaments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	repo := s.Tournaments()

	active := &models.Tournament{Name: "A", Type: models.TypeSingleElimination, Status: models.StatusOngoing}
	require.NoError(t, repo.Create(ctx, active))
	require.NoError(t, repo.Create(ctx, &models.Tournament{Name: "B", Type: models.TypeRoundRobin, Status: models.StatusOngoing}))
	require.NoError(t, repo.Create(ctx, &models.Tournament{Name: "C", Type: models.TypeDoubleElimination, Status: models.StatusRegistrationOpen}))

	list, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, active.ID, list[0].ID)

	err = repo.UpdateStatus(ctx, active.ID, []models.TournamentStatus{models.StatusRegistrationClosed}, models.StatusOngoing)
	require.ErrorIs(t, err, ErrTournamentStatusConflict)

	winner := 10
	completed, err := repo.Complete(ctx, active.ID, &winner)
	require.NoError(t, err)
	require.True(t, completed)

	completed, err = repo.Complete(ctx, active.ID, &winner)
	require.NoError(t, err)
	require.False(t, completed, "second completion is a no-op")

	got, err := repo.GetByID(ctx, active.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.Equal(t, 10, *got.WinnerID)

	_, err = repo.GetByID(ctx, 999)
	require.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestMemoryNotifierFailureDoesNotFailWrite(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("bus closed")}
	s := NewMemoryStore(WithNotifier(notifier, nil))
	_, m := seedPair(s, models.StatusOngoing)

	_, err := s.UpdateScore(context.Background(), m.ID, 3, 2, nil)
	require.NoError(t, err)
	require.Len(t, notifier.events, 1)
}
