package events

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/Dosada05/bracket-progression/models"
	"github.com/Dosada05/bracket-progression/repositories"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversChangeEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := NewBus(slog.New(slog.DiscardHandler))
	defer bus.Close()

	events, err := bus.SubscribeChanges(ctx)
	require.NoError(t, err)

	want := models.ChangeEvent{TournamentID: 3, MatchID: 11, Operation: models.ChangeUpdate}
	require.NoError(t, bus.NotifyMatchesChanged(ctx, want))

	select {
	case got := <-events:
		require.Equal(t, want, got)
	case <-ctx.Done():
		t.Fatal("change event was not delivered")
	}
}

func TestSubscribeChangesBuffersBurst(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := NewBus(slog.New(slog.DiscardHandler))
	defer bus.Close()
	events, err := bus.SubscribeChanges(ctx)
	require.NoError(t, err)

	// подписчик занят и не читает: события копятся в буфере, а не ждут по одному
	for i := 1; i <= 5; i++ {
		require.NoError(t, bus.NotifyMatchesChanged(ctx, models.ChangeEvent{TournamentID: 3, MatchID: i, Operation: models.ChangeUpdate}))
	}
	require.Eventually(t, func() bool { return len(events) == 5 }, 2*time.Second, 10*time.Millisecond)

	got := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		got = append(got, (<-events).MatchID)
	}
	require.ElementsMatch(t, []int{1, 2, 3, 4, 5}, got)
}

func TestMemoryStoreNotifiesBus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger := slog.New(slog.DiscardHandler)
	bus := NewBus(logger)
	defer bus.Close()
	events, err := bus.SubscribeChanges(ctx)
	require.NoError(t, err)

	store := repositories.NewMemoryStore(repositories.WithNotifier(bus, logger))
	tournament := store.AddTournament(models.Tournament{Type: models.TypeSingleElimination, Status: models.StatusOngoing})
	p1, p2 := 1, 2
	m := store.AddMatches(models.Match{TournamentID: tournament.ID, RoundNumber: 1, MatchNumber: 1, Player1ID: &p1, Player2ID: &p2})[0]

	_, err = store.UpdateScore(ctx, m.ID, 2, 1, nil)
	require.NoError(t, err)

	select {
	case got := <-events:
		require.Equal(t, models.ChangeEvent{TournamentID: tournament.ID, MatchID: m.ID, Operation: models.ChangeUpdate}, got)
	case <-ctx.Done():
		t.Fatal("store mutation was not published")
	}
}

func TestSubscribeChangesClosesOnCancel(t *testing.T) {
	bus := NewBus(slog.New(slog.DiscardHandler))
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := bus.SubscribeChanges(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		require.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription channel was not closed")
	}
}
