package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/bracket-progression/brackets"
	"github.com/Dosada05/bracket-progression/cache"
	"github.com/Dosada05/bracket-progression/models"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var issueReport = brackets.ProgressionReport{
	HasIssues: true,
	Issues:    []string{"round 1 has 1 completed match(es) with a winner while round 2 has 1 match(es) with an empty slot"},
	Details:   []brackets.Issue{{FromRound: 1, ToRound: 2, CompletedMatches: 1, EmptyMatches: 1}},
}

func activeTournament() models.Tournament {
	return models.Tournament{ID: 7, Type: models.TypeSingleElimination, Status: models.StatusOngoing, OrganizerID: organizer.UserID}
}

func TestAutoFixDecisions(t *testing.T) {
	frozen := activeTournament()
	frozen.Status = models.StatusCompleted

	tests := []struct {
		name        string
		tournament  models.Tournament
		report      brackets.ProgressionReport
		actor       models.Actor
		want        AutoFixDecision
		wantErr     error
		wantRepairs int
	}{
		{name: "no issues", tournament: activeTournament(), report: brackets.ProgressionReport{}, actor: organizer, want: DecisionNoIssues},
		{name: "frozen tournament", tournament: frozen, report: issueReport, actor: admin, want: DecisionInactive},
		{name: "not the organizer", tournament: activeTournament(), report: issueReport, actor: stranger, want: DecisionForbidden, wantErr: ErrForbiddenOperation},
		{name: "organizer", tournament: activeTournament(), report: issueReport, actor: organizer, want: DecisionRepaired, wantRepairs: 1},
		{name: "system actor", tournament: activeTournament(), report: issueReport, actor: models.SystemActor, want: DecisionRepaired, wantRepairs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv := &FakeAdvancementService{}
			s := NewAutoFixScheduler(adv, cache.NewMemoryCooldown(), 30*time.Second, nil, discardLogger(), nil)

			result, err := s.Trigger(context.Background(), tt.tournament, tt.report, tt.actor)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.want, result.Decision)
			require.Len(t, adv.Trace(), tt.wantRepairs)
		})
	}
}

func TestAutoFixCooldown(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	adv := &FakeAdvancementService{}
	b := &FakeBroadcaster{}
	s := NewAutoFixScheduler(adv, cache.NewMemoryCooldownWithClock(clock.Now), 30*time.Second, b, discardLogger(), nil)
	defer s.Close()

	first, err := s.Trigger(ctx, activeTournament(), issueReport, organizer)
	require.NoError(t, err)
	require.Equal(t, DecisionRepaired, first.Decision)

	clock.Advance(10 * time.Second)
	second, err := s.Trigger(ctx, activeTournament(), issueReport, admin)
	require.NoError(t, err)
	require.Equal(t, DecisionCooldown, second.Decision)
	require.Len(t, adv.Trace(), 1, "exactly one repair inside the window")

	// другой турнир не зависит от окна
	other := activeTournament()
	other.ID = 8
	third, err := s.Trigger(ctx, other, issueReport, admin)
	require.NoError(t, err)
	require.Equal(t, DecisionRepaired, third.Decision)

	clock.Advance(21 * time.Second)
	fourth, err := s.Trigger(ctx, activeTournament(), issueReport, organizer)
	require.NoError(t, err)
	require.Equal(t, DecisionRepaired, fourth.Decision)
	require.Len(t, adv.Trace(), 3)
	require.Equal(t, []string{brackets.MessageBracketRepaired, brackets.MessageBracketRepaired, brackets.MessageBracketRepaired}, b.Types())
}

func TestAutoFixConcurrentTriggersRepairOnce(t *testing.T) {
	adv := &FakeAdvancementService{}
	s := NewAutoFixScheduler(adv, cache.NewMemoryCooldown(), time.Minute, nil, discardLogger(), nil)

	var wg sync.WaitGroup
	decisions := make(chan AutoFixDecision, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Trigger(context.Background(), activeTournament(), issueReport, admin)
			if err == nil {
				decisions <- res.Decision
			}
		}()
	}
	wg.Wait()
	close(decisions)

	repaired := 0
	for d := range decisions {
		if d == DecisionRepaired {
			repaired++
		}
	}
	require.Equal(t, 1, repaired)
	require.Len(t, adv.Trace(), 1)
}

func TestAutoFixRepairFailure(t *testing.T) {
	boom := errors.New("database is down")
	adv := &FakeAdvancementService{
		RepairBracketFunc: func(context.Context, int) (*RepairResult, error) { return nil, boom },
	}
	s := NewAutoFixScheduler(adv, cache.NewMemoryCooldown(), time.Minute, nil, discardLogger(), nil)

	result, err := s.Trigger(context.Background(), activeTournament(), issueReport, admin)
	require.ErrorIs(t, err, boom)
	require.Equal(t, DecisionFailed, result.Decision)
}

func TestAutoFixRepairsRealBracket(t *testing.T) {
	ctx := context.Background()
	f := newBracketFixture(t, models.TypeSingleElimination, 4, brackets.LayoutOptions{})
	f.record(t, f.id(models.BranchWinner, 1, 1), 3, 1)

	check, err := NewProgressionService(f.store.Tournaments(), f.store).Check(ctx, f.tournament.ID)
	require.NoError(t, err)
	require.True(t, check.Report.HasIssues)

	s := NewAutoFixScheduler(f.advancement(), cache.NewMemoryCooldown(), time.Minute, nil, discardLogger(), nil)
	result, err := s.Trigger(ctx, check.Tournament, check.Report, organizer)
	require.NoError(t, err)
	require.Equal(t, DecisionRepaired, result.Decision)
	require.Equal(t, 1, result.Repair.AdvancementsMade)
	require.Equal(t, 1, *f.match(t, f.id(models.BranchWinner, 2, 1)).Player1ID)
}
