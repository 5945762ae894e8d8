package services

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/Dosada05/bracket-progression/brackets"
	"github.com/Dosada05/bracket-progression/models"
	"golang.org/x/sync/singleflight"
)

// CooldownStore atomically checks and records the last auto-fix of a tournament.
type CooldownStore interface {
	// Acquire returns true, and starts a new cooldown window, when no fix happened within cooldown.
	Acquire(ctx context.Context, tournamentID int, cooldown time.Duration) (bool, error)
	Close() error
}

type AutoFixDecision string

const (
	DecisionRepaired  AutoFixDecision = "repaired"
	DecisionNoIssues  AutoFixDecision = "no_issues"
	DecisionCooldown  AutoFixDecision = "cooldown"
	DecisionForbidden AutoFixDecision = "forbidden"
	DecisionInactive  AutoFixDecision = "inactive"
	DecisionFailed    AutoFixDecision = "failed"
)

type AutoFixResult struct {
	TournamentID int             `json:"tournament_id"`
	Decision     AutoFixDecision `json:"decision"`
	Repair       *RepairResult   `json:"repair,omitempty"`
}

// AutoFixScheduler decides whether a reported progression issue warrants a bracket repair.
type AutoFixScheduler struct {
	advancement AdvancementService
	cooldowns   CooldownStore
	cooldown    time.Duration
	broadcaster Broadcaster
	logger      *slog.Logger
	metrics     *Metrics
	inflight    singleflight.Group
}

func NewAutoFixScheduler(
	advancement AdvancementService,
	cooldowns CooldownStore,
	cooldown time.Duration,
	broadcaster Broadcaster,
	logger *slog.Logger,
	metrics *Metrics,
) *AutoFixScheduler {
	return &AutoFixScheduler{
		advancement: advancement,
		cooldowns:   cooldowns,
		cooldown:    cooldown,
		broadcaster: broadcaster,
		logger:      logger,
		metrics:     metrics,
	}
}

// Trigger runs RepairBracket when the report has issues, the actor may manage the tournament and
// the cooldown has elapsed. Two triggers racing past the cooldown are merged into one repair.
func (s *AutoFixScheduler) Trigger(ctx context.Context, tournament models.Tournament, report brackets.ProgressionReport, actor models.Actor) (*AutoFixResult, error) {
	result := &AutoFixResult{TournamentID: tournament.ID}

	switch {
	case !report.HasIssues:
		result.Decision = DecisionNoIssues
	case !tournament.Status.IsActive():
		result.Decision = DecisionInactive
	case !canManageTournament(actor, &tournament):
		result.Decision = DecisionForbidden
	}
	if result.Decision != "" {
		s.metrics.autofix(result.Decision)
		if result.Decision == DecisionForbidden {
			return result, ErrForbiddenOperation
		}
		return result, nil
	}

	acquired, err := s.cooldowns.Acquire(ctx, tournament.ID, s.cooldown)
	if err != nil {
		result.Decision = DecisionFailed
		s.metrics.autofix(result.Decision)
		return result, err
	}
	if !acquired {
		result.Decision = DecisionCooldown
		s.metrics.autofix(result.Decision)
		s.logger.DebugContext(ctx, "auto-fix skipped by cooldown", slog.Int("tournament_id", tournament.ID))
		return result, nil
	}

	repair, err := s.repair(ctx, tournament.ID)
	result.Repair = repair
	if err != nil && repair == nil {
		result.Decision = DecisionFailed
		s.metrics.autofix(result.Decision)
		s.logger.WarnContext(ctx, "auto-fix failed",
			slog.Int("tournament_id", tournament.ID), slog.Any("error", err))
		return result, err
	}

	result.Decision = DecisionRepaired
	s.metrics.autofix(result.Decision)
	s.logger.InfoContext(ctx, "auto-fix repaired bracket",
		slog.Int("tournament_id", tournament.ID),
		slog.Int("actor_id", actor.UserID),
		slog.Int("advancements_made", repair.AdvancementsMade),
		slog.Int("conflicts", len(repair.Conflicts)))
	if s.broadcaster != nil {
		s.broadcaster.BroadcastTournament(tournament.ID, brackets.MessageBracketRepaired, repair)
	}
	return result, err
}

func (s *AutoFixScheduler) repair(ctx context.Context, tournamentID int) (*RepairResult, error) {
	type outcome struct {
		result *RepairResult
		err    error
	}
	v, _, _ := s.inflight.Do(strconv.Itoa(tournamentID), func() (interface{}, error) {
		r, err := s.advancement.RepairBracket(ctx, tournamentID)
		return outcome{result: r, err: err}, nil
	})
	o := v.(outcome)
	return o.result, o.err
}

// Close releases the cooldown store.
func (s *AutoFixScheduler) Close() error {
	return s.cooldowns.Close()
}
