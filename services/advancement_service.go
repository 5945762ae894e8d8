package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/bracket-progression/brackets"
	"github.com/Dosada05/bracket-progression/models"
	"github.com/Dosada05/bracket-progression/repositories"
)

// Conflict is a destination slot that already holds a different player. It is never overwritten.
type Conflict struct {
	SourceMatchID      int         `json:"source_match_id"`
	DestinationMatchID int         `json:"destination_match_id"`
	Slot               models.Slot `json:"slot"`
	ExpectedPlayerID   int         `json:"expected_player_id"`
	ExistingPlayerID   int         `json:"existing_player_id"`
}

func (c Conflict) String() string {
	return fmt.Sprintf("match %d slot %d holds player %d, match %d expects player %d",
		c.DestinationMatchID, c.Slot, c.ExistingPlayerID, c.SourceMatchID, c.ExpectedPlayerID)
}

type AdvanceResult struct {
	MatchID             int        `json:"match_id"`
	Advanced            bool       `json:"advanced"`
	DestinationMatchIDs []int      `json:"destination_match_ids"`
	AdvancementsMade    int        `json:"advancements_made"`
	IsFinalMatch        bool       `json:"is_final_match"`
	TournamentCompleted bool       `json:"tournament_completed"`
	ChampionID          *int       `json:"champion_id,omitempty"`
	Conflicts           []Conflict `json:"conflicts,omitempty"`
}

type RepairResult struct {
	TournamentID        int        `json:"tournament_id"`
	AdvancementsMade    int        `json:"advancements_made"`
	AlreadyPlaced       int        `json:"already_placed"`
	DestinationMatchIDs []int      `json:"destination_match_ids"`
	TournamentCompleted bool       `json:"tournament_completed"`
	FinalMatchID        int        `json:"final_match_id,omitempty"` // матч, решивший турнир
	ChampionID          *int       `json:"champion_id,omitempty"`
	Conflicts           []Conflict `json:"conflicts,omitempty"`
}

type AdvancementService interface {
	AdvanceWinner(ctx context.Context, matchID int) (*AdvanceResult, error)
	RepairBracket(ctx context.Context, tournamentID int) (*RepairResult, error)
}

type advancementService struct {
	matchRepo      repositories.MatchRepository
	tournamentRepo repositories.TournamentRepository
	timeout        time.Duration
	logger         *slog.Logger
	metrics        *Metrics
}

func NewAdvancementService(
	matchRepo repositories.MatchRepository,
	tournamentRepo repositories.TournamentRepository,
	timeout time.Duration,
	logger *slog.Logger,
	metrics *Metrics,
) AdvancementService {
	return &advancementService{
		matchRepo:      matchRepo,
		tournamentRepo: tournamentRepo,
		timeout:        timeout,
		logger:         logger,
		metrics:        metrics,
	}
}

// tally накапливает итоги записи слотов для одного вызова.
type tally struct {
	made      int
	already   int
	destIDs   []int
	conflicts []Conflict
}

func (t *tally) addDestination(id int) {
	for _, existing := range t.destIDs {
		if existing == id {
			return
		}
	}
	t.destIDs = append(t.destIDs, id)
}

func (t *tally) conflictError() error {
	if len(t.conflicts) == 0 {
		return nil
	}
	parts := make([]string, 0, len(t.conflicts))
	for _, c := range t.conflicts {
		parts = append(parts, c.String())
	}
	return fmt.Errorf("%w: %s", ErrAdvancementConflict, strings.Join(parts, "; "))
}

func (s *advancementService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *advancementService) AdvanceWinner(ctx context.Context, matchID int) (*AdvanceResult, error) {
	defer s.metrics.observe("advance", time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, wrapTimeout(handleRepositoryError(err))
	}
	if !match.HasWinner() {
		// никогда не продвигаем пустого победителя
		return nil, fmt.Errorf("%w: match %d is %s", ErrNoWinner, matchID, match.Status)
	}

	tournament, plan, err := s.loadPlan(ctx, match.TournamentID)
	if err != nil {
		return nil, err
	}
	if !tournament.Status.IsActive() {
		return nil, fmt.Errorf("%w: tournament %d is %s", ErrTournamentFrozen, tournament.ID, tournament.Status)
	}

	current, ok := plan.Match(matchID)
	if !ok {
		current = match
	}
	resolution, err := plan.Resolve(current)
	if err != nil {
		return nil, mapBracketError(err)
	}

	result := &AdvanceResult{MatchID: matchID, DestinationMatchIDs: []int{}}
	if resolution.Final {
		completed, err := s.complete(ctx, tournament.ID, resolution.ChampionID)
		if err != nil {
			return nil, err
		}
		result.IsFinalMatch = true
		result.TournamentCompleted = completed
		result.ChampionID = resolution.ChampionID
		return result, nil
	}

	var t tally
	for _, pl := range resolution.Placements {
		if err := s.place(ctx, pl, &t); err != nil {
			return nil, err
		}
	}
	result.AdvancementsMade = t.made
	result.DestinationMatchIDs = append(result.DestinationMatchIDs, t.destIDs...)
	result.Advanced = len(t.destIDs) > 0
	result.Conflicts = t.conflicts

	s.logger.InfoContext(ctx, "match winner advanced",
		slog.Int("match_id", matchID),
		slog.Int("tournament_id", tournament.ID),
		slog.Int("advancements_made", t.made),
		slog.Int("conflicts", len(t.conflicts)))
	return result, t.conflictError()
}

// RepairBracket re-derives every placement from completed matches and writes the missing ones.
// Slots already holding the expected player are skipped without a write, so a second run over a
// consistent bracket writes nothing. Conflicts do not stop the run; they are returned together
// with the result.
func (s *advancementService) RepairBracket(ctx context.Context, tournamentID int) (result *RepairResult, err error) {
	defer s.metrics.observe("repair", time.Now())
	defer func() { s.metrics.repair(ResultCode(err)) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tournament, plan, err := s.loadPlan(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if !tournament.Status.IsActive() {
		return nil, fmt.Errorf("%w: tournament %d is %s", ErrTournamentFrozen, tournament.ID, tournament.Status)
	}

	result = &RepairResult{TournamentID: tournamentID, DestinationMatchIDs: []int{}}
	var t tally
	for _, match := range plan.Completed() {
		resolution, resolveErr := plan.Resolve(match)
		if resolveErr != nil {
			return nil, mapBracketError(resolveErr)
		}
		if resolution.Final {
			result.FinalMatchID = match.ID
			result.ChampionID = resolution.ChampionID
			continue
		}
		for _, pl := range resolution.Placements {
			if err := s.place(ctx, pl, &t); err != nil {
				return nil, err
			}
		}
	}
	result.AdvancementsMade = t.made
	result.AlreadyPlaced = t.already
	result.DestinationMatchIDs = append(result.DestinationMatchIDs, t.destIDs...)
	result.Conflicts = t.conflicts

	if result.FinalMatchID != 0 && len(t.conflicts) == 0 {
		completed, err := s.complete(ctx, tournamentID, result.ChampionID)
		if err != nil {
			return nil, err
		}
		result.TournamentCompleted = completed
	}

	s.logger.InfoContext(ctx, "bracket repaired",
		slog.Int("tournament_id", tournamentID),
		slog.Int("advancements_made", t.made),
		slog.Int("already_placed", t.already),
		slog.Int("conflicts", len(t.conflicts)))
	return result, t.conflictError()
}

func (s *advancementService) loadPlan(ctx context.Context, tournamentID int) (*models.Tournament, *brackets.Plan, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, nil, wrapTimeout(handleRepositoryError(err))
	}
	matches, err := s.matchRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, nil, wrapTimeout(fmt.Errorf("failed to list matches of tournament %d: %w", tournamentID, err))
	}
	plan, err := brackets.NewPlan(tournament.Type, matches)
	if err != nil {
		return nil, nil, mapBracketError(err)
	}
	return tournament, plan, nil
}

// place записывает одного игрока в слот назначения через CAS репозитория.
func (s *advancementService) place(ctx context.Context, pl brackets.Placement, t *tally) error {
	if pl.Satisfied() {
		t.already++
		t.addDestination(pl.DestinationMatchID)
		return nil
	}
	if pl.Conflicting() {
		s.recordConflict(ctx, t, pl, *pl.Current)
		return nil
	}

	fill, err := s.matchRepo.FillSlot(ctx, pl.DestinationMatchID, pl.Destination.Slot, pl.PlayerID)
	if err != nil {
		return wrapTimeout(handleRepositoryError(err))
	}
	switch fill.Outcome {
	case repositories.SlotFilled:
		t.made++
		t.addDestination(pl.DestinationMatchID)
		s.metrics.slotFilled(string(pl.Destination.Branch))
	case repositories.SlotAlreadyFilled:
		t.already++
		t.addDestination(pl.DestinationMatchID)
	case repositories.SlotConflict:
		existing := 0
		if fill.ExistingPlayerID != nil {
			existing = *fill.ExistingPlayerID
		}
		s.recordConflict(ctx, t, pl, existing)
	}
	return nil
}

func (s *advancementService) recordConflict(ctx context.Context, t *tally, pl brackets.Placement, existing int) {
	c := Conflict{
		SourceMatchID:      pl.SourceMatchID,
		DestinationMatchID: pl.DestinationMatchID,
		Slot:               pl.Destination.Slot,
		ExpectedPlayerID:   pl.PlayerID,
		ExistingPlayerID:   existing,
	}
	t.conflicts = append(t.conflicts, c)
	s.metrics.conflict()
	s.logger.WarnContext(ctx, "advancement conflict requires manual review",
		slog.Int("source_match_id", c.SourceMatchID),
		slog.Int("destination_match_id", c.DestinationMatchID),
		slog.Int("slot", int(c.Slot)),
		slog.Int("expected_player_id", c.ExpectedPlayerID),
		slog.Int("existing_player_id", c.ExistingPlayerID))
}

func (s *advancementService) complete(ctx context.Context, tournamentID int, championID *int) (bool, error) {
	completed, err := s.tournamentRepo.Complete(ctx, tournamentID, championID)
	if err != nil {
		return false, wrapTimeout(handleRepositoryError(err))
	}
	if completed {
		s.logger.InfoContext(ctx, "tournament completed", slog.Int("tournament_id", tournamentID))
	}
	return completed, nil
}

func mapBracketError(err error) error {
	switch {
	case errors.Is(err, brackets.ErrNoWinner):
		return fmt.Errorf("%w: %w", ErrNoWinner, err)
	case errors.Is(err, brackets.ErrNotElimination):
		return fmt.Errorf("%w: %w", ErrUnsupportedTournamentType, err)
	case errors.Is(err, brackets.ErrUnknownPosition),
		errors.Is(err, brackets.ErrMissingDestination),
		errors.Is(err, brackets.ErrInvalidBracketSize):
		return fmt.Errorf("%w: %w", ErrBracketShape, err)
	default:
		return err
	}
}

func wrapTimeout(err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrAdvancementTimeout, err)
	}
	return err
}
