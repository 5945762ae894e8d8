package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/Dosada05/bracket-progression/brackets"
	"github.com/Dosada05/bracket-progression/models"
)

// ChangeSource delivers "matches changed" events.
type ChangeSource interface {
	SubscribeChanges(ctx context.Context) (<-chan models.ChangeEvent, error)
}

// ProgressionWatcher re-validates a tournament whenever its matches change, tells realtime
// observers about the result and hands persisting issues to the auto-fix scheduler.
type ProgressionWatcher struct {
	source      ChangeSource
	progression ProgressionService
	scheduler   *AutoFixScheduler
	broadcaster Broadcaster
	timeout     time.Duration
	logger      *slog.Logger
}

func NewProgressionWatcher(
	source ChangeSource,
	progression ProgressionService,
	scheduler *AutoFixScheduler,
	broadcaster Broadcaster,
	timeout time.Duration,
	logger *slog.Logger,
) *ProgressionWatcher {
	return &ProgressionWatcher{
		source:      source,
		progression: progression,
		scheduler:   scheduler,
		broadcaster: broadcaster,
		timeout:     timeout,
		logger:      logger,
	}
}

// Run processes events until ctx is cancelled. Events are handled one at a time. Whatever is
// already buffered in the source when an event arrives is drained with it, and each tournament
// in that batch is checked once.
func (w *ProgressionWatcher) Run(ctx context.Context) error {
	events, err := w.source.SubscribeChanges(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("progression watcher started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			pending := map[int]struct{}{event.TournamentID: {}}
			order := []int{event.TournamentID}
		drain:
			for {
				select {
				case more, ok := <-events:
					if !ok {
						break drain
					}
					if _, seen := pending[more.TournamentID]; !seen {
						pending[more.TournamentID] = struct{}{}
						order = append(order, more.TournamentID)
					}
				default:
					break drain
				}
			}
			for _, id := range order {
				w.Handle(ctx, id)
			}
		}
	}
}

// Handle runs one check for the tournament.
func (w *ProgressionWatcher) Handle(ctx context.Context, tournamentID int) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	check, err := w.progression.Check(ctx, tournamentID)
	if err != nil {
		w.logger.WarnContext(ctx, "progression check failed",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}
	if w.broadcaster != nil {
		w.broadcaster.BroadcastTournament(tournamentID, brackets.MessageProgressionChecked, check.Report)
	}
	if !check.Report.HasIssues {
		return
	}

	w.logger.InfoContext(ctx, "progression issues detected",
		slog.Int("tournament_id", tournamentID),
		slog.Any("issues", check.Report.Issues))
	if _, err := w.scheduler.Trigger(ctx, check.Tournament, check.Report, models.SystemActor); err != nil {
		w.logger.WarnContext(ctx, "auto-fix after change failed",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
	}
}
